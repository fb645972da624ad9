// Copyright 2020 DataStax
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package protoerr maps the internal Go errors raised by cqlstmt, storage
// and coordinator onto the wire-level message.Error kinds a client expects
// back, keeping that judgment out of every call site that can fail.
package protoerr

import (
	"errors"
	"fmt"

	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// AlreadyExistsError marks a DDL collision (CREATE without IF NOT EXISTS).
type AlreadyExistsError struct {
	Keyspace string
	Table    string
}

func (e *AlreadyExistsError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("keyspace %q already exists", e.Keyspace)
	}
	return fmt.Sprintf("table %s.%s already exists", e.Keyspace, e.Table)
}

// NotFoundError marks a DDL/DML reference to a keyspace or table that does
// not exist.
type NotFoundError struct {
	Keyspace string
	Table    string
}

func (e *NotFoundError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("keyspace %q does not exist", e.Keyspace)
	}
	return fmt.Sprintf("table %s.%s does not exist", e.Keyspace, e.Table)
}

// UnavailableError marks a request that could not reach enough live
// replicas to satisfy its consistency level.
type UnavailableError struct {
	Consistency primitive.ConsistencyLevel
	Required    int32
	Alive       int32
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("not enough replicas alive: need %d, have %d", e.Required, e.Alive)
}

// TimeoutError marks a write or read that didn't collect enough replica
// acknowledgements before its deadline. Read is false for a write timeout.
type TimeoutError struct {
	Consistency primitive.ConsistencyLevel
	Received    int32
	BlockFor    int32
	Read        bool
}

func (e *TimeoutError) Error() string {
	kind := "write"
	if e.Read {
		kind = "read"
	}
	return fmt.Sprintf("%s timeout: got %d of %d required acks", kind, e.Received, e.BlockFor)
}

// ToWireError converts any error into the message.Error the session handler
// should send back to the client. Unrecognized errors become a generic
// ServerError so the connection never silently hangs.
func ToWireError(err error) message.Error {
	var already *AlreadyExistsError
	if errors.As(err, &already) {
		return message.NewAlreadyExists(err.Error(), already.Keyspace, already.Table)
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return message.NewInvalid(err.Error())
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return message.NewUnavailableException(err.Error(), unavailable.Consistency, unavailable.Required, unavailable.Alive)
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		if timeout.Read {
			return message.NewReadTimeout(err.Error(), timeout.Consistency, timeout.Received, timeout.BlockFor, false)
		}
		return message.NewWriteTimeout(err.Error(), timeout.Consistency, timeout.Received, timeout.BlockFor, "SIMPLE")
	}
	var syntax *SyntaxError
	if errors.As(err, &syntax) {
		return message.NewSyntaxError(err.Error())
	}
	return message.NewServerError(err.Error())
}

// SyntaxError marks a statement the parser could not make sense of.
type SyntaxError struct{ Text string }

func (e *SyntaxError) Error() string { return e.Text }
