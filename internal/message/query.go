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

package message

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Query carries a CQL statement and the consistency level the coordinator
// must honor while executing it. Flag-dependent appendages (bound values,
// paging state, serial consistency, ...) are out of scope: the decoder
// reads the 4-byte flags field but never attempts to parse trailing
// appendages, and any client that sends flags=0 (the common case for a
// value-less statement) round-trips cleanly.
type Query struct {
	QueryText   string
	Consistency primitive.ConsistencyLevel
	Flags       uint32
}

func (m *Query) IsResponse() bool         { return false }
func (m *Query) OpCode() primitive.OpCode { return primitive.OpCodeQuery }
func (m *Query) String() string {
	return fmt.Sprintf("QUERY %q cl=%v", m.QueryText, m.Consistency)
}

type queryCodec struct{}

func (queryCodec) OpCode() primitive.OpCode { return primitive.OpCodeQuery }

func (queryCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Query)
	if !ok {
		return fmt.Errorf("expected *message.Query, got %T", msg)
	}
	if err := primitive.WriteLongString(m.QueryText, dest); err != nil {
		return fmt.Errorf("encode QUERY text: %w", err)
	}
	if err := primitive.WriteConsistencyLevel(m.Consistency, dest); err != nil {
		return fmt.Errorf("encode QUERY consistency: %w", err)
	}
	return primitive.WriteUnsignedInt(m.Flags, dest)
}

func (queryCodec) Decode(source io.Reader) (Message, error) {
	queryText, err := primitive.ReadLongString(source)
	if err != nil {
		return nil, fmt.Errorf("decode QUERY text: %w", err)
	}
	cl, err := primitive.ReadConsistencyLevelFrom(source)
	if err != nil {
		return nil, fmt.Errorf("decode QUERY consistency: %w", err)
	}
	flags, err := primitive.ReadUnsignedInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode QUERY flags: %w", err)
	}
	return &Query{QueryText: queryText, Consistency: cl, Flags: flags}, nil
}
