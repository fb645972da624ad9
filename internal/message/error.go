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

// Error is any ERROR body: a human message plus a code-specific tail. The
// kinds implemented here are a subset of the reference protocol's
// message.Error family (ServerError, ProtocolError, AuthenticationError,
// ...), extended with the cluster-coordination kinds this store needs
// (UnavailableException, WriteTimeout, ReadTimeout, ReadFailure,
// AlreadyExists).
type Error interface {
	Message
	Code() primitive.ErrorCode
	Text() string
}

type baseError struct {
	code primitive.ErrorCode
	text string
}

func (e *baseError) IsResponse() bool           { return true }
func (e *baseError) OpCode() primitive.OpCode   { return primitive.OpCodeError }
func (e *baseError) Code() primitive.ErrorCode  { return e.code }
func (e *baseError) Text() string               { return e.text }
func (e *baseError) String() string             { return fmt.Sprintf("ERROR %v: %v", e.code, e.text) }

func NewServerError(text string) Error {
	return &baseError{code: primitive.ErrorCodeServerError, text: text}
}

func NewProtocolError(text string) Error {
	return &baseError{code: primitive.ErrorCodeProtocolError, text: text}
}

func NewAuthenticationError(text string) Error {
	return &baseError{code: primitive.ErrorCodeAuthenticationError, text: text}
}

func NewTruncateError(text string) Error {
	return &baseError{code: primitive.ErrorCodeTruncateError, text: text}
}

func NewSyntaxError(text string) Error {
	return &baseError{code: primitive.ErrorCodeSyntaxError, text: text}
}

func NewUnauthorized(text string) Error {
	return &baseError{code: primitive.ErrorCodeUnauthorized, text: text}
}

func NewInvalid(text string) Error {
	return &baseError{code: primitive.ErrorCodeInvalid, text: text}
}

func NewConfigError(text string) Error {
	return &baseError{code: primitive.ErrorCodeConfigError, text: text}
}

// UnavailableException reports that fewer replicas are alive than the
// requested consistency level requires.
type UnavailableException struct {
	baseError
	Consistency primitive.ConsistencyLevel
	Required    int32
	Alive       int32
}

func NewUnavailableException(text string, cl primitive.ConsistencyLevel, required, alive int32) *UnavailableException {
	return &UnavailableException{baseError: baseError{code: primitive.ErrorCodeUnavailableException, text: text}, Consistency: cl, Required: required, Alive: alive}
}

func (e *UnavailableException) String() string {
	return fmt.Sprintf("ERROR UNAVAILABLE cl=%v required=%d alive=%d: %v", e.Consistency, e.Required, e.Alive, e.text)
}

// WriteTimeout reports that fewer than blockFor replicas acknowledged a
// write before the coordinator gave up.
type WriteTimeout struct {
	baseError
	Consistency primitive.ConsistencyLevel
	Received    int32
	BlockFor    int32
	WriteType   string
}

func NewWriteTimeout(text string, cl primitive.ConsistencyLevel, received, blockFor int32, writeType string) *WriteTimeout {
	return &WriteTimeout{baseError: baseError{code: primitive.ErrorCodeWriteTimeout, text: text}, Consistency: cl, Received: received, BlockFor: blockFor, WriteType: writeType}
}

func (e *WriteTimeout) String() string {
	return fmt.Sprintf("ERROR WRITE_TIMEOUT cl=%v received=%d blockFor=%d writeType=%v: %v", e.Consistency, e.Received, e.BlockFor, e.WriteType, e.text)
}

// ReadTimeout reports that fewer than blockFor replicas answered a read
// before the coordinator gave up.
type ReadTimeout struct {
	baseError
	Consistency primitive.ConsistencyLevel
	Received    int32
	BlockFor    int32
	DataPresent bool
}

func NewReadTimeout(text string, cl primitive.ConsistencyLevel, received, blockFor int32, dataPresent bool) *ReadTimeout {
	return &ReadTimeout{baseError: baseError{code: primitive.ErrorCodeReadTimeout, text: text}, Consistency: cl, Received: received, BlockFor: blockFor, DataPresent: dataPresent}
}

func (e *ReadTimeout) String() string {
	return fmt.Sprintf("ERROR READ_TIMEOUT cl=%v received=%d blockFor=%d dataPresent=%v: %v", e.Consistency, e.Received, e.BlockFor, e.DataPresent, e.text)
}

// ReadFailure reports a non-timeout read failure, with a per-replica reason map.
type ReadFailure struct {
	baseError
	Consistency primitive.ConsistencyLevel
	Received    int32
	BlockFor    int32
	Reasons     map[string]int16
	DataPresent bool
}

func NewReadFailure(text string, cl primitive.ConsistencyLevel, received, blockFor int32, reasons map[string]int16, dataPresent bool) *ReadFailure {
	return &ReadFailure{baseError: baseError{code: primitive.ErrorCodeReadFailure, text: text}, Consistency: cl, Received: received, BlockFor: blockFor, Reasons: reasons, DataPresent: dataPresent}
}

func (e *ReadFailure) String() string {
	return fmt.Sprintf("ERROR READ_FAILURE cl=%v received=%d blockFor=%d reasons=%v: %v", e.Consistency, e.Received, e.BlockFor, e.Reasons, e.text)
}

// AlreadyExists reports a DDL collision (keyspace or table already present).
type AlreadyExists struct {
	baseError
	Keyspace string
	Table    string
}

func NewAlreadyExists(text, keyspace, table string) *AlreadyExists {
	return &AlreadyExists{baseError: baseError{code: primitive.ErrorCodeAlreadyExists, text: text}, Keyspace: keyspace, Table: table}
}

func (e *AlreadyExists) String() string {
	return fmt.Sprintf("ERROR ALREADY_EXISTS ks=%v table=%v: %v", e.Keyspace, e.Table, e.text)
}

type errorCodec struct{}

func (errorCodec) OpCode() primitive.OpCode { return primitive.OpCodeError }

func (errorCodec) Encode(msg Message, dest io.Writer) error {
	e, ok := msg.(Error)
	if !ok {
		return fmt.Errorf("expected message.Error, got %T", msg)
	}
	if err := primitive.WriteUnsignedInt(uint32(e.Code()), dest); err != nil {
		return fmt.Errorf("encode ERROR code: %w", err)
	}
	if err := primitive.WriteString(e.Text(), dest); err != nil {
		return fmt.Errorf("encode ERROR message: %w", err)
	}
	switch v := msg.(type) {
	case *UnavailableException:
		if err := primitive.WriteConsistencyLevel(v.Consistency, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.Required, dest); err != nil {
			return err
		}
		return primitive.WriteInt(v.Alive, dest)
	case *WriteTimeout:
		if err := primitive.WriteConsistencyLevel(v.Consistency, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.Received, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.BlockFor, dest); err != nil {
			return err
		}
		return primitive.WriteString(v.WriteType, dest)
	case *ReadTimeout:
		if err := primitive.WriteConsistencyLevel(v.Consistency, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.Received, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.BlockFor, dest); err != nil {
			return err
		}
		return primitive.WriteByte(boolByte(v.DataPresent), dest)
	case *ReadFailure:
		if err := primitive.WriteConsistencyLevel(v.Consistency, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.Received, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(v.BlockFor, dest); err != nil {
			return err
		}
		if err := primitive.WriteInt(int32(len(v.Reasons)), dest); err != nil {
			return err
		}
		for endpoint, reason := range v.Reasons {
			if err := primitive.WriteString(endpoint, dest); err != nil {
				return err
			}
			if err := primitive.WriteShort(uint16(reason), dest); err != nil {
				return err
			}
		}
		return primitive.WriteByte(boolByte(v.DataPresent), dest)
	case *AlreadyExists:
		if err := primitive.WriteString(v.Keyspace, dest); err != nil {
			return err
		}
		return primitive.WriteString(v.Table, dest)
	default:
		return nil
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (errorCodec) Decode(source io.Reader) (Message, error) {
	code, err := primitive.ReadUnsignedInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode ERROR code: %w", err)
	}
	text, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("decode ERROR message: %w", err)
	}
	switch primitive.ErrorCode(code) {
	case primitive.ErrorCodeUnavailableException:
		cl, err := primitive.ReadConsistencyLevelFrom(source)
		if err != nil {
			return nil, err
		}
		required, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		alive, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		return NewUnavailableException(text, cl, required, alive), nil
	case primitive.ErrorCodeWriteTimeout:
		cl, err := primitive.ReadConsistencyLevelFrom(source)
		if err != nil {
			return nil, err
		}
		received, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		blockFor, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		writeType, err := primitive.ReadString(source)
		if err != nil {
			return nil, err
		}
		return NewWriteTimeout(text, cl, received, blockFor, writeType), nil
	case primitive.ErrorCodeReadTimeout:
		cl, err := primitive.ReadConsistencyLevelFrom(source)
		if err != nil {
			return nil, err
		}
		received, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		blockFor, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		dataPresent, err := primitive.ReadByte(source)
		if err != nil {
			return nil, err
		}
		return NewReadTimeout(text, cl, received, blockFor, dataPresent != 0), nil
	case primitive.ErrorCodeReadFailure:
		cl, err := primitive.ReadConsistencyLevelFrom(source)
		if err != nil {
			return nil, err
		}
		received, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		blockFor, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		reasonCount, err := primitive.ReadInt(source)
		if err != nil {
			return nil, err
		}
		reasons := make(map[string]int16, reasonCount)
		for i := int32(0); i < reasonCount; i++ {
			endpoint, err := primitive.ReadString(source)
			if err != nil {
				return nil, err
			}
			reason, err := primitive.ReadShort(source)
			if err != nil {
				return nil, err
			}
			reasons[endpoint] = int16(reason)
		}
		dataPresent, err := primitive.ReadByte(source)
		if err != nil {
			return nil, err
		}
		return NewReadFailure(text, cl, received, blockFor, reasons, dataPresent != 0), nil
	case primitive.ErrorCodeAlreadyExists:
		ks, err := primitive.ReadString(source)
		if err != nil {
			return nil, err
		}
		table, err := primitive.ReadString(source)
		if err != nil {
			return nil, err
		}
		return NewAlreadyExists(text, ks, table), nil
	case primitive.ErrorCodeServerError:
		return NewServerError(text), nil
	case primitive.ErrorCodeProtocolError:
		return NewProtocolError(text), nil
	case primitive.ErrorCodeAuthenticationError:
		return NewAuthenticationError(text), nil
	case primitive.ErrorCodeTruncateError:
		return NewTruncateError(text), nil
	case primitive.ErrorCodeSyntaxError:
		return NewSyntaxError(text), nil
	case primitive.ErrorCodeUnauthorized:
		return NewUnauthorized(text), nil
	case primitive.ErrorCodeInvalid:
		return NewInvalid(text), nil
	case primitive.ErrorCodeConfigError:
		return NewConfigError(text), nil
	default:
		return &baseError{code: primitive.ErrorCode(code), text: text}, nil
	}
}
