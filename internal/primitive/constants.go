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

package primitive

import (
	"fmt"
	"io"
)

// ProtocolVersion identifies the wire format revision. The core speaks a
// single version, modeled on the native protocol v5 request/response byte.
type ProtocolVersion uint8

const (
	ProtocolVersionRequest  = ProtocolVersion(0x05)
	ProtocolVersionResponse = ProtocolVersion(0x85)
)

func (v ProtocolVersion) IsResponse() bool {
	return v&0x80 != 0
}

func (v ProtocolVersion) String() string {
	if v.IsResponse() {
		return "v5 response"
	}
	return "v5 request"
}

// HeaderFlag is the accumulated bitmask carried in the frame header's flags byte.
type HeaderFlag uint8

const (
	HeaderFlagCompressed    = HeaderFlag(0x01)
	HeaderFlagTracing       = HeaderFlag(0x02)
	HeaderFlagCustomPayload = HeaderFlag(0x04)
	HeaderFlagWarning       = HeaderFlag(0x08)
	HeaderFlagUseBeta       = HeaderFlag(0x10)
)

func (f HeaderFlag) Add(other HeaderFlag) HeaderFlag    { return f | other }
func (f HeaderFlag) Remove(other HeaderFlag) HeaderFlag  { return f &^ other }
func (f HeaderFlag) Contains(other HeaderFlag) bool      { return f&other == other }

// OpCode distinguishes the kind of payload a frame carries. Only the subset
// the core exchanges with clients is enumerated; BATCH/PREPARE/EXECUTE are
// intentionally out of scope.
type OpCode uint8

const (
	OpCodeError         = OpCode(0x00)
	OpCodeStartup       = OpCode(0x01)
	OpCodeReady         = OpCode(0x02)
	OpCodeAuthenticate  = OpCode(0x03)
	OpCodeOptions       = OpCode(0x05)
	OpCodeSupported     = OpCode(0x06)
	OpCodeQuery         = OpCode(0x07)
	OpCodeResult        = OpCode(0x08)
	OpCodeRegister      = OpCode(0x0B)
	OpCodeEvent         = OpCode(0x0C)
	OpCodeAuthChallenge = OpCode(0x0E)
	OpCodeAuthResponse  = OpCode(0x0F)
	OpCodeAuthSuccess   = OpCode(0x10)
)

func (o OpCode) IsRequest() bool {
	switch o {
	case OpCodeStartup, OpCodeOptions, OpCodeQuery, OpCodeRegister, OpCodeAuthResponse:
		return true
	}
	return false
}

func (o OpCode) String() string {
	switch o {
	case OpCodeError:
		return "ERROR"
	case OpCodeStartup:
		return "STARTUP"
	case OpCodeReady:
		return "READY"
	case OpCodeAuthenticate:
		return "AUTHENTICATE"
	case OpCodeOptions:
		return "OPTIONS"
	case OpCodeSupported:
		return "SUPPORTED"
	case OpCodeQuery:
		return "QUERY"
	case OpCodeResult:
		return "RESULT"
	case OpCodeRegister:
		return "REGISTER"
	case OpCodeEvent:
		return "EVENT"
	case OpCodeAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpCodeAuthResponse:
		return "AUTH_RESPONSE"
	case OpCodeAuthSuccess:
		return "AUTH_SUCCESS"
	}
	return fmt.Sprintf("OPCODE(%#x)", uint8(o))
}

// ConsistencyLevel is the minimum number of replicas that must acknowledge a
// request before the coordinator reports success.
type ConsistencyLevel uint16

const (
	ConsistencyLevelAny         = ConsistencyLevel(0x0000)
	ConsistencyLevelOne         = ConsistencyLevel(0x0001)
	ConsistencyLevelTwo         = ConsistencyLevel(0x0002)
	ConsistencyLevelThree       = ConsistencyLevel(0x0003)
	ConsistencyLevelQuorum      = ConsistencyLevel(0x0004)
	ConsistencyLevelAll         = ConsistencyLevel(0x0005)
	ConsistencyLevelLocalQuorum = ConsistencyLevel(0x0006)
	ConsistencyLevelEachQuorum  = ConsistencyLevel(0x0007)
	ConsistencyLevelSerial      = ConsistencyLevel(0x0008)
	ConsistencyLevelLocalSerial = ConsistencyLevel(0x0009)
	ConsistencyLevelLocalOne    = ConsistencyLevel(0x000A)
)

func (cl ConsistencyLevel) String() string {
	switch cl {
	case ConsistencyLevelAny:
		return "ANY"
	case ConsistencyLevelOne:
		return "ONE"
	case ConsistencyLevelTwo:
		return "TWO"
	case ConsistencyLevelThree:
		return "THREE"
	case ConsistencyLevelQuorum:
		return "QUORUM"
	case ConsistencyLevelAll:
		return "ALL"
	case ConsistencyLevelLocalQuorum:
		return "LOCAL_QUORUM"
	case ConsistencyLevelEachQuorum:
		return "EACH_QUORUM"
	case ConsistencyLevelSerial:
		return "SERIAL"
	case ConsistencyLevelLocalSerial:
		return "LOCAL_SERIAL"
	case ConsistencyLevelLocalOne:
		return "LOCAL_ONE"
	}
	return fmt.Sprintf("CL(%#x)", uint16(cl))
}

// RequiredAcks returns how many replicas out of rf must answer to satisfy cl.
// LOCAL_* and multi-DC levels (EACH_QUORUM) collapse to their single-DC
// counterpart since the core models a single logical datacenter.
func (cl ConsistencyLevel) RequiredAcks(rf int) int {
	switch cl {
	case ConsistencyLevelAny:
		return 1
	case ConsistencyLevelOne, ConsistencyLevelLocalOne:
		return 1
	case ConsistencyLevelTwo:
		return minInt(2, rf)
	case ConsistencyLevelThree:
		return minInt(3, rf)
	case ConsistencyLevelQuorum, ConsistencyLevelLocalQuorum, ConsistencyLevelEachQuorum, ConsistencyLevelSerial, ConsistencyLevelLocalSerial:
		return rf/2 + 1
	case ConsistencyLevelAll:
		return rf
	}
	return rf
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func ReadConsistencyLevelFrom(source io.Reader) (ConsistencyLevel, error) {
	code, err := ReadShort(source)
	if err != nil {
		return 0, fmt.Errorf("read [consistency]: %w", err)
	}
	return ConsistencyLevel(code), nil
}

func WriteConsistencyLevel(cl ConsistencyLevel, dest io.Writer) error {
	if err := WriteShort(uint16(cl), dest); err != nil {
		return fmt.Errorf("write [consistency]: %w", err)
	}
	return nil
}

// ErrorCode is the 4-byte discriminator at the head of an ERROR body.
type ErrorCode uint32

const (
	ErrorCodeServerError          = ErrorCode(0x0000)
	ErrorCodeProtocolError        = ErrorCode(0x000A)
	ErrorCodeAuthenticationError  = ErrorCode(0x0100)
	ErrorCodeUnavailableException = ErrorCode(0x1000)
	ErrorCodeTruncateError        = ErrorCode(0x1003)
	ErrorCodeWriteTimeout         = ErrorCode(0x1100)
	ErrorCodeReadTimeout          = ErrorCode(0x1200)
	ErrorCodeReadFailure          = ErrorCode(0x1300)
	ErrorCodeSyntaxError          = ErrorCode(0x2000)
	ErrorCodeUnauthorized         = ErrorCode(0x2100)
	ErrorCodeInvalid              = ErrorCode(0x2200)
	ErrorCodeConfigError          = ErrorCode(0x2300)
	ErrorCodeAlreadyExists        = ErrorCode(0x2400)
)

// DataTypeCode identifies a column's CQL type on the wire. Only the four
// types the storage layer supports are assigned codes.
type DataTypeCode uint16

const (
	DataTypeCodeDouble    = DataTypeCode(0x0007)
	DataTypeCodeInt       = DataTypeCode(0x0009)
	DataTypeCodeTimestamp = DataTypeCode(0x000B)
	DataTypeCodeVarchar   = DataTypeCode(0x000D)
)

func (c DataTypeCode) String() string {
	switch c {
	case DataTypeCodeDouble:
		return "double"
	case DataTypeCodeInt:
		return "int"
	case DataTypeCodeTimestamp:
		return "timestamp"
	case DataTypeCodeVarchar:
		return "text"
	}
	return fmt.Sprintf("datatype(%#x)", uint16(c))
}
