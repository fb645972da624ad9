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

// Package wireframe implements the 9-byte frame header and body framing
// described in the wire codec section of the protocol: version, flags,
// stream id, opcode and a 4-byte body length, followed by that many body
// bytes. It is modeled directly on the frame package of the native protocol
// v5 reference implementation, trimmed to the single protocol version and
// opcode set the core speaks.
package wireframe

import (
	"fmt"

	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Header is the fixed 9-byte preamble of every frame.
type Header struct {
	IsResponse bool
	Flags      primitive.HeaderFlag
	StreamId   int16
	OpCode     primitive.OpCode
	BodyLength int32
}

func (h *Header) String() string {
	return fmt.Sprintf("{response=%v flags=%08b stream=%d opcode=%v length=%d}",
		h.IsResponse, h.Flags, h.StreamId, h.OpCode, h.BodyLength)
}

// Body is the decoded body of a frame: an optional custom payload and
// warnings (both gated by header flags), plus the decoded Message.
type Body struct {
	CustomPayload map[string][]byte
	Warnings      []string
	Message       message.Message
}

func (b *Body) String() string {
	return fmt.Sprintf("{payload=%v warnings=%v message=%v}", b.CustomPayload, b.Warnings, b.Message)
}

// Frame is the fully decoded request/response unit exchanged between client
// and coordinator, or between coordinator and replica over the private port.
type Frame struct {
	Header *Header
	Body   *Body
}

// NewRequestFrame builds a request Frame carrying msg on the given stream id.
func NewRequestFrame(streamId int16, msg message.Message) *Frame {
	return &Frame{
		Header: &Header{IsResponse: false, StreamId: streamId, OpCode: msg.OpCode()},
		Body:   &Body{Message: msg},
	}
}

// NewResponseFrame builds a response Frame echoing the request's stream id.
func NewResponseFrame(streamId int16, msg message.Message) *Frame {
	return &Frame{
		Header: &Header{IsResponse: true, StreamId: streamId, OpCode: msg.OpCode()},
		Body:   &Body{Message: msg},
	}
}

func (f *Frame) SetCustomPayload(payload map[string][]byte) {
	if len(payload) > 0 {
		f.Header.Flags = f.Header.Flags.Add(primitive.HeaderFlagCustomPayload)
	} else {
		f.Header.Flags = f.Header.Flags.Remove(primitive.HeaderFlagCustomPayload)
	}
	f.Body.CustomPayload = payload
}

func (f *Frame) SetWarnings(warnings []string) {
	if len(warnings) > 0 {
		f.Header.Flags = f.Header.Flags.Add(primitive.HeaderFlagWarning)
	} else {
		f.Header.Flags = f.Header.Flags.Remove(primitive.HeaderFlagWarning)
	}
	f.Body.Warnings = warnings
}

// RawFrame is the undecoded counterpart of Frame: a decoded header paired
// with the still-encoded body bytes.
type RawFrame struct {
	Header *Header
	Body   []byte
}
