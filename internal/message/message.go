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

// Package message implements the CQL message bodies the core exchanges with
// clients: the handshake messages (STARTUP/READY/AUTHENTICATE/AUTH_*), the
// query/result pair, and the error taxonomy. Modeled on the message package
// of the native protocol v5 reference implementation, trimmed to the opcode
// and statement subset this core supports (prepared statements, batches,
// schema-change events and paging are explicit non-goals).
package message

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Message is any CQL request or response body.
type Message interface {
	IsResponse() bool
	OpCode() primitive.OpCode
	fmt.Stringer
}

// Codec encodes and decodes one opcode's message body.
type Codec interface {
	OpCode() primitive.OpCode
	Encode(msg Message, dest io.Writer) error
	Decode(source io.Reader) (Message, error)
}

// Registry dispatches to the Codec registered for a given opcode.
type Registry struct {
	codecs map[primitive.OpCode]Codec
}

func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[primitive.OpCode]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.OpCode()] = c
	}
	return r
}

func (r *Registry) Encode(msg Message, dest io.Writer) error {
	codec, ok := r.codecs[msg.OpCode()]
	if !ok {
		return fmt.Errorf("no codec registered for opcode %v", msg.OpCode())
	}
	return codec.Encode(msg, dest)
}

func (r *Registry) Decode(opCode primitive.OpCode, source io.Reader) (Message, error) {
	codec, ok := r.codecs[opCode]
	if !ok {
		return nil, fmt.Errorf("no codec registered for opcode %v", opCode)
	}
	return codec.Decode(source)
}

// DefaultRegistry wires every codec implemented in this package. Session
// handlers and test clients should normally use this instance.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&startupCodec{}, &readyCodec{}, &authenticateCodec{},
		&authResponseCodec{}, &authChallengeCodec{}, &authSuccessCodec{},
		&optionsCodec{}, &supportedCodec{},
		&queryCodec{}, &resultCodec{}, &errorCodec{},
		&registerCodec{}, &eventCodec{},
	)
}
