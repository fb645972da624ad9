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

// Startup is the first message a client sends after opening a connection.
type Startup struct {
	Options map[string]string
}

func NewStartup() *Startup { return &Startup{Options: map[string]string{"CQL_VERSION": "3.0.0"}} }

func (m *Startup) IsResponse() bool          { return false }
func (m *Startup) OpCode() primitive.OpCode  { return primitive.OpCodeStartup }
func (m *Startup) String() string            { return fmt.Sprintf("STARTUP %v", m.Options) }

type startupCodec struct{}

func (startupCodec) OpCode() primitive.OpCode { return primitive.OpCodeStartup }

func (startupCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Startup)
	if !ok {
		return fmt.Errorf("expected *message.Startup, got %T", msg)
	}
	return primitive.WriteStringMap(m.Options, dest)
}

func (startupCodec) Decode(source io.Reader) (Message, error) {
	options, err := primitive.ReadStringMap(source)
	if err != nil {
		return nil, fmt.Errorf("decode STARTUP: %w", err)
	}
	return &Startup{Options: options}, nil
}

// Ready acknowledges a successful STARTUP when no authentication is required.
type Ready struct{}

func (m *Ready) IsResponse() bool         { return true }
func (m *Ready) OpCode() primitive.OpCode { return primitive.OpCodeReady }
func (m *Ready) String() string           { return "READY" }

type readyCodec struct{}

func (readyCodec) OpCode() primitive.OpCode         { return primitive.OpCodeReady }
func (readyCodec) Encode(Message, io.Writer) error  { return nil }
func (readyCodec) Decode(io.Reader) (Message, error) {
	return &Ready{}, nil
}

// Authenticate is never sent on the wire by this core directly — the
// handshake always jumps straight to AUTH_CHALLENGE — but the codec is kept
// so a client implementation using this package can still decode it from a
// stock Cassandra server during interop testing.
type Authenticate struct {
	Authenticator string
}

func (m *Authenticate) IsResponse() bool         { return true }
func (m *Authenticate) OpCode() primitive.OpCode { return primitive.OpCodeAuthenticate }
func (m *Authenticate) String() string           { return fmt.Sprintf("AUTHENTICATE %v", m.Authenticator) }

type authenticateCodec struct{}

func (authenticateCodec) OpCode() primitive.OpCode { return primitive.OpCodeAuthenticate }

func (authenticateCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Authenticate)
	if !ok {
		return fmt.Errorf("expected *message.Authenticate, got %T", msg)
	}
	return primitive.WriteString(m.Authenticator, dest)
}

func (authenticateCodec) Decode(source io.Reader) (Message, error) {
	name, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("decode AUTHENTICATE: %w", err)
	}
	return &Authenticate{Authenticator: name}, nil
}

// AuthChallenge is sent in response to STARTUP, asking the client to present
// credentials. Its body is always empty in this core.
type AuthChallenge struct {
	Token []byte
}

func (m *AuthChallenge) IsResponse() bool         { return true }
func (m *AuthChallenge) OpCode() primitive.OpCode { return primitive.OpCodeAuthChallenge }
func (m *AuthChallenge) String() string           { return "AUTH_CHALLENGE" }

type authChallengeCodec struct{}

func (authChallengeCodec) OpCode() primitive.OpCode { return primitive.OpCodeAuthChallenge }

func (authChallengeCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*AuthChallenge)
	if !ok {
		return fmt.Errorf("expected *message.AuthChallenge, got %T", msg)
	}
	return primitive.WriteBytes(m.Token, dest)
}

func (authChallengeCodec) Decode(source io.Reader) (Message, error) {
	token, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, fmt.Errorf("decode AUTH_CHALLENGE: %w", err)
	}
	return &AuthChallenge{Token: token}, nil
}

// AuthResponse carries the client's credentials as two concatenated
// [string] fields (user, password) rather than the SASL PLAIN mechanism's
// null-separated byte token used by stock Cassandra.
type AuthResponse struct {
	Username string
	Password string
}

func (m *AuthResponse) IsResponse() bool         { return false }
func (m *AuthResponse) OpCode() primitive.OpCode { return primitive.OpCodeAuthResponse }
func (m *AuthResponse) String() string           { return fmt.Sprintf("AUTH_RESPONSE user=%v", m.Username) }

type authResponseCodec struct{}

func (authResponseCodec) OpCode() primitive.OpCode { return primitive.OpCodeAuthResponse }

func (authResponseCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*AuthResponse)
	if !ok {
		return fmt.Errorf("expected *message.AuthResponse, got %T", msg)
	}
	if err := primitive.WriteString(m.Username, dest); err != nil {
		return fmt.Errorf("encode AUTH_RESPONSE username: %w", err)
	}
	return primitive.WriteString(m.Password, dest)
}

func (authResponseCodec) Decode(source io.Reader) (Message, error) {
	username, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("decode AUTH_RESPONSE username: %w", err)
	}
	password, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("decode AUTH_RESPONSE password: %w", err)
	}
	return &AuthResponse{Username: username, Password: password}, nil
}

// AuthSuccess concludes a successful authentication exchange.
type AuthSuccess struct {
	Token []byte
}

func (m *AuthSuccess) IsResponse() bool         { return true }
func (m *AuthSuccess) OpCode() primitive.OpCode { return primitive.OpCodeAuthSuccess }
func (m *AuthSuccess) String() string           { return "AUTH_SUCCESS" }

type authSuccessCodec struct{}

func (authSuccessCodec) OpCode() primitive.OpCode { return primitive.OpCodeAuthSuccess }

func (authSuccessCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*AuthSuccess)
	if !ok {
		return fmt.Errorf("expected *message.AuthSuccess, got %T", msg)
	}
	return primitive.WriteBytes(m.Token, dest)
}

func (authSuccessCodec) Decode(source io.Reader) (Message, error) {
	token, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, fmt.Errorf("decode AUTH_SUCCESS: %w", err)
	}
	return &AuthSuccess{Token: token}, nil
}

// Options requests the feature set the server supports; Supported is its reply.
type Options struct{}

func (m *Options) IsResponse() bool         { return false }
func (m *Options) OpCode() primitive.OpCode { return primitive.OpCodeOptions }
func (m *Options) String() string           { return "OPTIONS" }

type optionsCodec struct{}

func (optionsCodec) OpCode() primitive.OpCode          { return primitive.OpCodeOptions }
func (optionsCodec) Encode(Message, io.Writer) error   { return nil }
func (optionsCodec) Decode(io.Reader) (Message, error) { return &Options{}, nil }

// Supported advertises the server's feature options, keyed by option name.
type Supported struct {
	Options map[string][]string
}

func (m *Supported) IsResponse() bool         { return true }
func (m *Supported) OpCode() primitive.OpCode { return primitive.OpCodeSupported }
func (m *Supported) String() string           { return fmt.Sprintf("SUPPORTED %v", m.Options) }

type supportedCodec struct{}

func (supportedCodec) OpCode() primitive.OpCode { return primitive.OpCodeSupported }

func (supportedCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Supported)
	if !ok {
		return fmt.Errorf("expected *message.Supported, got %T", msg)
	}
	if err := primitive.WriteShort(uint16(len(m.Options)), dest); err != nil {
		return err
	}
	for key, values := range m.Options {
		if err := primitive.WriteString(key, dest); err != nil {
			return err
		}
		if err := primitive.WriteStringList(values, dest); err != nil {
			return err
		}
	}
	return nil
}

func (supportedCodec) Decode(source io.Reader) (Message, error) {
	count, err := primitive.ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("decode SUPPORTED length: %w", err)
	}
	options := make(map[string][]string, count)
	for i := uint16(0); i < count; i++ {
		key, err := primitive.ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("decode SUPPORTED entry %d key: %w", i, err)
		}
		values, err := primitive.ReadStringList(source)
		if err != nil {
			return nil, fmt.Errorf("decode SUPPORTED entry %d values: %w", i, err)
		}
		options[key] = values
	}
	return &Supported{Options: options}, nil
}

// Register subscribes a connection to server-initiated Event notifications.
// Accepted on the wire but never acted upon: schema-change events are out of
// scope, so the session handler always answers REGISTER with Invalid.
type Register struct {
	EventTypes []string
}

func (m *Register) IsResponse() bool         { return false }
func (m *Register) OpCode() primitive.OpCode { return primitive.OpCodeRegister }
func (m *Register) String() string           { return fmt.Sprintf("REGISTER %v", m.EventTypes) }

type registerCodec struct{}

func (registerCodec) OpCode() primitive.OpCode { return primitive.OpCodeRegister }

func (registerCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Register)
	if !ok {
		return fmt.Errorf("expected *message.Register, got %T", msg)
	}
	return primitive.WriteStringList(m.EventTypes, dest)
}

func (registerCodec) Decode(source io.Reader) (Message, error) {
	types, err := primitive.ReadStringList(source)
	if err != nil {
		return nil, fmt.Errorf("decode REGISTER: %w", err)
	}
	return &Register{EventTypes: types}, nil
}

// Event is a server-initiated notification. The core never emits one, but the
// codec exists so RawFrame peeking never chokes on the opcode.
type Event struct {
	EventType string
}

func (m *Event) IsResponse() bool         { return true }
func (m *Event) OpCode() primitive.OpCode { return primitive.OpCodeEvent }
func (m *Event) String() string           { return fmt.Sprintf("EVENT %v", m.EventType) }

type eventCodec struct{}

func (eventCodec) OpCode() primitive.OpCode { return primitive.OpCodeEvent }

func (eventCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Event)
	if !ok {
		return fmt.Errorf("expected *message.Event, got %T", msg)
	}
	return primitive.WriteString(m.EventType, dest)
}

func (eventCodec) Decode(source io.Reader) (Message, error) {
	eventType, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("decode EVENT: %w", err)
	}
	return &Event{EventType: eventType}, nil
}
