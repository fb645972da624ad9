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

// Package session implements the per-connection handler: a read loop over
// one stream that tells internal server actions apart from client-facing
// CQL frames by peeking at the leading byte, runs the STARTUP/AUTH_RESPONSE
// handshake, and dispatches authenticated QUERY frames to a coordinator.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/auth"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/coordinator"
	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/protoerr"
	"github.com/ringkeeper/cqlstore/internal/wireframe"
)

// ReadDeadline bounds every individual frame read: the handler re-arms it
// before each new frame, not once for the whole connection.
const ReadDeadline = 5 * time.Second

// Conn is the subset of net.Conn the handler needs; satisfied by a real TLS
// stream or an in-process net.Pipe half in tests.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	Close() error
}

// ActionHandler processes an internal server action decoded off either
// port and returns the reply to send back, or nil for a fire-and-forget
// action. Implemented by internal/node, which owns the gossiper, the
// membership manager and the storage engine every action ultimately reaches.
type ActionHandler interface {
	HandleAction(ctx context.Context, action actions.Action) (actions.Action, error)
}

// Handler owns one connection's framing state: the authenticated bit and
// the username recorded on a successful AUTH_RESPONSE.
type Handler struct {
	nodeId        clusterstate.NodeId
	conn          Conn
	buf           *bufio.Reader
	frames        *wireframe.Codec
	actionCodec   *actions.Registry
	coordinator   *coordinator.Coordinator
	credentials   *auth.Store
	actionHandler ActionHandler
	mode          clusterstate.ConnectionMode

	authenticated bool
	username      string
}

// New builds a Handler for one freshly-accepted connection.
func New(nodeId clusterstate.NodeId, conn Conn, coord *coordinator.Coordinator, credentials *auth.Store, actionHandler ActionHandler, mode clusterstate.ConnectionMode) *Handler {
	return &Handler{
		nodeId:        nodeId,
		conn:          conn,
		buf:           bufio.NewReader(conn),
		frames:        wireframe.NewCodec(message.DefaultRegistry()),
		actionCodec:   actions.DefaultRegistry(),
		coordinator:   coord,
		credentials:   credentials,
		actionHandler: actionHandler,
		mode:          mode,
	}
}

// Serve runs the read-dispatch-write loop until the stream closes, the
// context is cancelled, or a read/write error occurs. It always closes the
// connection before returning.
func (h *Handler) Serve(ctx context.Context) error {
	defer h.conn.Close()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := h.conn.SetReadDeadline(time.Now().Add(ReadDeadline)); err != nil {
			return fmt.Errorf("session: set read deadline: %w", err)
		}
		lead, err := h.buf.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Debug().Err(err).Msgf("session: %v read failed, closing", h.nodeId)
			return err
		}
		if actions.IsActionTag(lead[0]) {
			if err := h.handleActionFrame(ctx); err != nil {
				log.Debug().Err(err).Msgf("session: %v action frame failed, closing", h.nodeId)
				return err
			}
			continue
		}
		if err := h.handleCQLFrame(ctx); err != nil {
			log.Debug().Err(err).Msgf("session: %v CQL frame failed, closing", h.nodeId)
			return err
		}
	}
}

func (h *Handler) handleActionFrame(ctx context.Context) error {
	action, err := h.actionCodec.Decode(h.buf)
	if err != nil {
		return fmt.Errorf("decode internal action: %w", err)
	}
	reply, err := h.actionHandler.HandleAction(ctx, action)
	if err != nil {
		return fmt.Errorf("handle internal action %v: %w", action.Tag(), err)
	}
	if reply == nil {
		return nil
	}
	return h.actionCodec.Encode(reply, h.conn)
}

func (h *Handler) handleCQLFrame(ctx context.Context) error {
	header, err := h.frames.DecodeHeader(h.buf)
	if err != nil {
		return fmt.Errorf("decode frame header: %w", err)
	}
	raw, err := h.frames.DecodeRawBody(header, h.buf)
	if err != nil {
		return fmt.Errorf("decode frame body: %w", err)
	}
	body, err := h.frames.DecodeBody(header, raw)
	if err != nil {
		// A body this handler can't decode (an unsupported opcode or a
		// malformed appendage) still gets an ERROR reply rather than
		// killing the connection outright.
		return h.writeResponse(header.StreamId, message.NewProtocolError(err.Error()))
	}
	reply := h.dispatch(ctx, body.Message)
	return h.writeResponse(header.StreamId, reply)
}

func (h *Handler) dispatch(ctx context.Context, msg message.Message) message.Message {
	switch m := msg.(type) {
	case *message.Startup:
		return &message.AuthChallenge{}
	case *message.AuthResponse:
		return h.handleAuthResponse(m)
	case *message.Options:
		return &message.Supported{Options: map[string][]string{"CQL_VERSION": {"3.0.0"}}}
	case *message.Query:
		return h.handleQuery(ctx, m)
	case *message.Register:
		return message.NewInvalid("event registration is not supported")
	default:
		return message.NewInvalid(fmt.Sprintf("unsupported opcode %v", msg.OpCode()))
	}
}

func (h *Handler) handleAuthResponse(m *message.AuthResponse) message.Message {
	if !h.credentials.Authenticate(m.Username, m.Password) {
		return message.NewAuthenticationError("bad credentials")
	}
	h.authenticated = true
	h.username = m.Username
	return &message.AuthSuccess{}
}

func (h *Handler) handleQuery(ctx context.Context, m *message.Query) message.Message {
	if !h.authenticated {
		return message.NewAuthenticationError("query before successful authentication")
	}
	if h.mode == clusterstate.ModeEcho {
		return message.NewRowsResult(
			[]message.ColumnSpec{{Name: "echo", Type: primitive.DataTypeCodeVarchar}},
			[][][]byte{{[]byte(m.QueryText)}},
		)
	}
	result, err := h.coordinator.Execute(ctx, m.QueryText, m.Consistency)
	if err != nil {
		return protoerr.ToWireError(err)
	}
	return result
}

func (h *Handler) writeResponse(streamId int16, msg message.Message) error {
	frame := wireframe.NewResponseFrame(streamId, msg)
	return h.frames.EncodeFrame(frame, h.conn)
}
