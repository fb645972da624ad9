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

package session

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/auth"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/coordinator"
	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/registry"
	"github.com/ringkeeper/cqlstore/internal/storage"
	"github.com/ringkeeper/cqlstore/internal/wireframe"
)

// noopTransport satisfies coordinator.Transport for a single-node fixture
// where every statement's replica set is always local.
type noopTransport struct{}

func (noopTransport) Unicast(context.Context, clusterstate.NodeId, actions.Action) error {
	return nil
}
func (noopTransport) Request(context.Context, clusterstate.NodeId, actions.Action) (actions.Action, error) {
	return nil, nil
}

// noopActionHandler answers every internal action with no reply, just
// enough to exercise the handler's action-dispatch branch.
type noopActionHandler struct {
	received []actions.Action
}

func (h *noopActionHandler) HandleAction(_ context.Context, a actions.Action) (actions.Action, error) {
	h.received = append(h.received, a)
	return nil, nil
}

// testClient drives the client half of a net.Pipe using the same wire codec
// the handler uses, so tests exercise the real encode/decode path.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	frames *wireframe.Codec
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{t: t, conn: conn, frames: wireframe.NewCodec(message.DefaultRegistry())}
}

func (c *testClient) send(streamId int16, msg message.Message) {
	c.t.Helper()
	require.NoError(c.t, c.frames.EncodeFrame(wireframe.NewRequestFrame(streamId, msg), c.conn))
}

func (c *testClient) recv() *wireframe.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := c.frames.DecodeFrame(c.conn)
	require.NoError(c.t, err)
	return frame
}

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	reg := registry.New(map[clusterstate.NodeId]net.IP{0: net.ParseIP("127.0.0.1")})
	engine := storage.NewEngine(0)
	c := coordinator.New(0, reg, engine, noopTransport{})
	_, err = c.Execute(context.Background(), "CREATE KEYSPACE ks WITH REPLICATION = {'class':'SimpleStrategy','replication_factor':1}", primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	return c
}

func startHandler(t *testing.T, coord *coordinator.Coordinator, mode clusterstate.ConnectionMode) (*testClient, *noopActionHandler) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	credentials := auth.NewStore(map[string]string{"alice": "wonderland"})
	actionHandler := &noopActionHandler{}
	h := New(0, serverConn, coord, credentials, actionHandler, mode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Serve(ctx) }()

	return newTestClient(t, clientConn), actionHandler
}

func authenticate(t *testing.T, client *testClient) {
	t.Helper()
	client.send(0, &message.Startup{Options: map[string]string{"CQL_VERSION": "3.0.0"}})
	challenge := client.recv()
	assert.Equal(t, primitive.OpCodeAuthChallenge, challenge.Header.OpCode)

	client.send(0, &message.AuthResponse{Username: "alice", Password: "wonderland"})
	success := client.recv()
	assert.Equal(t, primitive.OpCodeAuthSuccess, success.Header.OpCode)
}

func TestHandlerRejectsQueryBeforeAuthentication(t *testing.T) {
	coord := newTestCoordinator(t)
	client, _ := startHandler(t, coord, clusterstate.ModeParsing)

	client.send(0, &message.Query{QueryText: "SELECT * FROM ks.users", Consistency: primitive.ConsistencyLevelOne})
	resp := client.recv()
	require.Equal(t, primitive.OpCodeError, resp.Header.OpCode)
	assert.Equal(t, primitive.ErrorCodeAuthenticationError, resp.Body.Message.(message.Error).Code())
}

func TestHandlerRejectsBadCredentials(t *testing.T) {
	coord := newTestCoordinator(t)
	client, _ := startHandler(t, coord, clusterstate.ModeParsing)

	client.send(0, &message.Startup{})
	_ = client.recv()
	client.send(0, &message.AuthResponse{Username: "alice", Password: "wrong"})
	resp := client.recv()
	require.Equal(t, primitive.OpCodeError, resp.Header.OpCode)
	assert.Equal(t, primitive.ErrorCodeAuthenticationError, resp.Body.Message.(message.Error).Code())
}

func TestHandlerOptionsRepliesSupported(t *testing.T) {
	coord := newTestCoordinator(t)
	client, _ := startHandler(t, coord, clusterstate.ModeParsing)

	client.send(0, &message.Options{})
	resp := client.recv()
	require.Equal(t, primitive.OpCodeSupported, resp.Header.OpCode)
}

func TestHandlerExecutesQueryAfterAuthentication(t *testing.T) {
	coord := newTestCoordinator(t)
	client, _ := startHandler(t, coord, clusterstate.ModeParsing)
	authenticate(t, client)

	client.send(1, &message.Query{QueryText: "CREATE TABLE ks.users (id int, name text, PRIMARY KEY (id))", Consistency: primitive.ConsistencyLevelOne})
	created := client.recv()
	require.Equal(t, primitive.OpCodeResult, created.Header.OpCode)
	assert.EqualValues(t, 1, created.Header.StreamId)

	client.send(2, &message.Query{QueryText: "INSERT INTO ks.users (id, name) VALUES (1, 'ana')", Consistency: primitive.ConsistencyLevelOne})
	inserted := client.recv()
	require.Equal(t, primitive.OpCodeResult, inserted.Header.OpCode)

	client.send(3, &message.Query{QueryText: "SELECT * FROM ks.users WHERE id = 1", Consistency: primitive.ConsistencyLevelOne})
	selected := client.recv()
	require.Equal(t, primitive.OpCodeResult, selected.Header.OpCode)
	result := selected.Body.Message.(*message.Result)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "ana", string(result.Rows[0][1]))
}

func TestHandlerEchoModeLoopsQueryText(t *testing.T) {
	coord := newTestCoordinator(t)
	client, _ := startHandler(t, coord, clusterstate.ModeEcho)
	authenticate(t, client)

	client.send(1, &message.Query{QueryText: "SELECT * FROM ks.users", Consistency: primitive.ConsistencyLevelOne})
	resp := client.recv()
	result := resp.Body.Message.(*message.Result)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "SELECT * FROM ks.users", string(result.Rows[0][0]))
}

func TestHandlerDispatchesInternalActionsWithoutAuthentication(t *testing.T) {
	coord := newTestCoordinator(t)
	serverConn, clientConn := net.Pipe()
	credentials := auth.NewStore(nil)
	actionHandler := &noopActionHandler{}
	h := New(0, serverConn, coord, credentials, actionHandler, clusterstate.ModeParsing)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Serve(ctx) }()

	actionCodec := actions.DefaultRegistry()
	require.NoError(t, actionCodec.Encode(actions.Beat{Sender: 0, Heartbeat: clusterstate.HeartbeatState{Generation: 1, Version: 1}}, clientConn))

	time.Sleep(50 * time.Millisecond)
	require.Len(t, actionHandler.received, 1)
	assert.Equal(t, actions.TagBeat, actionHandler.received[0].Tag())
}
