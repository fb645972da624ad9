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

package node

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/auth"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/coordinator"
	"github.com/ringkeeper/cqlstore/internal/membership"
	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/registry"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

// encodeQueryFrame mirrors coordinator.go's unexported helper of the same
// name, the wire shape an InternalQuery/DirectReadRequest's QueryFrame
// carries.
func encodeQueryFrame(t *testing.T, queryText string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, message.DefaultRegistry().Encode(&message.Query{QueryText: queryText, Consistency: primitive.ConsistencyLevelOne}, buf))
	return buf.Bytes()
}

func newTestNode(t *testing.T, id clusterstate.NodeId, reg *registry.Registry) *Node {
	t.Helper()
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	engine := storage.NewEngine(id)
	localAddr, err := reg.Address(id)
	require.NoError(t, err)
	localState := clusterstate.NewEndpointState(localAddr, clusterstate.ModeParsing)
	view := membership.NewView(id, localState, reg.NodeIds())

	n := New(id, clusterstate.ModeParsing, reg, engine, nil, view, nil, auth.NewStore(nil), nil)
	n.Coordinator = coordinator.New(id, reg, engine, n)
	n.Manager = membership.NewManager(view, n, engine)
	return n
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(map[clusterstate.NodeId]net.IP{
		0: net.ParseIP("127.0.0.1"),
		1: net.ParseIP("127.0.0.1"),
	})
	reg.ClientBasePort = freePort(t)
	reg.PrivateBasePort = freePort(t)
	return reg
}

func TestHandleActionBeatUpdatesNewerHeartbeat(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	n.View.Set(1, &clusterstate.EndpointState{
		AppState:  clusterstate.AppStatusNormal,
		Heartbeat: clusterstate.HeartbeatState{Generation: 1, Version: 1},
	})

	reply, err := n.HandleAction(context.Background(), actions.Beat{Sender: 1, Heartbeat: clusterstate.HeartbeatState{Generation: 99, Version: 5}})
	require.NoError(t, err)
	assert.Nil(t, reply)

	state, ok := n.View.Get(1)
	require.True(t, ok)
	assert.EqualValues(t, 99, state.Heartbeat.Generation)
	assert.EqualValues(t, 5, state.Heartbeat.Version)
}

func TestHandleActionBeatIgnoresStaleHeartbeat(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	n.View.Set(1, &clusterstate.EndpointState{
		AppState:  clusterstate.AppStatusNormal,
		Heartbeat: clusterstate.HeartbeatState{Generation: 100, Version: 10},
	})

	reply, err := n.HandleAction(context.Background(), actions.Beat{Sender: 1, Heartbeat: clusterstate.HeartbeatState{Generation: 1, Version: 1}})
	require.NoError(t, err)
	assert.Nil(t, reply)

	state, ok := n.View.Get(1)
	require.True(t, ok)
	assert.EqualValues(t, 100, state.Heartbeat.Generation)
}

func TestHandleActionSendEndpointStateRepliesWithNewNeighbour(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	n.View.Set(1, &clusterstate.EndpointState{AppState: clusterstate.AppStatusNormal})

	reply, err := n.HandleAction(context.Background(), actions.SendEndpointState{Id: 1})
	require.NoError(t, err)
	neighbour, ok := reply.(actions.NewNeighbour)
	require.True(t, ok)
	assert.EqualValues(t, 1, neighbour.Id)
}

func TestHandleActionSendEndpointStateErrorsForUnknownPeer(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)

	_, err := n.HandleAction(context.Background(), actions.SendEndpointState{Id: 1})
	assert.Error(t, err)
}

func seedTable(t *testing.T, n *Node) {
	t.Helper()
	_, err := n.Coordinator.Execute(context.Background(), "CREATE KEYSPACE ks WITH REPLICATION = {'class':'SimpleStrategy','replication_factor':1}", primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	_, err = n.Coordinator.Execute(context.Background(), "CREATE TABLE ks.users (id int, name text, PRIMARY KEY (id))", primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	_, err = n.Coordinator.Execute(context.Background(), "INSERT INTO ks.users (id, name) VALUES (1, 'ana')", primitive.ConsistencyLevelOne)
	require.NoError(t, err)
}

func TestHandleActionDirectReadRequestReturnsRows(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	seedTable(t, n)

	frame := encodeQueryFrame(t, "SELECT * FROM ks.users WHERE id = 1")

	reply, err := n.HandleAction(context.Background(), actions.DirectReadRequest{QueryFrame: frame, OwnerId: 0})
	require.NoError(t, err)
	rr, ok := reply.(actions.RepairRows)
	require.True(t, ok)
	assert.Equal(t, "ks.users", rr.Table)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(rr.Rows, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ana", rows[0]["name"])
}

func TestHandleActionRepairRowsOverwritesReplica(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	seedTable(t, n)

	payload, err := json.Marshal([]map[string]string{{"id": "1", "name": "bob"}})
	require.NoError(t, err)

	_, err = n.HandleAction(context.Background(), actions.RepairRows{Table: "ks.users", OwnerId: 0, Rows: payload})
	require.NoError(t, err)

	rows, err := n.Engine.Select("ks", "users", 0, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0]["name"])
}

func TestHandleActionAddPartitionValueToMetadataIndexesValue(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	seedTable(t, n)

	_, err := n.HandleAction(context.Background(), actions.AddPartitionValueToMetadata{Table: "ks.users", Values: []string{"7"}})
	require.NoError(t, err)

	assert.Contains(t, n.Engine.PartitionValues("ks", "users"), "7")
}

func TestHandleActionMembershipGetAllTablesOfReplica(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)
	seedTable(t, n)

	reply, err := n.HandleAction(context.Background(), actions.Membership{Kind: actions.MembershipGetAllTablesOfReplica, NodeId: 0})
	require.NoError(t, err)
	m, ok := reply.(actions.Membership)
	require.True(t, ok)
	assert.Equal(t, actions.MembershipReceiveMetadata, m.Kind)
}

func TestHandleActionUnknownMembershipKindDoesNotError(t *testing.T) {
	reg := newTestRegistry(t)
	n := newTestNode(t, 0, reg)

	reply, err := n.HandleAction(context.Background(), actions.Membership{Kind: actions.MembershipKind(99), NodeId: 0})
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestStartAndExitRoundTripsGossipOverLoopback(t *testing.T) {
	reg := newTestRegistry(t)
	a := newTestNode(t, 0, reg)
	b := newTestNode(t, 1, reg)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		_ = a.Exit()
		_ = b.Exit()
	})

	reply, err := a.Exchange(ctx, 1, actions.Syn{Emitter: 0, Digests: a.View.Digests()})
	require.NoError(t, err)
	ack, ok := reply.(actions.Ack)
	require.True(t, ok)
	assert.EqualValues(t, 1, ack.Receiver)
}

func TestRoundTripMarksPeerOfflineOnDialFailure(t *testing.T) {
	reg := newTestRegistry(t)
	a := newTestNode(t, 0, reg)
	a.View.Set(1, &clusterstate.EndpointState{AppState: clusterstate.AppStatusNormal})

	err := a.Send(context.Background(), 1, actions.Beat{Sender: 0, Heartbeat: clusterstate.HeartbeatState{Generation: 1, Version: 1}})
	assert.Error(t, err)

	state, ok := a.View.Get(1)
	require.True(t, ok)
	assert.Equal(t, clusterstate.AppStatusOffline, state.AppState)
}
