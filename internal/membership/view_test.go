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

package membership

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

func newTestView() *View {
	local := clusterstate.NewEndpointState(net.ParseIP("10.0.0.1"), clusterstate.ModeParsing)
	return NewView(0, local, []clusterstate.NodeId{1})
}

func TestReconcileReportsStaleLocalEntry(t *testing.T) {
	view := newTestView()
	peerState := clusterstate.NewEndpointState(net.ParseIP("10.0.0.2"), clusterstate.ModeParsing)
	peerState.Heartbeat.Version = 5
	view.Set(1, peerState)

	_, staleStates := view.Reconcile(2, []actions.Digest{{Id: 1, Heartbeat: clusterstate.HeartbeatState{Generation: peerState.Heartbeat.Generation, Version: 1}}})
	assert.Len(t, staleStates, 1)
	assert.Equal(t, clusterstate.NodeId(1), staleStates[0].Id)
}

func TestReconcileReportsNewerLocalDigest(t *testing.T) {
	view := newTestView()
	_, _ = view.Reconcile(2, nil)
	digests, _ := view.Reconcile(2, nil)
	assert.NotEmpty(t, digests)
}

func TestApplyStatesKeepsNewerHeartbeat(t *testing.T) {
	view := newTestView()
	older := clusterstate.NewEndpointState(net.ParseIP("10.0.0.2"), clusterstate.ModeParsing)
	view.Set(1, older)

	newer := clusterstate.NewEndpointState(net.ParseIP("10.0.0.2"), clusterstate.ModeParsing)
	newer.Heartbeat.Version = 99
	view.ApplyStates([]actions.EndpointStateEntry{{Id: 1, State: newer}})

	got, ok := view.Get(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(99), got.Heartbeat.Version)
}

func TestApplyStatesNeverOverwritesLocal(t *testing.T) {
	view := newTestView()
	intruder := clusterstate.NewEndpointState(net.ParseIP("10.0.0.9"), clusterstate.ModeParsing)
	intruder.Heartbeat.Version = 999
	view.ApplyStates([]actions.EndpointStateEntry{{Id: 0, State: intruder}})

	got, _ := view.Get(0)
	assert.NotEqual(t, uint64(999), got.Heartbeat.Version)
}

func TestResponsivePeers(t *testing.T) {
	view := newTestView()
	peerState := clusterstate.NewEndpointState(net.ParseIP("10.0.0.2"), clusterstate.ModeParsing)
	peerState.AppState = clusterstate.AppStatusNormal
	view.Set(1, peerState)
	view.LocalState().AppState = clusterstate.AppStatusNormal

	responsive := view.Responsive()
	assert.ElementsMatch(t, []clusterstate.NodeId{0, 1}, responsive)
}
