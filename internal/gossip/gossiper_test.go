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

package gossip

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

type fakeView struct {
	local clusterstate.NodeId
	seeds []clusterstate.NodeId
	peers []clusterstate.NodeId

	mu      sync.Mutex
	applied []actions.EndpointStateEntry
}

func (v *fakeView) LocalId() clusterstate.NodeId { return v.local }
func (v *fakeView) Digests() []actions.Digest     { return nil }
func (v *fakeView) Reconcile(clusterstate.NodeId, []actions.Digest) ([]actions.Digest, []actions.EndpointStateEntry) {
	return nil, nil
}
func (v *fakeView) StatesFor([]actions.Digest) []actions.EndpointStateEntry { return nil }
func (v *fakeView) ApplyStates(states []actions.EndpointStateEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.applied = append(v.applied, states...)
}
func (v *fakeView) Seeds() []clusterstate.NodeId { return v.seeds }
func (v *fakeView) Peers() []clusterstate.NodeId { return v.peers }

type fakeTransport struct {
	ackToReturn actions.Ack
	sent        []actions.Action
}

func (t *fakeTransport) Exchange(ctx context.Context, peer clusterstate.NodeId, request actions.Action) (actions.Action, error) {
	return t.ackToReturn, nil
}

func (t *fakeTransport) Send(ctx context.Context, peer clusterstate.NodeId, action actions.Action) error {
	t.sent = append(t.sent, action)
	return nil
}

func TestPickTargetsNeverExceedsPeerCount(t *testing.T) {
	view := &fakeView{local: 0, seeds: []clusterstate.NodeId{1}, peers: []clusterstate.NodeId{1, 2}}
	g := NewGossiper(view, &fakeTransport{})

	for i := 0; i < 20; i++ {
		targets := g.pickTargets()
		assert.LessOrEqual(t, len(targets), 2)
		seen := map[clusterstate.NodeId]bool{}
		for _, id := range targets {
			assert.False(t, seen[id], "duplicate target in one round")
			seen[id] = true
		}
	}
}

func TestPickTargetsEmptyWhenNoPeers(t *testing.T) {
	view := &fakeView{local: 0}
	g := NewGossiper(view, &fakeTransport{})
	assert.Empty(t, g.pickTargets())
}

func TestGossipWithAppliesAckStatesAndRepliesAck2(t *testing.T) {
	view := &fakeView{local: 0, peers: []clusterstate.NodeId{1}}
	entry := actions.EndpointStateEntry{Id: 1, State: clusterstate.NewEndpointState(nil, clusterstate.ModeParsing)}
	transport := &fakeTransport{ackToReturn: actions.Ack{Receiver: 1, States: []actions.EndpointStateEntry{entry}}}
	g := NewGossiper(view, transport)

	require.NoError(t, g.gossipWith(context.Background(), 1))
	assert.Len(t, view.applied, 1)
	assert.Equal(t, clusterstate.NodeId(1), view.applied[0].Id)
	require.Len(t, transport.sent, 1)
	assert.IsType(t, actions.Ack2{}, transport.sent[0])
}

func TestHandleSynDelegatesToView(t *testing.T) {
	view := &fakeView{local: 5}
	g := NewGossiper(view, &fakeTransport{})
	ack := g.HandleSyn(actions.Syn{Emitter: 3})
	assert.Equal(t, clusterstate.NodeId(5), ack.Receiver)
}
