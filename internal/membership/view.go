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

// Package membership implements the node lifecycle: the
// AppStatus transitions a node goes through from Bootstrap to Normal, the
// relocation dance a joining node runs to pull its share of the data, and
// the DeleteNode path a leaving node triggers. It also supplies the
// gossip.ClusterView that internal/gossip reads and writes, so gossip stays
// ignorant of what a transition means and membership stays ignorant of how
// state gets to a remote peer.
package membership

import (
	"fmt"
	"sync"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// View is the node's map of everything it knows about the cluster,
// including itself, guarded by a single lock. Every read that crosses a
// goroutine boundary clones its EndpointState first, per
// clusterstate.EndpointState.Clone's lock-hold discipline.
type View struct {
	mu     sync.RWMutex
	local  clusterstate.NodeId
	states map[clusterstate.NodeId]*clusterstate.EndpointState
	seeds  []clusterstate.NodeId
}

func NewView(local clusterstate.NodeId, localState *clusterstate.EndpointState, seeds []clusterstate.NodeId) *View {
	return &View{
		local:  local,
		states: map[clusterstate.NodeId]*clusterstate.EndpointState{local: localState},
		seeds:  seeds,
	}
}

func (v *View) LocalId() clusterstate.NodeId { return v.local }

// LocalState returns the live (non-cloned) EndpointState for the local
// node, the only state a caller is allowed to mutate in place.
func (v *View) LocalState() *clusterstate.EndpointState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.states[v.local]
}

func (v *View) Seeds() []clusterstate.NodeId {
	out := make([]clusterstate.NodeId, len(v.seeds))
	copy(out, v.seeds)
	return out
}

func (v *View) Peers() []clusterstate.NodeId {
	v.mu.RLock()
	defer v.mu.RUnlock()
	peers := make([]clusterstate.NodeId, 0, len(v.states)-1)
	for id := range v.states {
		if id != v.local {
			peers = append(peers, id)
		}
	}
	return peers
}

// Get returns a cloned snapshot of a node's EndpointState.
func (v *View) Get(id clusterstate.NodeId) (*clusterstate.EndpointState, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	state, ok := v.states[id]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Set installs or replaces a node's EndpointState wholesale, used when a
// node first learns of a peer (NewNeighbour) or forces a transition locally.
func (v *View) Set(id clusterstate.NodeId, state *clusterstate.EndpointState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states[id] = state
}

func (v *View) Digests() []actions.Digest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	digests := make([]actions.Digest, 0, len(v.states))
	for id, state := range v.states {
		digests = append(digests, actions.Digest{Id: id, Heartbeat: state.Heartbeat})
	}
	return digests
}

// Reconcile compares incoming digests against the local view. For each
// incoming digest: if the local view has no entry or an older one, the
// entry is reported back as "stale locally" (the Ack's States); if the
// local view has a newer entry than the emitter described, its digest is
// reported back so the emitter can request it in its Ack2.
func (v *View) Reconcile(emitter clusterstate.NodeId, theirDigests []actions.Digest) ([]actions.Digest, []actions.EndpointStateEntry) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	theirs := make(map[clusterstate.NodeId]clusterstate.HeartbeatState, len(theirDigests))
	for _, d := range theirDigests {
		theirs[d.Id] = d.Heartbeat
	}

	var staleLocally []actions.EndpointStateEntry
	for _, d := range theirDigests {
		local, ok := v.states[d.Id]
		if !ok || d.Heartbeat.NewerThan(local.Heartbeat) {
			continue
		}
		if local.Heartbeat.NewerThan(d.Heartbeat) {
			staleLocally = append(staleLocally, actions.EndpointStateEntry{Id: d.Id, State: local.Clone()})
		}
	}

	var newerLocally []actions.Digest
	for id, local := range v.states {
		heartbeat, known := theirs[id]
		if !known || local.Heartbeat.NewerThan(heartbeat) {
			newerLocally = append(newerLocally, actions.Digest{Id: id, Heartbeat: local.Heartbeat})
		}
	}
	return newerLocally, staleLocally
}

func (v *View) StatesFor(digests []actions.Digest) []actions.EndpointStateEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entries := make([]actions.EndpointStateEntry, 0, len(digests))
	for _, d := range digests {
		if state, ok := v.states[d.Id]; ok {
			entries = append(entries, actions.EndpointStateEntry{Id: d.Id, State: state.Clone()})
		}
	}
	return entries
}

// ApplyStates merges incoming states into the view, keeping whichever side
// of each entry carries the newer heartbeat. The local node's own entry is
// never overwritten by a remote copy of it.
func (v *View) ApplyStates(entries []actions.EndpointStateEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range entries {
		if e.Id == v.local {
			continue
		}
		existing, ok := v.states[e.Id]
		if !ok || e.State.Heartbeat.NewerThan(existing.Heartbeat) {
			v.states[e.Id] = e.State
		}
	}
}

// Responsive returns every node id, the local node included, whose AppStatus
// is Normal — the set the
// coordinator fans reads and writes out to.
func (v *View) Responsive() []clusterstate.NodeId {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []clusterstate.NodeId
	for id, state := range v.states {
		if state.AppState.Responsive() {
			out = append(out, id)
		}
	}
	return out
}

func (v *View) String() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return fmt.Sprintf("view{local=%v known=%d}", v.local, len(v.states))
}
