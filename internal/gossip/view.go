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

// Package gossip implements an epidemic membership protocol: a Beater that
// advances the local heartbeat on a fixed period, and a Gossiper that
// periodically picks a handful of peers and exchanges Syn/Ack/Ack2 rounds
// with them until every node's view of the cluster converges. The shapes
// here are grounded in common gossip idioms (heartbeat vector clocks,
// weighted seed-biased peer selection) and written with a concurrency idiom
// shared across this codebase: a context-scoped goroutine per periodic
// task, a sync.WaitGroup to join on shutdown, zerolog for every transition.
package gossip

import (
	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// ClusterView is the membership state a Gossiper round reads from and
// writes to. It is implemented by the membership package so that gossip
// stays ignorant of how membership transitions are decided; gossip only
// moves EndpointStates around and tells membership when something changed.
type ClusterView interface {
	LocalId() clusterstate.NodeId

	// Digests returns a (id, heartbeat) summary of every node this view
	// currently knows about, including the local node.
	Digests() []actions.Digest

	// Reconcile compares an incoming Syn's digests against the local view
	// and reports two things: the digests of nodes the local view knows
	// more recently than the emitter claims (so the emitter can request
	// them later if it wants), and the full states of nodes the emitter's
	// digest showed as stale locally.
	Reconcile(emitter clusterstate.NodeId, theirDigests []actions.Digest) (staleDigests []actions.Digest, staleStates []actions.EndpointStateEntry)

	// StatesFor returns the full EndpointState for each digest, used to
	// answer a peer's request for states it reported as missing.
	StatesFor(digests []actions.Digest) []actions.EndpointStateEntry

	// ApplyStates merges incoming EndpointStates into the local view,
	// keeping whichever side of each is newer.
	ApplyStates(states []actions.EndpointStateEntry)

	// Seeds returns the bootstrap seed node ids, weighted more heavily
	// during peer selection so a partitioned cluster heals faster.
	Seeds() []clusterstate.NodeId

	// Peers returns every known node id other than the local one.
	Peers() []clusterstate.NodeId
}
