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
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// Transport carries the FE membership sub-actions to and from peers. It is
// a narrower sibling of gossip.Transport scoped to actions.Membership so
// this package doesn't need to import the general action Transport.
type Transport interface {
	ExchangeMembership(ctx context.Context, peer clusterstate.NodeId, request actions.Membership) (actions.Membership, error)
	SendMembership(ctx context.Context, peer clusterstate.NodeId, action actions.Membership) error
}

// Relocator moves rows between replica sets once the ring's ownership
// changes; implemented by internal/storage.
type Relocator interface {
	// RowsOwnedBy returns every row this node holds that the given node
	// should now own, serialized the same way RepairRows carries rows.
	RowsOwnedBy(id clusterstate.NodeId) ([]byte, error)
	// AdoptRows merges relocated row bytes into local storage.
	AdoptRows(fromTable []byte) error
	// AllTableNames lists every table this node replicates, used to answer
	// GetAllTablesOfReplica during a join.
	AllTableNames() []string
}

// Manager drives the AppStatus transitions of the node lifecycle:
//
//	Bootstrap        -> Normal              (first boot, no peers yet to sync with)
//	NewNode          -> RelocationIsNeeded  (an operator points a new node at a seed)
//	RelocationIsNeeded -> RelocatingData    (peers agreed on what this node should own)
//	RelocatingData   -> Ready               (row transfer complete)
//	Ready            -> Normal              (node announces itself fully caught up)
//
// A node being removed instead walks Normal -> Left -> Remove via Leave,
// announced to every peer so they stop treating it as a replica; DeleteNode
// is the peers' receiving side of that announcement.
type Manager struct {
	view      *View
	transport Transport
	relocator Relocator
}

func NewManager(view *View, transport Transport, relocator Relocator) *Manager {
	return &Manager{view: view, transport: transport, relocator: relocator}
}

// CompleteBootstrap moves a brand-new single-node (or first-of-cluster)
// deployment straight to Normal: there is nothing to relocate from because
// no peer exists yet.
func (m *Manager) CompleteBootstrap() {
	local := m.view.LocalState()
	if local.AppState != clusterstate.AppStatusBootstrap {
		return
	}
	local.AppState = clusterstate.AppStatusNormal
	log.Info().Msgf("membership: %v bootstrap complete, now NORMAL", m.view.LocalId())
}

// Join runs a node that is joining an existing cluster through its full
// relocation sequence: mark itself NewNode, ask a seed for the tables it
// should replicate, adopt the rows, then mark itself Ready, broadcast
// RelocationNeeded to every peer, and finally mark itself Normal. The
// NewNode, Ready and Normal transitions are local state changes only.
func (m *Manager) Join(ctx context.Context, seed clusterstate.NodeId) error {
	local := m.view.LocalState()
	local.AppState = clusterstate.AppStatusNewNode
	log.Info().Msgf("membership: %v joining via seed %v, NEW_NODE", m.view.LocalId(), seed)

	local.AppState = clusterstate.AppStatusRelocationIsNeeded
	reply, err := m.transport.ExchangeMembership(ctx, seed, actions.Membership{
		Kind:   actions.MembershipGetAllTablesOfReplica,
		NodeId: m.view.LocalId(),
	})
	if err != nil {
		return fmt.Errorf("membership: join request to %v failed: %w", seed, err)
	}
	log.Debug().Msgf("membership: %v received relocation manifest from %v (%d bytes)", m.view.LocalId(), seed, len(reply.Payload))

	local.AppState = clusterstate.AppStatusRelocatingData
	if err := m.relocator.AdoptRows(reply.Payload); err != nil {
		return fmt.Errorf("membership: adopting relocated rows failed: %w", err)
	}

	local.AppState = clusterstate.AppStatusReady
	if err := m.announce(ctx, actions.MembershipRelocationNeeded); err != nil {
		log.Error().Err(err).Msgf("membership: %v failed to announce readiness to all peers", m.view.LocalId())
	}

	local.AppState = clusterstate.AppStatusNormal
	log.Info().Msgf("membership: %v finished join, now NORMAL", m.view.LocalId())
	return nil
}

// HandleGetAllTablesOfReplica answers a joining peer's request for the data
// this node can hand off, bundling every table's relevant rows via the
// Relocator.
func (m *Manager) HandleGetAllTablesOfReplica(requester clusterstate.NodeId) (actions.Membership, error) {
	payload, err := m.relocator.RowsOwnedBy(requester)
	if err != nil {
		return actions.Membership{}, fmt.Errorf("membership: gathering rows for %v: %w", requester, err)
	}
	return actions.Membership{Kind: actions.MembershipReceiveMetadata, NodeId: m.view.LocalId(), Payload: payload}, nil
}

// Leave walks a node's orderly departure: Normal -> Left -> Remove,
// announcing NodeIsLeaving first so replica sets can be recomputed without
// this node before it disappears, then NodeDeleted once NodeIsLeaving was
// sent to every peer without error. Neither announcement waits for a reply.
func (m *Manager) Leave(ctx context.Context) error {
	local := m.view.LocalState()
	local.AppState = clusterstate.AppStatusLeft
	if err := m.announce(ctx, actions.MembershipNodeIsLeaving); err != nil {
		return fmt.Errorf("membership: announcing departure failed: %w", err)
	}
	local.AppState = clusterstate.AppStatusRemove
	return m.announce(ctx, actions.MembershipNodeDeleted)
}

// DeleteNode is the receiving side of a peer's departure: the target is
// dropped from the local view entirely so it stops being considered a
// replica candidate.
func (m *Manager) DeleteNode(id clusterstate.NodeId) {
	m.view.mu.Lock()
	delete(m.view.states, id)
	m.view.mu.Unlock()
	log.Info().Msgf("membership: %v removed %v from its view", m.view.LocalId(), id)
}

func (m *Manager) announce(ctx context.Context, kind actions.MembershipKind) error {
	action := actions.Membership{Kind: kind, NodeId: m.view.LocalId()}
	var firstErr error
	for _, peer := range m.view.Peers() {
		if err := m.transport.SendMembership(ctx, peer, action); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
