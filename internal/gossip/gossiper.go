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
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

const (
	// DefaultGossipInterval is the period between gossip rounds.
	DefaultGossipInterval = 350 * time.Millisecond

	// DefaultFanout is how many peers each round targets.
	DefaultFanout = 3

	// SeedWeight is how many times a bootstrap seed is entered into the
	// weighted selection pool, where an ordinary peer is entered once, biasing
	// rounds toward healing a partition through the seeds.
	SeedWeight = 3
)

// Gossiper periodically exchanges Syn/Ack/Ack2 rounds with a weighted
// selection of peers.
type Gossiper struct {
	Interval time.Duration
	Fanout   int

	view      ClusterView
	transport Transport
	rng       *rand.Rand

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewGossiper(view ClusterView, transport Transport) *Gossiper {
	return &Gossiper{
		Interval:  DefaultGossipInterval,
		Fanout:    DefaultFanout,
		view:      view,
		transport: transport,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Gossiper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	ticker := time.NewTicker(g.Interval)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug().Msgf("gossiper: stopping, %v", ctx.Err())
				return
			case <-ticker.C:
				g.round(ctx)
			}
		}
	}()
}

func (g *Gossiper) Stop() {
	g.stopOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
		}
		g.wg.Wait()
	})
}

// round picks this tick's targets and gossips with each concurrently; a
// slow or dead peer never blocks the others.
func (g *Gossiper) round(ctx context.Context) {
	targets := g.pickTargets()
	if len(targets) == 0 {
		return
	}
	log.Debug().Msgf("gossiper: round targeting %v", targets)
	for _, peer := range targets {
		peer := peer
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := g.gossipWith(ctx, peer); err != nil {
				log.Debug().Err(err).Msgf("gossiper: round with %v failed", peer)
			}
		}()
	}
}

// pickTargets returns up to Fanout distinct peers, drawn from a pool where
// each bootstrap seed appears SeedWeight times and every other peer once.
func (g *Gossiper) pickTargets() []clusterstate.NodeId {
	peers := g.view.Peers()
	if len(peers) == 0 {
		return nil
	}
	seeds := make(map[clusterstate.NodeId]bool, len(g.view.Seeds()))
	for _, s := range g.view.Seeds() {
		seeds[s] = true
	}

	pool := make([]clusterstate.NodeId, 0, len(peers)*SeedWeight)
	for _, p := range peers {
		weight := 1
		if seeds[p] {
			weight = SeedWeight
		}
		for i := 0; i < weight; i++ {
			pool = append(pool, p)
		}
	}

	chosen := make(map[clusterstate.NodeId]bool, g.Fanout)
	var targets []clusterstate.NodeId
	attempts := 0
	for len(targets) < g.Fanout && len(targets) < len(peers) && attempts < len(pool)*2 {
		candidate := pool[g.rng.Intn(len(pool))]
		attempts++
		if chosen[candidate] {
			continue
		}
		chosen[candidate] = true
		targets = append(targets, candidate)
	}
	return targets
}

// gossipWith drives one full Syn/Ack/Ack2 round with a single peer.
func (g *Gossiper) gossipWith(ctx context.Context, peer clusterstate.NodeId) error {
	syn := actions.Syn{Emitter: g.view.LocalId(), Digests: g.view.Digests()}
	reply, err := g.transport.Exchange(ctx, peer, syn)
	if err != nil {
		return err
	}
	ack, ok := reply.(actions.Ack)
	if !ok {
		return nil
	}
	g.view.ApplyStates(ack.States)

	ack2 := actions.Ack2{States: g.view.StatesFor(ack.Digests)}
	return g.transport.Send(ctx, peer, ack2)
}

// HandleSyn answers an incoming Syn with an Ack, the responder side of a
// round initiated by a peer.
func (g *Gossiper) HandleSyn(syn actions.Syn) actions.Ack {
	staleDigests, staleStates := g.view.Reconcile(syn.Emitter, syn.Digests)
	return actions.Ack{Receiver: g.view.LocalId(), Digests: staleDigests, States: staleStates}
}

// HandleAck2 applies the states a peer sends to close out a round that peer
// initiated, in which this node was the Ack responder.
func (g *Gossiper) HandleAck2(ack2 actions.Ack2) {
	g.view.ApplyStates(ack2.States)
}
