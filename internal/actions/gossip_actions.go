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

package actions

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Exit tells a peer this node is shutting down cleanly. Empty body; the
// tag alone carries the meaning.
type Exit struct{}

func (Exit) Tag() Tag        { return TagExit }
func (Exit) String() string  { return "EXIT" }

type exitCodec struct{}

func (exitCodec) Tag() Tag                               { return TagExit }
func (exitCodec) Encode(Action, io.Writer) error          { return nil }
func (exitCodec) Decode(io.Reader) (Action, error)        { return Exit{}, nil }

// Beat is a liveness ping carrying the sender's own heartbeat so the
// receiver can refresh its view without waiting for the next gossip round.
type Beat struct {
	Sender    clusterstate.NodeId
	Heartbeat clusterstate.HeartbeatState
}

func (b Beat) Tag() Tag       { return TagBeat }
func (b Beat) String() string { return fmt.Sprintf("BEAT from=%v %v", b.Sender, b.Heartbeat) }

type beatCodec struct{}

func (beatCodec) Tag() Tag { return TagBeat }

func (beatCodec) Encode(a Action, dest io.Writer) error {
	b := a.(Beat)
	if err := primitive.WriteByte(uint8(b.Sender), dest); err != nil {
		return err
	}
	if err := primitive.WriteLong(b.Heartbeat.Generation, dest); err != nil {
		return err
	}
	return primitive.WriteUnsignedLong(b.Heartbeat.Version, dest)
}

func (beatCodec) Decode(source io.Reader) (Action, error) {
	senderByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	generation, err := primitive.ReadLong(source)
	if err != nil {
		return nil, err
	}
	version, err := primitive.ReadUnsignedLong(source)
	if err != nil {
		return nil, err
	}
	return Beat{
		Sender:    clusterstate.NodeId(senderByte),
		Heartbeat: clusterstate.HeartbeatState{Generation: generation, Version: version},
	}, nil
}

// Gossip carries the set of peer ids the sender picked for this round's Syn
// fan-out — mostly useful for tracing/debugging the gossiper's peer
// selection.
type Gossip struct {
	Targets []clusterstate.NodeId
}

func (g Gossip) Tag() Tag       { return TagGossip }
func (g Gossip) String() string { return fmt.Sprintf("GOSSIP targets=%v", g.Targets) }

type gossipCodec struct{}

func (gossipCodec) Tag() Tag { return TagGossip }

func (gossipCodec) Encode(a Action, dest io.Writer) error {
	g := a.(Gossip)
	if err := primitive.WriteInt(int32(len(g.Targets)), dest); err != nil {
		return err
	}
	for _, id := range g.Targets {
		if err := primitive.WriteByte(uint8(id), dest); err != nil {
			return err
		}
	}
	return nil
}

func (gossipCodec) Decode(source io.Reader) (Action, error) {
	count, err := primitive.ReadInt(source)
	if err != nil {
		return nil, err
	}
	targets := make([]clusterstate.NodeId, 0, count)
	for i := int32(0); i < count; i++ {
		b, err := primitive.ReadByte(source)
		if err != nil {
			return nil, err
		}
		targets = append(targets, clusterstate.NodeId(b))
	}
	return Gossip{Targets: targets}, nil
}

// Syn opens a gossip round: the emitter's id plus a digest of everything it
// currently knows about the cluster.
type Syn struct {
	Emitter clusterstate.NodeId
	Digests []Digest
}

func (s Syn) Tag() Tag       { return TagSyn }
func (s Syn) String() string { return fmt.Sprintf("SYN from=%v digests=%v", s.Emitter, s.Digests) }

type synCodec struct{}

func (synCodec) Tag() Tag { return TagSyn }

func (synCodec) Encode(a Action, dest io.Writer) error {
	s := a.(Syn)
	if err := primitive.WriteByte(uint8(s.Emitter), dest); err != nil {
		return err
	}
	return writeDigests(s.Digests, dest)
}

func (synCodec) Decode(source io.Reader) (Action, error) {
	emitterByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	digests, err := readDigests(source)
	if err != nil {
		return nil, err
	}
	return Syn{Emitter: clusterstate.NodeId(emitterByte), Digests: digests}, nil
}

// Ack answers a Syn: a digest of what the receiver knows that the emitter's
// digest didn't already cover as current, plus the full EndpointStates for
// anything the emitter's digest showed as stale.
type Ack struct {
	Receiver clusterstate.NodeId
	Digests  []Digest
	States   []EndpointStateEntry
}

func (a Ack) Tag() Tag { return TagAck }
func (a Ack) String() string {
	return fmt.Sprintf("ACK from=%v digests=%v states=%v", a.Receiver, a.Digests, a.States)
}

type ackCodec struct{}

func (ackCodec) Tag() Tag { return TagAck }

func (ackCodec) Encode(action Action, dest io.Writer) error {
	a := action.(Ack)
	if err := primitive.WriteByte(uint8(a.Receiver), dest); err != nil {
		return err
	}
	if err := writeDigests(a.Digests, dest); err != nil {
		return err
	}
	return writeEndpointStateEntries(a.States, dest)
}

func (ackCodec) Decode(source io.Reader) (Action, error) {
	receiverByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	digests, err := readDigests(source)
	if err != nil {
		return nil, err
	}
	states, err := readEndpointStateEntries(source)
	if err != nil {
		return nil, err
	}
	return Ack{Receiver: clusterstate.NodeId(receiverByte), Digests: digests, States: states}, nil
}

// Ack2 closes the round, sending the emitter's own answering EndpointStates
// for whatever the Ack's digest showed as stale on its side.
type Ack2 struct {
	States []EndpointStateEntry
}

func (a Ack2) Tag() Tag       { return TagAck2 }
func (a Ack2) String() string { return fmt.Sprintf("ACK2 states=%v", a.States) }

type ack2Codec struct{}

func (ack2Codec) Tag() Tag { return TagAck2 }

func (ack2Codec) Encode(action Action, dest io.Writer) error {
	return writeEndpointStateEntries(action.(Ack2).States, dest)
}

func (ack2Codec) Decode(source io.Reader) (Action, error) {
	states, err := readEndpointStateEntries(source)
	if err != nil {
		return nil, err
	}
	return Ack2{States: states}, nil
}

// NewNeighbour announces a newly discovered peer and its current state, sent
// when a node learns of a cluster member it did not previously track.
type NewNeighbour struct {
	Id    clusterstate.NodeId
	State *clusterstate.EndpointState
}

func (n NewNeighbour) Tag() Tag       { return TagNewNeighbour }
func (n NewNeighbour) String() string { return fmt.Sprintf("NEW_NEIGHBOUR id=%v state=%v", n.Id, n.State) }

type newNeighbourCodec struct{}

func (newNeighbourCodec) Tag() Tag { return TagNewNeighbour }

func (newNeighbourCodec) Encode(action Action, dest io.Writer) error {
	n := action.(NewNeighbour)
	return writeEndpointStateEntry(EndpointStateEntry{Id: n.Id, State: n.State}, dest)
}

func (newNeighbourCodec) Decode(source io.Reader) (Action, error) {
	entry, err := readEndpointStateEntry(source)
	if err != nil {
		return nil, err
	}
	return NewNeighbour{Id: entry.Id, State: entry.State}, nil
}

// SendEndpointState asks the receiver to report its EndpointState for a
// given node id, used to fetch state for an address a node only just
// learned about.
type SendEndpointState struct {
	Id clusterstate.NodeId
}

func (s SendEndpointState) Tag() Tag       { return TagSendEndpointState }
func (s SendEndpointState) String() string { return fmt.Sprintf("SEND_ENDPOINT_STATE id=%v", s.Id) }

type sendEndpointStateCodec struct{}

func (sendEndpointStateCodec) Tag() Tag { return TagSendEndpointState }

func (sendEndpointStateCodec) Encode(action Action, dest io.Writer) error {
	return primitive.WriteByte(uint8(action.(SendEndpointState).Id), dest)
}

func (sendEndpointStateCodec) Decode(source io.Reader) (Action, error) {
	idByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	return SendEndpointState{Id: clusterstate.NodeId(idByte)}, nil
}
