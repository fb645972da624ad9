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
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

func TestSynAckAck2RoundTrip(t *testing.T) {
	registry := DefaultRegistry()

	syn := Syn{
		Emitter: clusterstate.NodeId(1),
		Digests: []Digest{{Id: clusterstate.NodeId(2), Heartbeat: clusterstate.HeartbeatState{Generation: 100, Version: 3}}},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, registry.Encode(syn, buf))
	decoded, err := registry.Decode(buf)
	require.NoError(t, err)
	decodedSyn, ok := decoded.(Syn)
	require.True(t, ok)
	assert.Equal(t, syn.Emitter, decodedSyn.Emitter)
	assert.Equal(t, syn.Digests, decodedSyn.Digests)

	ack := Ack{
		Receiver: clusterstate.NodeId(2),
		Digests:  []Digest{{Id: clusterstate.NodeId(1), Heartbeat: clusterstate.HeartbeatState{Generation: 100, Version: 1}}},
		States: []EndpointStateEntry{{
			Id: clusterstate.NodeId(3),
			State: clusterstate.NewEndpointState(net.ParseIP("10.0.0.3"), clusterstate.ModeParsing),
		}},
	}
	buf.Reset()
	require.NoError(t, registry.Encode(ack, buf))
	decoded, err = registry.Decode(buf)
	require.NoError(t, err)
	decodedAck, ok := decoded.(Ack)
	require.True(t, ok)
	assert.Equal(t, ack.Receiver, decodedAck.Receiver)
	require.Len(t, decodedAck.States, 1)
	assert.Equal(t, clusterstate.AppStatusBootstrap, decodedAck.States[0].State.AppState)
}

func TestMembershipRoundTrip(t *testing.T) {
	registry := DefaultRegistry()
	m := Membership{Kind: MembershipRelocationNeeded, NodeId: clusterstate.NodeId(4), Payload: []byte("relocate")}

	buf := &bytes.Buffer{}
	require.NoError(t, registry.Encode(m, buf))
	decoded, err := registry.Decode(buf)
	require.NoError(t, err)
	decodedM, ok := decoded.(Membership)
	require.True(t, ok)
	assert.Equal(t, MembershipRelocationNeeded, decodedM.Kind)
	assert.Equal(t, []byte("relocate"), decodedM.Payload)
}

func TestIsActionTag(t *testing.T) {
	assert.True(t, IsActionTag(0xF0))
	assert.True(t, IsActionTag(0xFE))
	assert.False(t, IsActionTag(0x05))
	assert.False(t, IsActionTag(0x85))
}
