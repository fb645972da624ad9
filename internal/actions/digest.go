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

// Digest is the compact (id, heartbeat) summary exchanged during Syn/Ack so
// peers can tell which EndpointStates need a full transfer without sending
// them all. Modeled on the heartbeat-only "digest" half of a gossip round.
type Digest struct {
	Id        clusterstate.NodeId
	Heartbeat clusterstate.HeartbeatState
}

func (d Digest) String() string {
	return fmt.Sprintf("%v%v", d.Id, d.Heartbeat)
}

func writeDigest(d Digest, dest io.Writer) error {
	if err := primitive.WriteByte(uint8(d.Id), dest); err != nil {
		return err
	}
	if err := primitive.WriteLong(d.Heartbeat.Generation, dest); err != nil {
		return err
	}
	return primitive.WriteUnsignedLong(d.Heartbeat.Version, dest)
}

func readDigest(source io.Reader) (Digest, error) {
	idByte, err := primitive.ReadByte(source)
	if err != nil {
		return Digest{}, err
	}
	generation, err := primitive.ReadLong(source)
	if err != nil {
		return Digest{}, err
	}
	version, err := primitive.ReadUnsignedLong(source)
	if err != nil {
		return Digest{}, err
	}
	return Digest{
		Id:        clusterstate.NodeId(idByte),
		Heartbeat: clusterstate.HeartbeatState{Generation: generation, Version: version},
	}, nil
}

func writeDigests(digests []Digest, dest io.Writer) error {
	if err := primitive.WriteInt(int32(len(digests)), dest); err != nil {
		return err
	}
	for _, d := range digests {
		if err := writeDigest(d, dest); err != nil {
			return err
		}
	}
	return nil
}

func readDigests(source io.Reader) ([]Digest, error) {
	count, err := primitive.ReadInt(source)
	if err != nil {
		return nil, err
	}
	digests := make([]Digest, 0, count)
	for i := int32(0); i < count; i++ {
		d, err := readDigest(source)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, nil
}

// EndpointStateEntry pairs a node id with its full EndpointState, the unit of
// transfer once a digest round has identified a peer out of date.
type EndpointStateEntry struct {
	Id    clusterstate.NodeId
	State *clusterstate.EndpointState
}

func writeEndpointStateEntry(e EndpointStateEntry, dest io.Writer) error {
	if err := primitive.WriteByte(uint8(e.Id), dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(e.State.AppState), dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(e.State.ConnectionMode), dest); err != nil {
		return err
	}
	if err := primitive.WriteLong(e.State.Heartbeat.Generation, dest); err != nil {
		return err
	}
	if err := primitive.WriteUnsignedLong(e.State.Heartbeat.Version, dest); err != nil {
		return err
	}
	return primitive.WriteInetAddr(e.State.Address, dest)
}

func readEndpointStateEntry(source io.Reader) (EndpointStateEntry, error) {
	idByte, err := primitive.ReadByte(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	appStateByte, err := primitive.ReadByte(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	modeByte, err := primitive.ReadByte(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	generation, err := primitive.ReadLong(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	version, err := primitive.ReadUnsignedLong(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	addr, err := primitive.ReadInetAddr(source)
	if err != nil {
		return EndpointStateEntry{}, err
	}
	return EndpointStateEntry{
		Id: clusterstate.NodeId(idByte),
		State: &clusterstate.EndpointState{
			AppState:       clusterstate.AppStatus(appStateByte),
			ConnectionMode: clusterstate.ConnectionMode(modeByte),
			Heartbeat:      clusterstate.HeartbeatState{Generation: generation, Version: version},
			Address:        addr,
		},
	}, nil
}

func writeEndpointStateEntries(entries []EndpointStateEntry, dest io.Writer) error {
	if err := primitive.WriteInt(int32(len(entries)), dest); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeEndpointStateEntry(e, dest); err != nil {
			return err
		}
	}
	return nil
}

func readEndpointStateEntries(source io.Reader) ([]EndpointStateEntry, error) {
	count, err := primitive.ReadInt(source)
	if err != nil {
		return nil, err
	}
	entries := make([]EndpointStateEntry, 0, count)
	for i := int32(0); i < count; i++ {
		e, err := readEndpointStateEntry(source)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
