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

// Package actions implements the internal server-action protocol: the set
// of messages nodes exchange over the private port for gossip, repair and
// data-forwarding purposes. These never cross the
// client-facing port and never appear inside a CQL frame.
//
// Every CQL version byte is 0x05 (request) or 0x85 (response) — top nibble
// 0 or 8. Action tags live in 0xF0-0xFE, so a single peek at the first byte
// of an incoming stream on the private port tells a listener which framing
// applies; the two never collide. Action framing is intentionally the
// simplest thing that works: a one-byte tag, a four-byte big-endian length,
// then that many payload bytes. There is no header flags byte, no stream id
// and no compression — actions are fire-and-forget or request/response pairs
// on their own dedicated connection, not multiplexed like CQL frames.
package actions

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Tag identifies an internal action. The reserved range mirrors the CQL
// opcode byte's position in the wire format without being part of it.
type Tag uint8

const (
	TagExit                        Tag = 0xF0
	TagBeat                        Tag = 0xF1
	TagGossip                      Tag = 0xF2
	TagSyn                         Tag = 0xF3
	TagAck                         Tag = 0xF4
	TagAck2                        Tag = 0xF5
	TagNewNeighbour                Tag = 0xF6
	TagSendEndpointState           Tag = 0xF7
	TagInternalQuery               Tag = 0xF8
	TagStoreMetadata               Tag = 0xF9
	TagDirectReadRequest           Tag = 0xFA
	TagDigestReadRequest           Tag = 0xFB
	TagRepairRows                  Tag = 0xFC
	TagAddPartitionValueToMetadata Tag = 0xFD
	TagMembership                  Tag = 0xFE
)

func (t Tag) String() string {
	switch t {
	case TagExit:
		return "EXIT"
	case TagBeat:
		return "BEAT"
	case TagGossip:
		return "GOSSIP"
	case TagSyn:
		return "SYN"
	case TagAck:
		return "ACK"
	case TagAck2:
		return "ACK2"
	case TagNewNeighbour:
		return "NEW_NEIGHBOUR"
	case TagSendEndpointState:
		return "SEND_ENDPOINT_STATE"
	case TagInternalQuery:
		return "INTERNAL_QUERY"
	case TagStoreMetadata:
		return "STORE_METADATA"
	case TagDirectReadRequest:
		return "DIRECT_READ_REQUEST"
	case TagDigestReadRequest:
		return "DIGEST_READ_REQUEST"
	case TagRepairRows:
		return "REPAIR_ROWS"
	case TagAddPartitionValueToMetadata:
		return "ADD_PARTITION_VALUE_TO_METADATA"
	case TagMembership:
		return "MEMBERSHIP"
	}
	return fmt.Sprintf("UNKNOWN_TAG(0x%02X)", uint8(t))
}

// IsActionTag reports whether b is a reserved internal-action tag, as
// opposed to a CQL protocol version byte (0x05/0x85).
func IsActionTag(b byte) bool { return b >= 0xF0 }

// Action is anything exchanged over the private port.
type Action interface {
	Tag() Tag
	fmt.Stringer
}

// Codec encodes a single action body. Registered per Tag in a Registry.
type Codec interface {
	Tag() Tag
	Encode(a Action, dest io.Writer) error
	Decode(source io.Reader) (Action, error)
}

// Registry dispatches actions to their codec by Tag.
type Registry struct {
	codecs map[Tag]Codec
}

func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[Tag]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Tag()] = c
	}
	return r
}

// Encode writes the tag byte, a placeholder-free length prefix and the
// action's own encoding, buffering the body so the length can be computed.
func (r *Registry) Encode(a Action, dest io.Writer) error {
	codec, ok := r.codecs[a.Tag()]
	if !ok {
		return fmt.Errorf("encode action: no codec registered for tag %v", a.Tag())
	}
	buf := &lengthBuffer{}
	if err := codec.Encode(a, buf); err != nil {
		return fmt.Errorf("encode action %v: %w", a.Tag(), err)
	}
	if err := primitive.WriteByte(uint8(a.Tag()), dest); err != nil {
		return err
	}
	if err := primitive.WriteUnsignedInt(uint32(len(buf.bytes)), dest); err != nil {
		return err
	}
	_, err := dest.Write(buf.bytes)
	return err
}

// Decode reads a tag byte, a length prefix and dispatches the payload to the
// registered codec for that tag.
func (r *Registry) Decode(source io.Reader) (Action, error) {
	tagByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("decode action tag: %w", err)
	}
	tag := Tag(tagByte)
	length, err := primitive.ReadUnsignedInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode action length: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(source, payload); err != nil {
		return nil, fmt.Errorf("read action payload (%d bytes): %w", length, err)
	}
	codec, ok := r.codecs[tag]
	if !ok {
		return nil, fmt.Errorf("decode action: no codec registered for tag %v", tag)
	}
	action, err := codec.Decode(newByteReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode action %v: %w", tag, err)
	}
	return action, nil
}

// lengthBuffer is a minimal io.Writer that just accumulates bytes; avoids
// pulling in bytes.Buffer for what is otherwise a one-liner.
type lengthBuffer struct {
	bytes []byte
}

func (b *lengthBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}

func newByteReader(p []byte) io.Reader {
	return &sliceReader{data: p}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func DefaultRegistry() *Registry {
	return NewRegistry(
		exitCodec{},
		beatCodec{},
		gossipCodec{},
		synCodec{},
		ackCodec{},
		ack2Codec{},
		newNeighbourCodec{},
		sendEndpointStateCodec{},
		internalQueryCodec{},
		storeMetadataCodec{},
		directReadRequestCodec{},
		digestReadRequestCodec{},
		repairRowsCodec{},
		addPartitionValueToMetadataCodec{},
		membershipCodec{},
	)
}
