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

// Package clusterstate implements the per-node cluster membership data
// model: NodeId, HeartbeatState, AppStatus and EndpointState. Its shape is
// grounded in common gossip/membership idioms (heartbeat generation+version
// pairs used as a vector clock, a small closed set of lifecycle states) and
// written with small structs, explicit String() methods, and
// zerolog-friendly field names.
package clusterstate

import (
	"fmt"
	"net"
	"time"
)

// NodeId uniquely identifies a node within the fixed cluster.
type NodeId uint8

func (id NodeId) String() string { return fmt.Sprintf("node-%d", uint8(id)) }

// ConnectionMode selects whether a node's session handler short-circuits the
// coordinator (Echo, a debugging facility that loops query text back
// verbatim) or dispatches CQL normally (Parsing).
type ConnectionMode int

const (
	ModeParsing ConnectionMode = iota
	ModeEcho
)

func (m ConnectionMode) String() string {
	if m == ModeEcho {
		return "echo"
	}
	return "parsing"
}

// AppStatus is a node's position in the membership lifecycle.
type AppStatus int

const (
	AppStatusBootstrap AppStatus = iota
	AppStatusNormal
	AppStatusLeft
	AppStatusRemove
	AppStatusOffline
	AppStatusNewNode
	AppStatusRelocationIsNeeded
	AppStatusRelocatingData
	AppStatusReady
	AppStatusUpdatingReplicas
)

func (s AppStatus) String() string {
	switch s {
	case AppStatusBootstrap:
		return "BOOTSTRAP"
	case AppStatusNormal:
		return "NORMAL"
	case AppStatusLeft:
		return "LEFT"
	case AppStatusRemove:
		return "REMOVE"
	case AppStatusOffline:
		return "OFFLINE"
	case AppStatusNewNode:
		return "NEW_NODE"
	case AppStatusRelocationIsNeeded:
		return "RELOCATION_IS_NEEDED"
	case AppStatusRelocatingData:
		return "RELOCATING_DATA"
	case AppStatusReady:
		return "READY"
	case AppStatusUpdatingReplicas:
		return "UPDATING_REPLICAS"
	}
	return "UNKNOWN"
}

// Responsive reports whether a peer in this status should be treated as a
// viable target for fan-out: only a Normal peer is.
func (s AppStatus) Responsive() bool { return s == AppStatusNormal }

// HeartbeatState is the (generation, version) vector clock carried by every
// EndpointState. Generation is fixed at process start; version increments on
// every beat. The pair is totally ordered lexicographically.
type HeartbeatState struct {
	Generation int64
	Version    uint64
}

func NewHeartbeatState() HeartbeatState {
	return HeartbeatState{Generation: time.Now().Unix(), Version: 0}
}

// NewerThan reports whether h is strictly newer than other.
func (h HeartbeatState) NewerThan(other HeartbeatState) bool {
	if h.Generation != other.Generation {
		return h.Generation > other.Generation
	}
	return h.Version > other.Version
}

func (h HeartbeatState) String() string {
	return fmt.Sprintf("(gen=%d, ver=%d)", h.Generation, h.Version)
}

// EndpointState is everything a node tracks about one cluster member,
// including itself.
type EndpointState struct {
	AppState       AppStatus
	ConnectionMode ConnectionMode
	Heartbeat      HeartbeatState
	Address        net.IP
}

func NewEndpointState(addr net.IP, mode ConnectionMode) *EndpointState {
	return &EndpointState{
		AppState:       AppStatusBootstrap,
		ConnectionMode: mode,
		Heartbeat:      NewHeartbeatState(),
		Address:        addr,
	}
}

func (s *EndpointState) String() string {
	return fmt.Sprintf("{status=%v heartbeat=%v addr=%v}", s.AppState, s.Heartbeat, s.Address)
}

// Beat increments the local heartbeat version. Called by the beater thread
// and never by anything processing a remote peer's state.
func (s *EndpointState) Beat() {
	s.Heartbeat.Version++
}

// Clone returns a deep copy suitable for snapshotting under a read lock
// before releasing it.
func (s *EndpointState) Clone() *EndpointState {
	clone := *s
	clone.Address = append(net.IP(nil), s.Address...)
	return &clone
}
