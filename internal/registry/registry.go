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

// Package registry implements the fixed NodeId<->IP address book: a
// process-wide CSV mapping node ids to IP addresses, with the client and
// private ports for each id computed deterministically from a pair of base
// ports. This is an explicit value passed to each node rather than a
// package-level global, with a constructor for test fixtures that want a
// quick default.
package registry

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

const (
	DefaultClientBasePort  = 9042
	DefaultPrivateBasePort = 10042
)

// Registry resolves a NodeId to its IP address and well-known ports.
type Registry struct {
	ClientBasePort  int
	PrivateBasePort int
	addresses       map[clusterstate.NodeId]net.IP
	ids             []clusterstate.NodeId
}

// New builds a Registry from an explicit id->address map, sorted by id.
func New(addresses map[clusterstate.NodeId]net.IP) *Registry {
	r := &Registry{
		ClientBasePort:  DefaultClientBasePort,
		PrivateBasePort: DefaultPrivateBasePort,
		addresses:       addresses,
	}
	for id := range addresses {
		r.ids = append(r.ids, id)
	}
	sortNodeIds(r.ids)
	return r
}

// LoadCSV reads a `node_ips.csv` file of `id,ip_address` lines.
func LoadCSV(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open node ip registry %q: %w", path, err)
	}
	defer f.Close()

	addresses := make(map[clusterstate.NodeId]net.IP)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("node ip registry %q line %d: expected `id,ip`, got %q", path, lineNo, line)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("node ip registry %q line %d: invalid node id: %w", path, lineNo, err)
		}
		ip := net.ParseIP(strings.TrimSpace(parts[1]))
		if ip == nil {
			return nil, fmt.Errorf("node ip registry %q line %d: invalid ip address %q", path, lineNo, parts[1])
		}
		addresses[clusterstate.NodeId(id)] = ip
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read node ip registry %q: %w", path, err)
	}
	return New(addresses), nil
}

// NodeIds returns every known id, sorted ascending — the ring order used by
// both partition ownership and DDL broadcast.
func (r *Registry) NodeIds() []clusterstate.NodeId {
	out := make([]clusterstate.NodeId, len(r.ids))
	copy(out, r.ids)
	return out
}

func (r *Registry) Size() int { return len(r.ids) }

func (r *Registry) Address(id clusterstate.NodeId) (net.IP, error) {
	addr, ok := r.addresses[id]
	if !ok {
		return nil, fmt.Errorf("unknown node id %v", id)
	}
	return addr, nil
}

func (r *Registry) ClientAddr(id clusterstate.NodeId) (string, error) {
	addr, err := r.Address(id)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(addr.String(), strconv.Itoa(r.ClientBasePort+int(id))), nil
}

func (r *Registry) PrivateAddr(id clusterstate.NodeId) (string, error) {
	addr, err := r.Address(id)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(addr.String(), strconv.Itoa(r.PrivateBasePort+1000+int(id))), nil
}

// Next returns the node id that follows id in the sorted ring, wrapping
// around — the building block for replica-set computation.
func (r *Registry) Next(id clusterstate.NodeId) clusterstate.NodeId {
	for i, candidate := range r.ids {
		if candidate == id {
			return r.ids[(i+1)%len(r.ids)]
		}
	}
	return id
}

func sortNodeIds(ids []clusterstate.NodeId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
