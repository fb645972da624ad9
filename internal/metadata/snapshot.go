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

// Package metadata persists a node's in-memory keyspace/table catalog to a
// JSON snapshot on disk, grounded in original_source's
// server/utils.rs::store_json (serde_json::to_writer_pretty against a
// generic Serialize) and server/nodes/node.rs, which is itself the
// serialized type. No reference repo does bespoke JSON serialization or
// imports a JSON replacement for the standard library's encoding/json, so
// this is the one ambient concern built directly on stdlib (see
// DESIGN.md).
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

const (
	// NodesMetadataDir is where every node's snapshot lives, mirroring
	// original_source's NODES_METADATA_PATH.
	NodesMetadataDir = "nodes_metadata"
)

// ColumnSnapshot is the JSON-friendly twin of storage.ColumnSpec.
type ColumnSnapshot struct {
	Name string                 `json:"name"`
	Type primitive.DataTypeCode `json:"type"`
}

// TableSnapshot is the JSON-friendly twin of storage.TableSchema.
type TableSnapshot struct {
	Keyspace        string           `json:"keyspace"`
	Name            string           `json:"name"`
	Columns         []ColumnSnapshot `json:"columns"`
	PartitionKeys   []string         `json:"partition_keys"`
	ClusteringKeys  []string         `json:"clustering_keys"`
	PartitionValues []string         `json:"partition_values"`
}

// Snapshot is the full per-node metadata document written to
// nodes_metadata/metadata_node_{id}.json.
type Snapshot struct {
	Id               clusterstate.NodeId         `json:"id"`
	DefaultKeyspaces map[string]string           `json:"default_keyspaces"` // per-user USE default
	Keyspaces        map[string]storage.Keyspace `json:"keyspaces"`
	Tables           []TableSnapshot             `json:"tables"`
}

// Path returns nodes_metadata/metadata_node_{id}.json for a node id.
func Path(id clusterstate.NodeId) string {
	return filepath.Join(NodesMetadataDir, fmt.Sprintf("metadata_node_%d.json", uint8(id)))
}

// Store writes the snapshot as pretty-printed JSON, creating the
// nodes_metadata directory if needed.
func Store(snapshot *Snapshot) error {
	if err := os.MkdirAll(NodesMetadataDir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata snapshot for node %v: %w", snapshot.Id, err)
	}
	path := Path(snapshot.Id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata snapshot %q: %w", path, err)
	}
	return nil
}

// Load reads back a previously stored snapshot. The node process does not
// call it at startup; a restarted node begins with an empty catalog.
func Load(id clusterstate.NodeId) (*Snapshot, error) {
	path := Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata snapshot %q: %w", path, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal metadata snapshot %q: %w", path, err)
	}
	return &snapshot, nil
}
