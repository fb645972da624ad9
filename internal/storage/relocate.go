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

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// relocationManifest is the wire shape for a batch of rows handed off
// between nodes during a join, one entry per table this node already
// replicates for the requesting node's id.
type relocationManifest struct {
	Entries []relocationEntry `json:"entries"`
}

type relocationEntry struct {
	Keyspace string              `json:"keyspace"`
	Table    string              `json:"table"`
	Rows     []map[string]string `json:"rows"`
}

// RowsOwnedBy gathers every row this node already stores for id's replica
// across every table, for handing off to a node that just joined and will
// take over that ownership. Satisfies membership.Relocator.
func (e *Engine) RowsOwnedBy(id clusterstate.NodeId) ([]byte, error) {
	e.mu.RLock()
	keys := make([]tableKey, 0, len(e.tables))
	for key := range e.tables {
		keys = append(keys, key)
	}
	e.mu.RUnlock()

	manifest := relocationManifest{}
	for _, key := range keys {
		rows, err := e.Select(key.keyspace, key.table, id, nil, nil)
		if err != nil {
			continue // this node never created a replica file for id on this table
		}
		manifest.Entries = append(manifest.Entries, relocationEntry{Keyspace: key.keyspace, Table: key.table, Rows: rows})
	}
	return json.Marshal(manifest)
}

// AdoptRows merges a relocation manifest produced by RowsOwnedBy into this
// node's own replica files, writing every row under this node's own id as
// owner. Satisfies membership.Relocator.
func (e *Engine) AdoptRows(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var manifest relocationManifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return fmt.Errorf("decode relocation manifest: %w", err)
	}
	for _, entry := range manifest.Entries {
		if err := e.EnsureReplicaFile(entry.Keyspace, entry.Table, e.nodeId); err != nil {
			return err
		}
		for _, row := range entry.Rows {
			// Relocated rows are written with timestamp 0; the row_timestamp
			// value they carry is not used, so any later write wins.
			if err := e.Insert(entry.Keyspace, entry.Table, e.nodeId, row, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllTableNames lists every "keyspace.table" this node replicates.
// Satisfies membership.Relocator.
func (e *Engine) AllTableNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tables))
	for key := range e.tables {
		names = append(names, key.keyspace+"."+key.table)
	}
	return names
}
