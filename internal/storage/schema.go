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

// Package storage implements a per-replica CSV persistence layer: one CSV
// file per (keyspace, table, owning replica) holding every row plus a
// trailing row_timestamp column, an in-memory index of the partition-key
// values seen per table (reported in metadata snapshots; SELECT still scans
// the whole file), and the handful of
// WHERE operators original_source supports (=, !=, <, <=, >, >=). Grounded
// directly in original_source's server/nodes/disk_operations/disk_handler.rs
// and table_metadata/table.rs, reshaped into Go types with explicit
// errors, zerolog, and small composable structs rather than translated
// line-for-line.
package storage

import (
	"fmt"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Keyspace is a named grouping of tables with a replication factor — the
// module's only supported replication strategy is SimpleStrategy, matching
// original_source's disk_handler.rs::get_keyspace_replication (the
// NetworkTopologyStrategy branch there is explicitly unsupported).
type Keyspace struct {
	Name              string
	ReplicationFactor int
}

// ColumnSpec names one column and its CQL wire type.
type ColumnSpec struct {
	Name string
	Type primitive.DataTypeCode
}

// PrimaryKey separates the partition key (the columns hashed to pick
// replicas) from any clustering keys, each with an explicit
// ascending/descending order for ORDER BY.
type PrimaryKey struct {
	PartitionKeys  []string
	ClusteringKeys []string
	ClusteringAsc  []bool
}

// TableSchema is everything needed to encode/decode/validate rows for one
// table, independent of which replica's CSV file is being read.
type TableSchema struct {
	Keyspace   string
	Name       string
	Columns    []ColumnSpec
	PrimaryKey PrimaryKey
}

// ColumnIndex returns the position of a named column, or -1 if absent.
func (t *TableSchema) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn implements ALTER TABLE ADD column; it is a metadata-only
// change, existing CSV rows simply read back an empty string for the new
// column until updated.
func (t *TableSchema) AddColumn(col ColumnSpec) error {
	if t.ColumnIndex(col.Name) >= 0 {
		return fmt.Errorf("column %q already exists on table %s.%s", col.Name, t.Keyspace, t.Name)
	}
	t.Columns = append(t.Columns, col)
	return nil
}

// DropColumn implements the supplemented ALTER TABLE DROP column operation.
// It refuses to drop a primary key column, the same restriction CQL itself
// enforces.
func (t *TableSchema) DropColumn(name string) error {
	for _, pk := range t.PrimaryKey.PartitionKeys {
		if pk == name {
			return fmt.Errorf("cannot drop partition key column %q", name)
		}
	}
	for _, ck := range t.PrimaryKey.ClusteringKeys {
		if ck == name {
			return fmt.Errorf("cannot drop clustering key column %q", name)
		}
	}
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("column %q does not exist on table %s.%s", name, t.Keyspace, t.Name)
	}
	t.Columns = append(t.Columns[:idx], t.Columns[idx+1:]...)
	return nil
}
