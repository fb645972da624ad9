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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

type tableKey struct {
	keyspace string
	table    string
}

// Engine owns one node's on-disk tables and their in-memory schema and
// partition-key index. One Engine exists per running node.
type Engine struct {
	nodeId clusterstate.NodeId

	mu         sync.RWMutex
	keyspaces  map[string]*Keyspace
	tables     map[tableKey]*TableSchema
	partitions map[tableKey]map[string]bool // partition value -> seen, kept for metadata snapshots
}

func NewEngine(nodeId clusterstate.NodeId) *Engine {
	return &Engine{
		nodeId:     nodeId,
		keyspaces:  map[string]*Keyspace{},
		tables:     map[tableKey]*TableSchema{},
		partitions: map[tableKey]map[string]bool{},
	}
}

func (e *Engine) CreateKeyspace(ks *Keyspace, ifNotExists bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.keyspaces[ks.Name]; exists {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("keyspace %q already exists", ks.Name)
	}
	e.keyspaces[ks.Name] = ks
	log.Info().Msgf("storage: node %v created keyspace %q", e.nodeId, ks.Name)
	return nil
}

// Keyspace returns the named keyspace's settings, or an error if it does
// not exist.
func (e *Engine) Keyspace(name string) (*Keyspace, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ks, ok := e.keyspaces[name]
	if !ok {
		return nil, fmt.Errorf("keyspace %q does not exist", name)
	}
	return ks, nil
}

func (e *Engine) DropKeyspace(name string, ifExists bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.keyspaces[name]; !exists {
		if ifExists {
			return nil
		}
		return fmt.Errorf("keyspace %q does not exist", name)
	}
	delete(e.keyspaces, name)
	for key := range e.tables {
		if key.keyspace == name {
			delete(e.tables, key)
			delete(e.partitions, key)
		}
	}
	return nil
}

// AlterKeyspace updates an existing keyspace's replication factor.
func (e *Engine) AlterKeyspace(name string, replicationFactor int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ks, ok := e.keyspaces[name]
	if !ok {
		return fmt.Errorf("keyspace %q does not exist", name)
	}
	ks.ReplicationFactor = replicationFactor
	return nil
}

// CreateTable creates the schema plus this node's own CSV replica file
// (ownerId == nodeId); additional replica files for other owners are
// created on demand by the coordinator as it fans a write out.
func (e *Engine) CreateTable(schema *TableSchema, ifNotExists bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := tableKey{keyspace: schema.Keyspace, table: schema.Name}
	if _, exists := e.tables[key]; exists {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("table %s.%s already exists", schema.Keyspace, schema.Name)
	}
	if _, err := createCSVFile(e.nodeId, schema.Keyspace, schema.Name, e.nodeId, schema.ColumnNames()); err != nil {
		return err
	}
	e.tables[key] = schema
	e.partitions[key] = map[string]bool{}
	log.Info().Msgf("storage: node %v created table %s.%s", e.nodeId, schema.Keyspace, schema.Name)
	return nil
}

func (e *Engine) DropTable(keyspace, table string, ifExists bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := tableKey{keyspace: keyspace, table: table}
	if _, exists := e.tables[key]; !exists {
		if ifExists {
			return nil
		}
		return fmt.Errorf("table %s.%s does not exist", keyspace, table)
	}
	if err := deleteCSVFile(e.nodeId, keyspace, table, e.nodeId); err != nil {
		return err
	}
	delete(e.tables, key)
	delete(e.partitions, key)
	return nil
}

// AddColumn implements ALTER TABLE ADD on a table already tracked by this
// engine.
func (e *Engine) AddColumn(keyspace, table string, col ColumnSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	schema, ok := e.tables[tableKey{keyspace: keyspace, table: table}]
	if !ok {
		return fmt.Errorf("table %s.%s does not exist", keyspace, table)
	}
	return schema.AddColumn(col)
}

// DropColumn implements ALTER TABLE DROP on a table already tracked by this
// engine.
func (e *Engine) DropColumn(keyspace, table, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	schema, ok := e.tables[tableKey{keyspace: keyspace, table: table}]
	if !ok {
		return fmt.Errorf("table %s.%s does not exist", keyspace, table)
	}
	return schema.DropColumn(name)
}

func (e *Engine) Schema(keyspace, table string) (*TableSchema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	schema, ok := e.tables[tableKey{keyspace: keyspace, table: table}]
	if !ok {
		return nil, fmt.Errorf("table %s.%s does not exist", keyspace, table)
	}
	return schema, nil
}

// EnsureReplicaFile creates this node's on-disk file for a replica it owns
// on behalf of another node's partition, the first time a write for that
// owner arrives.
func (e *Engine) EnsureReplicaFile(keyspace, table string, ownerId clusterstate.NodeId) error {
	e.mu.RLock()
	schema, ok := e.tables[tableKey{keyspace: keyspace, table: table}]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("table %s.%s does not exist", keyspace, table)
	}
	if _, err := openCSVFile(e.nodeId, keyspace, table, ownerId); err == nil {
		return nil
	}
	_, err := createCSVFile(e.nodeId, keyspace, table, ownerId, schema.ColumnNames())
	return err
}

// Insert appends a new row (or overwrites the existing row with the same
// primary key, if present and this write's timestamp is not older than the
// stored one — a last-write-wins upsert) to the replica file owned by ownerId.
func (e *Engine) Insert(keyspace, table string, ownerId clusterstate.NodeId, values map[string]string, timestamp int64) error {
	schema, err := e.Schema(keyspace, table)
	if err != nil {
		return err
	}
	file, err := openCSVFile(e.nodeId, keyspace, table, ownerId)
	if err != nil {
		return err
	}
	rows, err := file.rows()
	if err != nil {
		return err
	}
	newRow := rowFromValues(schema, values, timestamp)

	replaced := false
	for i, row := range rows {
		if samePrimaryKey(schema, row, newRow) {
			if existingTimestamp(schema, row) > timestamp {
				return nil // a newer write already landed; keep it
			}
			rows[i] = newRow
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, newRow)
	}
	if err := file.rewrite(rows); err != nil {
		return err
	}
	e.indexPartitionValue(keyspace, table, partitionValue(schema, values))
	return nil
}

// Select scans a replica's rows, keeping only those matching every
// relation, then applies ORDER BY.
func (e *Engine) Select(keyspace, table string, ownerId clusterstate.NodeId, relations []Relation, orderBy []OrderTerm) ([]map[string]string, error) {
	schema, err := e.Schema(keyspace, table)
	if err != nil {
		return nil, err
	}
	file, err := openCSVFile(e.nodeId, keyspace, table, ownerId)
	if err != nil {
		return nil, err
	}
	rows, err := file.rows()
	if err != nil {
		return nil, err
	}

	var matched []map[string]string
	for _, row := range rows {
		ok, err := matches(schema, row, relations)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rowToValues(schema, row))
		}
	}
	sortRows(schema, matched, orderBy)
	return matched, nil
}

// Update rewrites matching rows' named columns, stamping the new values
// with timestamp.
func (e *Engine) Update(keyspace, table string, ownerId clusterstate.NodeId, assignments map[string]string, relations []Relation, timestamp int64) (int, error) {
	schema, err := e.Schema(keyspace, table)
	if err != nil {
		return 0, err
	}
	file, err := openCSVFile(e.nodeId, keyspace, table, ownerId)
	if err != nil {
		return 0, err
	}
	rows, err := file.rows()
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, row := range rows {
		ok, err := matches(schema, row, relations)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		for col, value := range assignments {
			idx := schema.ColumnIndex(col)
			if idx < 0 {
				return 0, fmt.Errorf("column %q does not exist on table %s.%s", col, keyspace, table)
			}
			row[idx] = value
		}
		row[len(row)-1] = fmt.Sprintf("%d", timestamp)
		rows[i] = row
		updated++
	}
	if updated > 0 {
		if err := file.rewrite(rows); err != nil {
			return 0, err
		}
	}
	return updated, nil
}

// Delete removes matching rows from the replica file.
func (e *Engine) Delete(keyspace, table string, ownerId clusterstate.NodeId, relations []Relation) (int, error) {
	schema, err := e.Schema(keyspace, table)
	if err != nil {
		return 0, err
	}
	file, err := openCSVFile(e.nodeId, keyspace, table, ownerId)
	if err != nil {
		return 0, err
	}
	rows, err := file.rows()
	if err != nil {
		return 0, err
	}

	var kept [][]string
	removed := 0
	for _, row := range rows {
		ok, err := matches(schema, row, relations)
		if err != nil {
			return 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	if removed > 0 {
		if err := file.rewrite(kept); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// Repair overwrites a replica file's rows wholesale with a read-repair
// result; mirrors original_source's repair_rows, which truncates and
// rewrites without merging.
func (e *Engine) Repair(keyspace, table string, ownerId clusterstate.NodeId, rows [][]string) error {
	if _, err := e.Schema(keyspace, table); err != nil {
		return err
	}
	file, err := openCSVFile(e.nodeId, keyspace, table, ownerId)
	if err != nil {
		if err := e.EnsureReplicaFile(keyspace, table, ownerId); err != nil {
			return err
		}
		file, err = openCSVFile(e.nodeId, keyspace, table, ownerId)
		if err != nil {
			return err
		}
	}
	return file.rewrite(rows)
}

// indexPartitionValue records a partition key value in the per-table index
// that PartitionValues reports; Select does not consult it.
func (e *Engine) indexPartitionValue(keyspace, table, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := tableKey{keyspace: keyspace, table: table}
	if e.partitions[key] == nil {
		e.partitions[key] = map[string]bool{}
	}
	e.partitions[key][value] = true
}

// Keyspaces returns a snapshot of every keyspace this node knows about,
// keyed by name, for building a metadata.Snapshot.
func (e *Engine) Keyspaces() map[string]Keyspace {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Keyspace, len(e.keyspaces))
	for name, ks := range e.keyspaces {
		out[name] = *ks
	}
	return out
}

// IndexPartitionValue records a partition-key value announced by a peer via
// AddPartitionValueToMetadata, the same index Insert maintains for its own
// writes.
func (e *Engine) IndexPartitionValue(keyspace, table, value string) {
	e.indexPartitionValue(keyspace, table, value)
}

// PartitionValues returns every distinct partition key value this node has
// indexed for a table.
func (e *Engine) PartitionValues(keyspace, table string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	values := e.partitions[tableKey{keyspace: keyspace, table: table}]
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func rowFromValues(schema *TableSchema, values map[string]string, timestamp int64) []string {
	row := make([]string, len(schema.Columns)+1)
	for i, col := range schema.Columns {
		row[i] = values[col.Name]
	}
	row[len(row)-1] = fmt.Sprintf("%d", timestamp)
	return row
}

// RowTimestampKey is the reserved key a row's trailing CSV timestamp field
// rides under in the map[string]string shape Select/Repair pass to callers
// and across the wire — the shape otherwise only carries schema columns, so
// read-repair and conflict resolution would have no way to see it.
const RowTimestampKey = "row_timestamp"

func rowToValues(schema *TableSchema, row []string) map[string]string {
	values := make(map[string]string, len(schema.Columns)+1)
	for i, col := range schema.Columns {
		if i < len(row) {
			values[col.Name] = row[i]
		}
	}
	if len(row) > 0 {
		values[RowTimestampKey] = row[len(row)-1]
	}
	return values
}

func existingTimestamp(schema *TableSchema, row []string) int64 {
	if len(row) == 0 {
		return 0
	}
	var ts int64
	fmt.Sscanf(row[len(row)-1], "%d", &ts)
	return ts
}

func samePrimaryKey(schema *TableSchema, a, b []string) bool {
	for _, name := range append(append([]string{}, schema.PrimaryKey.PartitionKeys...), schema.PrimaryKey.ClusteringKeys...) {
		idx := schema.ColumnIndex(name)
		if idx < 0 || idx >= len(a) || idx >= len(b) || a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// PartitionKeyValue computes the partition-key string a row's column values
// hash to — the same value Insert indexes under, exported so the
// coordinator can route a statement to its replica set before the row
// itself is ever written.
func PartitionKeyValue(schema *TableSchema, values map[string]string) string {
	return partitionValue(schema, values)
}

func partitionValue(schema *TableSchema, values map[string]string) string {
	parts := make([]string, 0, len(schema.PrimaryKey.PartitionKeys))
	for _, name := range schema.PrimaryKey.PartitionKeys {
		parts = append(parts, values[name])
	}
	return strings.Join(parts, ":")
}

func matches(schema *TableSchema, row []string, relations []Relation) (bool, error) {
	for _, rel := range relations {
		idx := schema.ColumnIndex(rel.Column)
		if idx < 0 {
			return false, fmt.Errorf("column %q does not exist", rel.Column)
		}
		if idx >= len(row) {
			return false, nil
		}
		ok, err := rel.Evaluate(row[idx], schema.Columns[idx].Type)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// OrderTerm is one ORDER BY clause element.
type OrderTerm struct {
	Column     string
	Descending bool
}

// SortRows applies an ORDER BY clause to an already-matched row set,
// exported so the coordinator can re-sort rows merged back together from
// more than one partition owner.
func SortRows(schema *TableSchema, rows []map[string]string, orderBy []OrderTerm) {
	sortRows(schema, rows, orderBy)
}

func sortRows(schema *TableSchema, rows []map[string]string, orderBy []OrderTerm) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range orderBy {
			left, right := rows[i][term.Column], rows[j][term.Column]
			if left == right {
				continue
			}
			if term.Descending {
				return left > right
			}
			return left < right
		}
		return false
	})
}
