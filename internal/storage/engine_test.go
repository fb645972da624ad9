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
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

func testSchema() *TableSchema {
	return &TableSchema{
		Keyspace: "ks",
		Name:     "users",
		Columns: []ColumnSpec{
			{Name: "id", Type: primitive.DataTypeCodeInt},
			{Name: "name", Type: primitive.DataTypeCodeVarchar},
		},
		PrimaryKey: PrimaryKey{PartitionKeys: []string{"id"}},
	}
}

func withTempWorkdir(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
}

func TestCreateTableAndInsertSelect(t *testing.T) {
	withTempWorkdir(t)
	engine := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, engine.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, engine.CreateTable(testSchema(), false))

	require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": "1", "name": "ana"}, 100))
	require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": "2", "name": "bob"}, 101))

	rows, err := engine.Select("ks", "users", 1, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInsertUpsertKeepsNewerTimestamp(t *testing.T) {
	withTempWorkdir(t)
	engine := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, engine.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, engine.CreateTable(testSchema(), false))

	require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": "1", "name": "ana"}, 200))
	require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": "1", "name": "stale"}, 100))

	rows, err := engine.Select("ks", "users", 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana", rows[0]["name"])
}

func TestSelectWithWhereAndOrderBy(t *testing.T) {
	withTempWorkdir(t)
	engine := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, engine.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, engine.CreateTable(testSchema(), false))
	for i, name := range []string{"carl", "ana", "bob"} {
		require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": strconv.Itoa(i + 1), "name": name}, int64(i)))
	}

	rows, err := engine.Select("ks", "users", 1, []Relation{{Column: "id", Operator: OperatorGreater, Value: "1"}}, []OrderTerm{{Column: "name"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ana", rows[0]["name"])
	assert.Equal(t, "bob", rows[1]["name"])
}

func TestUpdateAndDelete(t *testing.T) {
	withTempWorkdir(t)
	engine := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, engine.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, engine.CreateTable(testSchema(), false))
	require.NoError(t, engine.Insert("ks", "users", 1, map[string]string{"id": "1", "name": "ana"}, 1))

	updated, err := engine.Update("ks", "users", 1, map[string]string{"name": "ana2"}, []Relation{{Column: "id", Operator: OperatorEqual, Value: "1"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	removed, err := engine.Delete("ks", "users", 1, []Relation{{Column: "id", Operator: OperatorEqual, Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	rows, err := engine.Select("ks", "users", 1, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
