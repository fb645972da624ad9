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

package cqlstmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/storage"
)

func TestParseCreateKeyspace(t *testing.T) {
	stmt, err := Parse("CREATE KEYSPACE IF NOT EXISTS ks WITH REPLICATION = {'class':'SimpleStrategy','replication_factor':3}")
	require.NoError(t, err)
	ck, ok := stmt.(CreateKeyspace)
	require.True(t, ok)
	assert.Equal(t, "ks", ck.Name)
	assert.Equal(t, 3, ck.ReplicationFactor)
	assert.True(t, ck.IfNotExists)
}

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE ks.users (id int, name varchar, PRIMARY KEY (id))")
	require.NoError(t, err)
	ct, ok := stmt.(CreateTable)
	require.True(t, ok)
	assert.Equal(t, "ks", ct.Keyspace)
	assert.Equal(t, "users", ct.Table)
	require.Len(t, ct.Columns, 2)
	assert.Equal(t, []string{"id"}, ct.PrimaryKey.PartitionKeys)
}

func TestParseCreateTableCompositePrimaryKey(t *testing.T) {
	stmt, err := Parse("CREATE TABLE ks.events (id int, ts timestamp, payload varchar, PRIMARY KEY ((id), ts))")
	require.NoError(t, err)
	ct := stmt.(CreateTable)
	assert.Equal(t, []string{"id"}, ct.PrimaryKey.PartitionKeys)
	assert.Equal(t, []string{"ts"}, ct.PrimaryKey.ClusteringKeys)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO ks.users (id, name) VALUES (1, 'ana')")
	require.NoError(t, err)
	ins := stmt.(Insert)
	assert.Equal(t, "ks", ins.Keyspace)
	assert.Equal(t, "1", ins.Values["id"])
	assert.Equal(t, "ana", ins.Values["name"])
}

func TestParseSelectWithWhereAndOrderBy(t *testing.T) {
	stmt, err := Parse("SELECT * FROM ks.users WHERE id > 1 AND name != 'bob' ORDER BY name DESC")
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Len(t, sel.Relations, 2)
	assert.Equal(t, storage.OperatorGreater, sel.Relations[0].Operator)
	assert.Equal(t, storage.OperatorNotEqual, sel.Relations[1].Operator)
	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Descending)
}

func TestParseUpdateAndDelete(t *testing.T) {
	upd, err := Parse("UPDATE ks.users SET name = 'carl' WHERE id = 1")
	require.NoError(t, err)
	u := upd.(Update)
	assert.Equal(t, "carl", u.Assignments["name"])

	del, err := Parse("DELETE FROM ks.users WHERE id = 1")
	require.NoError(t, err)
	d := del.(Delete)
	require.Len(t, d.Relations, 1)
}

func TestParseAlterTableAddAndDrop(t *testing.T) {
	add, err := Parse("ALTER TABLE ks.users ADD age int")
	require.NoError(t, err)
	a := add.(AlterTableAdd)
	assert.Equal(t, "age", a.Column.Name)

	drop, err := Parse("ALTER TABLE ks.users DROP age")
	require.NoError(t, err)
	dr := drop.(AlterTableDrop)
	assert.Equal(t, "age", dr.Column)
}

func TestParseDropTableIfExists(t *testing.T) {
	stmt, err := Parse("DROP TABLE IF EXISTS ks.users")
	require.NoError(t, err)
	dt := stmt.(DropTable)
	assert.True(t, dt.IfExists)
	assert.Equal(t, "users", dt.Table)
}

func TestParseUse(t *testing.T) {
	stmt, err := Parse("USE ks")
	require.NoError(t, err)
	assert.Equal(t, "ks", stmt.(Use).Keyspace)
}
