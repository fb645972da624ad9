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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

func TestRowsOwnedByAndAdoptRowsRoundTrip(t *testing.T) {
	withTempWorkdir(t)
	source := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, source.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, source.CreateTable(testSchema(), false))
	require.NoError(t, source.EnsureReplicaFile("ks", "users", clusterstate.NodeId(2)))
	require.NoError(t, source.Insert("ks", "users", clusterstate.NodeId(2), map[string]string{"id": "1", "name": "ana"}, 1))

	manifest, err := source.RowsOwnedBy(clusterstate.NodeId(2))
	require.NoError(t, err)
	assert.NotEmpty(t, manifest)

	target := NewEngine(clusterstate.NodeId(2))
	require.NoError(t, target.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, target.CreateTable(testSchema(), false))
	require.NoError(t, target.AdoptRows(manifest))

	rows, err := target.Select("ks", "users", clusterstate.NodeId(2), nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana", rows[0]["name"])
}

func TestAllTableNames(t *testing.T) {
	withTempWorkdir(t)
	engine := NewEngine(clusterstate.NodeId(1))
	require.NoError(t, engine.CreateKeyspace(&Keyspace{Name: "ks", ReplicationFactor: 1}, false))
	require.NoError(t, engine.CreateTable(testSchema(), false))
	assert.Equal(t, []string{"ks.users"}, engine.AllTableNames())
}
