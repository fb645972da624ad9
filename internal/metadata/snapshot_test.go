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

package metadata

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	snapshot := &Snapshot{
		Id:               clusterstate.NodeId(2),
		DefaultKeyspaces: map[string]string{"cassandra": "ks"},
		Keyspaces:        map[string]storage.Keyspace{"ks": {Name: "ks", ReplicationFactor: 3}},
		Tables: []TableSnapshot{{
			Keyspace:      "ks",
			Name:          "users",
			Columns:       []ColumnSnapshot{{Name: "id"}},
			PartitionKeys: []string{"id"},
		}},
	}
	require.NoError(t, Store(snapshot))

	loaded, err := Load(clusterstate.NodeId(2))
	require.NoError(t, err)
	assert.Equal(t, snapshot.Id, loaded.Id)
	assert.Equal(t, snapshot.Keyspaces["ks"].ReplicationFactor, loaded.Keyspaces["ks"].ReplicationFactor)
	require.Len(t, loaded.Tables, 1)
	assert.Equal(t, "users", loaded.Tables[0].Name)
}
