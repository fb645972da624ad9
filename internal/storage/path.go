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
	"path/filepath"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

const (
	// RootDir is where every node's storage tree lives, rooted at the
	// process's working directory like original_source's STORAGE_PATH.
	RootDir = "storage"
)

// NodeDir returns the storage directory for a given node id:
// storage/storage_node_{id}.
func NodeDir(id clusterstate.NodeId) string {
	return filepath.Join(RootDir, fmt.Sprintf("storage_node_%d", uint8(id)))
}

// KeyspaceDir returns storage/storage_node_{id}/{keyspace}.
func KeyspaceDir(nodeId clusterstate.NodeId, keyspace string) string {
	return filepath.Join(NodeDir(nodeId), keyspace)
}

// TableFilePath returns the CSV file a given node stores for its replica of
// one table: storage/storage_node_{id}/{keyspace}/{table}_replica_node_{ownerId}.csv.
// nodeId is whose disk the file lives on; ownerId is whose replica the rows
// in it belong to — they differ whenever a node hosts a replica it doesn't
// itself own by partition hash.
func TableFilePath(nodeId clusterstate.NodeId, keyspace, table string, ownerId clusterstate.NodeId) string {
	return filepath.Join(KeyspaceDir(nodeId, keyspace), fmt.Sprintf("%s_replica_node_%d.csv", table, uint8(ownerId)))
}
