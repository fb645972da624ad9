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

package actions

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// InternalQuery forwards a coordinator-issued write or read to the replica
// that owns it: a raw, already-encoded QUERY frame body plus the timestamp
// the coordinator assigned (so every replica converges on the same
// last-write-wins value) and the owning replica's node id.
type InternalQuery struct {
	QueryFrame []byte
	Timestamp  int64
	OwnerId    clusterstate.NodeId
}

func (q InternalQuery) Tag() Tag { return TagInternalQuery }
func (q InternalQuery) String() string {
	return fmt.Sprintf("INTERNAL_QUERY owner=%v ts=%d (%d bytes)", q.OwnerId, q.Timestamp, len(q.QueryFrame))
}

type internalQueryCodec struct{}

func (internalQueryCodec) Tag() Tag { return TagInternalQuery }

func (internalQueryCodec) Encode(action Action, dest io.Writer) error {
	q := action.(InternalQuery)
	if err := primitive.WriteBytes(q.QueryFrame, dest); err != nil {
		return err
	}
	if err := primitive.WriteLong(q.Timestamp, dest); err != nil {
		return err
	}
	return primitive.WriteByte(uint8(q.OwnerId), dest)
}

func (internalQueryCodec) Decode(source io.Reader) (Action, error) {
	frame, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, err
	}
	ts, err := primitive.ReadLong(source)
	if err != nil {
		return nil, err
	}
	ownerByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	return InternalQuery{QueryFrame: frame, Timestamp: ts, OwnerId: clusterstate.NodeId(ownerByte)}, nil
}

// StoreMetadata tells a node to flush its in-memory keyspace/table metadata
// to its nodes_metadata/metadata_node_{id}.json snapshot. The Beater does
// not send it: its slower-period flush calls the node's snapshot callback
// directly, and a node receiving this action writes the same snapshot.
// Empty body.
type StoreMetadata struct{}

func (StoreMetadata) Tag() Tag      { return TagStoreMetadata }
func (StoreMetadata) String() string { return "STORE_METADATA" }

type storeMetadataCodec struct{}

func (storeMetadataCodec) Tag() Tag                        { return TagStoreMetadata }
func (storeMetadataCodec) Encode(Action, io.Writer) error  { return nil }
func (storeMetadataCodec) Decode(io.Reader) (Action, error) { return StoreMetadata{}, nil }

// DirectReadRequest asks a specific replica (ownerId) to execute a SELECT and
// return its full row set — used for the replica a read-repair diffs
// everyone else against.
type DirectReadRequest struct {
	QueryFrame []byte
	OwnerId    clusterstate.NodeId
}

func (r DirectReadRequest) Tag() Tag { return TagDirectReadRequest }
func (r DirectReadRequest) String() string {
	return fmt.Sprintf("DIRECT_READ_REQUEST owner=%v (%d bytes)", r.OwnerId, len(r.QueryFrame))
}

type directReadRequestCodec struct{}

func (directReadRequestCodec) Tag() Tag { return TagDirectReadRequest }

func (directReadRequestCodec) Encode(action Action, dest io.Writer) error {
	r := action.(DirectReadRequest)
	if err := primitive.WriteBytes(r.QueryFrame, dest); err != nil {
		return err
	}
	return primitive.WriteByte(uint8(r.OwnerId), dest)
}

func (directReadRequestCodec) Decode(source io.Reader) (Action, error) {
	frame, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, err
	}
	ownerByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	return DirectReadRequest{QueryFrame: frame, OwnerId: clusterstate.NodeId(ownerByte)}, nil
}

// DigestReadRequest asks a replica to execute a SELECT and return only a
// digest of the result, not the rows themselves — cheaper fan-out to the
// non-authoritative replicas in a read-repair round.
type DigestReadRequest struct {
	QueryFrame []byte
}

func (r DigestReadRequest) Tag() Tag       { return TagDigestReadRequest }
func (r DigestReadRequest) String() string { return fmt.Sprintf("DIGEST_READ_REQUEST (%d bytes)", len(r.QueryFrame)) }

type digestReadRequestCodec struct{}

func (digestReadRequestCodec) Tag() Tag { return TagDigestReadRequest }

func (digestReadRequestCodec) Encode(action Action, dest io.Writer) error {
	return primitive.WriteBytes(action.(DigestReadRequest).QueryFrame, dest)
}

func (digestReadRequestCodec) Decode(source io.Reader) (Action, error) {
	frame, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, err
	}
	return DigestReadRequest{QueryFrame: frame}, nil
}

// RepairRows pushes the rows a read-repair round determined a replica was
// missing or had stale, directly into that replica's CSV file for the named
// table.
type RepairRows struct {
	Table   string
	OwnerId clusterstate.NodeId
	Rows    []byte
}

func (r RepairRows) Tag() Tag { return TagRepairRows }
func (r RepairRows) String() string {
	return fmt.Sprintf("REPAIR_ROWS table=%v owner=%v (%d bytes)", r.Table, r.OwnerId, len(r.Rows))
}

type repairRowsCodec struct{}

func (repairRowsCodec) Tag() Tag { return TagRepairRows }

func (repairRowsCodec) Encode(action Action, dest io.Writer) error {
	r := action.(RepairRows)
	if err := primitive.WriteString(r.Table, dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(r.OwnerId), dest); err != nil {
		return err
	}
	return primitive.WriteBytes(r.Rows, dest)
}

func (repairRowsCodec) Decode(source io.Reader) (Action, error) {
	table, err := primitive.ReadString(source)
	if err != nil {
		return nil, err
	}
	ownerByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	rows, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, err
	}
	return RepairRows{Table: table, OwnerId: clusterstate.NodeId(ownerByte), Rows: rows}, nil
}

// AddPartitionValueToMetadata records a partition-key value seen on a write
// into the owning table's partition index, so a later SELECT on that key
// can be routed without scanning every replica file.
type AddPartitionValueToMetadata struct {
	Table  string
	Values []string
}

func (a AddPartitionValueToMetadata) Tag() Tag { return TagAddPartitionValueToMetadata }
func (a AddPartitionValueToMetadata) String() string {
	return fmt.Sprintf("ADD_PARTITION_VALUE_TO_METADATA table=%v values=%v", a.Table, a.Values)
}

type addPartitionValueToMetadataCodec struct{}

func (addPartitionValueToMetadataCodec) Tag() Tag { return TagAddPartitionValueToMetadata }

func (addPartitionValueToMetadataCodec) Encode(action Action, dest io.Writer) error {
	a := action.(AddPartitionValueToMetadata)
	if err := primitive.WriteString(a.Table, dest); err != nil {
		return err
	}
	return primitive.WriteStringList(a.Values, dest)
}

func (addPartitionValueToMetadataCodec) Decode(source io.Reader) (Action, error) {
	table, err := primitive.ReadString(source)
	if err != nil {
		return nil, err
	}
	values, err := primitive.ReadStringList(source)
	if err != nil {
		return nil, err
	}
	return AddPartitionValueToMetadata{Table: table, Values: values}, nil
}
