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

// Package coordinator turns a parsed CQL statement into local storage calls
// and, for anything that touches more than one node, into actions sent to
// peers: DDL broadcasts to the whole ring, writes fanned out to a
// partition's replica set, and reads gathered from enough replicas to
// satisfy a consistency level, with a read-repair nudge for any replica
// that falls behind. Replica placement is a ring over registry.Registry's
// sorted node ids, the same ring membership.Manager walks for handoff — the
// FNV-32a hash of a partition value modulo the node count picks the owner,
// and the owner's RF-1
// successors on the ring are its followers, mirroring
// original_source's get_nodes_responsible_for_writing/reading.
package coordinator

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/cqlstmt"
	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/protoerr"
	"github.com/ringkeeper/cqlstore/internal/registry"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

// Transport delivers actions to a peer node over the private port.
// Implemented by internal/node once it owns a live connection per peer.
// Unicast is fire-and-forget (DDL broadcast, write fan-out, repair);
// Request waits for a reply (direct and digest reads).
type Transport interface {
	Unicast(ctx context.Context, peer clusterstate.NodeId, action actions.Action) error
	Request(ctx context.Context, peer clusterstate.NodeId, action actions.Action) (actions.Action, error)
}

// Coordinator plans and executes one node's share of CQL statements.
type Coordinator struct {
	nodeId    clusterstate.NodeId
	registry  *registry.Registry
	engine    *storage.Engine
	transport Transport
}

func New(nodeId clusterstate.NodeId, reg *registry.Registry, engine *storage.Engine, transport Transport) *Coordinator {
	return &Coordinator{nodeId: nodeId, registry: reg, engine: engine, transport: transport}
}

// Execute parses queryText and runs it to completion, returning the RESULT
// body a session handler should send back to the client.
func (c *Coordinator) Execute(ctx context.Context, queryText string, cl primitive.ConsistencyLevel) (*message.Result, error) {
	stmt, err := cqlstmt.Parse(queryText)
	if err != nil {
		return nil, &protoerr.SyntaxError{Text: err.Error()}
	}
	switch s := stmt.(type) {
	case cqlstmt.Use:
		return message.NewSetKeyspaceResult(s.Keyspace), nil
	case cqlstmt.Insert:
		return c.executeInsert(ctx, s, queryText, cl)
	case cqlstmt.Update:
		return c.executeUpdate(ctx, s, queryText, cl)
	case cqlstmt.Delete:
		return c.executeDelete(ctx, s, queryText, cl)
	case cqlstmt.Select:
		return c.executeSelect(ctx, s, cl)
	default:
		return c.executeDDL(ctx, stmt, queryText)
	}
}

// ApplyForwarded runs a statement an InternalQuery action carried from the
// coordinating node, writing to this node's own replica file for ownerId
// rather than re-planning a replica set — the replica set was already
// decided by whichever node coordinated the original request.
func (c *Coordinator) ApplyForwarded(action actions.InternalQuery) error {
	queryText, err := DecodeQueryText(action.QueryFrame)
	if err != nil {
		return err
	}
	stmt, err := cqlstmt.Parse(queryText)
	if err != nil {
		return err
	}
	switch s := stmt.(type) {
	case cqlstmt.Insert:
		if err := c.engine.EnsureReplicaFile(s.Keyspace, s.Table, action.OwnerId); err != nil {
			return err
		}
		return c.engine.Insert(s.Keyspace, s.Table, action.OwnerId, s.Values, action.Timestamp)
	case cqlstmt.Update:
		_, err := c.engine.Update(s.Keyspace, s.Table, action.OwnerId, s.Assignments, s.Relations, action.Timestamp)
		return err
	case cqlstmt.Delete:
		_, err := c.engine.Delete(s.Keyspace, s.Table, action.OwnerId, s.Relations)
		return err
	default:
		return c.applyDDL(stmt)
	}
}

// applyDDL runs one of the schema-change statement kinds against this
// node's own engine. Used both for a locally coordinated DDL statement and
// for one forwarded from the node that coordinated it.
func (c *Coordinator) applyDDL(stmt cqlstmt.Statement) error {
	switch s := stmt.(type) {
	case cqlstmt.CreateKeyspace:
		return c.engine.CreateKeyspace(&storage.Keyspace{Name: s.Name, ReplicationFactor: s.ReplicationFactor}, s.IfNotExists)
	case cqlstmt.AlterKeyspace:
		return c.engine.AlterKeyspace(s.Name, s.ReplicationFactor)
	case cqlstmt.DropKeyspace:
		return c.engine.DropKeyspace(s.Name, s.IfExists)
	case cqlstmt.CreateTable:
		schema := &storage.TableSchema{Keyspace: s.Keyspace, Name: s.Table, Columns: s.Columns, PrimaryKey: s.PrimaryKey}
		return c.engine.CreateTable(schema, s.IfNotExists)
	case cqlstmt.AlterTableAdd:
		return c.engine.AddColumn(s.Keyspace, s.Table, s.Column)
	case cqlstmt.AlterTableDrop:
		return c.engine.DropColumn(s.Keyspace, s.Table, s.Column)
	case cqlstmt.DropTable:
		return c.engine.DropTable(s.Keyspace, s.Table, s.IfExists)
	}
	return fmt.Errorf("not a DDL statement: kind %v", stmt.Kind())
}

func (c *Coordinator) executeDDL(ctx context.Context, stmt cqlstmt.Statement, queryText string) (*message.Result, error) {
	if err := c.applyDDL(stmt); err != nil {
		return nil, translateDDLError(stmt, err)
	}
	frame, err := encodeQueryFrame(queryText, primitive.ConsistencyLevelOne)
	if err != nil {
		return nil, err
	}
	for _, peer := range c.registry.NodeIds() {
		if peer == c.nodeId {
			continue
		}
		action := actions.InternalQuery{QueryFrame: frame, OwnerId: peer}
		if err := c.transport.Unicast(ctx, peer, action); err != nil {
			log.Warn().Err(err).Msgf("coordinator: node %v could not broadcast DDL to peer %v", c.nodeId, peer)
		}
	}
	return message.NewVoidResult(), nil
}

// translateDDLError maps an engine conflict into the wire-facing kind a
// client expects; applyDDL's engine errors are only ever a same-name
// conflict or a missing keyspace/table, since IfExists/IfNotExists already
// short-circuit to a nil error.
func translateDDLError(stmt cqlstmt.Statement, err error) error {
	switch s := stmt.(type) {
	case cqlstmt.CreateKeyspace:
		return &protoerr.AlreadyExistsError{Keyspace: s.Name}
	case cqlstmt.CreateTable:
		return &protoerr.AlreadyExistsError{Keyspace: s.Keyspace, Table: s.Table}
	case cqlstmt.AlterKeyspace:
		return &protoerr.NotFoundError{Keyspace: s.Name}
	case cqlstmt.DropKeyspace:
		return &protoerr.NotFoundError{Keyspace: s.Name}
	case cqlstmt.AlterTableAdd:
		return &protoerr.NotFoundError{Keyspace: s.Keyspace, Table: s.Table}
	case cqlstmt.AlterTableDrop:
		return &protoerr.NotFoundError{Keyspace: s.Keyspace, Table: s.Table}
	case cqlstmt.DropTable:
		return &protoerr.NotFoundError{Keyspace: s.Keyspace, Table: s.Table}
	}
	return err
}

func (c *Coordinator) executeInsert(ctx context.Context, s cqlstmt.Insert, queryText string, cl primitive.ConsistencyLevel) (*message.Result, error) {
	schema, ks, err := c.lookupTable(s.Keyspace, s.Table)
	if err != nil {
		return nil, err
	}
	owner := c.ownerForPartition(storage.PartitionKeyValue(schema, s.Values))
	replicas := c.replicaSetForOwner(owner, ks.ReplicationFactor)
	timestamp := time.Now().UnixMicro()
	acks, err := c.fanOutWrite(ctx, replicas, queryText, timestamp, func(ownerId clusterstate.NodeId) error {
		if err := c.engine.EnsureReplicaFile(s.Keyspace, s.Table, ownerId); err != nil {
			return err
		}
		return c.engine.Insert(s.Keyspace, s.Table, ownerId, s.Values, timestamp)
	})
	if err != nil {
		return nil, err
	}
	c.announcePartitionValue(ctx, s.Keyspace, s.Table, replicas, partitionKeyColumnValues(schema, s.Values))
	return c.writeResult(cl, len(replicas), acks, false)
}

func (c *Coordinator) executeUpdate(ctx context.Context, s cqlstmt.Update, queryText string, cl primitive.ConsistencyLevel) (*message.Result, error) {
	schema, ks, err := c.lookupTable(s.Keyspace, s.Table)
	if err != nil {
		return nil, err
	}
	value, ok := partitionValueFromRelations(schema, s.Relations)
	if !ok {
		return nil, &protoerr.SyntaxError{Text: "UPDATE requires every partition key column in the WHERE clause"}
	}
	owner := c.ownerForPartition(value)
	replicas := c.replicaSetForOwner(owner, ks.ReplicationFactor)
	timestamp := time.Now().UnixMicro()
	acks, err := c.fanOutWrite(ctx, replicas, queryText, timestamp, func(ownerId clusterstate.NodeId) error {
		_, err := c.engine.Update(s.Keyspace, s.Table, ownerId, s.Assignments, s.Relations, timestamp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.writeResult(cl, len(replicas), acks, false)
}

func (c *Coordinator) executeDelete(ctx context.Context, s cqlstmt.Delete, queryText string, cl primitive.ConsistencyLevel) (*message.Result, error) {
	schema, ks, err := c.lookupTable(s.Keyspace, s.Table)
	if err != nil {
		return nil, err
	}
	value, ok := partitionValueFromRelations(schema, s.Relations)
	if !ok {
		return nil, &protoerr.SyntaxError{Text: "DELETE requires every partition key column in the WHERE clause"}
	}
	owner := c.ownerForPartition(value)
	replicas := c.replicaSetForOwner(owner, ks.ReplicationFactor)
	timestamp := time.Now().UnixMicro()
	acks, err := c.fanOutWrite(ctx, replicas, queryText, timestamp, func(ownerId clusterstate.NodeId) error {
		_, err := c.engine.Delete(s.Keyspace, s.Table, ownerId, s.Relations)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.writeResult(cl, len(replicas), acks, false)
}

func (c *Coordinator) writeResult(cl primitive.ConsistencyLevel, rf, acks int, read bool) (*message.Result, error) {
	required := cl.RequiredAcks(rf)
	if acks < required {
		return nil, &protoerr.TimeoutError{Consistency: cl, Received: int32(acks), BlockFor: int32(required), Read: read}
	}
	return message.NewVoidResult(), nil
}

func (c *Coordinator) lookupTable(keyspace, table string) (*storage.TableSchema, *storage.Keyspace, error) {
	schema, err := c.engine.Schema(keyspace, table)
	if err != nil {
		return nil, nil, &protoerr.NotFoundError{Keyspace: keyspace, Table: table}
	}
	ks, err := c.engine.Keyspace(keyspace)
	if err != nil {
		return nil, nil, &protoerr.NotFoundError{Keyspace: keyspace}
	}
	return schema, ks, nil
}

// fanOutWrite applies a write locally on every replica this node itself
// is, and forwards the original statement as an InternalQuery to every
// other replica. Returns how many replicas acknowledged.
func (c *Coordinator) fanOutWrite(ctx context.Context, replicas []clusterstate.NodeId, queryText string, timestamp int64, applyLocal func(clusterstate.NodeId) error) (int, error) {
	frame, err := encodeQueryFrame(queryText, primitive.ConsistencyLevelOne)
	if err != nil {
		return 0, err
	}
	acks := 0
	for _, replica := range replicas {
		if replica == c.nodeId {
			if err := applyLocal(replica); err != nil {
				log.Warn().Err(err).Msgf("coordinator: node %v failed local write for replica %v", c.nodeId, replica)
				continue
			}
			acks++
			continue
		}
		action := actions.InternalQuery{QueryFrame: frame, Timestamp: timestamp, OwnerId: replica}
		if err := c.transport.Unicast(ctx, replica, action); err != nil {
			log.Warn().Err(err).Msgf("coordinator: node %v could not forward write to replica %v", c.nodeId, replica)
			continue
		}
		acks++
	}
	return acks, nil
}

// announcePartitionValue tells every node id outside replicas about a new
// partition-key value via AddPartitionValueToMetadata, so a node that will
// never hold the row itself still indexes the partition key for routing an
// unrestricted scan.
func (c *Coordinator) announcePartitionValue(ctx context.Context, keyspace, table string, replicas []clusterstate.NodeId, keyValues []string) {
	inReplicaSet := make(map[clusterstate.NodeId]bool, len(replicas))
	for _, id := range replicas {
		inReplicaSet[id] = true
	}
	joined := strings.Join(keyValues, ":")
	action := actions.AddPartitionValueToMetadata{Table: keyspace + "." + table, Values: keyValues}
	for _, id := range c.registry.NodeIds() {
		if inReplicaSet[id] {
			continue
		}
		if id == c.nodeId {
			c.engine.IndexPartitionValue(keyspace, table, joined)
			continue
		}
		if err := c.transport.Unicast(ctx, id, action); err != nil {
			log.Warn().Err(err).Msgf("coordinator: node %v could not announce partition value to %v", c.nodeId, id)
		}
	}
}

// partitionKeyColumnValues extracts a row's partition-key columns in schema
// order, the shape AddPartitionValueToMetadata carries across the wire.
func partitionKeyColumnValues(schema *storage.TableSchema, values map[string]string) []string {
	parts := make([]string, 0, len(schema.PrimaryKey.PartitionKeys))
	for _, name := range schema.PrimaryKey.PartitionKeys {
		parts = append(parts, values[name])
	}
	return parts
}

func (c *Coordinator) executeSelect(ctx context.Context, s cqlstmt.Select, cl primitive.ConsistencyLevel) (*message.Result, error) {
	schema, ks, err := c.lookupTable(s.Keyspace, s.Table)
	if err != nil {
		return nil, err
	}
	owners := c.ownersForSelect(schema, s.Relations)
	required := cl.RequiredAcks(ks.ReplicationFactor)

	var merged []map[string]string
	seen := map[string]bool{}
	minAcks := -1
	for _, owner := range owners {
		replicas := c.replicaSetForOwner(owner, ks.ReplicationFactor)
		rows, acks, err := c.readReplicaSet(ctx, s.Keyspace, s.Table, replicas, s.Relations, s.OrderBy, cl)
		if err != nil {
			return nil, err
		}
		if minAcks == -1 || acks < minAcks {
			minAcks = acks
		}
		for _, row := range rows {
			key := rowIdentity(schema, row)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, row)
		}
	}
	if minAcks == -1 {
		minAcks = 0
	}
	if minAcks < required {
		return nil, &protoerr.TimeoutError{Consistency: cl, Received: int32(minAcks), BlockFor: int32(required), Read: true}
	}
	storage.SortRows(schema, merged, s.OrderBy)
	return rowsToResult(schema, merged)
}

// readReplicaSet gathers a partition's rows from as many of replicas as it
// can reach. For CL>1 it only pays for a full row transfer from the first
// reachable replica, checking the rest with a cheap DigestReadRequest and
// falling back to a full DirectReadRequest only on mismatch. Replies are
// then grouped by primary key and, for each key, the row carrying the
// strictly greatest row_timestamp wins — the same per-row merge decision
// original_source's get_most_recent_rows_as_string makes before repair_rows
// overwrites a stale or divergent replica wholesale with the merged result.
func (c *Coordinator) readReplicaSet(ctx context.Context, keyspace, table string, replicas []clusterstate.NodeId, relations []storage.Relation, orderBy []storage.OrderTerm, cl primitive.ConsistencyLevel) ([]map[string]string, int, error) {
	type reply struct {
		replica clusterstate.NodeId
		rows    []map[string]string
	}
	var replies []reply
	var primaryRows []map[string]string
	var primaryDigest []byte
	havePrimary := false
	useDigest := cl.RequiredAcks(len(replicas)) > 1

	for _, replica := range replicas {
		var rows []map[string]string
		var err error
		switch {
		case replica == c.nodeId:
			rows, err = c.engine.Select(keyspace, table, replica, relations, orderBy)
		case useDigest && havePrimary:
			rows, err = c.digestOrFullSelect(ctx, replica, keyspace, table, relations, orderBy, primaryRows, primaryDigest)
		default:
			rows, err = c.remoteSelect(ctx, replica, keyspace, table, relations, orderBy)
		}
		if err != nil {
			log.Warn().Err(err).Msgf("coordinator: node %v could not read replica %v", c.nodeId, replica)
			continue
		}
		replies = append(replies, reply{replica: replica, rows: rows})
		if !havePrimary {
			primaryRows = rows
			if digest, derr := rowDigest(rows); derr == nil {
				primaryDigest = digest
			}
			havePrimary = true
		}
	}
	if len(replies) == 0 {
		return nil, 0, nil
	}

	schema, err := c.engine.Schema(keyspace, table)
	if err != nil {
		return nil, 0, err
	}

	winners := map[string]map[string]string{}
	for _, r := range replies {
		for _, row := range r.rows {
			key := rowIdentity(schema, row)
			if existing, ok := winners[key]; !ok || rowTimestamp(row) > rowTimestamp(existing) {
				winners[key] = row
			}
		}
	}
	merged := make([]map[string]string, 0, len(winners))
	for _, row := range winners {
		merged = append(merged, row)
	}

	for _, r := range replies {
		if replicaNeedsRepair(schema, r.rows, winners) {
			c.repair(ctx, keyspace, table, r.replica, merged)
		}
	}
	return merged, len(replies), nil
}

// replicaNeedsRepair reports whether a replica's own rows diverge from the
// merge winners, either by missing a row entirely or by holding a row whose
// timestamp doesn't match the winning one for that primary key.
func replicaNeedsRepair(schema *storage.TableSchema, rows []map[string]string, winners map[string]map[string]string) bool {
	if len(rows) != len(winners) {
		return true
	}
	for _, row := range rows {
		winner, ok := winners[rowIdentity(schema, row)]
		if !ok || rowTimestamp(row) != rowTimestamp(winner) {
			return true
		}
	}
	return false
}

// rowTimestamp parses the reserved row_timestamp field Select/Repair carry
// alongside a row's column values.
func rowTimestamp(row map[string]string) int64 {
	var ts int64
	fmt.Sscanf(row[storage.RowTimestampKey], "%d", &ts)
	return ts
}

func (c *Coordinator) remoteSelect(ctx context.Context, replica clusterstate.NodeId, keyspace, table string, relations []storage.Relation, orderBy []storage.OrderTerm) ([]map[string]string, error) {
	queryText := selectQueryText(keyspace, table, relations, orderBy)
	frame, err := encodeQueryFrame(queryText, primitive.ConsistencyLevelOne)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Request(ctx, replica, actions.DirectReadRequest{QueryFrame: frame, OwnerId: replica})
	if err != nil {
		return nil, err
	}
	rr, ok := resp.(actions.RepairRows)
	if !ok {
		return nil, fmt.Errorf("unexpected response to direct read from replica %v: %T", replica, resp)
	}
	var rows []map[string]string
	if err := json.Unmarshal(rr.Rows, &rows); err != nil {
		return nil, fmt.Errorf("decode rows from replica %v: %w", replica, err)
	}
	return rows, nil
}

// digestOrFullSelect asks replica for a digest of its rows first and only
// pays for a full DirectReadRequest when the digest disagrees with
// primaryRows — the CL>1 digest-comparison path a SELECT above consistency
// level ONE uses to detect a divergent replica before paying for its full
// row transfer.
func (c *Coordinator) digestOrFullSelect(ctx context.Context, replica clusterstate.NodeId, keyspace, table string, relations []storage.Relation, orderBy []storage.OrderTerm, primaryRows []map[string]string, primaryDigest []byte) ([]map[string]string, error) {
	queryText := selectQueryText(keyspace, table, relations, orderBy)
	frame, err := encodeQueryFrame(queryText, primitive.ConsistencyLevelOne)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Request(ctx, replica, actions.DigestReadRequest{QueryFrame: frame})
	if err != nil {
		return nil, err
	}
	rr, ok := resp.(actions.RepairRows)
	if !ok {
		return nil, fmt.Errorf("unexpected response to digest read from replica %v: %T", replica, resp)
	}
	if primaryDigest != nil && bytes.Equal(rr.Rows, primaryDigest) {
		return primaryRows, nil
	}
	return c.remoteSelect(ctx, replica, keyspace, table, relations, orderBy)
}

// rowDigest is the same cheap fingerprint internal/node's
// handleDigestReadRequest computes on the receiving side, so the two sides
// agree on what "matching" means.
func rowDigest(rows []map[string]string) ([]byte, error) {
	encoded, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows for digest: %w", err)
	}
	return []byte(fmt.Sprintf("%d:%x", len(rows), fnv32(encoded))), nil
}

func fnv32(data []byte) uint32 {
	const offset32, prime32 = 2166136261, 16777619
	hash := uint32(offset32)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= prime32
	}
	return hash
}

func (c *Coordinator) repair(ctx context.Context, keyspace, table string, replica clusterstate.NodeId, rows []map[string]string) {
	payload, err := json.Marshal(rows)
	if err != nil {
		log.Warn().Err(err).Msg("coordinator: could not marshal repair payload")
		return
	}
	action := actions.RepairRows{Table: keyspace + "." + table, OwnerId: replica, Rows: payload}
	if err := c.transport.Unicast(ctx, replica, action); err != nil {
		log.Warn().Err(err).Msgf("coordinator: node %v could not repair replica %v", c.nodeId, replica)
	}
}

// ownerForPartition hashes a partition value onto the ring, picking the
// node id that owns writes for it.
func (c *Coordinator) ownerForPartition(partitionValue string) clusterstate.NodeId {
	ids := c.registry.NodeIds()
	h := fnv.New32a()
	_, _ = h.Write([]byte(partitionValue))
	return ids[int(h.Sum32())%len(ids)]
}

// replicaSetForOwner walks the ring forward from a partition's owner,
// collecting rf node ids total — the owner plus its rf-1 successors.
func (c *Coordinator) replicaSetForOwner(owner clusterstate.NodeId, rf int) []clusterstate.NodeId {
	if rf > c.registry.Size() {
		rf = c.registry.Size()
	}
	ids := make([]clusterstate.NodeId, 0, rf)
	current := owner
	for i := 0; i < rf; i++ {
		ids = append(ids, current)
		current = c.registry.Next(current)
	}
	return ids
}

// ownersForSelect picks the single partition owner a WHERE clause pins, or
// every node id in the ring if it leaves the partition key unrestricted —
// an unrestricted scan has to ask every node for whatever it owns.
func (c *Coordinator) ownersForSelect(schema *storage.TableSchema, relations []storage.Relation) []clusterstate.NodeId {
	if value, ok := partitionValueFromRelations(schema, relations); ok {
		return []clusterstate.NodeId{c.ownerForPartition(value)}
	}
	return c.registry.NodeIds()
}

// partitionValueFromRelations extracts a partition key value from a WHERE
// clause's equality relations, reporting false if any partition key column
// was left unrestricted.
func partitionValueFromRelations(schema *storage.TableSchema, relations []storage.Relation) (string, bool) {
	values := make(map[string]string, len(relations))
	for _, rel := range relations {
		if rel.Operator == storage.OperatorEqual {
			values[rel.Column] = rel.Value
		}
	}
	for _, pk := range schema.PrimaryKey.PartitionKeys {
		if _, ok := values[pk]; !ok {
			return "", false
		}
	}
	return storage.PartitionKeyValue(schema, values), true
}

// rowIdentity is a row's full primary key, used to de-duplicate rows seen
// from more than one partition owner during an unrestricted scan.
func rowIdentity(schema *storage.TableSchema, row map[string]string) string {
	parts := make([]string, 0, len(schema.PrimaryKey.PartitionKeys)+len(schema.PrimaryKey.ClusteringKeys))
	for _, name := range schema.PrimaryKey.PartitionKeys {
		parts = append(parts, row[name])
	}
	for _, name := range schema.PrimaryKey.ClusteringKeys {
		parts = append(parts, row[name])
	}
	return fmt.Sprintf("%v", parts)
}

// selectQueryText re-renders a parsed Select back into CQL text for
// forwarding to a remote replica — relations and ORDER BY only, since that
// is all the receiving node needs to answer a direct read.
func selectQueryText(keyspace, table string, relations []storage.Relation, orderBy []storage.OrderTerm) string {
	text := fmt.Sprintf("SELECT * FROM %s.%s", keyspace, table)
	for i, rel := range relations {
		if i == 0 {
			text += " WHERE "
		} else {
			text += " AND "
		}
		text += fmt.Sprintf("%s %s '%s'", rel.Column, rel.Operator, rel.Value)
	}
	for i, term := range orderBy {
		if i == 0 {
			text += " ORDER BY "
		} else {
			text += ", "
		}
		text += term.Column
		if term.Descending {
			text += " DESC"
		}
	}
	return text
}

func encodeQueryFrame(queryText string, cl primitive.ConsistencyLevel) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := message.DefaultRegistry().Encode(&message.Query{QueryText: queryText, Consistency: cl}, buf); err != nil {
		return nil, fmt.Errorf("encode forwarded query: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeQueryText reverses encodeQueryFrame. internal/node uses it to
// recover the CQL text carried by an InternalQuery, DirectReadRequest or
// DigestReadRequest action's QueryFrame.
func DecodeQueryText(frame []byte) (string, error) {
	msg, err := message.DefaultRegistry().Decode(primitive.OpCodeQuery, bytes.NewReader(frame))
	if err != nil {
		return "", fmt.Errorf("decode forwarded query: %w", err)
	}
	q, ok := msg.(*message.Query)
	if !ok {
		return "", fmt.Errorf("decode forwarded query: expected *message.Query, got %T", msg)
	}
	return q.QueryText, nil
}

func rowsToResult(schema *storage.TableSchema, rows []map[string]string) (*message.Result, error) {
	columns := make([]message.ColumnSpec, len(schema.Columns))
	for i, col := range schema.Columns {
		columns[i] = message.ColumnSpec{Name: col.Name, Type: col.Type}
	}
	wireRows := make([][][]byte, len(rows))
	for r, row := range rows {
		cells := make([][]byte, len(schema.Columns))
		for i, col := range schema.Columns {
			cell, err := cellBytes(col.Type, row[col.Name])
			if err != nil {
				return nil, err
			}
			cells[i] = cell
		}
		wireRows[r] = cells
	}
	return message.NewRowsResult(columns, wireRows), nil
}

// cellBytes renders one stored string value as the raw wire bytes a client
// expects for its column type. An empty non-varchar value means a column
// added by ALTER TABLE ADD after the row was written, so it comes back as
// NULL rather than a bogus zero.
func cellBytes(dt primitive.DataTypeCode, value string) ([]byte, error) {
	if value == "" && dt != primitive.DataTypeCodeVarchar {
		return nil, nil
	}
	switch dt {
	case primitive.DataTypeCodeInt:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("encode int cell %q: %w", value, err)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case primitive.DataTypeCodeTimestamp:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("encode timestamp cell %q: %w", value, err)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case primitive.DataTypeCodeDouble:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("encode double cell %q: %w", value, err)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case primitive.DataTypeCodeVarchar:
		return []byte(value), nil
	}
	return nil, fmt.Errorf("unsupported column type %v", dt)
}
