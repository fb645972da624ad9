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

// MembershipKind selects the sub-action within the FE membership group.
// These all share the 0xFE tag and are distinguished by a second byte,
// since together they form one cohesive subprotocol (metadata and row
// relocation around a node joining, leaving or being removed) rather than
// ten more top-level tags.
type MembershipKind uint8

const (
	MembershipSendMetadata MembershipKind = iota
	MembershipReceiveMetadata
	MembershipRelocationNeeded
	MembershipUpdateReplicas
	MembershipAddRelocatedRows
	MembershipDeleteNode
	MembershipNodeIsLeaving
	MembershipNodeDeleted
	MembershipNodeToDelete
	MembershipGetAllTablesOfReplica
)

func (k MembershipKind) String() string {
	switch k {
	case MembershipSendMetadata:
		return "SEND_METADATA"
	case MembershipReceiveMetadata:
		return "RECEIVE_METADATA"
	case MembershipRelocationNeeded:
		return "RELOCATION_NEEDED"
	case MembershipUpdateReplicas:
		return "UPDATE_REPLICAS"
	case MembershipAddRelocatedRows:
		return "ADD_RELOCATED_ROWS"
	case MembershipDeleteNode:
		return "DELETE_NODE"
	case MembershipNodeIsLeaving:
		return "NODE_IS_LEAVING"
	case MembershipNodeDeleted:
		return "NODE_DELETED"
	case MembershipNodeToDelete:
		return "NODE_TO_DELETE"
	case MembershipGetAllTablesOfReplica:
		return "GET_ALL_TABLES_OF_REPLICA"
	}
	return fmt.Sprintf("UNKNOWN_MEMBERSHIP_KIND(%d)", uint8(k))
}

// Membership wraps every FE sub-action. Payload is kind-specific raw bytes;
// the membership package (not this one) knows how to interpret each kind,
// keeping actions ignorant of membership business logic the way the wire
// codec is ignorant of CQL statement semantics.
type Membership struct {
	Kind MembershipKind
	// NodeId is the subject of the action: the node joining, leaving or
	// being deleted. Present for every kind except SendMetadata, where it
	// names the requester instead.
	NodeId clusterstate.NodeId
	// Payload carries kind-specific data: a JSON metadata snapshot for
	// Send/ReceiveMetadata, an encoded replica-set for UpdateReplicas, row
	// bytes for AddRelocatedRows, a table name for GetAllTablesOfReplica.
	Payload []byte
}

func (m Membership) Tag() Tag { return TagMembership }
func (m Membership) String() string {
	return fmt.Sprintf("MEMBERSHIP kind=%v node=%v (%d bytes)", m.Kind, m.NodeId, len(m.Payload))
}

type membershipCodec struct{}

func (membershipCodec) Tag() Tag { return TagMembership }

func (membershipCodec) Encode(action Action, dest io.Writer) error {
	m := action.(Membership)
	if err := primitive.WriteByte(uint8(m.Kind), dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(m.NodeId), dest); err != nil {
		return err
	}
	return primitive.WriteBytes(m.Payload, dest)
}

func (membershipCodec) Decode(source io.Reader) (Action, error) {
	kindByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	nodeByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, err
	}
	payload, err := primitive.ReadBytes(source)
	if err != nil {
		return nil, err
	}
	return Membership{Kind: MembershipKind(kindByte), NodeId: clusterstate.NodeId(nodeByte), Payload: payload}, nil
}
