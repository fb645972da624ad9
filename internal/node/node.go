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

// Package node wires every other package into one running process: two TLS
// (or plain TCP, when no certificate is configured) listeners — client port
// and private port — each handing an accepted connection to a
// session.Handler, a pool of outbound connections to peers' private ports
// backing the gossip/membership/coordinator transports, and the dispatch
// table that answers an internal action arriving on either listener.
// Lifecycle follows an atomic start/stop state machine, a shared
// sync.WaitGroup joined on Exit, and one goroutine per accepted connection.
package node

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/auth"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/coordinator"
	"github.com/ringkeeper/cqlstore/internal/cqlstmt"
	"github.com/ringkeeper/cqlstore/internal/gossip"
	"github.com/ringkeeper/cqlstore/internal/membership"
	"github.com/ringkeeper/cqlstore/internal/metadata"
	"github.com/ringkeeper/cqlstore/internal/registry"
	"github.com/ringkeeper/cqlstore/internal/session"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

// PeerRPCTimeout bounds every outbound peer round trip, the 1-second budget
// a read on the private port is allowed before the coordinator or gossiper
// treats the peer as unreachable.
const PeerRPCTimeout = time.Second

const (
	stateNotStarted = int32(iota)
	stateRunning
	stateClosed
)

// Node owns the long-lived state of one running process: its storage
// engine, its view of the cluster, and the connections to every peer's
// private port. It implements gossip.Transport, membership.Transport,
// coordinator.Transport and session.ActionHandler, so every other package
// reaches the network only through methods defined here.
type Node struct {
	Id       clusterstate.NodeId
	Mode     clusterstate.ConnectionMode
	Registry *registry.Registry
	Engine   *storage.Engine

	Coordinator *coordinator.Coordinator
	View        *membership.View
	Manager     *membership.Manager
	Gossiper    *gossip.Gossiper
	Beater      *gossip.Beater

	credentials *auth.Store
	actionCodec *actions.Registry
	tlsConfig   *tls.Config

	peersMu sync.Mutex
	peers   map[clusterstate.NodeId]*peerConn

	clientListener  net.Listener
	privateListener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  int32
}

// peerConn is one lazily-dialed outbound connection to a peer's private
// port. Actions carry no stream id, so a single connection can only ever
// have one request in flight; callMu serializes round trips the way the
// session-side handler serializes its own read-dispatch-write loop.
type peerConn struct {
	callMu sync.Mutex
	connMu sync.Mutex
	conn   net.Conn
}

// New builds a Node around an already-constructed storage engine, cluster
// view and coordinator. credentials may be nil to disable client
// authentication; tlsConfig may be nil to listen on plain TCP, used by
// tests and by a node started without certificate files.
func New(id clusterstate.NodeId, mode clusterstate.ConnectionMode, reg *registry.Registry, engine *storage.Engine, coord *coordinator.Coordinator, view *membership.View, manager *membership.Manager, credentials *auth.Store, tlsConfig *tls.Config) *Node {
	n := &Node{
		Id:          id,
		Mode:        mode,
		Registry:    reg,
		Engine:      engine,
		Coordinator: coord,
		View:        view,
		Manager:     manager,
		credentials: credentials,
		actionCodec: actions.DefaultRegistry(),
		tlsConfig:   tlsConfig,
		peers:       make(map[clusterstate.NodeId]*peerConn),
	}
	n.Gossiper = gossip.NewGossiper(view, n)
	n.Beater = gossip.NewBeater(view.LocalState(), n.storeMetadata)
	return n
}

func (n *Node) String() string { return fmt.Sprintf("node %v", n.Id) }

func (n *Node) getState() int32          { return atomic.LoadInt32(&n.state) }
func (n *Node) IsRunning() bool          { return n.getState() == stateRunning }
func (n *Node) IsClosed() bool           { return n.getState() == stateClosed }
func (n *Node) transition(old, new int32) bool {
	return atomic.CompareAndSwapInt32(&n.state, old, new)
}

// Start binds the client and private listeners and begins accepting
// connections, then launches the gossiper and beater loops. Returns once
// both listeners are bound; accepting and background gossip run in their
// own goroutines until Exit is called.
func (n *Node) Start(ctx context.Context) error {
	if !n.transition(stateNotStarted, stateRunning) {
		return fmt.Errorf("%v: already started or closed", n)
	}
	clientAddr, err := n.Registry.ClientAddr(n.Id)
	if err != nil {
		return fmt.Errorf("%v: resolve client address: %w", n, err)
	}
	privateAddr, err := n.Registry.PrivateAddr(n.Id)
	if err != nil {
		return fmt.Errorf("%v: resolve private address: %w", n, err)
	}
	if n.clientListener, err = n.listen(clientAddr); err != nil {
		return fmt.Errorf("%v: listen on client port %v: %w", n, clientAddr, err)
	}
	if n.privateListener, err = n.listen(privateAddr); err != nil {
		return fmt.Errorf("%v: listen on private port %v: %w", n, privateAddr, err)
	}

	n.ctx, n.cancel = context.WithCancel(ctx)
	n.acceptLoop(n.clientListener)
	n.acceptLoop(n.privateListener)
	n.Gossiper.Start(n.ctx)
	n.Beater.Start(n.ctx)
	log.Info().Msgf("%v: started, client=%v private=%v", n, clientAddr, privateAddr)
	return nil
}

func (n *Node) listen(addr string) (net.Listener, error) {
	if n.tlsConfig != nil {
		return tls.Listen("tcp", addr, n.tlsConfig)
	}
	return net.Listen("tcp", addr)
}

// Exit stops the gossiper and beater, closes both listeners and every
// pooled peer connection, and waits for every accept-loop and in-flight
// connection goroutine to finish.
func (n *Node) Exit() error {
	if !n.transition(stateRunning, stateClosed) {
		return fmt.Errorf("%v: not started or already closed", n)
	}
	n.Gossiper.Stop()
	n.Beater.Stop()
	n.cancel()

	var firstErr error
	if err := n.clientListener.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.privateListener.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	n.peersMu.Lock()
	for id, p := range n.peers {
		p.connMu.Lock()
		if p.conn != nil {
			_ = p.conn.Close()
		}
		p.connMu.Unlock()
		delete(n.peers, id)
	}
	n.peersMu.Unlock()

	n.wg.Wait()
	log.Info().Msgf("%v: exited", n)
	return firstErr
}

func (n *Node) acceptLoop(listener net.Listener) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if n.IsRunning() {
					log.Warn().Err(err).Msgf("%v: accept failed on %v", n, listener.Addr())
				}
				return
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				handler := session.New(n.Id, conn, n.Coordinator, n.credentials, n, n.Mode)
				if err := handler.Serve(n.ctx); err != nil {
					log.Debug().Err(err).Msgf("%v: connection from %v closed", n, conn.RemoteAddr())
				}
			}()
		}
	}()
}

// peerConnFor returns the pool entry for peer, creating an empty one on
// first use; the connection itself is dialed by the round trip that uses it.
func (n *Node) peerConnFor(peer clusterstate.NodeId) (*peerConn, error) {
	n.peersMu.Lock()
	p, ok := n.peers[peer]
	if !ok {
		p = &peerConn{}
		n.peers[peer] = p
	}
	n.peersMu.Unlock()
	return p, nil
}

func (n *Node) dial(peer clusterstate.NodeId) (net.Conn, error) {
	addr, err := n.Registry.PrivateAddr(peer)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: PeerRPCTimeout}
	if n.tlsConfig != nil {
		return tls.DialWithDialer(dialer, "tcp", addr, n.tlsConfig)
	}
	return dialer.Dial("tcp", addr)
}

// roundTrip sends action to peer over its pooled connection, optionally
// waiting for a reply. A failure marks the peer Offline locally and drops
// the pooled connection so the next call redials.
func (n *Node) roundTrip(ctx context.Context, peer clusterstate.NodeId, action actions.Action, waitReply bool) (actions.Action, error) {
	p, err := n.peerConnFor(peer)
	if err != nil {
		return nil, err
	}
	p.callMu.Lock()
	defer p.callMu.Unlock()

	reply, err := n.attemptRoundTrip(p, peer, action, waitReply)
	if err != nil {
		n.markOffline(peer)
	}
	return reply, err
}

func (n *Node) attemptRoundTrip(p *peerConn, peer clusterstate.NodeId, action actions.Action, waitReply bool) (actions.Action, error) {
	p.connMu.Lock()
	conn := p.conn
	p.connMu.Unlock()
	if conn == nil {
		dialed, err := n.dial(peer)
		if err != nil {
			return nil, fmt.Errorf("dial peer %v: %w", peer, err)
		}
		p.connMu.Lock()
		p.conn = dialed
		conn = dialed
		p.connMu.Unlock()
	}

	deadline := time.Now().Add(PeerRPCTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		n.dropConn(p)
		return nil, fmt.Errorf("set deadline for peer %v: %w", peer, err)
	}
	if err := n.actionCodec.Encode(action, conn); err != nil {
		n.dropConn(p)
		return nil, fmt.Errorf("send action to peer %v: %w", peer, err)
	}
	if !waitReply {
		return nil, nil
	}
	reply, err := n.actionCodec.Decode(conn)
	if err != nil {
		n.dropConn(p)
		return nil, fmt.Errorf("read reply from peer %v: %w", peer, err)
	}
	return reply, nil
}

func (n *Node) dropConn(p *peerConn) {
	p.connMu.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.connMu.Unlock()
}

func (n *Node) markOffline(peer clusterstate.NodeId) {
	state, ok := n.View.Get(peer)
	if !ok {
		return
	}
	state.AppState = clusterstate.AppStatusOffline
	n.View.Set(peer, state)
}

// Exchange implements gossip.Transport.
func (n *Node) Exchange(ctx context.Context, peer clusterstate.NodeId, request actions.Action) (actions.Action, error) {
	return n.roundTrip(ctx, peer, request, true)
}

// Send implements gossip.Transport.
func (n *Node) Send(ctx context.Context, peer clusterstate.NodeId, action actions.Action) error {
	_, err := n.roundTrip(ctx, peer, action, false)
	return err
}

// ExchangeMembership implements membership.Transport.
func (n *Node) ExchangeMembership(ctx context.Context, peer clusterstate.NodeId, request actions.Membership) (actions.Membership, error) {
	reply, err := n.roundTrip(ctx, peer, request, true)
	if err != nil {
		return actions.Membership{}, err
	}
	m, ok := reply.(actions.Membership)
	if !ok {
		return actions.Membership{}, fmt.Errorf("unexpected reply to membership request to %v: %T", peer, reply)
	}
	return m, nil
}

// SendMembership implements membership.Transport.
func (n *Node) SendMembership(ctx context.Context, peer clusterstate.NodeId, action actions.Membership) error {
	_, err := n.roundTrip(ctx, peer, action, false)
	return err
}

// Unicast implements coordinator.Transport: fire-and-forget.
func (n *Node) Unicast(ctx context.Context, peer clusterstate.NodeId, action actions.Action) error {
	_, err := n.roundTrip(ctx, peer, action, false)
	return err
}

// Request implements coordinator.Transport: blocks for a reply.
func (n *Node) Request(ctx context.Context, peer clusterstate.NodeId, action actions.Action) (actions.Action, error) {
	return n.roundTrip(ctx, peer, action, true)
}

// storeMetadata builds this node's catalog snapshot and flushes it to
// disk; wired as the Beater's periodic onStoreMetadata callback.
func (n *Node) storeMetadata() {
	if err := metadata.Store(n.buildSnapshot()); err != nil {
		log.Warn().Err(err).Msgf("%v: could not store metadata snapshot", n)
	}
}

func (n *Node) buildSnapshot() *metadata.Snapshot {
	keyspaces := n.Engine.Keyspaces()
	snapshot := &metadata.Snapshot{
		Id:               n.Id,
		DefaultKeyspaces: map[string]string{},
		Keyspaces:        keyspaces,
	}
	for _, qualified := range n.Engine.AllTableNames() {
		keyspace, table, ok := splitQualifiedName(qualified)
		if !ok {
			continue
		}
		schema, err := n.Engine.Schema(keyspace, table)
		if err != nil {
			continue
		}
		columns := make([]metadata.ColumnSnapshot, len(schema.Columns))
		for i, col := range schema.Columns {
			columns[i] = metadata.ColumnSnapshot{Name: col.Name, Type: col.Type}
		}
		snapshot.Tables = append(snapshot.Tables, metadata.TableSnapshot{
			Keyspace:        keyspace,
			Name:            table,
			Columns:         columns,
			PartitionKeys:   schema.PrimaryKey.PartitionKeys,
			ClusteringKeys:  schema.PrimaryKey.ClusteringKeys,
			PartitionValues: n.Engine.PartitionValues(keyspace, table),
		})
	}
	return snapshot
}

func splitQualifiedName(qualified string) (keyspace, table string, ok bool) {
	parts := strings.SplitN(qualified, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HandleAction implements session.ActionHandler, the single dispatch point
// for every internal action arriving on either listener.
func (n *Node) HandleAction(ctx context.Context, action actions.Action) (actions.Action, error) {
	switch a := action.(type) {
	case actions.Exit:
		log.Debug().Msgf("%v: peer reported a clean exit", n)
		return nil, nil
	case actions.Beat:
		n.handleBeat(a)
		return nil, nil
	case actions.Gossip:
		log.Trace().Msgf("%v: gossip round announced targets=%v", n, a.Targets)
		return nil, nil
	case actions.Syn:
		return n.Gossiper.HandleSyn(a), nil
	case actions.Ack:
		log.Debug().Msgf("%v: unsolicited ACK from %v ignored", n, a.Receiver)
		return nil, nil
	case actions.Ack2:
		n.Gossiper.HandleAck2(a)
		return nil, nil
	case actions.NewNeighbour:
		n.View.ApplyStates([]actions.EndpointStateEntry{{Id: a.Id, State: a.State}})
		return nil, nil
	case actions.SendEndpointState:
		return n.handleSendEndpointState(a)
	case actions.InternalQuery:
		return nil, n.Coordinator.ApplyForwarded(a)
	case actions.StoreMetadata:
		n.storeMetadata()
		return nil, nil
	case actions.DirectReadRequest:
		return n.handleDirectReadRequest(a)
	case actions.DigestReadRequest:
		return n.handleDigestReadRequest(a)
	case actions.RepairRows:
		return nil, n.handleRepairRows(a)
	case actions.AddPartitionValueToMetadata:
		return nil, n.handleAddPartitionValue(a)
	case actions.Membership:
		return n.handleMembership(ctx, a)
	default:
		return nil, fmt.Errorf("%v: no handler for action %v", n, action.Tag())
	}
}

func (n *Node) handleBeat(b actions.Beat) {
	state, ok := n.View.Get(b.Sender)
	if !ok || !b.Heartbeat.NewerThan(state.Heartbeat) {
		return
	}
	state.Heartbeat = b.Heartbeat
	n.View.Set(b.Sender, state)
}

func (n *Node) handleSendEndpointState(s actions.SendEndpointState) (actions.Action, error) {
	state, ok := n.View.Get(s.Id)
	if !ok {
		return nil, fmt.Errorf("%v: no known endpoint state for %v", n, s.Id)
	}
	return actions.NewNeighbour{Id: s.Id, State: state}, nil
}

func (n *Node) handleDirectReadRequest(r actions.DirectReadRequest) (actions.Action, error) {
	rows, keyspace, table, err := n.selectForQuery(r.QueryFrame, r.OwnerId)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal direct read reply: %w", err)
	}
	return actions.RepairRows{Table: keyspace + "." + table, OwnerId: r.OwnerId, Rows: payload}, nil
}

// handleDigestReadRequest answers with a cheap fingerprint of the matched
// rows rather than the rows themselves. No dedicated digest-reply action
// exists on the wire, so the fingerprint rides in RepairRows.Rows, the same
// carrier DirectReadRequest's full-row reply uses.
func (n *Node) handleDigestReadRequest(r actions.DigestReadRequest) (actions.Action, error) {
	rows, keyspace, table, err := n.selectForQuery(r.QueryFrame, n.Id)
	if err != nil {
		return nil, err
	}
	digest, err := rowDigest(rows)
	if err != nil {
		return nil, err
	}
	return actions.RepairRows{Table: keyspace + "." + table, OwnerId: n.Id, Rows: digest}, nil
}

func (n *Node) selectForQuery(queryFrame []byte, ownerId clusterstate.NodeId) (rows []map[string]string, keyspace, table string, err error) {
	queryText, err := coordinator.DecodeQueryText(queryFrame)
	if err != nil {
		return nil, "", "", err
	}
	stmt, err := cqlstmt.Parse(queryText)
	if err != nil {
		return nil, "", "", err
	}
	sel, ok := stmt.(cqlstmt.Select)
	if !ok {
		return nil, "", "", fmt.Errorf("%v: expected a SELECT, got %T", n, stmt)
	}
	rows, err = n.Engine.Select(sel.Keyspace, sel.Table, ownerId, sel.Relations, sel.OrderBy)
	if err != nil {
		return nil, "", "", err
	}
	return rows, sel.Keyspace, sel.Table, nil
}

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

func (n *Node) handleRepairRows(r actions.RepairRows) error {
	keyspace, table, ok := splitQualifiedName(r.Table)
	if !ok {
		return fmt.Errorf("%v: malformed repair target %q", n, r.Table)
	}
	schema, err := n.Engine.Schema(keyspace, table)
	if err != nil {
		return err
	}
	var rows []map[string]string
	if err := json.Unmarshal(r.Rows, &rows); err != nil {
		return fmt.Errorf("decode repair rows payload: %w", err)
	}
	csvRows := make([][]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(schema.Columns)+1)
		for c, col := range schema.Columns {
			values[c] = row[col.Name]
		}
		values[len(schema.Columns)] = row[storage.RowTimestampKey]
		csvRows[i] = values
	}
	return n.Engine.Repair(keyspace, table, r.OwnerId, csvRows)
}

func (n *Node) handleAddPartitionValue(a actions.AddPartitionValueToMetadata) error {
	keyspace, table, ok := splitQualifiedName(a.Table)
	if !ok {
		return fmt.Errorf("%v: malformed partition-value target %q", n, a.Table)
	}
	n.Engine.IndexPartitionValue(keyspace, table, strings.Join(a.Values, ":"))
	return nil
}

func (n *Node) handleMembership(ctx context.Context, m actions.Membership) (actions.Action, error) {
	switch m.Kind {
	case actions.MembershipGetAllTablesOfReplica:
		reply, err := n.Manager.HandleGetAllTablesOfReplica(m.NodeId)
		if err != nil {
			return nil, err
		}
		return reply, nil
	case actions.MembershipSendMetadata:
		payload, err := json.Marshal(n.buildSnapshot())
		if err != nil {
			return nil, fmt.Errorf("marshal metadata reply: %w", err)
		}
		return actions.Membership{Kind: actions.MembershipReceiveMetadata, NodeId: n.Id, Payload: payload}, nil
	case actions.MembershipReceiveMetadata:
		log.Debug().Msgf("%v: unsolicited metadata from %v ignored", n, m.NodeId)
		return nil, nil
	case actions.MembershipAddRelocatedRows:
		return nil, n.Engine.AdoptRows(m.Payload)
	case actions.MembershipNodeIsLeaving:
		n.markLeaving(m.NodeId)
		return nil, nil
	case actions.MembershipNodeDeleted, actions.MembershipDeleteNode, actions.MembershipNodeToDelete:
		n.Manager.DeleteNode(m.NodeId)
		return nil, nil
	case actions.MembershipRelocationNeeded, actions.MembershipUpdateReplicas:
		log.Info().Msgf("%v: membership kind %v from %v noted", n, m.Kind, m.NodeId)
		return nil, nil
	default:
		log.Warn().Msgf("%v: unhandled membership kind %v", n, m.Kind)
		return nil, nil
	}
}

func (n *Node) markLeaving(id clusterstate.NodeId) {
	state, ok := n.View.Get(id)
	if !ok {
		return
	}
	state.AppState = clusterstate.AppStatusLeft
	n.View.Set(id, state)
}
