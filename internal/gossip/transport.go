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

package gossip

import (
	"context"

	"github.com/ringkeeper/cqlstore/internal/actions"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// Transport sends actions to peers over the private port. Implemented by
// internal/node, which owns the actual connection pool to every peer's
// private port registered in internal/registry.
type Transport interface {
	// Exchange sends an action and blocks for the peer's reply, used for
	// the Syn half of a gossip round.
	Exchange(ctx context.Context, peer clusterstate.NodeId, request actions.Action) (actions.Action, error)
	// Send fires an action without waiting for a reply, used for the Ack2
	// that closes a gossip round.
	Send(ctx context.Context, peer clusterstate.NodeId, action actions.Action) error
}
