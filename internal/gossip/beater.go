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
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

const (
	// DefaultBeatInterval is how often a node advances its own heartbeat
	// version.
	DefaultBeatInterval = time.Second

	// DefaultMetadataFlushEvery is the number of beats between
	// StoreMetadata triggers, so the on-disk snapshot lags memory by at
	// most this many seconds rather than being rewritten on every single
	// beat.
	DefaultMetadataFlushEvery = 10
)

// Beater owns the local EndpointState's heartbeat and periodically asks the
// node to persist its metadata snapshot.
type Beater struct {
	Interval           time.Duration
	MetadataFlushEvery int

	local           *clusterstate.EndpointState
	onStoreMetadata func()

	mu       sync.Mutex
	beats    int
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewBeater builds a Beater over the given node's own EndpointState. The
// caller still owns local and must only beat through this Beater, never
// mutate Heartbeat directly, to avoid torn reads of the vector clock.
func NewBeater(local *clusterstate.EndpointState, onStoreMetadata func()) *Beater {
	return &Beater{
		Interval:           DefaultBeatInterval,
		MetadataFlushEvery: DefaultMetadataFlushEvery,
		local:              local,
		onStoreMetadata:    onStoreMetadata,
	}
}

// Start launches the beat loop in its own goroutine. It runs until ctx is
// cancelled or Stop is called.
func (b *Beater) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	ticker := time.NewTicker(b.Interval)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug().Msgf("beater: stopping, %v", ctx.Err())
				return
			case <-ticker.C:
				b.beat()
			}
		}
	}()
}

func (b *Beater) beat() {
	b.mu.Lock()
	b.local.Beat()
	b.beats++
	flush := b.onStoreMetadata != nil && b.MetadataFlushEvery > 0 && b.beats%b.MetadataFlushEvery == 0
	b.mu.Unlock()

	log.Debug().Msgf("beater: %v", b.local.Heartbeat)
	if flush {
		b.onStoreMetadata()
	}
}

// Stop cancels the beat loop and waits for it to exit.
func (b *Beater) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()
	})
}
