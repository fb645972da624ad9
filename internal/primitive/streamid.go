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

package primitive

import (
	"fmt"
	"io"
	"sync"
)

// ReadStreamId decodes the 2-byte signed big-endian stream id.
func ReadStreamId(source io.Reader) (int16, error) {
	return ReadSignedShort(source)
}

func WriteStreamId(streamId int16, dest io.Writer) error {
	return WriteSignedShort(streamId, dest)
}

// EventStreamId is reserved for server-initiated frames that are not a
// response to any particular client request.
const EventStreamId = int16(-1)

// StreamIDAllocator hands out the lowest unused stream id for an outbound
// request and releases it once the matching response has been delivered.
// The allocator searches linearly; a bitmap allocator would be needed at
// high concurrency.
type StreamIDAllocator struct {
	mu   sync.Mutex
	used map[int16]bool
}

func NewStreamIDAllocator() *StreamIDAllocator {
	return &StreamIDAllocator{used: make(map[int16]bool)}
}

func (a *StreamIDAllocator) Acquire() (int16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := int16(0); id < int16(1<<15-1); id++ {
		if !a.used[id] {
			a.used[id] = true
			return id, nil
		}
	}
	return 0, fmt.Errorf("no stream id available")
}

func (a *StreamIDAllocator) Release(id int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, id)
}
