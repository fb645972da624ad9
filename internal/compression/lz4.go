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

package compression

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 satisfies wireframe.BodyCompressor using the LZ4 algorithm. Native
// protocol LZ4 bodies are prefixed with the 4-byte big-endian decompressed
// length, which the pierrec/lz4 block API doesn't add on its own.
type LZ4 struct{}

func (LZ4) Algorithm() string { return "LZ4" }

func (LZ4) Compress(uncompressed []byte) ([]byte, error) {
	maxSize := lz4.CompressBlockBound(len(uncompressed))
	out := make([]byte, maxSize+4)
	binary.BigEndian.PutUint32(out, uint32(len(uncompressed)))
	written, err := lz4.CompressBlock(uncompressed, out[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("compress lz4 body: %w", err)
	}
	return out[:written+4], nil
}

func (LZ4) Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, fmt.Errorf("lz4 body too short: %d bytes", len(compressed))
	}
	decompressedLength := binary.BigEndian.Uint32(compressed)
	if decompressedLength == 0 {
		return nil, nil
	}
	remaining := compressed[4:]
	compressedLength := len(remaining)
	var out []byte
	var written int
	var err error
	for size := compressedLength * 2; size <= compressedLength*8; size *= 2 {
		out = make([]byte, size)
		written, err = lz4.UncompressBlock(remaining, out)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decompress lz4 body: %w", err)
	}
	if written != int(decompressedLength) {
		return nil, fmt.Errorf("lz4 decompressed length mismatch: expected %d, got %d", decompressedLength, written)
	}
	return out[:written], nil
}
