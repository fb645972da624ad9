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

// Package compression adapts the reference protocol library's SNAPPY and
// LZ4 body compressors to the byte-slice BodyCompressor interface
// internal/wireframe expects, keeping the same underlying libraries
// (github.com/golang/snappy, github.com/pierrec/lz4/v4) and framing rules.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
)

// Snappy satisfies wireframe.BodyCompressor using the SNAPPY algorithm.
type Snappy struct{}

func (Snappy) Algorithm() string { return "SNAPPY" }

func (Snappy) Compress(uncompressed []byte) ([]byte, error) {
	return snappy.Encode(nil, uncompressed), nil
}

func (Snappy) Decompress(compressed []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress snappy body: %w", err)
	}
	return out, nil
}
