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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnappyRoundTrip(t *testing.T) {
	original := []byte("SELECT * FROM ks.users WHERE id = 1")
	compressed, err := Snappy{}.Compress(original)
	require.NoError(t, err)
	decompressed, err := Snappy{}.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestLZ4RoundTrip(t *testing.T) {
	original := []byte("INSERT INTO ks.users (id, name) VALUES (1, 'ana')")
	compressed, err := LZ4{}.Compress(original)
	require.NoError(t, err)
	decompressed, err := LZ4{}.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}
