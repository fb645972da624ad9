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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	tests := []string{"", "hello", "SELECT * FROM ks.t WHERE id = 1", "γειά σου"}
	for _, s := range tests {
		buf := &bytes.Buffer{}
		require.NoError(t, WriteString(s, buf))
		actual, err := ReadString(buf)
		require.NoError(t, err)
		assert.Equal(t, s, actual)
	}
}

func TestLongStringRoundTrip(t *testing.T) {
	query := "CREATE TABLE ks.t (id int PRIMARY KEY, v text)"
	buf := &bytes.Buffer{}
	require.NoError(t, WriteLongString(query, buf))
	actual, err := ReadLongString(buf)
	require.NoError(t, err)
	assert.Equal(t, query, actual)
}

func TestBytesRoundTripNull(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteBytes(nil, buf))
	actual, err := ReadBytes(buf)
	require.NoError(t, err)
	assert.Nil(t, actual)
}

func TestStringMapRoundTrip(t *testing.T) {
	m := map[string]string{"CQL_VERSION": "3.0.0", "DRIVER_NAME": "cqlstore"}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteStringMap(m, buf))
	actual, err := ReadStringMap(buf)
	require.NoError(t, err)
	assert.Equal(t, m, actual)
}

func TestStreamIDAllocatorReusesLowestId(t *testing.T) {
	a := NewStreamIDAllocator()
	first, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int16(0), first)
	second, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int16(1), second)
	a.Release(first)
	third, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int16(0), third)
}
