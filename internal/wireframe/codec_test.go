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

package wireframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	codec := NewCodec(message.DefaultRegistry())
	original := NewRequestFrame(1, &message.Query{
		QueryText:   "SELECT * FROM ks.t",
		Consistency: primitive.ConsistencyLevelOne,
	})

	buf := &bytes.Buffer{}
	require.NoError(t, codec.EncodeFrame(original, buf))

	decoded, err := codec.DecodeFrame(buf)
	require.NoError(t, err)

	assert.Equal(t, original.Header.StreamId, decoded.Header.StreamId)
	assert.Equal(t, original.Header.OpCode, decoded.Header.OpCode)
	assert.False(t, decoded.Header.IsResponse)

	query, ok := decoded.Body.Message.(*message.Query)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM ks.t", query.QueryText)
	assert.Equal(t, primitive.ConsistencyLevelOne, query.Consistency)
}

func TestEncodeDecodeErrorFrame(t *testing.T) {
	codec := NewCodec(message.DefaultRegistry())
	original := NewResponseFrame(3, message.NewUnavailableException("not enough replicas", primitive.ConsistencyLevelQuorum, 2, 1))

	buf := &bytes.Buffer{}
	require.NoError(t, codec.EncodeFrame(original, buf))

	decoded, err := codec.DecodeFrame(buf)
	require.NoError(t, err)
	assert.True(t, decoded.Header.IsResponse)

	unavailable, ok := decoded.Body.Message.(*message.UnavailableException)
	require.True(t, ok)
	assert.Equal(t, int32(2), unavailable.Required)
	assert.Equal(t, int32(1), unavailable.Alive)
}

func TestDecodeHeaderThenRawBody(t *testing.T) {
	codec := NewCodec(message.DefaultRegistry())
	original := NewRequestFrame(5, &message.Startup{Options: map[string]string{"CQL_VERSION": "3.0.0"}})
	buf := &bytes.Buffer{}
	require.NoError(t, codec.EncodeFrame(original, buf))

	header, err := codec.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, primitive.OpCodeStartup, header.OpCode)

	raw, err := codec.DecodeRawBody(header, buf)
	require.NoError(t, err)
	body, err := codec.DecodeBody(header, raw)
	require.NoError(t, err)
	startup, ok := body.Message.(*message.Startup)
	require.True(t, ok)
	assert.Equal(t, "3.0.0", startup.Options["CQL_VERSION"])
}
