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

package protoerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

func TestToWireErrorMapsKnownKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code primitive.ErrorCode
	}{
		{"already exists", &AlreadyExistsError{Keyspace: "ks", Table: "users"}, primitive.ErrorCodeAlreadyExists},
		{"not found", &NotFoundError{Keyspace: "ks", Table: "users"}, primitive.ErrorCodeInvalid},
		{"unavailable", &UnavailableError{Consistency: primitive.ConsistencyLevelQuorum, Required: 2, Alive: 1}, primitive.ErrorCodeUnavailableException},
		{"write timeout", &TimeoutError{Consistency: primitive.ConsistencyLevelOne, Received: 0, BlockFor: 1}, primitive.ErrorCodeWriteTimeout},
		{"read timeout", &TimeoutError{Consistency: primitive.ConsistencyLevelOne, Received: 0, BlockFor: 1, Read: true}, primitive.ErrorCodeReadTimeout},
		{"syntax", &SyntaxError{Text: "bad statement"}, primitive.ErrorCodeSyntaxError},
		{"unknown", errors.New("boom"), primitive.ErrorCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wireErr := ToWireError(tt.err)
			assert.Equal(t, tt.code, wireErr.Code())
		})
	}
}

func TestToWireErrorDoesNotMatchOnErrorTextAlone(t *testing.T) {
	wrapped := errors.New("outer: " + (&NotFoundError{Keyspace: "ks"}).Error())
	wireErr := ToWireError(wrapped)
	assert.Equal(t, primitive.ErrorCodeServerError, wireErr.Code())

	var msg message.Message = wireErr
	assert.Equal(t, primitive.OpCodeError, msg.OpCode())
}
