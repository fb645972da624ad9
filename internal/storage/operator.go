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

package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// Operator is a WHERE relation's comparator. IN, CONTAINS and CONTAINS KEY
// are deliberately absent: original_source's Relation::evaluate leaves them
// as `todo!()`, and collection types are out of scope entirely.
type Operator int

const (
	OperatorEqual Operator = iota
	OperatorNotEqual
	OperatorLess
	OperatorLessEqual
	OperatorGreater
	OperatorGreaterEqual
)

func (o Operator) String() string {
	switch o {
	case OperatorEqual:
		return "="
	case OperatorNotEqual:
		return "!="
	case OperatorLess:
		return "<"
	case OperatorLessEqual:
		return "<="
	case OperatorGreater:
		return ">"
	case OperatorGreaterEqual:
		return ">="
	}
	return "?"
}

// Relation is one WHERE clause term: column OP literal.
type Relation struct {
	Column   string
	Operator Operator
	Value    string
}

// Evaluate applies the relation to one stored row value, comparing
// numerically for Int/Double/Timestamp columns and lexically otherwise —
// mirroring make_comparison in original_source's where/relation.rs, which
// parses both sides as a Term before comparing.
func (r Relation) Evaluate(rowValue string, colType primitive.DataTypeCode) (bool, error) {
	switch colType {
	case primitive.DataTypeCodeInt, primitive.DataTypeCodeTimestamp:
		left, err := strconv.ParseInt(rowValue, 10, 64)
		if err != nil {
			return false, fmt.Errorf("column %q: stored value %q is not an integer: %w", r.Column, rowValue, err)
		}
		right, err := strconv.ParseInt(r.Value, 10, 64)
		if err != nil {
			return false, fmt.Errorf("column %q: comparison value %q is not an integer: %w", r.Column, r.Value, err)
		}
		return compareOrdered(left, right, r.Operator), nil
	case primitive.DataTypeCodeDouble:
		left, err := strconv.ParseFloat(rowValue, 64)
		if err != nil {
			return false, fmt.Errorf("column %q: stored value %q is not a double: %w", r.Column, rowValue, err)
		}
		right, err := strconv.ParseFloat(r.Value, 64)
		if err != nil {
			return false, fmt.Errorf("column %q: comparison value %q is not a double: %w", r.Column, r.Value, err)
		}
		return compareOrdered(left, right, r.Operator), nil
	default:
		return compareOrdered(strings.Compare(rowValue, r.Value), 0, r.Operator), nil
	}
}

type ordered interface {
	~int | ~int64 | ~float64
}

func compareOrdered[T ordered](left, right T, op Operator) bool {
	switch op {
	case OperatorEqual:
		return left == right
	case OperatorNotEqual:
		return left != right
	case OperatorLess:
		return left < right
	case OperatorLessEqual:
		return left <= right
	case OperatorGreater:
		return left > right
	case OperatorGreaterEqual:
		return left >= right
	}
	return false
}
