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

package message

import (
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// ResultKind is the 4-byte discriminator that opens a RESULT body.
type ResultKind int32

const (
	ResultKindVoid        = ResultKind(0x0001)
	ResultKindRows        = ResultKind(0x0002)
	ResultKindSetKeyspace = ResultKind(0x0003)
)

// ColumnSpec describes one column of a Rows result.
type ColumnSpec struct {
	Name string
	Type primitive.DataTypeCode
}

// Result is the RESULT message. Exactly one of the three kind-specific
// fields is populated, selected by Kind.
type Result struct {
	Kind ResultKind

	// Rows
	Columns []ColumnSpec
	Rows    [][][]byte // row-major, each cell is its raw encoded bytes (nil = NULL)

	// SetKeyspace
	Keyspace string
}

func NewVoidResult() *Result { return &Result{Kind: ResultKindVoid} }

func NewSetKeyspaceResult(keyspace string) *Result {
	return &Result{Kind: ResultKindSetKeyspace, Keyspace: keyspace}
}

func NewRowsResult(columns []ColumnSpec, rows [][][]byte) *Result {
	return &Result{Kind: ResultKindRows, Columns: columns, Rows: rows}
}

func (m *Result) IsResponse() bool         { return true }
func (m *Result) OpCode() primitive.OpCode { return primitive.OpCodeResult }

func (m *Result) String() string {
	switch m.Kind {
	case ResultKindVoid:
		return "RESULT VOID"
	case ResultKindSetKeyspace:
		return fmt.Sprintf("RESULT SET_KEYSPACE %v", m.Keyspace)
	case ResultKindRows:
		return fmt.Sprintf("RESULT ROWS (%d cols, %d rows)", len(m.Columns), len(m.Rows))
	}
	return fmt.Sprintf("RESULT kind=%d", m.Kind)
}

type resultCodec struct{}

func (resultCodec) OpCode() primitive.OpCode { return primitive.OpCodeResult }

func (resultCodec) Encode(msg Message, dest io.Writer) error {
	m, ok := msg.(*Result)
	if !ok {
		return fmt.Errorf("expected *message.Result, got %T", msg)
	}
	if err := primitive.WriteInt(int32(m.Kind), dest); err != nil {
		return err
	}
	switch m.Kind {
	case ResultKindVoid:
		return nil
	case ResultKindSetKeyspace:
		return primitive.WriteString(m.Keyspace, dest)
	case ResultKindRows:
		return encodeRowsBody(m, dest)
	}
	return fmt.Errorf("unknown result kind %d", m.Kind)
}

func encodeRowsBody(m *Result, dest io.Writer) error {
	const metadataFlags = uint32(0)
	if err := primitive.WriteUnsignedInt(metadataFlags, dest); err != nil {
		return err
	}
	if err := primitive.WriteInt(int32(len(m.Columns)), dest); err != nil {
		return err
	}
	for _, col := range m.Columns {
		if err := primitive.WriteString(col.Name, dest); err != nil {
			return err
		}
		if err := primitive.WriteShort(uint16(col.Type), dest); err != nil {
			return err
		}
	}
	if err := primitive.WriteInt(int32(len(m.Rows)), dest); err != nil {
		return err
	}
	for _, row := range m.Rows {
		for _, cell := range row {
			if err := primitive.WriteBytes(cell, dest); err != nil {
				return err
			}
		}
	}
	return nil
}

func (resultCodec) Decode(source io.Reader) (Message, error) {
	kind, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode RESULT kind: %w", err)
	}
	switch ResultKind(kind) {
	case ResultKindVoid:
		return NewVoidResult(), nil
	case ResultKindSetKeyspace:
		ks, err := primitive.ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("decode RESULT SET_KEYSPACE: %w", err)
		}
		return NewSetKeyspaceResult(ks), nil
	case ResultKindRows:
		return decodeRowsBody(source)
	}
	return nil, fmt.Errorf("unknown result kind %d", kind)
}

func decodeRowsBody(source io.Reader) (Message, error) {
	if _, err := primitive.ReadUnsignedInt(source); err != nil {
		return nil, fmt.Errorf("decode RESULT ROWS metadata flags: %w", err)
	}
	columnCount, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode RESULT ROWS column count: %w", err)
	}
	columns := make([]ColumnSpec, columnCount)
	for i := range columns {
		name, err := primitive.ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("decode RESULT ROWS column %d name: %w", i, err)
		}
		typeCode, err := primitive.ReadShort(source)
		if err != nil {
			return nil, fmt.Errorf("decode RESULT ROWS column %d type: %w", i, err)
		}
		columns[i] = ColumnSpec{Name: name, Type: primitive.DataTypeCode(typeCode)}
	}
	rowCount, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode RESULT ROWS row count: %w", err)
	}
	rows := make([][][]byte, rowCount)
	for r := range rows {
		row := make([][]byte, columnCount)
		for c := range row {
			cell, err := primitive.ReadBytes(source)
			if err != nil {
				return nil, fmt.Errorf("decode RESULT ROWS row %d col %d: %w", r, c, err)
			}
			row[c] = cell
		}
		rows[r] = row
	}
	return NewRowsResult(columns, rows), nil
}
