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

package cqlstmt

import "github.com/ringkeeper/cqlstore/internal/storage"

// Kind discriminates the statement variants this parser understands.
type Kind int

const (
	KindUse Kind = iota
	KindCreateKeyspace
	KindAlterKeyspace
	KindDropKeyspace
	KindCreateTable
	KindAlterTableAdd
	KindAlterTableDrop
	KindDropTable
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
)

// Statement is any parsed CQL statement.
type Statement interface {
	Kind() Kind
}

type Use struct{ Keyspace string }

func (Use) Kind() Kind { return KindUse }

type CreateKeyspace struct {
	Name              string
	ReplicationFactor int
	IfNotExists       bool
}

func (CreateKeyspace) Kind() Kind { return KindCreateKeyspace }

type AlterKeyspace struct {
	Name              string
	ReplicationFactor int
}

func (AlterKeyspace) Kind() Kind { return KindAlterKeyspace }

type DropKeyspace struct {
	Name     string
	IfExists bool
}

func (DropKeyspace) Kind() Kind { return KindDropKeyspace }

type CreateTable struct {
	Keyspace    string
	Table       string
	Columns     []storage.ColumnSpec
	PrimaryKey  storage.PrimaryKey
	IfNotExists bool
}

func (CreateTable) Kind() Kind { return KindCreateTable }

type AlterTableAdd struct {
	Keyspace string
	Table    string
	Column   storage.ColumnSpec
}

func (AlterTableAdd) Kind() Kind { return KindAlterTableAdd }

type AlterTableDrop struct {
	Keyspace string
	Table    string
	Column   string
}

func (AlterTableDrop) Kind() Kind { return KindAlterTableDrop }

type DropTable struct {
	Keyspace string
	Table    string
	IfExists bool
}

func (DropTable) Kind() Kind { return KindDropTable }

type Insert struct {
	Keyspace string
	Table    string
	Values   map[string]string
}

func (Insert) Kind() Kind { return KindInsert }

type Select struct {
	Keyspace  string
	Table     string
	Relations []storage.Relation
	OrderBy   []storage.OrderTerm
}

func (Select) Kind() Kind { return KindSelect }

type Update struct {
	Keyspace    string
	Table       string
	Assignments map[string]string
	Relations   []storage.Relation
}

func (Update) Kind() Kind { return KindUpdate }

type Delete struct {
	Keyspace  string
	Table     string
	Relations []storage.Relation
}

func (Delete) Kind() Kind { return KindDelete }
