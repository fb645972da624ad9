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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ringkeeper/cqlstore/internal/primitive"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

// parser walks a token stream left to right; it never backtracks.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expectKeyword(kw string) error {
	if p.done() || upper(p.peek()) != kw {
		return fmt.Errorf("expected %q, got %q", kw, p.peek().text)
	}
	p.pos++
	return nil
}

func (p *parser) matchKeyword(kw string) bool {
	if !p.done() && upper(p.peek()) == kw {
		p.pos++
		return true
	}
	return false
}

// Parse turns CQL query text into a Statement.
func Parse(text string) (Statement, error) {
	tokens := tokenize(text)
	if len(tokens) > 0 && tokens[len(tokens)-1].text == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty statement")
	}
	p := &parser{tokens: tokens}
	switch upper(p.next()) {
	case "USE":
		return p.parseUse()
	case "CREATE":
		return p.parseCreate()
	case "ALTER":
		return p.parseAlter()
	case "DROP":
		return p.parseDrop()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	default:
		return nil, fmt.Errorf("unsupported statement: %q", text)
	}
}

func (p *parser) parseUse() (Statement, error) {
	return Use{Keyspace: p.next().text}, nil
}

// splitTableName separates an optional `keyspace.` prefix from a table name.
func splitTableName(qualified string) (keyspace, table string) {
	if idx := strings.Index(qualified, "."); idx >= 0 {
		return qualified[:idx], qualified[idx+1:]
	}
	return "", qualified
}

func (p *parser) parseCreate() (Statement, error) {
	switch upper(p.next()) {
	case "KEYSPACE":
		return p.parseCreateKeyspace()
	case "TABLE":
		return p.parseCreateTable()
	default:
		return nil, fmt.Errorf("unsupported CREATE statement")
	}
}

func (p *parser) parseCreateKeyspace() (Statement, error) {
	ifNotExists := p.matchKeyword("IF") && p.matchKeyword("NOT") && p.matchKeyword("EXISTS")
	name := p.next().text
	rf := 1
	if p.matchKeyword("WITH") {
		if err := p.expectKeyword("REPLICATION"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("="); err != nil {
			return nil, err
		}
		var err error
		rf, err = p.parseReplicationMap()
		if err != nil {
			return nil, err
		}
	}
	return CreateKeyspace{Name: name, ReplicationFactor: rf, IfNotExists: ifNotExists}, nil
}

// parseReplicationMap reads {'class':'SimpleStrategy','replication_factor':N}
// and returns the replication factor; SimpleStrategy is the only supported
// class, per original_source's disk_handler.rs::get_keyspace_replication.
func (p *parser) parseReplicationMap() (int, error) {
	if err := p.expectKeyword("{"); err != nil {
		return 0, err
	}
	rf := 1
	for !p.done() && upper(p.peek()) != "}" {
		key := p.next().text
		if err := p.expectKeyword(":"); err != nil {
			// the tokenizer emits ':' as its own punctuation token, so it is
			// matched here the same way as a keyword.
			return 0, err
		}
		value := p.next().text
		if strings.EqualFold(key, "replication_factor") {
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, fmt.Errorf("invalid replication_factor %q: %w", value, err)
			}
			rf = n
		}
		if upper(p.peek()) == "," {
			p.pos++
		}
	}
	if err := p.expectKeyword("}"); err != nil {
		return 0, err
	}
	return rf, nil
}

func (p *parser) parseAlter() (Statement, error) {
	switch upper(p.next()) {
	case "KEYSPACE":
		name := p.next().text
		if err := p.expectKeyword("WITH"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("REPLICATION"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("="); err != nil {
			return nil, err
		}
		rf, err := p.parseReplicationMap()
		if err != nil {
			return nil, err
		}
		return AlterKeyspace{Name: name, ReplicationFactor: rf}, nil
	case "TABLE":
		qualified := p.next().text
		keyspace, table := splitTableName(qualified)
		switch upper(p.next()) {
		case "ADD":
			col, err := p.parseColumnSpec()
			if err != nil {
				return nil, err
			}
			return AlterTableAdd{Keyspace: keyspace, Table: table, Column: col}, nil
		case "DROP":
			return AlterTableDrop{Keyspace: keyspace, Table: table, Column: p.next().text}, nil
		default:
			return nil, fmt.Errorf("unsupported ALTER TABLE clause")
		}
	default:
		return nil, fmt.Errorf("unsupported ALTER statement")
	}
}

func (p *parser) parseDrop() (Statement, error) {
	switch upper(p.next()) {
	case "KEYSPACE":
		ifExists := p.matchKeyword("IF") && p.matchKeyword("EXISTS")
		return DropKeyspace{Name: p.next().text, IfExists: ifExists}, nil
	case "TABLE":
		ifExists := p.matchKeyword("IF") && p.matchKeyword("EXISTS")
		keyspace, table := splitTableName(p.next().text)
		return DropTable{Keyspace: keyspace, Table: table, IfExists: ifExists}, nil
	default:
		return nil, fmt.Errorf("unsupported DROP statement")
	}
}

func (p *parser) parseColumnSpec() (storage.ColumnSpec, error) {
	name := p.next().text
	typeName := strings.ToLower(p.next().text)
	code, err := dataTypeFor(typeName)
	if err != nil {
		return storage.ColumnSpec{}, err
	}
	return storage.ColumnSpec{Name: name, Type: code}, nil
}

func dataTypeFor(name string) (primitive.DataTypeCode, error) {
	switch name {
	case "int":
		return primitive.DataTypeCodeInt, nil
	case "double":
		return primitive.DataTypeCodeDouble, nil
	case "timestamp":
		return primitive.DataTypeCodeTimestamp, nil
	case "varchar", "text":
		return primitive.DataTypeCodeVarchar, nil
	default:
		return 0, fmt.Errorf("unsupported column type %q", name)
	}
}

func (p *parser) parseCreateTable() (Statement, error) {
	ifNotExists := p.matchKeyword("IF") && p.matchKeyword("NOT") && p.matchKeyword("EXISTS")
	keyspace, table := splitTableName(p.next().text)
	if err := p.expectKeyword("("); err != nil {
		return nil, err
	}
	var columns []storage.ColumnSpec
	var primaryKey storage.PrimaryKey
	for {
		if upper(p.peek()) == "PRIMARY" {
			p.pos++
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			pk, err := p.parsePrimaryKeyClause()
			if err != nil {
				return nil, err
			}
			primaryKey = pk
		} else {
			col, err := p.parseColumnSpec()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
		}
		if upper(p.peek()) == "," {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectKeyword(")"); err != nil {
		return nil, err
	}
	if len(primaryKey.PartitionKeys) == 0 && len(columns) > 0 {
		primaryKey.PartitionKeys = []string{columns[0].Name}
	}
	return CreateTable{Keyspace: keyspace, Table: table, Columns: columns, PrimaryKey: primaryKey, IfNotExists: ifNotExists}, nil
}

// parsePrimaryKeyClause reads ((pk1,pk2), ck1, ck2) or (pk1, ck1, ck2) or
// just (pk1).
func (p *parser) parsePrimaryKeyClause() (storage.PrimaryKey, error) {
	if err := p.expectKeyword("("); err != nil {
		return storage.PrimaryKey{}, err
	}
	var pk storage.PrimaryKey
	if upper(p.peek()) == "(" {
		p.pos++
		for upper(p.peek()) != ")" {
			pk.PartitionKeys = append(pk.PartitionKeys, p.next().text)
			if upper(p.peek()) == "," {
				p.pos++
			}
		}
		p.pos++ // consume ")"
	} else {
		pk.PartitionKeys = []string{p.next().text}
	}
	for upper(p.peek()) == "," {
		p.pos++
		pk.ClusteringKeys = append(pk.ClusteringKeys, p.next().text)
		pk.ClusteringAsc = append(pk.ClusteringAsc, true)
	}
	if err := p.expectKeyword(")"); err != nil {
		return storage.PrimaryKey{}, err
	}
	return pk, nil
}

func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	keyspace, table := splitTableName(p.next().text)
	if err := p.expectKeyword("("); err != nil {
		return nil, err
	}
	var names []string
	for upper(p.peek()) != ")" {
		names = append(names, p.next().text)
		if upper(p.peek()) == "," {
			p.pos++
		}
	}
	p.pos++ // ")"
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("("); err != nil {
		return nil, err
	}
	values := map[string]string{}
	i := 0
	for upper(p.peek()) != ")" {
		if i >= len(names) {
			return nil, fmt.Errorf("more VALUES than column names")
		}
		values[names[i]] = p.next().text
		i++
		if upper(p.peek()) == "," {
			p.pos++
		}
	}
	p.pos++ // ")"
	return Insert{Keyspace: keyspace, Table: table, Values: values}, nil
}

func (p *parser) parseSelect() (Statement, error) {
	for !p.done() && upper(p.peek()) != "FROM" {
		p.pos++ // skip the projection list ("*", column names, ...)
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	keyspace, table := splitTableName(p.next().text)
	var relations []storage.Relation
	var orderBy []storage.OrderTerm
	if p.matchKeyword("WHERE") {
		rs, err := p.parseRelations()
		if err != nil {
			return nil, err
		}
		relations = rs
	}
	if p.matchKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for !p.done() {
			col := p.next().text
			desc := false
			if upper(p.peek()) == "DESC" {
				desc = true
				p.pos++
			} else if upper(p.peek()) == "ASC" {
				p.pos++
			}
			orderBy = append(orderBy, storage.OrderTerm{Column: col, Descending: desc})
			if upper(p.peek()) == "," {
				p.pos++
				continue
			}
			break
		}
	}
	return Select{Keyspace: keyspace, Table: table, Relations: relations, OrderBy: orderBy}, nil
}

func (p *parser) parseRelations() ([]storage.Relation, error) {
	var relations []storage.Relation
	for {
		col := p.next().text
		opText := p.next().text
		op, err := operatorFor(opText)
		if err != nil {
			return nil, err
		}
		value := p.next().text
		relations = append(relations, storage.Relation{Column: col, Operator: op, Value: value})
		if p.matchKeyword("AND") {
			continue
		}
		break
	}
	return relations, nil
}

func operatorFor(text string) (storage.Operator, error) {
	switch text {
	case "=":
		return storage.OperatorEqual, nil
	case "!=":
		return storage.OperatorNotEqual, nil
	case "<":
		return storage.OperatorLess, nil
	case "<=":
		return storage.OperatorLessEqual, nil
	case ">":
		return storage.OperatorGreater, nil
	case ">=":
		return storage.OperatorGreaterEqual, nil
	default:
		return 0, fmt.Errorf("unsupported WHERE operator %q", text)
	}
}

func (p *parser) parseUpdate() (Statement, error) {
	keyspace, table := splitTableName(p.next().text)
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	assignments := map[string]string{}
	for {
		col := p.next().text
		if err := p.expectKeyword("="); err != nil {
			return nil, err
		}
		assignments[col] = p.next().text
		if upper(p.peek()) == "," {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectKeyword("WHERE"); err != nil {
		return nil, err
	}
	relations, err := p.parseRelations()
	if err != nil {
		return nil, err
	}
	return Update{Keyspace: keyspace, Table: table, Assignments: assignments, Relations: relations}, nil
}

func (p *parser) parseDelete() (Statement, error) {
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	keyspace, table := splitTableName(p.next().text)
	var relations []storage.Relation
	if p.matchKeyword("WHERE") {
		rs, err := p.parseRelations()
		if err != nil {
			return nil, err
		}
		relations = rs
	}
	return Delete{Keyspace: keyspace, Table: table, Relations: relations}, nil
}
