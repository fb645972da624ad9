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

// Package cqlstmt turns CQL query text into a small statement AST the
// coordinator can plan and execute, grounded in
// original_source/src/parser/statements and its keyword/relation grammar,
// but written as a small hand-rolled tokenizer and recursive parser rather
// than translated from the Rust pest grammar.
package cqlstmt

import (
	"strings"
)

// token is one lexical unit: an identifier/keyword, a quoted string
// literal, a number, a single-character punctuation mark, or a comparison
// operator.
type token struct {
	text     string
	isString bool
}

// tokenize splits CQL text into tokens, treating single-quoted strings as
// one token (unescaped, since this store never stores embedded quotes) and
// each of ( ) , ; = { } : as its own token. < > ! form one token together
// with an immediately following =, so <=, >= and != are single tokens.
func tokenize(text string) []token {
	var tokens []token
	runes := []rune(strings.TrimSpace(text))
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			tokens = append(tokens, token{text: string(runes[i+1 : j]), isString: true})
			i = j + 1
		case strings.ContainsRune("(),;={}:", r):
			tokens = append(tokens, token{text: string(r)})
			i++
		case r == '<' || r == '>' || r == '!':
			j := i + 1
			if j < len(runes) && runes[j] == '=' {
				j++
			}
			tokens = append(tokens, token{text: string(runes[i:j])})
			i = j
		default:
			j := i
			for j < len(runes) && !strings.ContainsRune(" \t\n\r(),;={}:<>!'", runes[j]) {
				j++
			}
			tokens = append(tokens, token{text: string(runes[i:j])})
			i = j
		}
	}
	return tokens
}

func upper(t token) string { return strings.ToUpper(t.text) }
