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

// Package auth implements the admitted-user credential store the session
// handler consults on AUTH_RESPONSE: a flat `users.csv` of `user,password`
// lines, loaded once at startup. Modeled on internal/registry's LoadCSV —
// a small in-memory map built from a header-plus-rows text file, no driver.
package auth

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Store is an admitted-user list checked on every AUTH_RESPONSE.
type Store struct {
	passwords map[string]string
}

// NewStore builds a Store from an explicit user->password map, primarily
// for tests and in-process fixtures.
func NewStore(passwords map[string]string) *Store {
	cp := make(map[string]string, len(passwords))
	for user, pass := range passwords {
		cp[user] = pass
	}
	return &Store{passwords: cp}
}

// LoadCSV reads a `users.csv` file: a header row followed by `user,password`
// lines.
func LoadCSV(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open user credential store %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read user credential store %q: %w", path, err)
	}
	passwords := make(map[string]string)
	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("user credential store %q: line %d has fewer than 2 fields", path, i+1)
		}
		passwords[record[0]] = record[1]
	}
	return &Store{passwords: passwords}, nil
}

// Authenticate reports whether user/password matches an admitted user.
func (s *Store) Authenticate(user, password string) bool {
	want, ok := s.passwords[user]
	return ok && want == password
}
