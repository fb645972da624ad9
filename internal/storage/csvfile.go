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
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ringkeeper/cqlstore/internal/clusterstate"
)

// csvFile wraps one replica's table CSV file: a header row of column names
// (always ending in row_timestamp) followed by one row per stored record.
type csvFile struct {
	path    string
	columns []string // includes the trailing row_timestamp column
}

// createCSVFile writes a brand-new table file with just the header row,
// mirroring create_table_csv_file in original_source's disk_handler.rs.
func createCSVFile(nodeId clusterstate.NodeId, keyspace, table string, ownerId clusterstate.NodeId, columnNames []string) (*csvFile, error) {
	dir := KeyspaceDir(nodeId, keyspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create keyspace directory %q: %w", dir, err)
	}
	path := TableFilePath(nodeId, keyspace, table, ownerId)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("table file %q already exists", path)
	}
	columns := append(append([]string{}, columnNames...), "row_timestamp")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create table file %q: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write table header %q: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush table header %q: %w", path, err)
	}
	return &csvFile{path: path, columns: columns}, nil
}

// openCSVFile opens an existing table file and reads back its header.
func openCSVFile(nodeId clusterstate.NodeId, keyspace, table string, ownerId clusterstate.NodeId) (*csvFile, error) {
	path := TableFilePath(nodeId, keyspace, table, ownerId)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table file %q: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read table header %q: %w", path, err)
	}
	return &csvFile{path: path, columns: header}, nil
}

func deleteCSVFile(nodeId clusterstate.NodeId, keyspace, table string, ownerId clusterstate.NodeId) error {
	path := TableFilePath(nodeId, keyspace, table, ownerId)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete table file %q: %w", path, err)
	}
	return nil
}

// rows reads every data row (excluding the header) as raw strings.
func (f *csvFile) rows() ([][]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open table file %q: %w", f.path, err)
	}
	defer file.Close()
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table rows %q: %w", f.path, err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[1:], nil
}

// rewrite truncates the file and writes the header plus the given rows,
// used by both repair and in-place update/delete.
func (f *csvFile) rewrite(rows [][]string) error {
	tmpPath := f.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp table file %q: %w", tmpPath, err)
	}
	w := csv.NewWriter(file)
	if err := w.Write(f.columns); err != nil {
		file.Close()
		return fmt.Errorf("write table header %q: %w", tmpPath, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			file.Close()
			return fmt.Errorf("write table row %q: %w", tmpPath, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("flush table file %q: %w", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp table file %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace table file %q: %w", f.path, err)
	}
	return nil
}

// append adds one row to the end of the file without rewriting it.
func (f *csvFile) append(row []string) error {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open table file for append %q: %w", f.path, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("append table row %q: %w", f.path, err)
	}
	w.Flush()
	return w.Error()
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %q: %w", path, err)
	}
	return nil
}
