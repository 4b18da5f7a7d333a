//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of envetl.
//
// envetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// envetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with envetl. If not, see https://www.gnu.org/licenses/.

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// ColumnKind is the storage kind of a column, inferred from its values.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindReal
	KindTimestamp
	KindBoolean
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindTimestamp:
		return "timestamp"
	case KindBoolean:
		return "boolean"
	default:
		return "text"
	}
}

// Column describes one column of a Table.
type Column struct {
	Name string
	Kind ColumnKind
}

// Table is an in-memory, ordered set of rows sharing one ordered column list.
// A key absent from a row reads as a missing value.
//
// Table methods that change the table do so in place; transforms that must
// leave their input untouched work on a Clone.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Record
}

// NewTable creates a table with the given column order and rows. Keys found in
// rows but not in columns are appended to the column list in sorted order.
func NewTable(columns []string, rows ...Record) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns the i-th row. The record is shared with the table.
func (t *Table) Row(i int) Record {
	return t.rows[i]
}

// Rows returns the rows in order. The records are shared with the table.
func (t *Table) Rows() []Record {
	return append([]Record(nil), t.rows...)
}

// Value returns the cell at row i, column name, or nil when missing.
func (t *Table) Value(i int, name string) interface{} {
	return t.rows[i][name]
}

// Set stores a cell, adding the column if the table does not have it yet.
func (t *Table) Set(i int, name string, value interface{}) {
	t.AddColumn(name)
	t.rows[i][name] = value
}

// AddColumn appends a column to the column list if it is not present.
func (t *Table) AddColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
}

// Append adds a row at the end of the table.
func (t *Table) Append(r Record) {
	if r == nil {
		r = make(Record)
	}
	var extra []string
	for k := range r {
		if _, ok := t.index[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		t.AddColumn(k)
	}
	t.rows = append(t.rows, r)
}

// Clone returns a copy of the table whose rows can be changed without
// affecting the original.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: t.Columns(),
		index:   make(map[string]int, len(t.columns)),
		rows:    make([]Record, len(t.rows)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for i, r := range t.rows {
		out.rows[i] = r.Clone()
	}
	return out
}

// DropColumns removes the named columns. Names the table does not have are ignored.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		if t.HasColumn(n) {
			drop[n] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := t.columns[:0]
	for _, c := range t.columns {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	t.columns = kept
	t.reindex()
	for _, r := range t.rows {
		for n := range drop {
			delete(r, n)
		}
	}
}

// RenameColumn renames a column in place, keeping its position.
func (t *Table) RenameColumn(from, to string) error {
	pos, ok := t.index[from]
	if !ok {
		return fmt.Errorf("rename: no column %q", from)
	}
	if from == to {
		return nil
	}
	if t.HasColumn(to) {
		return fmt.Errorf("rename: column %q already exists", to)
	}
	t.columns[pos] = to
	delete(t.index, from)
	t.index[to] = pos
	for _, r := range t.rows {
		if v, ok := r[from]; ok {
			r[to] = v
			delete(r, from)
		}
	}
	return nil
}

// Reorder moves the named columns to the front in the given order. The
// remaining columns keep their relative order; absent names are ignored.
func (t *Table) Reorder(first ...string) {
	seen := make(map[string]bool, len(first))
	ordered := make([]string, 0, len(t.columns))
	for _, n := range first {
		if t.HasColumn(n) && !seen[n] {
			ordered = append(ordered, n)
			seen[n] = true
		}
	}
	for _, c := range t.columns {
		if !seen[c] {
			ordered = append(ordered, c)
		}
	}
	t.columns = ordered
	t.reindex()
}

// SortStable sorts rows with less, keeping equal rows in their current order.
func (t *Table) SortStable(less func(a, b Record) bool) {
	sort.SliceStable(t.rows, func(i, j int) bool {
		return less(t.rows[i], t.rows[j])
	})
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(i int, r Record) bool) {
	kept := t.rows[:0]
	for i, r := range t.rows {
		if keep(i, r) {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(t.rows); i++ {
		t.rows[i] = nil
	}
	t.rows = kept
}

// Schema infers the kind of every column from all of its non-missing values.
// A column mixing integers and reals is real; any other mix, or a column with
// no values at all, is text.
func (t *Table) Schema() []Column {
	cols := make([]Column, len(t.columns))
	for i, name := range t.columns {
		cols[i] = Column{Name: name, Kind: t.inferKind(name)}
	}
	return cols
}

func (t *Table) inferKind(name string) ColumnKind {
	var ints, reals, texts, times, bools int
	for _, r := range t.rows {
		switch r[name].(type) {
		case nil:
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			ints++
		case float32, float64:
			reals++
		case time.Time:
			times++
		case bool:
			bools++
		default:
			texts++
		}
	}
	switch {
	case texts > 0:
		return KindText
	case times > 0 && ints+reals+bools == 0:
		return KindTimestamp
	case bools > 0 && ints+reals+times == 0:
		return KindBoolean
	case reals > 0 && times+bools == 0:
		return KindReal
	case ints > 0 && times+bools == 0:
		return KindInteger
	default:
		return KindText
	}
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// Source returns a DataSource streaming the table's rows in order. Each
// record carries every column, with nil for missing cells.
func (t *Table) Source() DataSource {
	return &tableSource{table: t}
}

type tableSource struct {
	table *Table
	pos   int
}

func (s *tableSource) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.table.rows) {
		return nil, io.EOF
	}
	src := s.table.rows[s.pos]
	s.pos++
	out := make(Record, len(s.table.columns))
	for _, c := range s.table.columns {
		out[c] = src[c]
	}
	return out, nil
}

func (s *tableSource) Headers() []string {
	return s.table.Columns()
}

func (s *tableSource) Close() error {
	return nil
}

// ReadTable drains src into a Table. When src implements ColumnLister its
// column order is kept; otherwise columns appear in first-seen order.
// The source is not closed.
func ReadTable(ctx context.Context, src DataSource) (*Table, error) {
	var columns []string
	if lister, ok := src.(ColumnLister); ok {
		columns = lister.Headers()
	}
	t := NewTable(columns)
	for {
		rec, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Append(rec)
	}
	// a lister may only learn its headers after the first read
	if len(columns) == 0 {
		if lister, ok := src.(ColumnLister); ok {
			if h := lister.Headers(); len(h) > 0 {
				t.Reorder(h...)
			}
		}
	}
	return t, nil
}
