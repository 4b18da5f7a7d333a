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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	headers []string
	rows    []Record
	pos     int
}

func (s *sliceSource) Read(ctx context.Context) (Record, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Headers() []string { return s.headers }
func (s *sliceSource) Close() error      { return nil }

func TestTable_AppendAddsColumns(t *testing.T) {
	tbl := NewTable([]string{"b", "a"})
	tbl.Append(Record{"a": 1, "b": 2, "d": 3, "c": 4})

	assert.Equal(t, []string{"b", "a", "c", "d"}, tbl.Columns())
	assert.Equal(t, 1, tbl.Len())
	assert.Nil(t, tbl.Value(0, "missing"))
}

func TestTable_CloneIsIndependent(t *testing.T) {
	orig := NewTable([]string{"x"}, Record{"x": 1})
	cp := orig.Clone()
	cp.Set(0, "x", 99)
	cp.Set(0, "y", "new")

	assert.Equal(t, 1, orig.Value(0, "x"))
	assert.False(t, orig.HasColumn("y"))
	assert.Equal(t, []string{"x", "y"}, cp.Columns())
}

func TestTable_DropRenameReorder(t *testing.T) {
	tbl := NewTable([]string{"a", "b", "c", "d"},
		Record{"a": 1, "b": 2, "c": 3, "d": 4},
	)

	tbl.DropColumns("b", "not-there")
	assert.Equal(t, []string{"a", "c", "d"}, tbl.Columns())
	_, ok := tbl.Row(0)["b"]
	assert.False(t, ok)

	require.NoError(t, tbl.RenameColumn("c", "see"))
	assert.Equal(t, []string{"a", "see", "d"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Value(0, "see"))

	assert.Error(t, tbl.RenameColumn("nope", "x"))
	assert.Error(t, tbl.RenameColumn("a", "d"))

	tbl.Reorder("d", "ghost", "see")
	assert.Equal(t, []string{"d", "see", "a"}, tbl.Columns())
}

func TestTable_SortStableKeepsTies(t *testing.T) {
	tbl := NewTable([]string{"k", "seq"},
		Record{"k": "b", "seq": 1},
		Record{"k": "a", "seq": 2},
		Record{"k": "b", "seq": 3},
		Record{"k": "a", "seq": 4},
	)
	tbl.SortStable(func(a, b Record) bool { return a["k"].(string) < b["k"].(string) })

	var seq []int
	for _, r := range tbl.Rows() {
		seq = append(seq, r["seq"].(int))
	}
	assert.Equal(t, []int{2, 4, 1, 3}, seq)
}

func TestTable_Filter(t *testing.T) {
	tbl := NewTable([]string{"n"}, Record{"n": 1}, Record{"n": 2}, Record{"n": 3})
	tbl.Filter(func(_ int, r Record) bool { return r["n"].(int)%2 == 1 })
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 3, tbl.Value(1, "n"))
}

func TestTable_Schema(t *testing.T) {
	now := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := NewTable([]string{"i", "f", "mixed", "s", "ts", "b", "empty"},
		Record{"i": 1, "f": 1.5, "mixed": 1, "s": "x", "ts": now, "b": true},
		Record{"i": nil, "f": 2.5, "mixed": 2.5, "s": 3, "ts": now, "b": false},
	)

	kinds := map[string]ColumnKind{}
	for _, c := range tbl.Schema() {
		kinds[c.Name] = c.Kind
	}
	assert.Equal(t, KindInteger, kinds["i"])
	assert.Equal(t, KindReal, kinds["f"])
	assert.Equal(t, KindReal, kinds["mixed"])
	assert.Equal(t, KindText, kinds["s"])
	assert.Equal(t, KindTimestamp, kinds["ts"])
	assert.Equal(t, KindBoolean, kinds["b"])
	assert.Equal(t, KindText, kinds["empty"])
}

func TestReadTable_UsesHeaders(t *testing.T) {
	src := &sliceSource{
		headers: []string{"z", "a"},
		rows:    []Record{{"a": 1, "z": 2}, {"a": 3, "z": nil}},
	}
	tbl, err := ReadTable(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
}

func TestTable_SourceRoundTrip(t *testing.T) {
	tbl := NewTable([]string{"a", "b"}, Record{"a": 1}, Record{"a": 2, "b": "x"})
	out, err := ReadTable(context.Background(), tbl.Source())
	require.NoError(t, err)

	assert.Equal(t, tbl.Columns(), out.Columns())
	first := out.Row(0)
	v, ok := first["b"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestReadTable_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	src := &failingSource{err: boom}
	_, err := ReadTable(context.Background(), src)
	assert.ErrorIs(t, err, boom)
}

type failingSource struct{ err error }

func (f *failingSource) Read(context.Context) (Record, error) { return nil, f.err }
func (f *failingSource) Close() error                         { return nil }
