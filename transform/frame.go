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

package transform

import (
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/aaronlmathis/envetl/core"
)

// DropDuplicates returns a copy of t without rows that exactly repeat an
// earlier row, and the number of rows removed. The first occurrence is kept
// and row order is preserved. Rows are bucketed by an xxh3 hash of their
// cells and compared cell by cell within a bucket.
func DropDuplicates(t *core.Table) (*core.Table, int) {
	columns := t.Columns()
	out := core.NewTable(columns)
	buckets := make(map[uint64][]core.Record, t.Len())
	removed := 0

	var buf []byte
	for _, row := range t.Rows() {
		buf = encodeRow(buf[:0], columns, row)
		sum := xxh3.Hash(buf)

		dup := false
		for _, seen := range buckets[sum] {
			if rowsEqual(columns, seen, row) {
				dup = true
				break
			}
		}
		if dup {
			removed++
			continue
		}
		kept := row.Clone()
		buckets[sum] = append(buckets[sum], kept)
		out.Append(kept)
	}
	return out, removed
}

// FillMissing returns a copy of t where every missing cell is replaced by the
// nearest earlier value in its column, and cells still missing after that (a
// leading gap) by the nearest later value. Row order is treated as the time
// axis. A column with no values at all stays missing. The second result is
// the number of cells filled.
func FillMissing(t *core.Table) (*core.Table, int) {
	out := t.Clone()
	rows := out.Rows()
	filled := 0
	for _, col := range out.Columns() {
		var last interface{}
		for _, r := range rows {
			if v := r[col]; !isMissing(v) {
				last = v
			} else if last != nil {
				r[col] = last
				filled++
			}
		}
		var next interface{}
		for i := len(rows) - 1; i >= 0; i-- {
			if v := rows[i][col]; !isMissing(v) {
				next = v
			} else if next != nil {
				rows[i][col] = next
				filled++
			}
		}
	}
	return out, filled
}

// NormalizeNumeric returns a copy of t where every column holding both
// integer and real values holds only float64 values. When columns is empty
// all columns are considered.
func NormalizeNumeric(t *core.Table, columns ...string) *core.Table {
	out := t.Clone()
	if len(columns) == 0 {
		columns = out.Columns()
	}
	for _, c := range out.Schema() {
		if c.Kind != core.KindReal || !contains(columns, c.Name) {
			continue
		}
		for _, r := range out.Rows() {
			if v, ok := r[c.Name]; ok && v != nil {
				if f, ok := asFloat(v); ok {
					r[c.Name] = f
				}
			}
		}
	}
	return out
}

func isMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

const cellSep = 0x1f

// encodeRow appends a type-tagged encoding of the row's cells to buf.
// Integers and reals share the numeric tag so 0 and 0.0 land in one bucket.
func encodeRow(buf []byte, columns []string, row core.Record) []byte {
	for _, c := range columns {
		switch v := row[c].(type) {
		case nil:
			buf = append(buf, 'n')
		case string:
			buf = append(buf, 's')
			buf = append(buf, v...)
		case int:
			buf = append(buf, 'f')
			buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 64)
		case int64:
			buf = append(buf, 'f')
			buf = strconv.AppendFloat(buf, float64(v), 'g', -1, 64)
		case float64:
			if math.IsNaN(v) {
				buf = append(buf, 'n')
				break
			}
			buf = append(buf, 'f')
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
		case bool:
			buf = append(buf, 'b')
			buf = strconv.AppendBool(buf, v)
		case time.Time:
			buf = append(buf, 't')
			buf = strconv.AppendInt(buf, v.UnixNano(), 10)
		default:
			buf = append(buf, 'x')
			buf = append(buf, reflect.TypeOf(v).String()...)
		}
		buf = append(buf, cellSep)
	}
	return buf
}

func rowsEqual(columns []string, a, b core.Record) bool {
	for _, c := range columns {
		va, vb := a[c], b[c]
		if isMissing(va) && isMissing(vb) {
			continue
		}
		if fa, ok := asFloat(va); ok {
			fb, ok := asFloat(vb)
			if !ok || !numbersEqual(va, vb, fa, fb) {
				return false
			}
			continue
		}
		if ta, ok := va.(time.Time); ok {
			tb, ok := vb.(time.Time)
			if !ok || !ta.Equal(tb) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(va, vb) {
			return false
		}
	}
	return true
}

// numbersEqual compares integers exactly and anything involving a real by value.
func numbersEqual(va, vb interface{}, fa, fb float64) bool {
	ia, aInt := asInt64(va)
	ib, bInt := asInt64(vb)
	if aInt && bInt {
		return ia == ib
	}
	return fa == fb
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
