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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

func TestDropDuplicates(t *testing.T) {
	in := core.NewTable([]string{"a", "b"},
		core.Record{"a": 1, "b": "x"},
		core.Record{"a": 2, "b": "y"},
		core.Record{"a": 1, "b": "x"},
		core.Record{"a": 1, "b": nil},
		core.Record{"a": 1},
	)

	out, removed := DropDuplicates(in)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, 2, out.Value(1, "a"))
	assert.Nil(t, out.Value(2, "b"))
	assert.Equal(t, 5, in.Len())
}

func TestDropDuplicates_NumbersCompareByValue(t *testing.T) {
	in := core.NewTable([]string{"v"},
		core.Record{"v": "1"},
		core.Record{"v": 1},
		core.Record{"v": 1.0},
		core.Record{"v": int64(1)},
		core.Record{"v": 1.5},
	)
	out, removed := DropDuplicates(in)
	assert.Equal(t, 2, removed)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "1", out.Value(0, "v"))
	assert.Equal(t, 1, out.Value(1, "v"))
	assert.Equal(t, 1.5, out.Value(2, "v"))
}

func TestFillMissing(t *testing.T) {
	in := core.NewTable([]string{"a", "b", "empty"},
		core.Record{"a": nil, "b": 1.0},
		core.Record{"a": 10, "b": math.NaN()},
		core.Record{"a": nil, "b": nil},
		core.Record{"a": 30, "b": 4.0},
	)

	out, filled := FillMissing(in)
	assert.Equal(t, 4, filled)

	var as []interface{}
	var bs []interface{}
	for _, r := range out.Rows() {
		as = append(as, r["a"])
		bs = append(bs, r["b"])
	}
	assert.Equal(t, []interface{}{10, 10, 10, 30}, as)
	assert.Equal(t, []interface{}{1.0, 1.0, 1.0, 4.0}, bs)
	assert.Nil(t, out.Value(0, "empty"))

	assert.Nil(t, in.Value(0, "a"))
}

func TestFillMissing_Deterministic(t *testing.T) {
	in := core.NewTable([]string{"a"}, core.Record{"a": nil}, core.Record{"a": 2}, core.Record{"a": nil})
	first, _ := FillMissing(in)
	second, _ := FillMissing(in)
	assert.Equal(t, first.Rows(), second.Rows())
}

func TestNormalizeNumeric(t *testing.T) {
	in := core.NewTable([]string{"mixed", "ints", "text"},
		core.Record{"mixed": 1, "ints": 1, "text": "a"},
		core.Record{"mixed": 2.5, "ints": 2, "text": "b"},
	)
	out := NormalizeNumeric(in)
	assert.Equal(t, 1.0, out.Value(0, "mixed"))
	assert.Equal(t, 1, out.Value(0, "ints"))
	assert.Equal(t, "a", out.Value(0, "text"))
}
