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
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

func TestMelt(t *testing.T) {
	in := core.NewTable([]string{"id", "2001", "2002"},
		core.Record{"id": "a", "2001": 1.0, "2002": 2.0},
		core.Record{"id": "b", "2001": nil, "2002": 4.0},
	)

	out, err := Melt(in, []string{"id"}, []string{"2001", "2002"},
		WithVarName("Year"),
		WithValueName("Value"),
		WithVarFunc(func(c string) (interface{}, error) { return strconv.Atoi(c) }),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "Year", "Value"}, out.Columns())
	require.Equal(t, 4, out.Len())
	assert.Equal(t, core.Record{"id": "a", "Year": 2001, "Value": 1.0}, out.Row(0))
	assert.Equal(t, core.Record{"id": "a", "Year": 2002, "Value": 2.0}, out.Row(1))
	assert.Equal(t, core.Record{"id": "b", "Year": 2001, "Value": nil}, out.Row(2))
}

func TestMelt_Defaults(t *testing.T) {
	in := core.NewTable([]string{"k", "x"}, core.Record{"k": 1, "x": "v"})
	out, err := Melt(in, []string{"k"}, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "variable", "value"}, out.Columns())
	assert.Equal(t, "x", out.Value(0, "variable"))
}

func TestMelt_UnknownColumn(t *testing.T) {
	in := core.NewTable([]string{"k"}, core.Record{"k": 1})
	_, err := Melt(in, []string{"k"}, []string{"nope"})
	assert.Error(t, err)
}

func TestMelt_ValueFunc(t *testing.T) {
	in := core.NewTable([]string{"k", "x"}, core.Record{"k": 1, "x": nil})
	out, err := Melt(in, []string{"k"}, []string{"x"}, WithValueFunc(func(v interface{}) interface{} {
		if v == nil {
			return 0.0
		}
		return v
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Value(0, "value"))
}
