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

package runner

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
)

func TestWhereFilter(t *testing.T) {
	ctx := context.Background()
	lo, hi := 1.0, 2.0
	rows := []core.Record{
		{"State": "Alabama", "Pollutant": "CO", "Emissions": 1.5},
		{"State": "Texas", "Pollutant": "NOX", "Emissions": 3.0},
		{"State": "Arizona", "Pollutant": "SO2", "Emissions": nil},
	}

	tests := []struct {
		name  string
		where *config.WhereConfig
		want  []bool
	}{
		{"none", nil, []bool{true, true, true}},
		{"matches", &config.WhereConfig{Conditions: []config.Condition{{Field: "State", Matches: "^A"}}},
			[]bool{true, false, true}},
		{"in and not null", &config.WhereConfig{Conditions: []config.Condition{
			{Field: "Pollutant", In: []interface{}{"CO", "SO2"}},
			{Field: "Emissions", NotNull: true},
		}}, []bool{true, false, false}},
		{"any", &config.WhereConfig{Any: true, Conditions: []config.Condition{
			{Field: "Emissions", Min: &lo, Max: &hi},
			{Field: "State", Equals: "Arizona"},
		}}, []bool{true, false, true}},
		{"not", &config.WhereConfig{Conditions: []config.Condition{{Field: "Pollutant", Equals: "CO", Not: true}}},
			[]bool{false, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := whereFilter(tt.where)
			require.NoError(t, err)
			for i, r := range rows {
				got := true
				if f != nil {
					got, err = f.ShouldInclude(ctx, r)
					require.NoError(t, err)
				}
				assert.Equal(t, tt.want[i], got, r)
			}
		})
	}

	_, err := whereFilter(&config.WhereConfig{Conditions: []config.Condition{{Field: "State", Matches: "["}}})
	assert.Error(t, err)
}

func TestShapeColumns(t *testing.T) {
	in := core.NewTable([]string{"Year", "State", "Source", "Pollutant", "Emissions"},
		core.Record{"Year": 2000, "State": "Ohio", "Source": "Fuel", "Pollutant": "co", "Emissions": 1.0},
	)

	out, err := shapeColumns(context.Background(), in, &config.ColumnsConfig{
		Select: []string{"Year", "State", "Pollutant", "Emissions"},
		Upper:  []string{"Pollutant", "State"},
		Rename: map[string]string{"Year": "year"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"year", "State", "Pollutant", "Emissions"}, out.Columns())
	assert.Equal(t, core.Record{"year": 2000, "State": "OHIO", "Pollutant": "CO", "Emissions": 1.0}, out.Row(0))
	assert.Equal(t, "Ohio", in.Value(0, "State"))

	same, err := shapeColumns(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Same(t, in, same)
}

func TestQualityValidator(t *testing.T) {
	zero := 0.0
	q := &config.QualityConfig{
		MaxNullRate: 0.5,
		Forbidden:   []string{"Address"},
		Fields: map[string]config.FieldRule{
			"State":     {Type: "string", Pattern: "^[A-Z][a-z]+$"},
			"Emissions": {Type: "number", Min: &zero, Finite: true},
		},
	}
	ok := core.NewTable([]string{"State", "Emissions"},
		core.Record{"State": "Ohio", "Emissions": 1.0},
		core.Record{"State": "Texas", "Emissions": 0},
	)

	tests := []struct {
		name  string
		table *core.Table
		rule  string
	}{
		{"valid", ok, ""},
		{"negative", core.NewTable(nil, core.Record{"State": "Ohio", "Emissions": -1.0}), "below minimum"},
		{"infinite", core.NewTable(nil, core.Record{"State": "Ohio", "Emissions": math.Inf(1)}), "custom validation"},
		{"pattern", core.NewTable(nil, core.Record{"State": "OH", "Emissions": 1.0}), "does not match pattern"},
		{"forbidden", core.NewTable(nil, core.Record{"State": "Ohio", "Address": "x"}), "forbidden columns [Address]"},
		{"null rate", core.NewTable(nil,
			core.Record{"State": "Ohio", "Emissions": nil},
			core.Record{"State": "Ohio", "Emissions": nil},
			core.Record{"State": "Ohio", "Emissions": 1.0},
		), "null rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkQuality("emissions", q, tt.table)
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.rule)
		})
	}

	assert.NoError(t, checkQuality("emissions", nil, ok))
}
