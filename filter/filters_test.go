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

package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

func include(t *testing.T, f core.Filter, r core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestIn(t *testing.T) {
	f := InStrings("State", []string{"Alabama", "Texas"})
	assert.True(t, include(t, f, core.Record{"State": "Texas"}))
	assert.False(t, include(t, f, core.Record{"State": "Ohio"}))
	assert.False(t, include(t, f, core.Record{"State": nil}))
	assert.False(t, include(t, f, core.Record{}))

	years := In("Year", 1990, 1991)
	assert.True(t, include(t, years, core.Record{"Year": 1990}))
	assert.True(t, include(t, years, core.Record{"Year": 1991.0}))
	assert.False(t, include(t, years, core.Record{"Year": "1990"}))
}

func TestEqualsAndNotNull(t *testing.T) {
	assert.True(t, include(t, Equals("Pollutant", "CO"), core.Record{"Pollutant": "CO"}))
	assert.False(t, include(t, Equals("Pollutant", "CO"), core.Record{"Pollutant": "NOX"}))

	assert.True(t, include(t, NotNull("a"), core.Record{"a": 0}))
	assert.False(t, include(t, NotNull("a"), core.Record{"a": ""}))
	assert.False(t, include(t, NotNull("a"), core.Record{"a": nil}))
}

func TestBetween(t *testing.T) {
	f := Between("Year", 2000, 2010)
	assert.True(t, include(t, f, core.Record{"Year": 2000}))
	assert.True(t, include(t, f, core.Record{"Year": 2010.0}))
	assert.False(t, include(t, f, core.Record{"Year": 1999}))
	assert.False(t, include(t, f, core.Record{"Year": "2005"}))
}

func TestMatchesRegex(t *testing.T) {
	f, err := MatchesRegex("Source", `^Fuel Comb`)
	require.NoError(t, err)
	assert.True(t, include(t, f, core.Record{"Source": "Fuel Comb. Elec. Util."}))
	assert.False(t, include(t, f, core.Record{"Source": 3}))

	_, err = MatchesRegex("Source", `(`)
	assert.Error(t, err)
}

func TestCombinators(t *testing.T) {
	texas := Equals("State", "Texas")
	recent := Between("Year", 2020, 2030)
	r := core.Record{"State": "Texas", "Year": 2021}

	assert.True(t, include(t, And(texas, recent), r))
	assert.False(t, include(t, And(texas, Not(recent)), r))
	assert.True(t, include(t, Or(Not(texas), recent), r))
	assert.False(t, include(t, Or(), r))
	assert.True(t, include(t, And(), r))

	boom := errors.New("boom")
	failing := core.FilterFunc(func(context.Context, core.Record) (bool, error) { return false, boom })
	_, err := And(texas, failing).ShouldInclude(context.Background(), r)
	assert.ErrorIs(t, err, boom)
	_, err = Not(failing).ShouldInclude(context.Background(), r)
	assert.ErrorIs(t, err, boom)
}
