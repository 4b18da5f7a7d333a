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
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaError_ListsEveryMissingColumn(t *testing.T) {
	err := &SchemaError{Dataset: "emissions", Missing: []string{"State", "Pollutant"}}
	assert.Contains(t, err.Error(), "State, Pollutant")
	assert.Contains(t, err.Error(), "emissions")
}

func TestIsInputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"empty", &EmptyInputError{}, true},
		{"schema", &SchemaError{Missing: []string{"x"}}, true},
		{"no years", &NoYearColumnsError{Prefix: "emissions"}, true},
		{"region", &UnknownRegionError{Abbreviation: "ZZ"}, true},
		{"date", &DateParseError{Column: "Date", Err: errors.New("bad")}, true},
		{"coercion", &CoercionError{Column: "Year", Err: errors.New("bad")}, true},
		{"wrapped", fmt.Errorf("emissions: %w", &UnknownRegionError{Abbreviation: "ZZ"}), true},
		{"io", io.ErrUnexpectedEOF, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInputError(tt.err))
		})
	}
}

func TestDateParseError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &DateParseError{Column: "Date", Row: 3, Value: "x", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "row 3")
}
