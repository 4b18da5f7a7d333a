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

package datasets

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/transform"
	"github.com/aaronlmathis/envetl/validators"
)

// Column names of the wide emissions input and the long output.
const (
	EmissionsColumnPrefix = "emissions"

	ColRegionCode        = "State FIPS"
	ColRegion            = "State"
	ColSourceCode        = "Tier 1 Code"
	ColSourceDescription = "Tier 1 Description"
	ColPollutant         = "Pollutant"

	ColYear      = "Year"
	ColSource    = "Source"
	ColEmissions = "Emissions"
)

// EmissionsRequired lists the identifying columns every emissions table must carry.
var EmissionsRequired = []string{ColRegionCode, ColRegion, ColSourceCode, ColSourceDescription, ColPollutant}

// EmissionsColumns is the column order of the reshaped emissions table.
var EmissionsColumns = []string{ColYear, ColRegion, ColSource, ColPollutant, ColEmissions}

// ProcessEmissions reshapes the wide emissions table, one column per year,
// into one row per (input row, year). Columns named "emissions<digits>", or
// bare "<digits>", are year columns. Missing or non-numeric values become 0.
// Rows are sorted by region abbreviation, pollutant and year, keeping input
// order for ties, and abbreviations are then replaced by full region names.
// The input table is not modified.
func ProcessEmissions(t *core.Table, logger *slog.Logger) (*core.Table, error) {
	logger = loggerOrDefault(logger)

	dqv := validators.NewConfigurableDataQualityValidator(1, EmissionsRequired, validators.WithDataset(NameEmissions))
	if err := dqv.Evaluate(t); err != nil {
		return nil, err
	}

	yearColumns, years := findYearColumns(t.Columns())
	if len(yearColumns) == 0 {
		return nil, &core.NoYearColumnsError{Prefix: EmissionsColumnPrefix}
	}

	names, err := regionNamesByRow(t)
	if err != nil {
		return nil, err
	}

	long, err := transform.Melt(t, EmissionsRequired, yearColumns,
		transform.WithVarName(ColYear),
		transform.WithValueName(ColEmissions),
		transform.WithVarFunc(func(c string) (interface{}, error) { return years[c], nil }),
		transform.WithValueFunc(emissionValue),
	)
	if err != nil {
		return nil, err
	}

	long.SortStable(func(a, b core.Record) bool {
		if ra, rb := cellText(a[ColRegion]), cellText(b[ColRegion]); ra != rb {
			return ra < rb
		}
		if pa, pb := cellText(a[ColPollutant]), cellText(b[ColPollutant]); pa != pb {
			return pa < pb
		}
		return a[ColYear].(int) < b[ColYear].(int)
	})

	long.DropColumns(ColRegionCode, ColSourceCode)
	if err := long.RenameColumn(ColSourceDescription, ColSource); err != nil {
		return nil, err
	}
	for i := 0; i < long.Len(); i++ {
		long.Set(i, ColRegion, names[cellText(long.Value(i, ColRegion))])
	}
	long.Reorder(EmissionsColumns...)

	logger.Info("reshaped emissions",
		"input_rows", t.Len(),
		"year_columns", len(yearColumns),
		"output_rows", long.Len(),
	)
	return long, nil
}

// findYearColumns returns, in column order, every column whose name is all
// digits once the emissions prefix is removed, with the parsed year of each.
func findYearColumns(columns []string) ([]string, map[string]int) {
	var selected []string
	years := make(map[string]int)
	for _, c := range columns {
		residual := strings.TrimPrefix(c, EmissionsColumnPrefix)
		if !isDigits(residual) {
			continue
		}
		year, err := strconv.Atoi(residual)
		if err != nil {
			continue
		}
		selected = append(selected, c)
		years[c] = year
	}
	return selected, years
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// regionNamesByRow checks every input row's abbreviation against the region
// table and returns the abbreviation to name mapping needed for the output.
func regionNamesByRow(t *core.Table) (map[string]string, error) {
	names := make(map[string]string)
	for i := 0; i < t.Len(); i++ {
		abbr := cellText(t.Value(i, ColRegion))
		if _, ok := names[abbr]; ok {
			continue
		}
		name, ok := RegionName(strings.TrimSpace(abbr))
		if !ok {
			return nil, &core.UnknownRegionError{Abbreviation: abbr, Row: i}
		}
		names[abbr] = name
	}
	return names, nil
}

func emissionValue(v interface{}) interface{} {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0.0
		}
		f = parsed
	default:
		return 0.0
	}
	if math.IsNaN(f) {
		return 0.0
	}
	return f
}

func cellText(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
