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
	"context"
	"log/slog"
	"time"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/transform"
)

const (
	ColDate = "Date"
	ColDay  = "Day"
)

// PollutionRequired lists the columns the pollution cleaner depends on.
var PollutionRequired = []string{ColDate, ColRegion}

// PollutionDropColumns are free-text identifiers removed from the pollution
// table. Names the input lacks are ignored.
var PollutionDropColumns = []string{"Unnamed: 0", "City", "County", "Address"}

// PollutionDateLayouts are tried in order when parsing the Date column.
var PollutionDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

// PreprocessPollution cleans the daily air-pollution table: dates are parsed,
// identifying free-text columns dropped, State trimmed, and integer Year,
// Month and Day derived from the date.
func PreprocessPollution(t *core.Table, logger *slog.Logger) (*core.Table, error) {
	logger = loggerOrDefault(logger)

	cleaned, err := clean(NamePollution, t, PollutionRequired, logger)
	if err != nil {
		return nil, err
	}

	out, err := transform.ApplyTable(context.Background(), cleaned,
		transform.ParseTime(ColDate, PollutionDateLayouts...),
		transform.AddField(ColDate, func(r core.Record) interface{} { return utcMidnight(r[ColDate]) }),
		transform.RemoveFields(PollutionDropColumns...),
		transform.TrimSpace(ColRegion),
		transform.DateParts(ColDate, ColYear, ColMonth, ColDay),
	)
	if err != nil {
		return nil, err
	}

	// declared columns with no cells survive ApplyTable
	out.DropColumns(PollutionDropColumns...)

	var stats []string
	for _, c := range out.Columns() {
		switch c {
		case ColYear, ColMonth, ColDay, ColDate, ColRegion:
		default:
			stats = append(stats, c)
		}
	}
	if len(stats) > 0 {
		out = transform.NormalizeNumeric(out, stats...)
	}
	out.Reorder(ColYear, ColMonth, ColDay, ColDate, ColRegion)
	return out, nil
}

// utcMidnight truncates a timestamp to the start of its UTC day.
func utcMidnight(v interface{}) interface{} {
	ts, ok := v.(time.Time)
	if !ok {
		return v
	}
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
