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
	"log/slog"

	"github.com/aaronlmathis/envetl/core"
)

// Dataset names, which double as the default output table names.
const (
	NameRenewableEnergy = "renewable_energy"
	NamePollution       = "pollution"
	NameEmissions       = "emissions"
)

// ProcessFunc transforms a raw table into its loadable form.
type ProcessFunc func(t *core.Table, logger *slog.Logger) (*core.Table, error)

// Summary names the grouping logged after a dataset is transformed. Every
// group gets a row count; Sum adds a total and Range the mean, minimum and
// maximum of a column.
type Summary struct {
	GroupBy []string
	Sum     string
	Range   string
}

// Dataset describes one of the pipeline's independent datasets.
type Dataset struct {
	Name         string
	Table        string
	RegionColumn string
	Required     []string
	Process      ProcessFunc
	Summary      Summary
}

// All returns the datasets in the order they are run sequentially.
func All() []Dataset {
	return []Dataset{
		{
			Name:     NameRenewableEnergy,
			Table:    NameRenewableEnergy,
			Required: RenewableRequired,
			Process:  PreprocessRenewableEnergy,
			Summary:  Summary{GroupBy: []string{ColSector}, Sum: "Total Renewable Energy", Range: "Total Renewable Energy"},
		},
		{
			Name:         NamePollution,
			Table:        NamePollution,
			RegionColumn: ColRegion,
			Required:     PollutionRequired,
			Process:      PreprocessPollution,
			Summary:      Summary{GroupBy: []string{ColRegion}, Range: "O3 Mean"},
		},
		{
			Name:         NameEmissions,
			Table:        NameEmissions,
			RegionColumn: ColRegion,
			Required:     EmissionsRequired,
			Process:      ProcessEmissions,
			Summary:      Summary{GroupBy: []string{ColPollutant}, Sum: ColEmissions, Range: ColEmissions},
		},
	}
}

// Lookup finds a dataset by name.
func Lookup(name string) (Dataset, bool) {
	for _, d := range All() {
		if d.Name == name {
			return d, true
		}
	}
	return Dataset{}, false
}
