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

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/transform"
)

const (
	ColMonth  = "Month"
	ColSector = "Sector"
)

// RenewableRequired lists the key columns of the renewable-energy table.
var RenewableRequired = []string{ColYear, ColMonth, ColSector}

// PreprocessRenewableEnergy cleans the monthly renewable-energy consumption
// table. Year and Month become integers, Sector text, and every other column
// a real-valued energy quantity.
func PreprocessRenewableEnergy(t *core.Table, logger *slog.Logger) (*core.Table, error) {
	logger = loggerOrDefault(logger)

	cleaned, err := clean(NameRenewableEnergy, t, RenewableRequired, logger)
	if err != nil {
		return nil, err
	}

	steps := []core.Transformer{
		transform.ToInt(ColYear),
		transform.ToInt(ColMonth),
		transform.ToString(ColSector),
	}
	for _, c := range cleaned.Columns() {
		switch c {
		case ColYear, ColMonth, ColSector:
		default:
			steps = append(steps, transform.ToFloat(c))
		}
	}

	out, err := transform.ApplyTable(context.Background(), cleaned, steps...)
	if err != nil {
		return nil, err
	}
	out.Reorder(RenewableRequired...)
	return out, nil
}
