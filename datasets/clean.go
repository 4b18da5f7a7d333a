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

// Package datasets holds the per-dataset transforms: the emissions reshape and
// the renewable-energy and pollution cleaners, plus the descriptors the runner
// uses to drive them.
package datasets

import (
	"log/slog"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/transform"
	"github.com/aaronlmathis/envetl/validators"
)

// clean runs the steps shared by the cleaners: the validation gate, exact
// duplicate removal keeping the first row, then forward and backward fill.
// Fill treats row order as the time axis; both datasets are monthly or daily
// series where a gap is best filled from its neighbours.
func clean(dataset string, t *core.Table, required []string, logger *slog.Logger) (*core.Table, error) {
	dqv := validators.NewConfigurableDataQualityValidator(1, required, validators.WithDataset(dataset))
	if err := dqv.Evaluate(t); err != nil {
		return nil, err
	}

	deduped, removed := transform.DropDuplicates(t)
	logger.Info("removed duplicate rows", "dataset", dataset, "removed", removed, "remaining", deduped.Len())

	filled, cells := transform.FillMissing(deduped)
	logger.Debug("filled missing values", "dataset", dataset, "cells", cells)
	return filled, nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
