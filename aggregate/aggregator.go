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

package aggregate

import (
	"context"

	"github.com/aaronlmathis/envetl/core"
)

// Aggregator folds the records of one group into a single value.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(ctx context.Context, record core.Record) error
	// Result returns the aggregated value, or nil when nothing was aggregated.
	Result() interface{}
	// New returns an empty aggregator of the same kind.
	New() Aggregator
}
