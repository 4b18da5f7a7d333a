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

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/filter"
	"github.com/aaronlmathis/envetl/transform"
)

// shapeColumns applies a dataset's column settings to its transformed
// table. Columns keep the transformed order.
func shapeColumns(ctx context.Context, t *core.Table, cc *config.ColumnsConfig) (*core.Table, error) {
	if cc == nil {
		return t, nil
	}
	var steps []core.Transformer
	if len(cc.Select) > 0 {
		steps = append(steps, transform.Select(cc.Select...))
	}
	if len(cc.Drop) > 0 {
		steps = append(steps, transform.RemoveFields(cc.Drop...))
	}
	if len(cc.Upper) > 0 {
		steps = append(steps, transform.ToUpper(cc.Upper...))
	}
	if len(cc.Lower) > 0 {
		steps = append(steps, transform.ToLower(cc.Lower...))
	}
	if len(cc.Rename) > 0 {
		steps = append(steps, transform.Rename(cc.Rename))
	}
	if len(steps) == 0 {
		return t, nil
	}

	out, err := transform.ApplyTable(ctx, t, steps...)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		order = append(order, loadedName(cc, c))
	}
	out.Reorder(order...)
	return out, nil
}

// loadedName is the name a transformed column is loaded under.
func loadedName(cc *config.ColumnsConfig, column string) string {
	if cc != nil {
		if to, ok := cc.Rename[column]; ok {
			return to
		}
	}
	return column
}

// whereFilter combines a dataset's where conditions into one filter, or
// returns nil when there are none.
func whereFilter(w *config.WhereConfig) (core.Filter, error) {
	if w == nil || len(w.Conditions) == 0 {
		return nil, nil
	}
	parts := make([]core.Filter, 0, len(w.Conditions))
	for _, c := range w.Conditions {
		f, err := conditionFilter(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	if w.Any {
		return filter.Or(parts...), nil
	}
	return filter.And(parts...), nil
}

func conditionFilter(c config.Condition) (core.Filter, error) {
	var preds []core.Filter
	if c.NotNull {
		preds = append(preds, filter.NotNull(c.Field))
	}
	if c.Equals != nil {
		preds = append(preds, filter.Equals(c.Field, c.Equals))
	}
	if len(c.In) > 0 {
		preds = append(preds, filter.In(c.Field, c.In...))
	}
	if c.Matches != "" {
		f, err := filter.MatchesRegex(c.Field, c.Matches)
		if err != nil {
			return nil, err
		}
		preds = append(preds, f)
	}
	if c.Min != nil || c.Max != nil {
		lo, hi := math.Inf(-1), math.Inf(1)
		if c.Min != nil {
			lo = *c.Min
		}
		if c.Max != nil {
			hi = *c.Max
		}
		preds = append(preds, filter.Between(c.Field, lo, hi))
	}

	var f core.Filter
	if len(preds) == 1 {
		f = preds[0]
	} else {
		f = filter.And(preds...)
	}
	if c.Not {
		f = filter.Not(f)
	}
	return f, nil
}
