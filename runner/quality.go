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
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/validators"
)

// qualityValidator builds the checks a transformed table must pass before it
// is loaded. It returns nil when the dataset configures none.
func qualityValidator(dataset string, q *config.QualityConfig) (*validators.DataQualityValidator, error) {
	if q == nil {
		return nil, nil
	}
	opts := []validators.DataQualityOption{validators.WithDataset(dataset)}
	if q.MaxRecords > 0 {
		opts = append(opts, validators.WithMaxRecords(q.MaxRecords))
	}
	if q.MaxNullRate > 0 {
		opts = append(opts, validators.WithMaxNullRate(q.MaxNullRate))
	}
	if len(q.Forbidden) > 0 {
		opts = append(opts, validators.WithForbiddenFields(q.Forbidden))
	}
	for field, rule := range q.Fields {
		fv, err := fieldValidator(rule)
		if err != nil {
			return nil, fmt.Errorf("quality field %s: %w", field, err)
		}
		opts = append(opts, validators.WithFieldValidator(field, fv))
	}
	if len(q.Unique) > 0 {
		opts = append(opts, validators.WithCustomValidator(uniqueKey(q.Unique)))
	}
	return validators.NewConfigurableDataQualityValidator(0, nil, opts...), nil
}

func fieldValidator(rule config.FieldRule) (validators.FieldValidator, error) {
	fv := validators.FieldValidator{
		DataType:      validators.FieldDataType(rule.Type),
		AllowedValues: rule.Allowed,
	}
	if fv.DataType == "" {
		fv.DataType = validators.FieldTypeAny
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fv, err
		}
		fv.Pattern = re
	}
	if rule.Min != nil {
		fv.MinValue = *rule.Min
	}
	if rule.Max != nil {
		fv.MaxValue = *rule.Max
	}
	if rule.Finite {
		fv.CustomFunc = finite
	}
	return fv, nil
}

func finite(v interface{}) (bool, error) {
	f, ok := v.(float64)
	if !ok {
		return true, nil
	}
	return !math.IsNaN(f) && !math.IsInf(f, 0), nil
}

// uniqueKey fails when two rows agree on every key column.
func uniqueKey(columns []string) func(*core.Table) error {
	return func(t *core.Table) error {
		seen := make(map[string]int, t.Len())
		var sb strings.Builder
		for i, r := range t.Rows() {
			sb.Reset()
			for _, c := range columns {
				fmt.Fprintf(&sb, "%T:%v|", r[c], r[c])
			}
			key := sb.String()
			if first, ok := seen[key]; ok {
				return fmt.Errorf("rows %d and %d share key %s", first, i, describeKey(columns, r))
			}
			seen[key] = i
		}
		return nil
	}
}

func describeKey(columns []string, r core.Record) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s=%v", c, r[c])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
