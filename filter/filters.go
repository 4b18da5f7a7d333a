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

// Package filter provides composable record predicates for the load stream
// of a pipeline, such as restricting a dataset to a set of regions or a
// range of years.
package filter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aaronlmathis/envetl/core"
)

// NotNull creates a filter that excludes records where the field is missing or empty text.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		switch v := record[field].(type) {
		case nil:
			return false, nil
		case string:
			return v != "", nil
		}
		return true, nil
	})
}

// Equals creates a filter that includes records where the field equals value.
// Numbers compare by value, so Equals("Year", 2000) matches 2000.0.
func Equals(field string, value interface{}) core.Filter {
	return In(field, value)
}

// In creates a filter that includes records whose field value is one of values.
func In(field string, values ...interface{}) core.Filter {
	set := make(map[interface{}]struct{}, len(values))
	for _, v := range values {
		set[setKey(v)] = struct{}{}
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, ok := record[field]
		if !ok || value == nil {
			return false, nil
		}
		_, found := set[setKey(value)]
		return found, nil
	})
}

// InStrings is In for a list of text values, as read from configuration.
func InStrings(field string, values []string) core.Filter {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return In(field, vals...)
}

func setKey(v interface{}) interface{} {
	if f, ok := toFloat64(v); ok {
		return f
	}
	switch v.(type) {
	case string, bool:
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Between creates a filter that includes records where the numeric field is
// within [min, max]. Non-numeric values are excluded.
func Between(field string, min, max float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := toFloat64(record[field])
		if !ok {
			return false, nil
		}
		return num >= min && num <= max, nil
	})
}

// MatchesRegex creates a filter that includes records where the text field matches pattern.
func MatchesRegex(field, pattern string) (core.Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", field, err)
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		str, ok := record[field].(string)
		return ok && re.MatchString(str), nil
	}), nil
}

// And creates a filter that requires all provided filters to pass
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil || !include {
				return false, err
			}
		}
		return true, nil
	})
}

// Or creates a filter that requires at least one of the provided filters to pass
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil || include {
				return include, err
			}
		}
		return false, nil
	})
}

// Not creates a filter that negates the provided filter
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
