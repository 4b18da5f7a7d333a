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

package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/envetl/core"
)

// Package transform provides the record and table transformations the dataset
// cleaners are built from.
//
// Record-level functions return core.Transformer implementations usable on the
// streaming load path and, through ApplyTable, on a whole core.Table. Table-level
// functions (Melt, DropDuplicates, FillMissing) live in frame.go and melt.go.

// Select creates a transformer that selects only the specified fields from each record.
// Fields not listed are omitted from the output record.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename creates a transformer that renames fields according to the provided mapping.
// Keys are original field names, values are new field names.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for key, value := range record {
			if newKey, exists := mapping[key]; exists {
				result[newKey] = value
			} else {
				result[key] = value
			}
		}
		return result, nil
	})
}

// AddField creates a transformer that adds a new field with a computed value to each record.
// The value is computed by the provided function, which receives the current record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for k, v := range record {
			result[k] = v
		}
		result[field] = fn(record)
		return result, nil
	})
}

// ConvertType creates a transformer that converts the type of a field to the specified reflect.Type.
// Missing values stay missing. If conversion fails a *core.CoercionError is returned
// and the record is not modified.
func ConvertType(field string, targetType reflect.Type) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for k, v := range record {
			result[k] = v
		}

		if value, exists := record[field]; exists {
			converted, err := convertValue(value, targetType)
			if err != nil {
				return nil, &core.CoercionError{Column: field, Row: -1, Value: value, Err: err}
			}
			result[field] = converted
		}

		return result, nil
	})
}

// ToString creates a transformer that converts a field to a string.
func ToString(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(""))
}

// ToInt creates a transformer that converts a field to an int.
func ToInt(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(0))
}

// ToFloat creates a transformer that converts a field to a float64.
func ToFloat(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(0.0))
}

// TrimSpace creates a transformer that trims whitespace from the specified string fields.
func TrimSpace(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for k, v := range record {
			result[k] = v
		}

		for _, field := range fields {
			if value, exists := record[field]; exists {
				if str, ok := value.(string); ok {
					result[field] = strings.TrimSpace(str)
				}
			}
		}

		return result, nil
	})
}

// ToUpper creates a transformer that converts the specified string fields to uppercase.
func ToUpper(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for k, v := range record {
			result[k] = v
		}

		for _, field := range fields {
			if value, exists := record[field]; exists {
				if str, ok := value.(string); ok {
					result[field] = strings.ToUpper(str)
				}
			}
		}

		return result, nil
	})
}

// ToLower creates a transformer that converts the specified string fields to lowercase.
func ToLower(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record)
		for k, v := range record {
			result[k] = v
		}

		for _, field := range fields {
			if value, exists := record[field]; exists {
				if str, ok := value.(string); ok {
					result[field] = strings.ToLower(str)
				}
			}
		}

		return result, nil
	})
}

// ParseTime creates a transformer that parses a string field into a time.Time,
// trying each layout in order. Parsed values are in UTC. time.Time values pass
// through and missing values stay missing. Failures are returned as
// *core.DateParseError.
func ParseTime(field string, layouts ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return record, nil
		}
		if _, ok := value.(time.Time); ok {
			return record, nil
		}

		str, ok := value.(string)
		if !ok {
			return nil, &core.DateParseError{Column: field, Row: -1, Value: value,
				Err: fmt.Errorf("unsupported type %T", value)}
		}
		parsed, err := parseTimeLayouts(strings.TrimSpace(str), layouts)
		if err != nil {
			return nil, &core.DateParseError{Column: field, Row: -1, Value: value, Err: err}
		}

		result := record.Clone()
		result[field] = parsed
		return result, nil
	})
}

func parseTimeLayouts(value string, layouts []string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no layouts given")
	}
	return time.Time{}, lastErr
}

// DateParts creates a transformer that derives integer year, month and day
// fields from a time.Time field. A missing source leaves the parts missing.
func DateParts(field, yearField, monthField, dayField string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		ts, ok := record[field].(time.Time)
		if !ok {
			result[yearField], result[monthField], result[dayField] = nil, nil, nil
			return result, nil
		}
		result[yearField] = ts.Year()
		result[monthField] = int(ts.Month())
		result[dayField] = ts.Day()
		return result, nil
	})
}

// RemoveFields creates a transformer that removes multiple specified fields from each record.
// Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	fieldsToRemove := make(map[string]bool, len(fields))
	for _, field := range fields {
		fieldsToRemove[field] = true
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !fieldsToRemove[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// convertValue converts a value to the specified reflect.Type for use in type conversion transformers.
func convertValue(value interface{}, targetType reflect.Type) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	sourceValue := reflect.ValueOf(value)
	if sourceValue.Type() == targetType {
		return value, nil
	}

	switch targetType.Kind() {
	case reflect.String:
		return fmt.Sprintf("%v", value), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return convertToInt(value)
	case reflect.Float32, reflect.Float64:
		return convertToFloat(value)
	case reflect.Bool:
		return convertToBool(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
}

// convertToInt attempts to convert a value to int.
func convertToInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if i, err := strconv.Atoi(trimmed); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, err
		}
		return convertToInt(f)
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return convertToInt(float64(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

// convertToFloat attempts to convert a value to float64.
func convertToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

// convertToBool attempts to convert a value to bool.
func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

// ApplyTable runs every row of t through the transformers and returns a new
// table with the same column order. Columns the transformers add are appended.
// Coercion and date errors are annotated with the failing row index.
func ApplyTable(ctx context.Context, t *core.Table, transformers ...core.Transformer) (*core.Table, error) {
	out := core.NewTable(t.Columns())
	for i := 0; i < t.Len(); i++ {
		current := t.Row(i).Clone()
		for _, tr := range transformers {
			next, err := tr.Transform(ctx, current)
			if err != nil {
				return nil, annotateRow(err, i)
			}
			current = next
		}
		out.Append(current)
	}
	// columns removed from every row, e.g. by RemoveFields
	var gone []string
	for _, c := range t.Columns() {
		if anyRowHas(t, c) && !anyRowHas(out, c) {
			gone = append(gone, c)
		}
	}
	out.DropColumns(gone...)
	return out, nil
}

func anyRowHas(t *core.Table, column string) bool {
	for i := 0; i < t.Len(); i++ {
		if _, ok := t.Row(i)[column]; ok {
			return true
		}
	}
	return false
}

func annotateRow(err error, row int) error {
	var coercion *core.CoercionError
	if errors.As(err, &coercion) {
		coercion.Row = row
		return err
	}
	var date *core.DateParseError
	if errors.As(err, &date) {
		date.Row = row
		return err
	}
	return fmt.Errorf("row %d: %w", row, err)
}
