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

// Package validators implements the gate every raw dataset passes before it is
// transformed: record-count, column-presence, null-rate and per-field checks
// evaluated over a whole core.Table.
package validators

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aaronlmathis/envetl/core"
)

// ValidationError reports a failed data quality rule other than the empty
// input and missing column checks, which use the core error types.
type ValidationError struct {
	Dataset string
	Rule    string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("validation %s: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("validation %s: %s: %v", e.Rule, e.Dataset, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DataQualityValidator performs data quality checks on a table: record counts,
// column presence, null value rates and custom validation functions.
type DataQualityValidator struct {
	Dataset          string                      // Name used in error messages
	MinRecords       int                         // Minimum number of records required
	MaxRecords       int                         // Maximum number of records allowed (0 = unlimited)
	MaxNullRate      float64                     // Maximum allowed null rate (0.0-1.0)
	RequiredFields   []string                    // Columns that must be present
	ForbiddenFields  []string                    // Columns that must not be present
	FieldValidators  map[string]FieldValidator   // Per-field validation rules
	CustomValidators []func(t *core.Table) error // Custom validation functions
}

// FieldValidator defines validation rules for individual fields
type FieldValidator struct {
	DataType      FieldDataType                   // Expected data type
	Pattern       *regexp.Regexp                  // Regex pattern for string fields
	MinValue      interface{}                     // Minimum value (for numeric fields)
	MaxValue      interface{}                     // Maximum value (for numeric fields)
	AllowedValues []interface{}                   // Whitelist of allowed values
	CustomFunc    func(interface{}) (bool, error) // Custom validation function
}

// FieldDataType represents expected data types for validation
type FieldDataType string

const (
	FieldTypeString FieldDataType = "string"
	FieldTypeInt    FieldDataType = "int"
	FieldTypeFloat  FieldDataType = "float"
	FieldTypeNumber FieldDataType = "number"
	FieldTypeBool   FieldDataType = "bool"
	FieldTypeDate   FieldDataType = "date"
	FieldTypeAny    FieldDataType = "any"
)

// Validate is the gate run before every dataset transform. It fails with
// *core.EmptyInputError when t has no rows and with *core.SchemaError naming
// every required column t lacks. On success it returns t unchanged.
func Validate(t *core.Table, required ...string) (*core.Table, error) {
	if err := NewDataQualityValidator(1, required).Evaluate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Evaluate runs every configured check against t and returns the first failure.
func (dqv *DataQualityValidator) Evaluate(t *core.Table) error {
	recordCount := t.Len()

	if recordCount == 0 && dqv.MinRecords > 0 {
		return &core.EmptyInputError{Dataset: dqv.Dataset}
	}
	if recordCount < dqv.MinRecords {
		return &ValidationError{Dataset: dqv.Dataset, Rule: "min_records",
			Err: fmt.Errorf("got %d records, need at least %d", recordCount, dqv.MinRecords)}
	}
	if dqv.MaxRecords > 0 && recordCount > dqv.MaxRecords {
		return &ValidationError{Dataset: dqv.Dataset, Rule: "max_records",
			Err: fmt.Errorf("got %d records, maximum allowed %d", recordCount, dqv.MaxRecords)}
	}

	if err := dqv.validateFieldPresence(t); err != nil {
		return err
	}

	if recordCount == 0 {
		return nil
	}

	if err := dqv.validateNullRates(t); err != nil {
		return &ValidationError{Dataset: dqv.Dataset, Rule: "null_rate", Err: err}
	}

	if err := dqv.validateFieldValues(t); err != nil {
		return &ValidationError{Dataset: dqv.Dataset, Rule: "field_value", Err: err}
	}

	for i, validator := range dqv.CustomValidators {
		if err := validator(t); err != nil {
			return &ValidationError{Dataset: dqv.Dataset, Rule: fmt.Sprintf("custom_%d", i), Err: err}
		}
	}

	return nil
}

// validateFieldPresence checks the table's column set for required and
// forbidden columns. Every missing required column is reported at once.
func (dqv *DataQualityValidator) validateFieldPresence(t *core.Table) error {
	var missing []string
	for _, field := range dqv.RequiredFields {
		if !t.HasColumn(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &core.SchemaError{Dataset: dqv.Dataset, Missing: missing}
	}

	var forbidden []string
	for _, field := range dqv.ForbiddenFields {
		if t.HasColumn(field) {
			forbidden = append(forbidden, field)
		}
	}
	if len(forbidden) > 0 {
		return &ValidationError{Dataset: dqv.Dataset, Rule: "forbidden_fields",
			Err: fmt.Errorf("table contains forbidden columns [%s]", strings.Join(forbidden, ", "))}
	}
	return nil
}

// validateNullRates checks null value rates across all records
func (dqv *DataQualityValidator) validateNullRates(t *core.Table) error {
	if dqv.MaxNullRate <= 0 {
		return nil
	}

	for _, field := range t.Columns() {
		nullCount := 0
		for i := 0; i < t.Len(); i++ {
			if t.Value(i, field) == nil {
				nullCount++
			}
		}

		nullRate := float64(nullCount) / float64(t.Len())
		if nullRate > dqv.MaxNullRate {
			return fmt.Errorf("field %s has null rate %.2f, exceeds maximum %.2f",
				field, nullRate, dqv.MaxNullRate)
		}
	}

	return nil
}

// validateFieldValues validates individual field values using field validators
func (dqv *DataQualityValidator) validateFieldValues(t *core.Table) error {
	if len(dqv.FieldValidators) == 0 {
		return nil
	}

	for recordIdx, record := range t.Rows() {
		for fieldName, validator := range dqv.FieldValidators {
			value, exists := record[fieldName]
			if !exists {
				continue
			}

			if err := dqv.validateSingleFieldValue(fieldName, value, validator, recordIdx); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateSingleFieldValue validates a single field value against its validator
func (dqv *DataQualityValidator) validateSingleFieldValue(fieldName string, value interface{}, validator FieldValidator, recordIdx int) error {
	if value == nil {
		return nil // Null values handled by null rate validation
	}

	// Type validation
	if !dqv.validateDataType(value, validator.DataType) {
		return fmt.Errorf("record %d field %s has invalid type, expected %s",
			recordIdx, fieldName, validator.DataType)
	}

	// Pattern validation (for strings)
	if validator.Pattern != nil {
		if str, ok := value.(string); ok {
			if !validator.Pattern.MatchString(str) {
				return fmt.Errorf("record %d field %s value '%s' does not match pattern",
					recordIdx, fieldName, str)
			}
		}
	}

	// Range validation
	if err := dqv.validateRange(value, validator.MinValue, validator.MaxValue, fieldName, recordIdx); err != nil {
		return err
	}

	// Allowed values validation
	if len(validator.AllowedValues) > 0 {
		valid := false
		for _, allowedValue := range validator.AllowedValues {
			if value == allowedValue {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("record %d field %s value '%v' not in allowed values",
				recordIdx, fieldName, value)
		}
	}

	// Custom field validation
	if validator.CustomFunc != nil {
		valid, err := validator.CustomFunc(value)
		if err != nil {
			return fmt.Errorf("record %d field %s custom validation failed: %w",
				recordIdx, fieldName, err)
		}
		if !valid {
			return fmt.Errorf("record %d field %s failed custom validation", recordIdx, fieldName)
		}
	}

	return nil
}

// validateDataType checks if a value matches the expected data type
func (dqv *DataQualityValidator) validateDataType(value interface{}, expectedType FieldDataType) bool {
	if expectedType == FieldTypeAny {
		return true
	}

	switch expectedType {
	case FieldTypeString:
		_, ok := value.(string)
		return ok
	case FieldTypeInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case FieldTypeFloat:
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case FieldTypeNumber:
		_, ok := dqv.toFloat64(value)
		return ok
	case FieldTypeBool:
		_, ok := value.(bool)
		return ok
	case FieldTypeDate:
		_, ok := value.(time.Time)
		return ok
	default:
		return true // Unknown types pass validation
	}
}

// validateRange validates numeric ranges
func (dqv *DataQualityValidator) validateRange(value, minValue, maxValue interface{}, fieldName string, recordIdx int) error {
	if minValue == nil && maxValue == nil {
		return nil
	}

	// Convert to float64 for comparison
	val, ok := dqv.toFloat64(value)
	if !ok {
		return nil // Not numeric, skip range validation
	}

	if minValue != nil {
		if min, ok := dqv.toFloat64(minValue); ok && val < min {
			return fmt.Errorf("record %d field %s value %v below minimum %v",
				recordIdx, fieldName, value, minValue)
		}
	}

	if maxValue != nil {
		if max, ok := dqv.toFloat64(maxValue); ok && val > max {
			return fmt.Errorf("record %d field %s value %v above maximum %v",
				recordIdx, fieldName, value, maxValue)
		}
	}

	return nil
}

// toFloat64 converts numeric types to float64 for comparison
func (dqv *DataQualityValidator) toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// NewDataQualityValidator creates a basic data quality validator
func NewDataQualityValidator(minRecords int, requiredFields []string) *DataQualityValidator {
	return &DataQualityValidator{
		MinRecords:      minRecords,
		RequiredFields:  requiredFields,
		FieldValidators: make(map[string]FieldValidator),
	}
}

// DataQualityOption is a functional option for configuring DataQualityValidator
type DataQualityOption func(*DataQualityValidator)

// WithDataset sets the dataset name reported in errors
func WithDataset(name string) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.Dataset = name
	}
}

// WithMaxRecords sets the maximum record count
func WithMaxRecords(max int) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.MaxRecords = max
	}
}

// WithMaxNullRate sets the maximum null value rate
func WithMaxNullRate(rate float64) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.MaxNullRate = rate
	}
}

// WithForbiddenFields sets fields that must not be present
func WithForbiddenFields(fields []string) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.ForbiddenFields = fields
	}
}

// WithFieldValidator adds a field-specific validator
func WithFieldValidator(fieldName string, validator FieldValidator) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		if dqv.FieldValidators == nil {
			dqv.FieldValidators = make(map[string]FieldValidator)
		}
		dqv.FieldValidators[fieldName] = validator
	}
}

// WithCustomValidator adds a custom validation function
func WithCustomValidator(validator func(*core.Table) error) DataQualityOption {
	return func(dqv *DataQualityValidator) {
		dqv.CustomValidators = append(dqv.CustomValidators, validator)
	}
}

// NewConfigurableDataQualityValidator creates a validator with functional options
func NewConfigurableDataQualityValidator(minRecords int, requiredFields []string, options ...DataQualityOption) *DataQualityValidator {
	dqv := NewDataQualityValidator(minRecords, requiredFields)

	for _, option := range options {
		option(dqv)
	}

	return dqv
}
