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

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Package core defines the error handling types for the envetl pipeline.
//
// This file contains error handling interfaces, strategies, function adapters,
// and the input error taxonomy raised by the dataset transforms.

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred during transformation.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}

// EmptyInputError is returned when a dataset arrives with zero rows.
type EmptyInputError struct {
	Dataset string
}

func (e *EmptyInputError) Error() string {
	if e.Dataset == "" {
		return "empty input: table has no rows"
	}
	return fmt.Sprintf("empty input: %s has no rows", e.Dataset)
}

// SchemaError lists every required column absent from a table.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	name := e.Dataset
	if name == "" {
		name = "table"
	}
	return fmt.Sprintf("schema: %s is missing required columns [%s]", name, strings.Join(e.Missing, ", "))
}

// NoYearColumnsError is returned when no column names a year after the
// value prefix is stripped.
type NoYearColumnsError struct {
	Prefix string
}

func (e *NoYearColumnsError) Error() string {
	return fmt.Sprintf("no year columns found after stripping prefix %q", e.Prefix)
}

// UnknownRegionError is returned when a region abbreviation has no entry in
// the region table.
type UnknownRegionError struct {
	Abbreviation string
	Row          int
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("row %d: unknown region abbreviation %q", e.Row, e.Abbreviation)
}

// DateParseError is returned when a date cell cannot be parsed.
type DateParseError struct {
	Column string
	Row    int
	Value  interface{}
	Err    error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("row %d: cannot parse %s value %v as a date: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// CoercionError is returned when a cell cannot be converted to its column's
// declared numeric type.
type CoercionError struct {
	Column string
	Row    int
	Value  interface{}
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("row %d: cannot coerce %s value %v: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err, or any error it wraps, describes bad
// input data rather than a failure to acquire or store it.
func IsInputError(err error) bool {
	var (
		empty    *EmptyInputError
		schema   *SchemaError
		noYears  *NoYearColumnsError
		region   *UnknownRegionError
		date     *DateParseError
		coercion *CoercionError
	)
	return errors.As(err, &empty) ||
		errors.As(err, &schema) ||
		errors.As(err, &noYears) ||
		errors.As(err, &region) ||
		errors.As(err, &date) ||
		errors.As(err, &coercion)
}
