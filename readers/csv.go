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

package readers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/envetl/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	// NullTokens are cell values read as missing, in addition to blank cells.
	NullTokens []string
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVLazyQuotes(lazy bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.LazyQuotes = lazy }
}

// WithCSVNullTokens replaces the set of tokens read as missing values.
func WithCSVNullTokens(tokens ...string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.NullTokens = tokens }
}

// DefaultNullTokens are the spellings of a missing value found in exported
// data files.
var DefaultNullTokens = []string{"NA", "N/A", "NaN", "nan", "NULL", "null"}

// CSVReader implements DataSource for CSV files. Cells are typed on read:
// integers, then reals, then the literals true and false, otherwise text.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	nulls   map[string]bool
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
		NullTokens:       DefaultNullTokens,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.ReuseRecord = true

	reader := &CSVReader{
		reader: csvReader,
		closer: r,
		opts:   opts,
		nulls:  make(map[string]bool, len(opts.NullTokens)),
		stats:  CSVReaderStats{NullValueCounts: make(map[string]int64)},
	}
	for _, tok := range opts.NullTokens {
		reader.nulls[tok] = true
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return reader, nil
			}
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		reader.headers = make([]string, len(headers))
		for i, h := range headers {
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			reader.headers[i] = h
		}
	}

	return reader, nil
}

// Headers returns the column names in file order.
func (c *CSVReader) Headers() []string {
	return append([]string(nil), c.headers...)
}

// Read implements the DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	record, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	if c.opts.HasHeaders && len(record) > len(c.headers) {
		line, _ := c.reader.FieldPos(0)
		return nil, &CSVReaderError{Op: "read_record",
			Err: fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(c.headers))}
	}

	res := make(core.Record, len(record))
	for i, val := range record {
		key := c.key(i)
		if c.isNull(val) {
			c.stats.NullValueCounts[key]++
			res[key] = nil
			continue
		}
		res[key] = parseValue(val)
	}
	// short rows leave the trailing columns missing
	for i := len(record); i < len(c.headers); i++ {
		c.stats.NullValueCounts[c.headers[i]]++
		res[c.headers[i]] = nil
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

func (c *CSVReader) key(i int) string {
	if i < len(c.headers) {
		return c.headers[i]
	}
	return "col_" + strconv.Itoa(i)
}

func (c *CSVReader) isNull(val string) bool {
	val = strings.TrimSpace(val)
	return val == "" || c.nulls[val]
}

// Close implements the DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

// parseValue infers int, float or bool, falling back to string.
func parseValue(value string) interface{} {
	value = strings.TrimSpace(value)

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch value {
	case "true", "True", "TRUE":
		return true
	case "false", "False", "FALSE":
		return false
	}
	return value
}
