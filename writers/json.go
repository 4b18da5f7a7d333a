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

package writers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aaronlmathis/envetl/core"
)

// JSONWriterError wraps JSON lines write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter implements DataSink for JSON lines files. NaN and infinite
// reals are written as null and times in RFC 3339.
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	written int64
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: bufio.NewWriter(w),
		closer: w,
	}
}

// Write implements the DataSink interface
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	clean := make(map[string]interface{}, len(record))
	for k, v := range record {
		clean[k] = jsonValue(v)
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}
	data = append(data, '\n')
	if _, err := j.writer.Write(data); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.written++
	return nil
}

// Written returns the number of records written.
func (j *JSONWriter) Written() int64 {
	return j.written
}

// Flush implements the DataSink interface
func (j *JSONWriter) Flush() error {
	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close implements the DataSink interface
func (j *JSONWriter) Close() error {
	err := j.Flush()
	if j.closer != nil {
		if cerr := j.closer.Close(); err == nil && cerr != nil {
			err = &JSONWriterError{Op: "close", Err: cerr}
		}
		j.closer = nil
	}
	return err
}

func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}
