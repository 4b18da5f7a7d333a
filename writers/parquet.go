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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/envetl/core"
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Columns      []core.Column        // Column order and kinds; inferred from the first record when empty
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithParquetSchema fixes the file's columns, typically from Table.Schema().
func WithParquetSchema(columns []core.Column) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Columns = append([]core.Column(nil), columns...)
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 64 * 1024
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// ParquetWriter implements core.DataSink for Parquet output. Integer columns
// are written as int64, real as float64, timestamps as microsecond UTC.
// Close finishes the file and closes w when it is an io.Closer.
type ParquetWriter struct {
	out      io.Writer
	writer   *pqarrow.FileWriter
	schema   *arrow.Schema
	columns  []core.Column
	builder  *array.RecordBuilder
	buffered int64
	closed   bool
	failed   bool
	stats    WriterStats
	opts     *ParquetWriterOptions
}

// NewParquetWriter creates a new Parquet writer over w.
func NewParquetWriter(w io.Writer, options ...WriterOption) (*ParquetWriter, error) {
	opts := &ParquetWriterOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	p := &ParquetWriter{
		out:     w,
		opts:    opts,
		columns: opts.Columns,
		stats:   WriterStats{NullValueCounts: make(map[string]int64)},
	}
	if len(p.columns) > 0 {
		if err := p.initialize(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func arrowType(kind core.ColumnKind) arrow.DataType {
	switch kind {
	case core.KindInteger:
		return arrow.PrimitiveTypes.Int64
	case core.KindReal:
		return arrow.PrimitiveTypes.Float64
	case core.KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case core.KindTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func (p *ParquetWriter) initialize() error {
	fields := make([]arrow.Field, len(p.columns))
	for i, c := range p.columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true}
	}
	p.schema = arrow.NewSchema(fields, nil)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}
	p.writer = writer
	p.builder = array.NewRecordBuilder(memory.NewGoAllocator(), p.schema)
	return nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write buffers record and writes a batch once BatchSize rows are buffered.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.failed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if p.writer == nil {
		names := make([]string, 0, len(record))
		for k := range record {
			names = append(names, k)
		}
		sort.Strings(names)
		p.columns = core.NewTable(names, record).Schema()
		if err := p.initialize(); err != nil {
			p.failed = true
			return err
		}
	}

	for i, c := range p.columns {
		if err := p.appendValue(p.builder.Field(i), c.Name, record[c.Name]); err != nil {
			p.failed = true
			return err
		}
	}
	p.buffered++
	p.stats.RecordsWritten++

	if p.buffered >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.failed = true
			return err
		}
	}
	return nil
}

func (p *ParquetWriter) appendValue(b array.Builder, name string, value interface{}) error {
	if value == nil {
		p.stats.NullValueCounts[name]++
		b.AppendNull()
		return nil
	}

	bad := func() error {
		return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("field %s: unexpected %T", name, value)}
	}
	switch bb := b.(type) {
	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			bb.Append(int64(v))
		case int64:
			bb.Append(v)
		case int32:
			bb.Append(int64(v))
		default:
			return bad()
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			bb.Append(v)
		case float32:
			bb.Append(float64(v))
		case int:
			bb.Append(float64(v))
		case int64:
			bb.Append(float64(v))
		default:
			return bad()
		}
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return bad()
		}
		bb.Append(v)
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return bad()
		}
		bb.Append(arrow.Timestamp(v.UnixMicro()))
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			bb.Append(v)
		} else {
			bb.Append(fmt.Sprintf("%v", value))
		}
	default:
		return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("unsupported builder for field %s", name)}
	}
	return nil
}

func (p *ParquetWriter) flushBatch() error {
	if p.buffered == 0 {
		return nil
	}
	start := time.Now()

	rec := p.builder.NewRecord()
	defer rec.Release()
	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.buffered = 0
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return nil
}

// Flush writes any buffered records to the current row group.
func (p *ParquetWriter) Flush() error {
	if p.writer == nil || p.failed {
		return nil
	}
	return p.flushBatch()
}

// Close flushes remaining records and writes the file footer. A writer that
// never received a record and has no schema writes nothing.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.writer == nil {
		if c, ok := p.out.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}
	defer p.builder.Release()

	var err error
	if !p.failed {
		err = p.flushBatch()
	}
	if cerr := p.writer.Close(); err == nil && cerr != nil {
		err = &ParquetWriterError{Op: "close_writer", Err: cerr}
	}
	// the arrow file writer may already have closed out
	if c, ok := p.out.(io.Closer); ok {
		if cerr := c.Close(); err == nil && cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = &ParquetWriterError{Op: "close_output", Err: cerr}
		}
	}
	return err
}
