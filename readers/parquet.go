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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/envetl/core"
)

// ParquetReaderError provides structured error information for Parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ReaderStats holds statistics about the Parquet reader's performance
type ReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader
type ParquetReaderOptions struct {
	BatchSize int64
	Columns   []string
}

// ReaderOption represents a configuration function
type ReaderOption func(*ParquetReaderOptions)

func WithBatchSize(size int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

func WithColumnProjection(columns ...string) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1024
	}
	return result
}

// ParquetReader implements DataSource for Parquet files. Integer columns
// read as int, real columns as float64 and timestamps as UTC time.Time.
type ParquetReader struct {
	closer       io.Closer
	recordReader pqarrow.RecordReader
	batch        arrow.Record
	batchIdx     int
	schema       *arrow.Schema
	stats        ReaderStats
}

// NewParquetReader opens a Parquet file and prepares an Arrow RecordReader
func NewParquetReader(filename string, options ...ReaderOption) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	r, err := newParquetReader(f, f, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewParquetReaderFromBytes reads a Parquet file held in memory, such as an
// object downloaded from S3.
func NewParquetReaderFromBytes(data []byte, options ...ReaderOption) (*ParquetReader, error) {
	return newParquetReader(bytes.NewReader(data), nil, options...)
}

func newParquetReader(src parquet.ReaderAtSeeker, closer io.Closer, options ...ReaderOption) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	pf, err := file.NewParquetReader(src)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	for _, name := range opts.Columns {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		colIndices = append(colIndices, idx[0])
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		closer:       closer,
		recordReader: recordReader,
		schema:       recordReader.Schema(),
		stats:        ReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Headers returns the column names in schema order.
func (p *ParquetReader) Headers() []string {
	names := make([]string, 0, len(p.schema.Fields()))
	for _, f := range p.schema.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// Read returns the next row, or io.EOF.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(start)
		p.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}

	for p.batch == nil || p.batchIdx >= int(p.batch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	rec := make(core.Record, p.batch.NumCols())
	for i, field := range p.batch.Schema().Fields() {
		v := arrowValue(p.batch.Column(i), p.batchIdx)
		if v == nil {
			p.stats.NullValueCounts[field.Name]++
		}
		rec[field.Name] = v
	}
	p.batchIdx++
	p.stats.RecordsRead++
	return rec, nil
}

func (p *ParquetReader) loadNextBatch() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	rec, err := p.recordReader.Read()
	if err != nil {
		return err
	}
	if rec == nil {
		return io.EOF
	}
	// the record reader owns rec until its next Read
	rec.Retain()
	p.batch = rec
	p.batchIdx = 0
	p.stats.BatchesRead++
	return nil
}

// Close releases resources and closes the underlying file
func (p *ParquetReader) Close() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// Schema returns the Arrow schema of the Parquet file
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// Stats returns statistics about the Parquet reader's performance
func (p *ParquetReader) Stats() ReaderStats {
	return p.stats
}

func arrowValue(col arrow.Array, i int) interface{} {
	if col.IsNull(i) {
		return nil
	}
	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int8:
		return int(arr.Value(i))
	case *array.Int16:
		return int(arr.Value(i))
	case *array.Int32:
		return int(arr.Value(i))
	case *array.Int64:
		return int(arr.Value(i))
	case *array.Uint8:
		return int(arr.Value(i))
	case *array.Uint16:
		return int(arr.Value(i))
	case *array.Uint32:
		return int(arr.Value(i))
	case *array.Float32:
		return float64(arr.Value(i))
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	case *array.Binary:
		return string(arr.Value(i))
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return arr.Value(i).ToTime().UTC()
	case *array.Date64:
		return arr.Value(i).ToTime().UTC()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(i))
	}
}
