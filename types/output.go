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

package types

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/readers"
	"github.com/aaronlmathis/envetl/writers"
)

// OutputFormat represents a supported sink format.
type OutputFormat int

const (
	FormatCSV OutputFormat = iota
	FormatJSON
	FormatParquet
	FormatTable
)

// Extension returns the file extension used for format.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".jsonl"
	case FormatParquet:
		return ".parquet"
	default:
		return ""
	}
}

func (f OutputFormat) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "jsonl"
	case FormatParquet:
		return "parquet"
	default:
		return "table"
	}
}

// ParseFormat maps a configuration name to a format.
func ParseFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	case "table", "sql":
		return FormatTable, nil
	}
	return 0, fmt.Errorf("unknown output format %q", name)
}

// OutputLocation creates a DataSink named after a table. schema fixes the
// column order and kinds of the output; it may be nil.
type OutputLocation interface {
	NewSink(ctx context.Context, table string, format OutputFormat, schema []core.Column) (core.DataSink, error)
}

func fileSink(f io.WriteCloser, format OutputFormat, schema []core.Column) (core.DataSink, error) {
	switch format {
	case FormatCSV:
		var opts []writers.WriterOptionCSV
		if len(schema) > 0 {
			names := make([]string, len(schema))
			for i, c := range schema {
				names[i] = c.Name
			}
			opts = append(opts, writers.WithHeaders(names))
		}
		return writers.NewCSVWriter(f, opts...)
	case FormatJSON:
		return writers.NewJSONWriter(f), nil
	case FormatParquet:
		var opts []writers.WriterOption
		if len(schema) > 0 {
			opts = append(opts, writers.WithParquetSchema(schema))
		}
		return writers.NewParquetWriter(f, opts...)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported format %s for file output", format)
	}
}

// DirectoryLocation writes one file per table into a local directory.
type DirectoryLocation struct {
	Dir string
}

// NewSink creates Dir if needed and opens <table><ext> inside it.
func (d DirectoryLocation) NewSink(ctx context.Context, table string, format OutputFormat, schema []core.Column) (core.DataSink, error) {
	if format == FormatTable {
		return nil, fmt.Errorf("unsupported format %s for directory output", format)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(filepath.Join(d.Dir, table+format.Extension()))
	if err != nil {
		return nil, err
	}
	return fileSink(file, format, schema)
}

// S3PutObjectAPI is the part of the S3 client used for uploads.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location uploads one object per table under Prefix. The object is
// buffered in memory and uploaded when the sink is closed.
type S3Location struct {
	Bucket string
	Prefix string
	Client readers.S3ClientOptions
	API    S3PutObjectAPI // overrides Client when set
}

// Key returns the object key for table in format.
func (s S3Location) Key(table string, format OutputFormat) string {
	return path.Join(s.Prefix, table+format.Extension())
}

// NewSink returns a sink that uploads to s3://Bucket/Prefix/<table><ext>.
func (s S3Location) NewSink(ctx context.Context, table string, format OutputFormat, schema []core.Column) (core.DataSink, error) {
	if format == FormatTable {
		return nil, fmt.Errorf("unsupported format %s for S3 output", format)
	}
	if s.Bucket == "" {
		return nil, fmt.Errorf("s3 output requires a bucket")
	}
	api := s.API
	if api == nil {
		client, err := readers.NewS3Client(ctx, s.Client)
		if err != nil {
			return nil, err
		}
		api = client
	}
	obj := &s3Object{ctx: ctx, api: api, bucket: s.Bucket, key: s.Key(table, format)}
	return fileSink(obj, format, schema)
}

// s3Object uploads its buffered contents on the first Close.
type s3Object struct {
	ctx    context.Context
	api    S3PutObjectAPI
	bucket string
	key    string
	buf    bytes.Buffer
	once   sync.Once
	err    error
}

func (o *s3Object) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *s3Object) Close() error {
	o.once.Do(func() {
		_, err := o.api.PutObject(o.ctx, &s3.PutObjectInput{
			Bucket:        aws.String(o.bucket),
			Key:           aws.String(o.key),
			Body:          bytes.NewReader(o.buf.Bytes()),
			ContentLength: aws.Int64(int64(o.buf.Len())),
		})
		if err != nil {
			o.err = fmt.Errorf("upload s3://%s/%s: %w", o.bucket, o.key, err)
		}
	})
	return o.err
}

// DatabaseLocation replaces one relation per table in a SQL database.
type DatabaseLocation struct {
	Dialect writers.Dialect
	DSN     string
	DB      *sql.DB // shared pool; not closed by the sinks
}

// NewSink returns a SQLWriter that drops and recreates table.
func (d DatabaseLocation) NewSink(ctx context.Context, table string, format OutputFormat, schema []core.Column) (core.DataSink, error) {
	if format != FormatTable {
		return nil, fmt.Errorf("unsupported format %s for database output", format)
	}
	opts := []writers.SQLWriterOption{
		writers.WithDialect(d.Dialect),
		writers.WithTableName(table),
	}
	if d.DB != nil {
		opts = append(opts, writers.WithDB(d.DB))
	} else {
		opts = append(opts, writers.WithDSN(d.DSN))
	}
	if len(schema) > 0 {
		opts = append(opts, writers.WithSchema(schema))
	}
	return writers.NewSQLWriter(ctx, opts...)
}
