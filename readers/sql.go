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
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/aaronlmathis/envetl/core"
)

// SQLReaderError provides structured error information for SQL reader operations
type SQLReaderError struct {
	Driver string
	Op     string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err    error
}

func (e *SQLReaderError) Error() string {
	return fmt.Sprintf("%s reader %s: %v", e.Driver, e.Op, e.Err)
}

func (e *SQLReaderError) Unwrap() error {
	return e.Err
}

// SQLReaderStats holds statistics about the SQL reader's performance
type SQLReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
}

// SQLReaderOptions configures the SQL reader
type SQLReaderOptions struct {
	Driver          string // database/sql driver name: "postgres", "sqlite" or "mysql"
	DSN             string
	Query           string
	Params          []interface{}
	ConnMaxLifetime time.Duration
	MaxOpenConns    int
	QueryTimeout    time.Duration
	DB              *sql.DB // use an open pool instead of Driver and DSN; not closed by the reader
}

// SQLReaderOption represents a configuration function for SQLReaderOptions
type SQLReaderOption func(*SQLReaderOptions)

// WithSQLDSN sets the driver and connection string.
func WithSQLDSN(driver, dsn string) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.Driver = driver
		opts.DSN = dsn
	}
}

// WithSQLDB reads through an existing connection pool.
func WithSQLDB(driver string, db *sql.DB) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.Driver = driver
		opts.DB = db
	}
}

// WithSQLQuery sets the SQL query and optional parameters.
func WithSQLQuery(query string, params ...interface{}) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.Query = query
		opts.Params = append([]interface{}(nil), params...)
	}
}

// WithSQLQueryTimeout bounds connecting and running the query.
func WithSQLQueryTimeout(timeout time.Duration) SQLReaderOption {
	return func(opts *SQLReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

func (opts *SQLReaderOptions) withDefaults() *SQLReaderOptions {
	result := &SQLReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 5 * time.Minute
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 4
	}
	return result
}

// SQLReader implements core.DataSource over the result of a SQL query.
// Integer columns read as int, real columns as float64 and text as string.
type SQLReader struct {
	mu          sync.Mutex
	db          *sql.DB
	ownsDB      bool
	rows        *sql.Rows
	cancel      context.CancelFunc
	columnNames []string
	columnTypes []*sql.ColumnType
	values      []interface{}
	scanBuffer  []interface{}
	stats       SQLReaderStats
	opts        *SQLReaderOptions
}

// NewSQLReader connects, runs the query and prepares to stream its rows.
func NewSQLReader(ctx context.Context, options ...SQLReaderOption) (*SQLReader, error) {
	opts := &SQLReaderOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	if opts.Query == "" {
		return nil, &SQLReaderError{Driver: opts.Driver, Op: "validate", Err: fmt.Errorf("query is required")}
	}

	r := &SQLReader{
		opts:  opts,
		db:    opts.DB,
		stats: SQLReaderStats{NullValueCounts: make(map[string]int64)},
	}

	start := time.Now()
	if r.db == nil {
		if opts.DSN == "" {
			return nil, &SQLReaderError{Driver: opts.Driver, Op: "validate", Err: fmt.Errorf("dsn is required")}
		}
		db, err := sql.Open(opts.Driver, opts.DSN)
		if err != nil {
			return nil, &SQLReaderError{Driver: opts.Driver, Op: "connect", Err: err}
		}
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		r.db = db
		r.ownsDB = true
	}

	qctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	r.cancel = cancel
	if err := r.db.PingContext(qctx); err != nil {
		r.Close()
		return nil, &SQLReaderError{Driver: opts.Driver, Op: "ping", Err: err}
	}
	r.stats.ConnectionTime = time.Since(start)

	if err := r.executeQuery(qctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewPostgresReader reads the result of query from a PostgreSQL database.
func NewPostgresReader(ctx context.Context, dsn, query string, params ...interface{}) (*SQLReader, error) {
	return NewSQLReader(ctx, WithSQLDSN("postgres", dsn), WithSQLQuery(query, params...))
}

func (r *SQLReader) executeQuery(ctx context.Context) error {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, r.opts.Query, r.opts.Params...)
	if err != nil {
		return &SQLReaderError{Driver: r.opts.Driver, Op: "query", Err: err}
	}
	r.rows = rows
	r.stats.QueryDuration = time.Since(start)

	if r.columnNames, err = rows.Columns(); err != nil {
		return &SQLReaderError{Driver: r.opts.Driver, Op: "columns", Err: err}
	}
	if r.columnTypes, err = rows.ColumnTypes(); err != nil {
		return &SQLReaderError{Driver: r.opts.Driver, Op: "column_types", Err: err}
	}

	r.values = make([]interface{}, len(r.columnNames))
	r.scanBuffer = make([]interface{}, len(r.columnNames))
	for i := range r.scanBuffer {
		r.scanBuffer[i] = &r.values[i]
	}
	return nil
}

// Headers returns the result columns in query order.
func (r *SQLReader) Headers() []string {
	return append([]string(nil), r.columnNames...)
}

// Read implements the core.DataSource interface.
func (r *SQLReader) Read(ctx context.Context) (core.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.stats.ReadDuration += time.Since(start)
		r.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return nil, &SQLReaderError{Driver: r.opts.Driver, Op: "read", Err: err}
	}
	if r.rows == nil {
		return nil, io.EOF
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, &SQLReaderError{Driver: r.opts.Driver, Op: "read", Err: err}
		}
		return nil, io.EOF
	}
	if err := r.rows.Scan(r.scanBuffer...); err != nil {
		return nil, &SQLReaderError{Driver: r.opts.Driver, Op: "scan", Err: err}
	}

	record := make(core.Record, len(r.columnNames))
	for i, name := range r.columnNames {
		if r.values[i] == nil {
			r.stats.NullValueCounts[name]++
			record[name] = nil
			continue
		}
		record[name] = convertSQLValue(r.values[i], r.columnTypes[i].DatabaseTypeName())
	}
	r.stats.RecordsRead++
	return record, nil
}

// Close releases all resources held by the reader
func (r *SQLReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []string
	if r.rows != nil {
		if err := r.rows.Close(); err != nil {
			errs = append(errs, "closing rows: "+err.Error())
		}
		r.rows = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.db != nil && r.ownsDB {
		if err := r.db.Close(); err != nil {
			errs = append(errs, "closing database: "+err.Error())
		}
	}
	r.db = nil

	if len(errs) > 0 {
		return &SQLReaderError{Driver: r.opts.Driver, Op: "close", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}
	return nil
}

// Schema returns the database type name of each result column.
func (r *SQLReader) Schema() map[string]string {
	schema := make(map[string]string, len(r.columnNames))
	for i, name := range r.columnNames {
		if i < len(r.columnTypes) {
			schema[name] = r.columnTypes[i].DatabaseTypeName()
		}
	}
	return schema
}

// Stats returns statistics about the reader's performance
func (r *SQLReader) Stats() SQLReaderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.NullValueCounts = make(map[string]int64, len(r.stats.NullValueCounts))
	for k, v := range r.stats.NullValueCounts {
		out.NullValueCounts[k] = v
	}
	return out
}

// convertSQLValue maps driver values onto the types tables hold. Drivers
// that return text for numeric columns are parsed by declared type.
func convertSQLValue(value interface{}, dbType string) interface{} {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float32:
		return float64(v)
	case float64, string, bool, time.Time:
		return v
	case []byte:
		s := string(v)
		switch strings.ToUpper(dbType) {
		case "BYTEA", "BLOB":
			return v
		case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "INT2", "INT4", "INT8":
			if i, err := strconv.Atoi(s); err == nil {
				return i
			}
		case "REAL", "DOUBLE", "FLOAT", "FLOAT4", "FLOAT8", "DECIMAL", "NUMERIC":
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
