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

// This file implements the relational table sink: a writer that replaces a
// table in SQLite, PostgreSQL or MySQL with the records written to it.

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/aaronlmathis/envetl/core"
)

// SQLWriterError wraps SQL write errors with context about the operation.
type SQLWriterError struct {
	Dialect string
	Table   string
	Op      string // The operation being performed (e.g., "write", "connect", "create_table")
	Err     error
}

// Error returns the error string for SQLWriterError.
func (e *SQLWriterError) Error() string {
	return fmt.Sprintf("%s writer %s [%s]: %v", e.Dialect, e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error for SQLWriterError.
func (e *SQLWriterError) Unwrap() error {
	return e.Err
}

// SQLWriterStats holds write performance statistics.
type SQLWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	LastWriteTime   time.Time
	WriteDuration   time.Duration
	ConnectionTime  time.Duration
	NullValueCounts map[string]int64
}

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string // database/sql driver name
	// TransactionalDDL reports whether DROP and CREATE can be rolled back.
	TransactionalDDL bool
	quoteChar        string
	numbered         bool // $1, $2 placeholders instead of ?
	types            map[core.ColumnKind]string
}

var (
	SQLite = Dialect{
		Name: "sqlite", Driver: "sqlite", TransactionalDDL: true, quoteChar: `"`,
		types: map[core.ColumnKind]string{
			core.KindInteger:   "INTEGER", core.KindReal: "REAL", core.KindText: "TEXT",
			core.KindTimestamp: "TIMESTAMP", core.KindBoolean: "BOOLEAN",
		},
	}
	Postgres = Dialect{
		Name: "postgres", Driver: "postgres", TransactionalDDL: true, quoteChar: `"`, numbered: true,
		types: map[core.ColumnKind]string{
			core.KindInteger:   "BIGINT", core.KindReal: "DOUBLE PRECISION", core.KindText: "TEXT",
			core.KindTimestamp: "TIMESTAMP", core.KindBoolean: "BOOLEAN",
		},
	}
	MySQL = Dialect{
		Name: "mysql", Driver: "mysql", quoteChar: "`",
		types: map[core.ColumnKind]string{
			core.KindInteger:   "BIGINT", core.KindReal: "DOUBLE", core.KindText: "TEXT",
			core.KindTimestamp: "DATETIME", core.KindBoolean: "BOOLEAN",
		},
	}
)

// DialectFor looks up a dialect by name. "postgresql" and "sqlite3" are
// accepted as aliases.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

// Quote returns name as a quoted identifier.
func (d Dialect) Quote(name string) string {
	return d.quoteChar + strings.ReplaceAll(name, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

// Type returns the column type used for kind.
func (d Dialect) Type(kind core.ColumnKind) string {
	if t, ok := d.types[kind]; ok {
		return t
	}
	return d.types[core.KindText]
}

func (d Dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// CreateTableSQL returns the CREATE TABLE statement for table with columns.
func (d Dialect) CreateTableSQL(table string, columns []core.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = d.Quote(c.Name) + " " + d.Type(c.Kind)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

// InsertSQL returns a multi-row INSERT for rows rows of columns.
func (d Dialect) InsertSQL(table string, columns []core.Column, rows int) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = d.Quote(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.Quote(table), strings.Join(names, ", "))
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// maxParams keeps multi-row inserts under the bind-variable limit of every
// supported database.
const maxParams = 30000

// SQLWriterOptions configures the SQL writer.
type SQLWriterOptions struct {
	Dialect      Dialect
	DSN          string
	DB           *sql.DB // write through an open pool; not closed by the writer
	TableName    string
	Schema       []core.Column // column order and kinds; inferred from the first record when empty
	BatchSize    int           // rows per INSERT statement
	QueryTimeout time.Duration
}

// SQLWriterOption represents a configuration function for SQLWriterOptions.
type SQLWriterOption func(*SQLWriterOptions)

// WithDialect selects the target database.
func WithDialect(d Dialect) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.Dialect = d }
}

// WithDSN sets the connection string.
func WithDSN(dsn string) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.DSN = dsn }
}

// WithDB writes through an existing connection pool.
func WithDB(db *sql.DB) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.DB = db }
}

// WithTableName sets the target table name.
func WithTableName(tableName string) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.TableName = tableName }
}

// WithSchema fixes the column order and kinds of the created table.
func WithSchema(columns []core.Column) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.Schema = append([]core.Column(nil), columns...) }
}

// WithSQLBatchSize sets the number of rows per INSERT statement.
func WithSQLBatchSize(size int) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.BatchSize = size }
}

// WithSQLQueryTimeout bounds each statement run from Flush and Close.
func WithSQLQueryTimeout(timeout time.Duration) SQLWriterOption {
	return func(opts *SQLWriterOptions) { opts.QueryTimeout = timeout }
}

func (opts *SQLWriterOptions) withDefaults() *SQLWriterOptions {
	if opts.Dialect.Name == "" {
		opts.Dialect = SQLite
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Minute
	}
	return opts
}

// SQLWriter implements core.DataSink for relational tables. The first write
// drops and recreates the table, and the rows become visible when Close
// commits. Where the dialect allows it the whole replacement is one
// transaction, so a failed load leaves the previous table in place.
type SQLWriter struct {
	mu          sync.Mutex
	opts        SQLWriterOptions
	db          *sql.DB
	ownsDB      bool
	tx          *sql.Tx
	schema      []core.Column
	buf         []core.Record
	batch       int
	initialized bool
	errorState  bool
	closed      bool
	stats       SQLWriterStats
}

// NewSQLWriter opens the database and returns a writer for one table.
func NewSQLWriter(ctx context.Context, options ...SQLWriterOption) (*SQLWriter, error) {
	opts := &SQLWriterOptions{}
	for _, opt := range options {
		opt(opts)
	}
	opts = opts.withDefaults()

	w := &SQLWriter{
		opts:   *opts,
		schema: append([]core.Column(nil), opts.Schema...),
		stats:  SQLWriterStats{NullValueCounts: make(map[string]int64)},
	}
	if opts.TableName == "" {
		return nil, w.err("validate", fmt.Errorf("table name is required"))
	}

	start := time.Now()
	w.db = opts.DB
	if w.db == nil {
		if opts.DSN == "" {
			return nil, w.err("validate", fmt.Errorf("dsn is required"))
		}
		if dir := sqliteDir(opts.Dialect, opts.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, w.err("connect", err)
			}
		}
		db, err := sql.Open(opts.Dialect.Driver, opts.DSN)
		if err != nil {
			return nil, w.err("connect", err)
		}
		w.db = db
		w.ownsDB = true
	}

	pctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := w.db.PingContext(pctx); err != nil {
		if w.ownsDB {
			w.db.Close()
		}
		return nil, w.err("ping", err)
	}
	w.stats.ConnectionTime = time.Since(start)
	return w, nil
}

// sqliteDir returns the directory holding a file-backed SQLite database, or
// "" for other dialects and in-memory databases.
func sqliteDir(d Dialect, dsn string) string {
	if d.Name != SQLite.Name {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if strings.Contains(path[i:], "mode=memory") {
			return ""
		}
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

func (w *SQLWriter) err(op string, err error) error {
	return &SQLWriterError{Dialect: w.opts.Dialect.Name, Table: w.opts.TableName, Op: op, Err: err}
}

// Stats returns a copy of the current write statistics.
func (w *SQLWriter) Stats() SQLWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.stats
	out.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		out.NullValueCounts[k] = v
	}
	return out
}

// Write buffers record and inserts full batches.
func (w *SQLWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.err("write", fmt.Errorf("writer is closed"))
	}
	if w.errorState {
		return w.err("write", fmt.Errorf("writer is in error state"))
	}
	if !w.initialized {
		if len(w.schema) == 0 {
			w.schema = inferSchema(record)
		}
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}

	for k, v := range record {
		if v == nil {
			w.stats.NullValueCounts[k]++
		}
	}
	w.buf = append(w.buf, record)

	if len(w.buf) >= w.batch {
		if err := w.flushUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Flush inserts any buffered records. They stay uncommitted until Close.
func (w *SQLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState || !w.initialized {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.QueryTimeout)
	defer cancel()
	if err := w.flushUnsafe(ctx); err != nil {
		w.errorState = true
		return err
	}
	return nil
}

// Close flushes, commits the replacement and releases the connection. After
// a failed write the transaction is rolled back instead. A writer that never
// received a record still creates the empty table when its schema is known.
func (w *SQLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	defer w.closeDBUnsafe()

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.QueryTimeout)
	defer cancel()

	if w.errorState {
		w.rollbackUnsafe()
		return w.err("close", fmt.Errorf("load rolled back after an earlier error"))
	}
	if !w.initialized && len(w.schema) > 0 {
		if err := w.initializeUnsafe(ctx); err != nil {
			return err
		}
	}
	if err := w.flushUnsafe(ctx); err != nil {
		w.rollbackUnsafe()
		return err
	}
	if w.tx != nil {
		if err := w.tx.Commit(); err != nil {
			w.tx = nil
			return w.err("commit", err)
		}
		w.tx = nil
	}
	return nil
}

// Abort rolls back the load and releases the connection. The previous table
// is kept where the dialect supports transactional DDL.
func (w *SQLWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.rollbackUnsafe()
	w.closeDBUnsafe()
	return nil
}

func (w *SQLWriter) closeDBUnsafe() {
	if w.ownsDB && w.db != nil {
		w.db.Close()
	}
	w.db = nil
}

func (w *SQLWriter) rollbackUnsafe() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
}

// initializeUnsafe replaces the table and opens the insert transaction (must hold mutex).
func (w *SQLWriter) initializeUnsafe(ctx context.Context) error {
	d := w.opts.Dialect

	w.batch = w.opts.BatchSize
	if limit := maxParams / len(w.schema); w.batch > limit {
		w.batch = limit
	}
	if w.batch < 1 {
		w.batch = 1
	}

	ddl := []string{
		"DROP TABLE IF EXISTS " + d.Quote(w.opts.TableName),
		d.CreateTableSQL(w.opts.TableName, w.schema),
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return w.err("begin", err)
	}
	for _, stmt := range ddl {
		// MySQL commits implicitly around DDL, so it runs outside the transaction
		if d.TransactionalDDL {
			_, err = tx.ExecContext(ctx, stmt)
		} else {
			_, err = w.db.ExecContext(ctx, stmt)
		}
		if err != nil {
			tx.Rollback()
			return w.err("replace_table", err)
		}
	}
	w.tx = tx
	w.initialized = true
	return nil
}

// flushUnsafe inserts buffered rows in one statement (must hold mutex).
func (w *SQLWriter) flushUnsafe(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	start := time.Now()

	args := make([]interface{}, 0, len(w.buf)*len(w.schema))
	for _, rec := range w.buf {
		for _, c := range w.schema {
			args = append(args, sqlValue(rec[c.Name]))
		}
	}
	query := w.opts.Dialect.InsertSQL(w.opts.TableName, w.schema, len(w.buf))
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return w.err("insert", err)
	}

	w.stats.RecordsWritten += int64(len(w.buf))
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.buf = w.buf[:0]
	return nil
}

// inferSchema derives sorted columns and kinds from a single record.
func inferSchema(record core.Record) []core.Column {
	names := make([]string, 0, len(record))
	for k := range record {
		names = append(names, k)
	}
	sort.Strings(names)

	t := core.NewTable(names, record)
	return t.Schema()
}

// sqlValue converts cell values to driver-compatible values.
func sqlValue(v interface{}) interface{} {
	switch n := v.(type) {
	case nil, int64, float64, string, bool, []byte:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	case time.Time:
		return n.UTC()
	default:
		return fmt.Sprintf("%v", n)
	}
}
