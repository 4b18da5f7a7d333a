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
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/readers"
)

func memoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func columnTypes(t *testing.T, db *sql.DB, table string) map[string]string {
	t.Helper()
	rows, err := db.Query(`SELECT name, type FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		out[name] = typ
	}
	require.NoError(t, rows.Err())
	return out
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+SQLite.Quote(table)).Scan(&n))
	return n
}

var pollutionSchema = []core.Column{
	{Name: "Year", Kind: core.KindInteger},
	{Name: "State", Kind: core.KindText},
	{Name: "O3 Mean", Kind: core.KindReal},
	{Name: "Date", Kind: core.KindTimestamp},
	{Name: "a,b", Kind: core.KindText},
}

func TestSQLWriter_CreatesTypedTable(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	w, err := NewSQLWriter(ctx, WithDB(db), WithTableName("pollution"), WithSchema(pollutionSchema), WithSQLBatchSize(2))
	require.NoError(t, err)

	records := []core.Record{
		{"Year": 2000, "State": "Arizona", "O3 Mean": 0.019765, "a,b": "x"},
		{"Year": 2001, "State": "Texas", "O3 Mean": nil, "a,b": nil},
		{"Year": 2002, "State": "Ohio", "O3 Mean": 0.5, "a,b": "y"},
	}
	for _, r := range records {
		require.NoError(t, w.Write(ctx, r))
	}
	require.NoError(t, w.Close())

	assert.Equal(t, map[string]string{
		"Year": "INTEGER", "State": "TEXT", "O3 Mean": "REAL", "Date": "TIMESTAMP", "a,b": "TEXT",
	}, columnTypes(t, db, "pollution"))

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["O3 Mean"])

	r, err := readers.NewSQLReader(ctx,
		readers.WithSQLDB("sqlite", db),
		readers.WithSQLQuery(`SELECT "Year", "State", "O3 Mean" FROM pollution ORDER BY "Year"`),
	)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Record{"Year": 2000, "State": "Arizona", "O3 Mean": 0.019765}, first)
	second, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, second["O3 Mean"])
}

func TestSQLWriter_ReplacesExistingTable(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	_, err := db.Exec(`CREATE TABLE emissions (old TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO emissions VALUES ('a'), ('b'), ('c')`)
	require.NoError(t, err)

	for run := 0; run < 2; run++ {
		w, err := NewSQLWriter(ctx, WithDB(db), WithTableName("emissions"))
		require.NoError(t, err)
		require.NoError(t, w.Write(ctx, core.Record{"Year": 1990, "Emissions": 1.5}))
		require.NoError(t, w.Close())
	}

	assert.Equal(t, 1, countRows(t, db, "emissions"))
	assert.Equal(t, map[string]string{"Emissions": "REAL", "Year": "INTEGER"}, columnTypes(t, db, "emissions"))
}

func TestSQLWriter_EmptyTableFromSchema(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	w, err := NewSQLWriter(ctx, WithDB(db), WithTableName("renewable_energy"), WithSchema(pollutionSchema[:2]))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, 0, countRows(t, db, "renewable_energy"))
	assert.Len(t, columnTypes(t, db, "renewable_energy"), 2)
}

func TestSQLWriter_FailedLoadKeepsPreviousTable(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	_, err := db.Exec(`CREATE TABLE emissions ("Year" INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO emissions VALUES (1990), (1991)`)
	require.NoError(t, err)

	w, err := NewSQLWriter(ctx, WithDB(db), WithTableName("emissions"), WithSQLBatchSize(1))
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, core.Record{"Year": 2000}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, w.Write(cancelled, core.Record{"Year": 2001}))

	err = w.Close()
	var werr *SQLWriterError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "close", werr.Op)

	assert.Equal(t, 2, countRows(t, db, "emissions"))
}

func TestSQLWriter_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewSQLWriter(ctx, WithDSN(":memory:"))
	assert.ErrorContains(t, err, "table name is required")

	_, err = NewSQLWriter(ctx, WithTableName("t"))
	assert.ErrorContains(t, err, "dsn is required")
}

func TestDialect(t *testing.T) {
	d, err := DialectFor("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name)
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`,
		d.InsertSQL("t", []core.Column{{Name: "a"}, {Name: "b"}}, 2))

	d, err = DialectFor("MySQL")
	require.NoError(t, err)
	assert.Equal(t, "`we``ird`", d.Quote("we`ird"))
	assert.Equal(t, "CREATE TABLE `t` (`n` BIGINT, `x` DOUBLE)",
		d.CreateTableSQL("t", []core.Column{{Name: "n", Kind: core.KindInteger}, {Name: "x", Kind: core.KindReal}}))

	d, err = DialectFor("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, `"O3 ""Mean"""`, d.Quote(`O3 "Mean"`))
	assert.Equal(t, `INSERT INTO "t" ("a") VALUES (?)`, d.InsertSQL("t", []core.Column{{Name: "a"}}, 1))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestSQLWriter_Abort(t *testing.T) {
	db := memoryDB(t)
	ctx := context.Background()

	_, err := db.Exec(`CREATE TABLE pollution ("State" TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO pollution VALUES ('Ohio')`)
	require.NoError(t, err)

	w, err := NewSQLWriter(ctx, WithDB(db), WithTableName("pollution"), WithSQLBatchSize(1))
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, core.Record{"State": "Texas", "Year": 2000}))
	require.NoError(t, w.Abort())
	require.NoError(t, w.Close())

	assert.Equal(t, 1, countRows(t, db, "pollution"))
	assert.Equal(t, map[string]string{"State": "TEXT"}, columnTypes(t, db, "pollution"))
}

func TestSQLWriter_CreatesDatabaseDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "nested", "data.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"

	w, err := NewSQLWriter(ctx, WithDialect(SQLite), WithDSN(dsn), WithTableName("emissions"))
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, core.Record{"Year": 2008, "Pollutant": "CO"}))
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 1, countRows(t, db, "emissions"))
}

func TestSQLiteDir(t *testing.T) {
	tests := []struct {
		dialect Dialect
		dsn     string
		want    string
	}{
		{SQLite, "file:data/data.db?_pragma=busy_timeout(5000)", "data"},
		{SQLite, "/var/lib/envetl/data.db", "/var/lib/envetl"},
		{SQLite, "data.db", ""},
		{SQLite, ":memory:", ""},
		{SQLite, "file:mem?mode=memory&cache=shared", ""},
		{Postgres, "postgres://localhost/data", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDir(tt.dialect, tt.dsn))
		})
	}
}
