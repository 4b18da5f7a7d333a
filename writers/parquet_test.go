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
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/readers"
)

func readParquet(t *testing.T, data []byte) []core.Record {
	t.Helper()
	r, err := readers.NewParquetReaderFromBytes(data)
	require.NoError(t, err)
	defer r.Close()

	var out []core.Record
	for {
		rec, err := r.Read(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	schema := []core.Column{
		{Name: "Year", Kind: core.KindInteger},
		{Name: "State", Kind: core.KindText},
		{Name: "Emissions", Kind: core.KindReal},
		{Name: "Date", Kind: core.KindTimestamp},
		{Name: "Flag", Kind: core.KindBoolean},
	}

	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf, WithParquetSchema(schema), WithBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	rows := []core.Record{
		{"Year": 1990, "State": "Alabama", "Emissions": 1.5, "Date": day, "Flag": true},
		// an integer in a real column is widened
		{"Year": 1991, "State": "Alaska", "Emissions": 2, "Date": day.AddDate(0, 0, 1), "Flag": false},
		{"Year": 1992, "State": nil, "Emissions": nil, "Date": nil, "Flag": nil},
	}
	for _, r := range rows {
		require.NoError(t, w.Write(ctx, r))
	}
	require.NoError(t, w.Close())

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["State"])

	got := readParquet(t, buf.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, core.Record{"Year": 1990, "State": "Alabama", "Emissions": 1.5, "Date": day, "Flag": true}, got[0])
	assert.Equal(t, 2.0, got[1]["Emissions"])
	assert.Equal(t, day.AddDate(0, 0, 1), got[1]["Date"])
	assert.Equal(t, core.Record{"Year": 1992, "State": nil, "Emissions": nil, "Date": nil, "Flag": nil}, got[2])
}

func TestParquetWriter_InfersSchemaFromFirstRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"b": "x", "a": 1}))
	require.NoError(t, w.Close())

	r, err := readers.NewParquetReaderFromBytes(buf.Bytes())
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []string{"a", "b"}, r.Headers())
	assert.Equal(t, arrow.INT64, r.Schema().Field(0).Type.ID())
	assert.Equal(t, arrow.STRING, r.Schema().Field(1).Type.ID())
}

func TestParquetWriter_EmptyWithSchema(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf, WithParquetSchema([]core.Column{{Name: "Year", Kind: core.KindInteger}}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Empty(t, readParquet(t, buf.Bytes()))
}

func TestParquetWriter_TypeMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewParquetWriter(&buf, WithParquetSchema([]core.Column{{Name: "Year", Kind: core.KindInteger}}))
	require.NoError(t, err)

	err = w.Write(context.Background(), core.Record{"Year": "nineteen"})
	var perr *ParquetWriterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append_value", perr.Op)

	err = w.Write(context.Background(), core.Record{"Year": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error state")
	w.Close()
}

func TestParquetWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewParquetWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), core.Record{"State": "Ohio"}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	r, err := readers.NewParquetReader(path)
	require.NoError(t, err)
	defer r.Close()
	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ohio", rec["State"])
}
