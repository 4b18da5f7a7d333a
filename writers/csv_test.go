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
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

// Mock writer for CSV and JSON testing
type mockWriteCloser struct {
	strings.Builder
	closed    int
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, errors.New("disk full")
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	if m.failClose {
		return errors.New("close failed")
	}
	return nil
}

func TestCSVWriter_HeaderOrderAndCells(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithHeaders([]string{"Year", "State", "Emissions", "Date"}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{
		"Year": 1990, "State": "Alabama", "Emissions": 1.5,
		"Date": time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, w.Write(ctx, core.Record{
		"Year": 1991, "State": "Puerto Rico, US", "Emissions": math.NaN(), "Date": nil,
	}))
	require.NoError(t, w.Close())

	assert.Equal(t,
		"Year,State,Emissions,Date\n"+
			"1990,Alabama,1.5,2000-01-01\n"+
			"1991,\"Puerto Rico, US\",,\n",
		out.String())
	assert.Equal(t, 1, out.closed)

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["Date"])
}

func TestCSVWriter_SortedKeysWithoutHeaders(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"b": "x", "a": true}))
	require.NoError(t, w.Close())
	assert.Equal(t, "a,b\ntrue,x\n", out.String())
}

func TestCSVWriter_NoHeaderRow(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithWriteHeader(false), WithComma(';'))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"a": 1, "b": 2}))
	require.NoError(t, w.Close())
	assert.Equal(t, "1;2\n", out.String())
}

func TestCSVWriter_Batching(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithCSVBatchSize(2), WithHeaders([]string{"n"}))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(ctx, core.Record{"n": i}))
	}
	assert.Equal(t, int64(2), w.Stats().FlushCount)

	require.NoError(t, w.Close())
	assert.Equal(t, "n\n0\n1\n2\n3\n4\n", out.String())
	assert.Equal(t, int64(3), w.Stats().FlushCount)
}

func TestCSVWriter_CloseTwice(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, out.closed)
}

func TestCSVWriter_Errors(t *testing.T) {
	t.Run("write failure surfaces on flush", func(t *testing.T) {
		out := &mockWriteCloser{failWrite: true}
		w, err := NewCSVWriter(out)
		require.NoError(t, err)

		require.NoError(t, w.Write(context.Background(), core.Record{"a": 1}))
		err = w.Flush()
		var werr *CSVWriterError
		require.ErrorAs(t, err, &werr)
	})

	t.Run("close failure", func(t *testing.T) {
		out := &mockWriteCloser{failClose: true}
		w, err := NewCSVWriter(out)
		require.NoError(t, err)

		err = w.Close()
		var werr *CSVWriterError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "close", werr.Op)
	})
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{42, "42"},
		{0.019765, "0.019765"},
		{3.0, "3"},
		{math.NaN(), ""},
		{false, "false"},
		{time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "2020-03-01"},
		{time.Date(2020, 3, 1, 12, 30, 0, 0, time.UTC), "2020-03-01T12:30:00Z"},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCell(tt.in), "%#v", tt.in)
	}
}
