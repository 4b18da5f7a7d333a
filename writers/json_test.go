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
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

func TestJSONWriter_Lines(t *testing.T) {
	out := &mockWriteCloser{}
	w := NewJSONWriter(out)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{
		"State": "Texas",
		"Date":  time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		"AQI":   math.NaN(),
	}))
	require.NoError(t, w.Write(ctx, core.Record{"State": "Ohio", "AQI": 37}))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Texas", first["State"])
	assert.Equal(t, "2000-01-02T00:00:00Z", first["Date"])
	assert.Nil(t, first["AQI"])
	assert.Contains(t, first, "AQI")

	assert.JSONEq(t, `{"State":"Ohio","AQI":37}`, lines[1])
	assert.Equal(t, int64(2), w.Written())
	assert.Equal(t, 1, out.closed)
}

func TestJSONWriter_CloseTwice(t *testing.T) {
	out := &mockWriteCloser{}
	w := NewJSONWriter(out)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, out.closed)
}

func TestJSONWriter_WriteFailure(t *testing.T) {
	out := &mockWriteCloser{failWrite: true}
	w := NewJSONWriter(out)
	require.NoError(t, w.Write(context.Background(), core.Record{"a": 1}))

	var werr *JSONWriterError
	require.ErrorAs(t, w.Flush(), &werr)
	assert.Equal(t, "flush", werr.Op)
}
