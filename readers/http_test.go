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
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/envetl/core"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestHTTPReader_CSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Date,State,O3 Mean\n2000-01-01,Arizona,0.019765\n2000-01-02,Arizona,\n"))
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL + "/pollution.csv")
	require.NoError(t, err)
	defer hr.Close()

	tbl, err := core.ReadTable(context.Background(), hr)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "State", "O3 Mean"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	assert.Nil(t, tbl.Value(1, "O3 Mean"))
	assert.Equal(t, int64(1), hr.Stats().RequestCount)
}

func TestHTTPReader_ZipArchiveMember(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"README.txt":  "not data",
		"dataset.csv": "Year,Month,Sector\n1973,1,Commerical\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL+"/download", WithHTTPArchiveMember("dataset.csv"))
	require.NoError(t, err)
	rows := readAll(t, hr)
	require.Len(t, rows, 1)
	assert.Equal(t, "Commerical", rows[0]["Sector"])

	missing, err := NewHTTPReader(srv.URL+"/download", WithHTTPArchiveMember("other.csv"))
	require.NoError(t, err)
	_, err = missing.Read(context.Background())
	var httpErr *HTTPReaderError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "unzip", httpErr.Op)
}

func TestHTTPReader_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("a\n1\n"))
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL, WithHTTPRetries(3, time.Millisecond), WithHTTPRateLimit(1000))
	require.NoError(t, err)
	rows := readAll(t, hr)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(2), hr.Stats().RetryCount)
}

func TestHTTPReader_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL, WithHTTPRetries(3, time.Millisecond))
	require.NoError(t, err)
	_, err = hr.Read(context.Background())
	var httpErr *HTTPReaderError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPReader_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, key, ok := r.BasicAuth()
		if !ok || user != "alice" || key != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("a\n1\n"))
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL, WithHTTPBasicAuth("alice", "secret"))
	require.NoError(t, err)
	assert.Len(t, readAll(t, hr), 1)
}

func TestHTTPReader_JSONFormats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rows.json":
			w.Write([]byte(`[{"Year": 2001, "Value": 2.5}, {"Year": 2002, "Value": null}]`))
		case "/rows.jsonl":
			w.Write([]byte("{\"Year\": 2001}\n{\"Year\": 2002}\n"))
		}
	}))
	defer srv.Close()

	for _, p := range []string{"/rows.json", "/rows.jsonl"} {
		hr, err := NewHTTPReader(srv.URL + p)
		require.NoError(t, err)
		rows := readAll(t, hr)
		require.Len(t, rows, 2, p)
		assert.Equal(t, 2001, rows[0]["Year"], p)
	}
}

func TestHTTPReader_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hr, err := NewHTTPReader(srv.URL, WithHTTPRetries(5, time.Hour))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = hr.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKaggleReader(t *testing.T) {
	assert.Equal(t, "https://www.kaggle.com/api/v1/datasets/download/alistairking/renewable-energy-consumption-in-the-u-s",
		KaggleDownloadURL("alistairking/renewable-energy-consumption-in-the-u-s"))

	_, err := NewKaggleReader("not-a-dataset", "dataset.csv", "", "")
	assert.Error(t, err)

	kr, err := NewKaggleReader("owner/name", "dataset.csv", "user", "key")
	require.NoError(t, err)
	assert.Equal(t, "dataset.csv", kr.opts.ArchiveMember)
	assert.Equal(t, "basic", kr.opts.Auth.Type)
}

func TestNewHTTPReader_InvalidURL(t *testing.T) {
	_, err := NewHTTPReader("::not a url")
	assert.Error(t, err)
}
