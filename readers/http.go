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

// This file implements an HTTP reader for downloading whole datasets: a CSV,
// JSON lines or JSON document, optionally inside a zip archive, fetched with
// authentication, retries and rate limiting.

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aaronlmathis/envetl/core"
)

// HTTPReaderError provides structured error information for HTTP reader operations
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "auth", "parse")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount  int64
	RecordsRead   int64
	BytesRead     int64
	RetryCount    int64
	RateLimitHits int64
	FetchDuration time.Duration
	LastReadTime  time.Time
}

// AuthConfig defines authentication configuration
type AuthConfig struct {
	Type     string // "bearer" or "basic"
	Token    string
	Username string
	Password string
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Headers         map[string]string
	Auth            *AuthConfig
	Timeout         time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	RequestsPerSec  float64 // 0 disables rate limiting
	Format          string  // "csv", "jsonl" or "json"; derived from the URL or member name when empty
	ArchiveMember   string  // file to extract when the response is a zip archive
	MaxResponseSize int64
	UserAgent       string
	CSVOptions      []ReaderOptionCSV
	CustomClient    *http.Client
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "bearer", Token: token}
	}
}

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "basic", Username: username, Password: password}
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

// WithHTTPRateLimit caps the request rate across retries.
func WithHTTPRateLimit(requestsPerSec float64) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RequestsPerSec = requestsPerSec
	}
}

func WithHTTPFormat(format string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Format = format
	}
}

func WithHTTPArchiveMember(name string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.ArchiveMember = name
	}
}

func WithHTTPMaxResponseSize(n int64) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.MaxResponseSize = n
	}
}

func WithHTTPCSVOptions(options ...ReaderOptionCSV) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CSVOptions = append(opts.CSVOptions, options...)
	}
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource over a downloaded dataset. The body
// is fetched on the first Read.
type HTTPReader struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	opts    *HTTPReaderOptions
	stats   HTTPReaderStats
	inner   core.DataSource
}

// NewHTTPReader creates a new HTTP dataset reader with configurable options
func NewHTTPReader(rawURL string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Headers:         make(map[string]string),
		Timeout:         10 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		MaxResponseSize: 2 << 30,
		UserAgent:       "envetl/1.0",
	}
	for _, option := range options {
		option(opts)
	}

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, &HTTPReaderError{Op: "parse_url", URL: rawURL, Err: err}
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	hr := &HTTPReader{url: rawURL, client: client, opts: opts}
	if opts.RequestsPerSec > 0 {
		hr.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return hr, nil
}

// KaggleDownloadURL is the archive download endpoint of a Kaggle dataset.
func KaggleDownloadURL(dataset string) string {
	return "https://www.kaggle.com/api/v1/datasets/download/" + strings.Trim(dataset, "/")
}

// NewKaggleReader reads one file of a Kaggle dataset, identified as
// "owner/name", authenticating with an API username and key.
func NewKaggleReader(dataset, file, username, key string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	if strings.Count(strings.Trim(dataset, "/"), "/") != 1 {
		return nil, &HTTPReaderError{Op: "kaggle", URL: dataset, Err: fmt.Errorf("dataset must be owner/name")}
	}
	base := []ReaderOptionHTTP{WithHTTPArchiveMember(file)}
	if username != "" {
		base = append(base, WithHTTPBasicAuth(username, key))
	}
	return NewHTTPReader(KaggleDownloadURL(dataset), append(base, options...)...)
}

// Read implements the core.DataSource interface
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	if hr.inner == nil {
		if err := hr.load(ctx); err != nil {
			return nil, err
		}
	}
	rec, err := hr.inner.Read(ctx)
	if err != nil {
		return nil, err
	}
	hr.stats.RecordsRead++
	hr.stats.LastReadTime = time.Now()
	return rec, nil
}

// Headers returns the column order of the downloaded file when its format
// carries one. It is empty before the first Read.
func (hr *HTTPReader) Headers() []string {
	if l, ok := hr.inner.(core.ColumnLister); ok {
		return l.Headers()
	}
	return nil
}

// Close implements the core.DataSource interface
func (hr *HTTPReader) Close() error {
	if hr.inner != nil {
		return hr.inner.Close()
	}
	return nil
}

// Stats returns HTTP reader performance statistics
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

func (hr *HTTPReader) load(ctx context.Context) error {
	start := time.Now()
	data, err := hr.fetchWithRetry(ctx)
	hr.stats.FetchDuration += time.Since(start)
	if err != nil {
		return err
	}

	name := path.Base(hr.url)
	if isZip(data) {
		data, name, err = extractMember(data, hr.opts.ArchiveMember)
		if err != nil {
			return &HTTPReaderError{Op: "unzip", URL: hr.url, Err: err}
		}
	}

	format := hr.opts.Format
	if format == "" {
		format = formatFromName(name)
	}
	inner, err := newFormatReader(format, io.NopCloser(bytes.NewReader(data)), hr.opts.CSVOptions...)
	if err != nil {
		return &HTTPReaderError{Op: "parse", URL: hr.url, Err: err}
	}
	hr.inner = inner
	return nil
}

func (hr *HTTPReader) fetchWithRetry(ctx context.Context) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &HTTPReaderError{Op: "retry", URL: hr.url, Err: ctx.Err()}
			}
			hr.stats.RetryCount++
		}

		if hr.limiter != nil {
			if err := hr.limiter.Wait(ctx); err != nil {
				return nil, &HTTPReaderError{Op: "rate_limit", URL: hr.url, Err: err}
			}
		}

		data, err := hr.fetch(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		var httpErr *HTTPReaderError
		if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
			if httpErr.StatusCode == http.StatusTooManyRequests {
				hr.stats.RateLimitHits++
				continue
			}
			if httpErr.StatusCode >= 500 {
				continue
			}
			// other 4xx are permanent
			break
		}
	}
	return nil, lastErr
}

func (hr *HTTPReader) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hr.url, nil)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: hr.url, Err: err}
	}
	req.Header.Set("User-Agent", hr.opts.UserAgent)
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if err := addAuthentication(req, hr.opts.Auth); err != nil {
		return nil, &HTTPReaderError{Op: "auth", URL: hr.url, Err: err}
	}

	hr.stats.RequestCount++
	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: hr.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        hr.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize+1))
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: hr.url, Err: err}
	}
	if int64(len(data)) > hr.opts.MaxResponseSize {
		return nil, &HTTPReaderError{Op: "read_response", URL: hr.url,
			Err: fmt.Errorf("response exceeds %d bytes", hr.opts.MaxResponseSize)}
	}
	hr.stats.BytesRead += int64(len(data))
	return data, nil
}

func addAuthentication(req *http.Request, auth *AuthConfig) error {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	default:
		return fmt.Errorf("unsupported auth type: %s", auth.Type)
	}
	return nil
}

func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// extractMember returns the named file of a zip archive, or the only data
// file when member is empty.
func extractMember(data []byte, member string) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", err
	}

	var pick *zip.File
	var candidates []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		candidates = append(candidates, f.Name)
		if member != "" && (f.Name == member || path.Base(f.Name) == member) {
			pick = f
			break
		}
	}
	if pick == nil {
		if member != "" || len(candidates) != 1 {
			return nil, "", fmt.Errorf("archive member %q not found among %v", member, candidates)
		}
		for _, f := range zr.File {
			if f.Name == candidates[0] {
				pick = f
			}
		}
	}

	rc, err := pick.Open()
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	return out, pick.Name, nil
}

func formatFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".json":
		return "json"
	case ".parquet":
		return "parquet"
	default:
		return "csv"
	}
}

// newFormatReader wraps r in the reader for format.
func newFormatReader(format string, r io.ReadCloser, csvOptions ...ReaderOptionCSV) (core.DataSource, error) {
	switch format {
	case "csv":
		return NewCSVReader(r, csvOptions...)
	case "jsonl":
		return NewJSONReader(r), nil
	case "json":
		defer r.Close()
		return readJSONArray(r)
	case "parquet":
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return NewParquetReaderFromBytes(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// readJSONArray decodes a JSON array of objects into an in-memory source.
func readJSONArray(r io.Reader) (core.DataSource, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var items []map[string]interface{}
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("json array: %w", err)
	}
	t := core.NewTable(nil)
	for _, item := range items {
		rec := make(core.Record, len(item))
		for k, v := range item {
			rec[k] = normalizeJSON(v)
		}
		t.Append(rec)
	}
	return t.Source(), nil
}
