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
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/envetl/core"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "get_object", "read")
	Key string
	Err error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 reader's performance
type S3ReaderStats struct {
	RecordsRead  int64
	BytesRead    int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// S3ClientOptions selects the account, region and endpoint of an S3 client.
type S3ClientOptions struct {
	Region         string
	Profile        string
	Credentials    aws.Credentials // used when AccessKeyID is set
	EndpointURL    string          // for S3-compatible services
	ForcePathStyle bool
}

// NewS3Client builds an S3 client from the default AWS configuration chain
// overridden by opts.
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	var configOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, err
	}
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	}), nil
}

// S3GetObjectAPI is the part of the S3 client the reader uses.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Client        S3ClientOptions
	API           S3GetObjectAPI // overrides Client when set
	Format        string         // "csv", "jsonl", "json" or "parquet"; derived from the key when empty
	ArchiveMember string         // file to extract when the object is a zip archive
	CSVOptions    []ReaderOptionCSV
}

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Client.Region = region }
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Client.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Client.Credentials = creds }
}

func WithS3Endpoint(endpoint string, pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Client.EndpointURL = endpoint
		opts.Client.ForcePathStyle = pathStyle
	}
}

func WithS3API(api S3GetObjectAPI) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.API = api }
}

func WithS3Format(format string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Format = format }
}

func WithS3ArchiveMember(name string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.ArchiveMember = name }
}

// S3Reader implements core.DataSource over a single S3 object. The object
// is fetched on the first Read.
type S3Reader struct {
	api    S3GetObjectAPI
	bucket string
	key    string
	opts   S3ReaderOptions
	inner  core.DataSource
	stats  S3ReaderStats
}

// NewS3Reader creates a reader for s3://bucket/key.
func NewS3Reader(ctx context.Context, bucket, key string, options ...ReaderOptionS3) (*S3Reader, error) {
	var opts S3ReaderOptions
	for _, option := range options {
		option(&opts)
	}
	if bucket == "" || key == "" {
		return nil, &S3ReaderError{Op: "validate_options", Key: key, Err: fmt.Errorf("bucket and key are required")}
	}

	api := opts.API
	if api == nil {
		client, err := NewS3Client(ctx, opts.Client)
		if err != nil {
			return nil, &S3ReaderError{Op: "create_client", Key: key, Err: err}
		}
		api = client
	}
	return &S3Reader{api: api, bucket: bucket, key: key, opts: opts}, nil
}

// Read implements the core.DataSource interface
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
		s.stats.LastReadTime = time.Now()
	}()

	if s.inner == nil {
		if err := s.open(ctx); err != nil {
			return nil, err
		}
	}
	rec, err := s.inner.Read(ctx)
	if err != nil {
		return nil, err
	}
	s.stats.RecordsRead++
	return rec, nil
}

// Headers returns the object's column order once it has been opened.
func (s *S3Reader) Headers() []string {
	if l, ok := s.inner.(core.ColumnLister); ok {
		return l.Headers()
	}
	return nil
}

func (s *S3Reader) open(ctx context.Context) error {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return &S3ReaderError{Op: "get_object", Key: s.key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return &S3ReaderError{Op: "read_object", Key: s.key, Err: err}
	}
	s.stats.BytesRead += int64(len(data))

	name := s.key
	if isZip(data) {
		if data, name, err = extractMember(data, s.opts.ArchiveMember); err != nil {
			return &S3ReaderError{Op: "unzip", Key: s.key, Err: err}
		}
	}
	format := s.opts.Format
	if format == "" {
		format = formatFromName(strings.ToLower(path.Base(name)))
	}

	inner, err := newFormatReader(format, io.NopCloser(bytes.NewReader(data)), s.opts.CSVOptions...)
	if err != nil {
		return &S3ReaderError{Op: "parse", Key: s.key, Err: err}
	}
	s.inner = inner
	return nil
}

// Close implements the core.DataSource interface
func (s *S3Reader) Close() error {
	if s.inner != nil {
		return s.inner.Close()
	}
	return nil
}

// Stats returns S3 reader performance statistics
func (s *S3Reader) Stats() S3ReaderStats {
	return s.stats
}
