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

package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/readers"
)

// SourceOpener opens the raw data of a dataset.
type SourceOpener func(ctx context.Context, dataset string, src config.SourceConfig) (core.DataSource, error)

// OpenSource returns a SourceOpener for the configured source types.
func OpenSource(kaggle config.KaggleConfig) SourceOpener {
	return func(ctx context.Context, dataset string, src config.SourceConfig) (core.DataSource, error) {
		switch src.Type {
		case config.SourceKaggle:
			if kaggle.Username == "" || kaggle.Key == "" {
				return nil, &PermanentError{Err: fmt.Errorf("%s: kaggle source requires KAGGLE_USERNAME and KAGGLE_KEY", dataset)}
			}
			return readers.NewKaggleReader(src.Dataset, src.File, kaggle.Username, kaggle.Key, httpOptions(src)...)

		case config.SourceHTTP:
			return readers.NewHTTPReader(src.URL, httpOptions(src)...)

		case config.SourceFile:
			return openFile(src)

		case config.SourceParquet:
			return readers.NewParquetReader(src.Path)

		case config.SourceS3:
			opts := []readers.ReaderOptionS3{
				readers.WithS3Format(src.Format),
				readers.WithS3ArchiveMember(src.Member),
			}
			if src.S3.Region != "" {
				opts = append(opts, readers.WithS3Region(src.S3.Region))
			}
			if src.S3.Profile != "" {
				opts = append(opts, readers.WithS3Profile(src.S3.Profile))
			}
			if src.S3.Endpoint != "" {
				opts = append(opts, readers.WithS3Endpoint(src.S3.Endpoint, src.S3.PathStyle))
			}
			key := src.Key
			if src.S3.Prefix != "" {
				key = strings.TrimSuffix(src.S3.Prefix, "/") + "/" + key
			}
			return readers.NewS3Reader(ctx, src.S3.Bucket, key, opts...)

		case config.SourceSQL:
			opts := []readers.SQLReaderOption{
				readers.WithSQLDSN(src.Driver, src.DSN),
				readers.WithSQLQuery(src.Query),
			}
			if src.Timeout > 0 {
				opts = append(opts, readers.WithSQLQueryTimeout(src.Timeout))
			}
			return readers.NewSQLReader(ctx, opts...)

		case config.SourceMongo:
			opts := []readers.ReaderOptionMongo{
				readers.WithMongoURI(src.URI),
				readers.WithMongoDB(src.Database),
				readers.WithMongoCollection(src.Collection),
			}
			if src.Timeout > 0 {
				opts = append(opts, readers.WithMongoTimeout(src.Timeout))
			}
			return readers.NewMongoReader(opts...)
		}
		return nil, &PermanentError{Err: fmt.Errorf("%s: unknown source type %q", dataset, src.Type)}
	}
}

func httpOptions(src config.SourceConfig) []readers.ReaderOptionHTTP {
	var opts []readers.ReaderOptionHTTP
	if src.Format != "" {
		opts = append(opts, readers.WithHTTPFormat(src.Format))
	}
	if src.Member != "" {
		opts = append(opts, readers.WithHTTPArchiveMember(src.Member))
	}
	if len(src.Headers) > 0 {
		opts = append(opts, readers.WithHTTPHeaders(src.Headers))
	}
	if src.BearerToken != "" {
		opts = append(opts, readers.WithHTTPBearerToken(src.BearerToken))
	}
	if src.RateLimit > 0 {
		opts = append(opts, readers.WithHTTPRateLimit(src.RateLimit))
	}
	if src.Timeout > 0 {
		opts = append(opts, readers.WithHTTPTimeout(src.Timeout))
	}
	return opts
}

func openFile(src config.SourceConfig) (core.DataSource, error) {
	format := strings.ToLower(src.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(src.Path)), ".")
	}
	if format == "parquet" {
		return readers.NewParquetReader(src.Path)
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	switch format {
	case "jsonl", "ndjson":
		return readers.NewJSONReader(f), nil
	case "csv", "txt", "":
		r, err := readers.NewCSVReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return r, nil
	}
	f.Close()
	return nil, &PermanentError{Err: fmt.Errorf("unsupported file format %q for %s", format, src.Path)}
}
