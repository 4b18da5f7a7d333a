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

package core

import (
	"context"
)

// Package core defines the interfaces shared by every stage of envetl.
//
// Sources stream records out of raw datasets, sinks load them into a store, and
// transformers and filters sit between the two on the load path.

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., CSV, HTTP, Parquet, PostgreSQL).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// ColumnLister is implemented by sources that know their column order up front,
// such as a CSV file with a header row.
type ColumnLister interface {
	Headers() []string
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., SQLite, PostgreSQL, Parquet).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Aborter is implemented by sinks that can discard everything written since
// they were opened, such as a table replaced inside a transaction. Abort
// releases the sink like Close does.
type Aborter interface {
	Abort() error
}

// Transformer defines the interface for record transformation operations.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// Filter defines the interface for record filtering.
// Filters determine whether a record should be included in the output.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}
