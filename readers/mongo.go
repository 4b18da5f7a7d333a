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
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/envetl/core"
)

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI        string
	Database   string
	Collection string
	Filter     bson.M
	Projection bson.M
	Sort       bson.D
	Pipeline   []bson.M // when set, an aggregation runs instead of a find
	BatchSize  int32
	Timeout    time.Duration
	KeepID     bool // keep the _id field, as a hex string for ObjectIDs
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.URI = uri }
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Database = database }
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Collection = collection }
}

func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Filter = filter }
}

func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Projection = projection }
}

func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Sort = sort }
}

func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Pipeline = pipeline }
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.BatchSize = batchSize }
}

func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Timeout = timeout }
}

func WithMongoKeepID(keep bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.KeepID = keep }
}

// MongoReader implements core.DataSource over a MongoDB find or aggregation.
// It connects on the first Read.
type MongoReader struct {
	opts    *MongoReaderOptions
	client  *mongo.Client
	cursor  *mongo.Cursor
	headers []string
	stats   MongoReaderStats
}

// NewMongoReader creates a new MongoDB reader with configurable options
func NewMongoReader(options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := &MongoReaderOptions{
		URI:       "mongodb://localhost:27017",
		BatchSize: 1000,
		Timeout:   30 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}

	return &MongoReader{
		opts:  opts,
		stats: MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

func (mr *MongoReader) open(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, mr.opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(mr.opts.URI))
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return &MongoReaderError{Op: "ping", Err: err}
	}
	mr.client = client

	coll := client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	if len(mr.opts.Pipeline) > 0 {
		aggOpts := options.Aggregate().SetBatchSize(mr.opts.BatchSize).SetAllowDiskUse(true)
		mr.cursor, err = coll.Aggregate(ctx, mr.opts.Pipeline, aggOpts)
		if err != nil {
			return &MongoReaderError{Op: "aggregate", Collection: mr.opts.Collection, Err: err}
		}
		return nil
	}

	findOpts := options.Find().SetBatchSize(mr.opts.BatchSize)
	if mr.opts.Projection != nil {
		findOpts.SetProjection(mr.opts.Projection)
	}
	if mr.opts.Sort != nil {
		findOpts.SetSort(mr.opts.Sort)
	}
	filter := mr.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}
	mr.cursor, err = coll.Find(ctx, filter, findOpts)
	if err != nil {
		return &MongoReaderError{Op: "find", Collection: mr.opts.Collection, Err: err}
	}
	return nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	if mr.cursor == nil {
		if err := mr.open(ctx); err != nil {
			return nil, err
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &MongoReaderError{Op: "read", Err: err}
			}
			return nil, &MongoReaderError{Op: "cursor", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.D
	if err := mr.cursor.Decode(&doc); err != nil {
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := make(core.Record, len(doc))
	first := mr.headers == nil
	for _, e := range doc {
		if e.Key == "_id" && !mr.opts.KeepID {
			continue
		}
		v := convertBSONValue(e.Value)
		if v == nil {
			mr.stats.NullValueCounts[e.Key]++
		}
		record[e.Key] = v
		if first {
			mr.headers = append(mr.headers, e.Key)
		}
	}
	mr.stats.RecordsRead++
	return record, nil
}

// Headers returns the field order of the first document read.
func (mr *MongoReader) Headers() []string {
	return append([]string(nil), mr.headers...)
}

// Close implements the core.DataSource interface
func (mr *MongoReader) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		mr.cursor = nil
	}
	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
		mr.client = nil
	}
	if len(errs) > 0 {
		return &MongoReaderError{Op: "close", Err: errors.Join(errs...)}
	}
	return nil
}

// Stats returns MongoDB reader performance statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

// convertBSONValue maps BSON values onto the scalar types tables hold.
func convertBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(v.String(), 64); err == nil {
			return f
		}
		return v.String()
	case primitive.Binary:
		return v.Data
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Undefined, primitive.Null:
		return nil
	case bson.D:
		result := make(map[string]interface{}, len(v))
		for _, e := range v {
			result[e.Key] = convertBSONValue(e.Value)
		}
		return result
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertBSONValue(val)
		}
		return result
	default:
		return v
	}
}
