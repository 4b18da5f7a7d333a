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

// Package envetl loads cleaned environmental datasets into relational
// tables.
//
// The dataset transforms in package datasets work on whole in-memory tables.
// Pipeline is the streaming stage around them: it moves the rows of a
// transformed table (or any other DataSource) through per-record transforms
// and filters into a DataSink.
//
//	p, err := envetl.NewPipeline().
//		From(table.Source()).
//		Filter(filter.InStrings("State", regions)).
//		To(sink).
//		Build()
//	if err != nil { return err }
//	err = p.Execute(ctx)
package envetl

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/envetl/core"
)

// PipelineBuilder provides a fluent API for constructing pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{strategy: core.FailFast},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source core.DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer core.Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline. A nil filter is ignored.
func (pb *PipelineBuilder) Filter(filter core.Filter) *PipelineBuilder {
	if filter != nil {
		pb.pipeline.filters = append(pb.pipeline.filters, filter)
	}
	return pb
}

// Map adds a mapping transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record core.Record) (core.Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record core.Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(core.FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink core.DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy core.ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler core.ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// PipelineStats counts what happened to the records of one Execute.
type PipelineStats struct {
	RecordsRead    int64
	RecordsWritten int64
	RecordsDropped int64 // excluded by a filter
	RecordsFailed  int64 // skipped or collected after an error
}

// Pipeline streams records from a source through transforms and filters into
// a sink.
type Pipeline struct {
	transformers []core.Transformer
	filters      []core.Filter
	source       core.DataSource
	sink         core.DataSink
	strategy     core.ErrorStrategy
	errorHandler core.ErrorHandler
	stats        PipelineStats
	collected    []error
}

// Execute runs the pipeline to the end of the source. The source and sink
// are released in every case: after a failure a sink implementing
// core.Aborter is aborted, otherwise it is closed. An error from Close,
// such as a failed commit, fails the run.
//
// With CollectErrors the run continues past record errors and returns them
// joined at the end.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	defer func() {
		if cerr := p.source.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
		if err == nil {
			if ferr := p.sink.Flush(); ferr != nil {
				err = fmt.Errorf("flush sink: %w", ferr)
			}
		}
		if aborter, ok := p.sink.(core.Aborter); ok && err != nil {
			aborter.Abort()
			return
		}
		if cerr := p.sink.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	if err := p.run(ctx); err != nil {
		return err
	}
	if len(p.collected) > 0 {
		return errors.Join(p.collected...)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		p.stats.RecordsRead++

		if len(record) == 0 {
			continue
		}

		transformed, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if len(transformed) == 0 {
			continue
		}

		include, err := p.applyFilters(ctx, transformed)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if !include {
			p.stats.RecordsDropped++
			continue
		}

		if err := p.sink.Write(ctx, transformed); err != nil {
			if err := p.handleError(ctx, transformed, err); err != nil {
				return err
			}
			continue
		}
		p.stats.RecordsWritten++
	}
}

// Stats returns the counters of the last Execute.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

func (p *Pipeline) applyFilters(ctx context.Context, record core.Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil || !include {
			return false, err
		}
	}
	return true, nil
}

func (p *Pipeline) applyTransformations(ctx context.Context, record core.Record) (core.Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, record core.Record, err error) error {
	switch p.strategy {
	case core.SkipErrors, core.CollectErrors:
		if p.errorHandler != nil {
			if herr := p.errorHandler.HandleError(ctx, record, err); herr != nil {
				return herr
			}
		}
		p.stats.RecordsFailed++
		if p.strategy == core.CollectErrors {
			p.collected = append(p.collected, err)
		}
		return nil
	default:
		return err
	}
}
