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

// Package runner drives the envetl datasets: it acquires each raw table,
// transforms it, logs a summary and loads it, retrying failed attempts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	envetl "github.com/aaronlmathis/envetl"
	"github.com/aaronlmathis/envetl/aggregate"
	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
	"github.com/aaronlmathis/envetl/datasets"
	"github.com/aaronlmathis/envetl/filter"
	"github.com/aaronlmathis/envetl/types"
	"github.com/aaronlmathis/envetl/writers"
)

// Result reports one dataset job.
type Result struct {
	Dataset    string
	Table      string
	Attempts   int
	RowsRaw    int // rows acquired
	RowsClean  int // rows after the transform
	RowsLoaded int64
	Exported   []string // "<format>" per finished export
	Duration   time.Duration
	Summary    *core.Table
	Err        error
}

type exportTarget struct {
	location types.OutputLocation
	formats  []types.OutputFormat
}

// Runner runs dataset jobs against one configuration.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	open     SourceOpener
	database types.OutputLocation
	exports  []exportTarget
	retry    RetryConfig
	dryRun   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for job lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithDryRun acquires and transforms without loading or exporting.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithSourceOpener replaces how raw data is acquired.
func WithSourceOpener(open SourceOpener) Option {
	return func(r *Runner) { r.open = open }
}

// WithDatabase replaces the location the tables are loaded into.
func WithDatabase(loc types.OutputLocation) Option {
	return func(r *Runner) { r.database = loc }
}

// WithExport adds an export destination written after every load.
func WithExport(loc types.OutputLocation, formats ...types.OutputFormat) Option {
	return func(r *Runner) { r.exports = append(r.exports, exportTarget{location: loc, formats: formats}) }
}

// WithRetry replaces the retry policy derived from the configuration.
func WithRetry(rc RetryConfig) Option {
	return func(r *Runner) { r.retry = rc }
}

// New creates a Runner for cfg. The database and export destinations are
// derived from cfg unless set by options.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:   cfg,
		open:  OpenSource(cfg.Kaggle),
		retry: NewRetryConfig(cfg.Runtime),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.database == nil {
		dialect, err := writers.DialectFor(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		r.database = types.DatabaseLocation{Dialect: dialect, DSN: cfg.Database.DSN}
	}

	if len(r.exports) == 0 && cfg.Export.Enabled() {
		formats := make([]types.OutputFormat, 0, len(cfg.Export.Formats))
		for _, name := range cfg.Export.Formats {
			f, err := types.ParseFormat(name)
			if err != nil {
				return nil, err
			}
			formats = append(formats, f)
		}
		if cfg.Export.Dir != "" {
			r.exports = append(r.exports, exportTarget{location: types.DirectoryLocation{Dir: cfg.Export.Dir}, formats: formats})
		}
		if s3cfg := cfg.Export.S3; s3cfg != nil && s3cfg.Bucket != "" {
			loc := types.S3Location{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}
			loc.Client.Region = s3cfg.Region
			loc.Client.Profile = s3cfg.Profile
			loc.Client.EndpointURL = s3cfg.Endpoint
			loc.Client.ForcePathStyle = s3cfg.PathStyle
			r.exports = append(r.exports, exportTarget{location: loc, formats: formats})
		}
	}
	return r, nil
}

// Run executes the named datasets, concurrently when runtime.parallel is
// set, and returns one Result per dataset in the order given. A failed
// dataset does not stop the others; the returned error joins every failure.
func (r *Runner) Run(ctx context.Context, names []string) ([]Result, error) {
	if r.cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Runtime.Timeout)
		defer cancel()
	}

	results := make([]Result, len(names))
	var g errgroup.Group
	if !r.cfg.Runtime.Parallel {
		g.SetLimit(1)
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = r.runDataset(ctx, name)
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Dataset, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) runDataset(ctx context.Context, name string) Result {
	start := time.Now()
	res := Result{Dataset: name}
	logger := r.logger.With("dataset", name)

	ds, ok := datasets.Lookup(name)
	if !ok {
		res.Err = fmt.Errorf("unknown dataset")
		return res
	}
	dcfg := r.cfg.Datasets[name]
	res.Table = dcfg.Table
	if res.Table == "" {
		res.Table = ds.Table
	}

	logger.Info("dataset started", "source", dcfg.Source.Type, "table", res.Table)

	var clean *core.Table
	res.Attempts, res.Err = r.retry.Do(ctx, logger, func(ctx context.Context) error {
		raw, err := r.acquire(ctx, name, dcfg.Source)
		if err != nil {
			return err
		}
		res.RowsRaw = raw.Len()
		clean, err = ds.Process(raw, logger)
		return err
	})
	if res.Err != nil {
		logger.Error("dataset failed", "attempts", res.Attempts, "error", res.Err)
		res.Duration = time.Since(start)
		return res
	}
	res.RowsClean = clean.Len()

	if err := checkQuality(name, dcfg.Quality, clean); err != nil {
		res.Err = err
		logger.Error("quality check failed", "error", err)
		res.Duration = time.Since(start)
		return res
	}

	if summary, err := summarize(ds, clean); err != nil {
		logger.Warn("summary failed", "error", err)
	} else {
		res.Summary = summary
		logSummary(logger, summary)
	}

	res.Err = r.deliver(ctx, ds, dcfg, clean, &res, logger)
	res.Duration = time.Since(start)
	switch {
	case res.Err != nil:
		logger.Error("load failed", "table", res.Table, "error", res.Err)
	case r.dryRun:
		logger.Info("dry run, not loading", "rows", res.RowsClean)
	default:
		logger.Info("dataset finished", "rows_raw", res.RowsRaw, "rows_loaded", res.RowsLoaded, "duration", res.Duration)
	}
	return res
}

// deliver shapes the transformed table and builds its load filters, then
// loads and exports it unless this is a dry run.
func (r *Runner) deliver(ctx context.Context, ds datasets.Dataset, dcfg config.DatasetConfig, clean *core.Table, res *Result, logger *slog.Logger) error {
	shaped, err := shapeColumns(ctx, clean, dcfg.Columns)
	if err != nil {
		return err
	}
	filters, err := loadFilters(ds, dcfg, shaped, logger)
	if err != nil {
		return err
	}
	if r.dryRun {
		return nil
	}

	res.RowsLoaded, err = r.load(ctx, r.database, res.Table, types.FormatTable, shaped.Schema(), shaped, filters)
	if err != nil {
		return err
	}
	logger.Info("table loaded", "table", res.Table, "rows", res.RowsLoaded)

	res.Exported, err = r.export(ctx, res.Table, shaped, filters, logger)
	return err
}

// export writes the loaded table to every export destination.
func (r *Runner) export(ctx context.Context, table string, t *core.Table, filters []core.Filter, logger *slog.Logger) ([]string, error) {
	var done []string
	schema := t.Schema()
	for _, exp := range r.exports {
		for _, format := range exp.formats {
			if _, err := r.load(ctx, exp.location, table, format, schema, t, filters); err != nil {
				logger.Error("export failed", "format", format.String(), "error", err)
				return done, fmt.Errorf("export %s: %w", format, err)
			}
			done = append(done, format.String())
		}
	}
	return done, nil
}

func checkQuality(dataset string, q *config.QualityConfig, t *core.Table) error {
	dqv, err := qualityValidator(dataset, q)
	if err != nil || dqv == nil {
		return err
	}
	return dqv.Evaluate(t)
}

func (r *Runner) acquire(ctx context.Context, name string, src config.SourceConfig) (*core.Table, error) {
	source, err := r.open(ctx, name, src)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	return core.ReadTable(ctx, source)
}

func (r *Runner) load(ctx context.Context, loc types.OutputLocation, table string, format types.OutputFormat, schema []core.Column, t *core.Table, filters []core.Filter) (int64, error) {
	sink, err := loc.NewSink(ctx, table, format, schema)
	if err != nil {
		return 0, err
	}

	b := envetl.NewPipeline().From(t.Source()).To(sink)
	for _, f := range filters {
		b.Filter(f)
	}
	p, err := b.Build()
	if err != nil {
		sink.Close()
		return 0, err
	}
	if err := p.Execute(ctx); err != nil {
		return 0, err
	}
	return p.Stats().RecordsWritten, nil
}

// loadFilters builds the region, year and where filters of a dataset
// against the columns of the table being loaded.
func loadFilters(ds datasets.Dataset, dcfg config.DatasetConfig, t *core.Table, logger *slog.Logger) ([]core.Filter, error) {
	var filters []core.Filter
	if len(dcfg.Regions) > 0 {
		region := loadedName(dcfg.Columns, ds.RegionColumn)
		if ds.RegionColumn == "" || !t.HasColumn(region) {
			logger.Warn("dataset has no region column, ignoring regions filter")
		} else {
			filters = append(filters, filter.InStrings(region, dcfg.Regions))
		}
	}
	if y := dcfg.Years; y != nil {
		year := loadedName(dcfg.Columns, datasets.ColYear)
		if !t.HasColumn(year) {
			logger.Warn("dataset has no year column, ignoring years filter")
		} else {
			from, to := math.Inf(-1), math.Inf(1)
			if y.From != 0 {
				from = float64(y.From)
			}
			if y.To != 0 {
				to = float64(y.To)
			}
			filters = append(filters, filter.Between(year, from, to))
		}
	}
	where, err := whereFilter(dcfg.Where)
	if err != nil {
		return nil, err
	}
	if where != nil {
		filters = append(filters, where)
	}
	return filters, nil
}

// summarize groups the transformed table as the dataset's Summary asks.
func summarize(ds datasets.Dataset, t *core.Table) (*core.Table, error) {
	if len(ds.Summary.GroupBy) == 0 {
		return nil, fmt.Errorf("no summary defined")
	}
	g := aggregate.NewGroupBy(ds.Summary.GroupBy...).Count("rows")
	if ds.Summary.Sum != "" {
		if !t.HasColumn(ds.Summary.Sum) {
			return nil, fmt.Errorf("summary column %q not found", ds.Summary.Sum)
		}
		g.Sum(ds.Summary.Sum, "total")
	}
	// optional: the pollution statistics vary between sources
	if c := ds.Summary.Range; c != "" && t.HasColumn(c) {
		g.Avg(c, "mean").Min(c, "min").Max(c, "max")
	}
	return g.Apply(t)
}

func logSummary(logger *slog.Logger, summary *core.Table) {
	logger.Info("summary", "groups", summary.Len())
	for _, row := range summary.Rows() {
		attrs := make([]any, 0, 2*len(row))
		for _, col := range summary.Columns() {
			attrs = append(attrs, col, row[col])
		}
		logger.Debug("summary group", attrs...)
	}
}
