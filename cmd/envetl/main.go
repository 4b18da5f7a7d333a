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

// Command envetl downloads the renewable-energy, pollution and emissions
// datasets, cleans them and loads them into a relational database.
//
//	envetl -config envetl.yaml [-datasets pollution,emissions] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/runner"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("envetl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration (defaults apply when empty)")
	datasetList := fs.String("datasets", "", "comma-separated datasets to run (default: all enabled)")
	dryRun := fs.Bool("dry-run", false, "acquire and transform without loading")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	var names []string
	if *datasetList != "" {
		names = strings.Split(*datasetList, ",")
	}
	selected, err := cfg.Selected(names)
	if err != nil {
		logger.Error("invalid dataset selection", "error", err)
		return 2
	}
	if len(selected) == 0 {
		logger.Warn("no datasets enabled")
		return 0
	}

	r, err := runner.New(cfg, runner.WithLogger(logger), runner.WithDryRun(*dryRun))
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("run started", "datasets", selected, "driver", cfg.Database.Driver, "parallel", cfg.Runtime.Parallel, "dry_run", *dryRun)
	results, err := r.Run(ctx, selected)
	for _, res := range results {
		status := "ok"
		if res.Err != nil {
			status = "failed"
		}
		logger.Info("result",
			"dataset", res.Dataset,
			"status", status,
			"attempts", res.Attempts,
			"rows_raw", res.RowsRaw,
			"rows_clean", res.RowsClean,
			"rows_loaded", res.RowsLoaded,
			"duration", res.Duration,
		)
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid -log-format %q", format)
}
