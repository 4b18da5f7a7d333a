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

// Package config loads the envetl run configuration from YAML and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/envetl/datasets"
	"github.com/aaronlmathis/envetl/types"
	"github.com/aaronlmathis/envetl/writers"
)

// Source types.
const (
	SourceKaggle  = "kaggle"
	SourceHTTP    = "http"
	SourceFile    = "file"
	SourceParquet = "parquet"
	SourceS3      = "s3"
	SourceSQL     = "sql"
	SourceMongo   = "mongo"
)

// DefaultDSN is the SQLite database the tables are loaded into by default.
const DefaultDSN = "file:data/data.db?_pragma=busy_timeout(5000)"

// Config is the whole run configuration.
type Config struct {
	Database DatabaseConfig           `yaml:"database"`
	Runtime  RuntimeConfig            `yaml:"runtime"`
	Export   ExportConfig             `yaml:"export"`
	Kaggle   KaggleConfig             `yaml:"kaggle"`
	Datasets map[string]DatasetConfig `yaml:"datasets"`
}

// DatabaseConfig selects the relational store the tables are loaded into.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres or mysql
	DSN    string `yaml:"dsn"`
}

// RuntimeConfig controls scheduling of the dataset jobs.
type RuntimeConfig struct {
	Parallel          bool          `yaml:"parallel"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryInvalidInput bool          `yaml:"retry_invalid_input"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig configures re-acquisition of a dataset after a failure.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      string        `yaml:"backoff"` // exponential or fixed
}

// ExportConfig optionally writes every loaded table to files as well.
type ExportConfig struct {
	Dir     string    `yaml:"dir"`
	S3      *S3Config `yaml:"s3"`
	Formats []string  `yaml:"formats"`
}

// Enabled reports whether an export destination is configured.
func (e ExportConfig) Enabled() bool {
	return e.Dir != "" || (e.S3 != nil && e.S3.Bucket != "")
}

// S3Config addresses a bucket, for sources and exports.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// KaggleConfig holds the API credentials for Kaggle downloads.
type KaggleConfig struct {
	Username string `yaml:"username"`
	Key      string `yaml:"key"`
}

// YearRange restricts a dataset to From..To inclusive. Zero means open.
type YearRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// DatasetConfig configures one dataset job.
type DatasetConfig struct {
	Enabled *bool          `yaml:"enabled"`
	Table   string         `yaml:"table"`
	Source  SourceConfig   `yaml:"source"`
	Regions []string       `yaml:"regions"` // full region names to keep
	Years   *YearRange     `yaml:"years"`
	Quality *QualityConfig `yaml:"quality"`
	Columns *ColumnsConfig `yaml:"columns"`
	Where   *WhereConfig   `yaml:"where"`
}

// QualityConfig holds checks the transformed table must pass before it is
// loaded. Columns are named as the transform produces them.
type QualityConfig struct {
	MaxRecords  int                  `yaml:"max_records"`
	MaxNullRate float64              `yaml:"max_null_rate"` // per column, 0 disables
	Forbidden   []string             `yaml:"forbidden"`
	Unique      []string             `yaml:"unique"` // key columns no two rows may share
	Fields      map[string]FieldRule `yaml:"fields"`
}

// FieldRule checks every non-missing value of one column.
type FieldRule struct {
	Type    string        `yaml:"type"` // string, int, float, number, bool, date or any
	Pattern string        `yaml:"pattern"`
	Min     *float64      `yaml:"min"`
	Max     *float64      `yaml:"max"`
	Allowed []interface{} `yaml:"allowed"` // compared by type and value
	Finite  bool          `yaml:"finite"`  // reject NaN and infinities
}

// ColumnsConfig reshapes the loaded columns. Select, Drop, Upper and Lower
// name transformed columns; Rename maps transformed names to loaded names
// and is applied last.
type ColumnsConfig struct {
	Select []string          `yaml:"select"`
	Drop   []string          `yaml:"drop"`
	Upper  []string          `yaml:"upper"`
	Lower  []string          `yaml:"lower"`
	Rename map[string]string `yaml:"rename"`
}

// WhereConfig keeps the loaded rows matching all conditions, or any of them
// when Any is set. Conditions name loaded columns.
type WhereConfig struct {
	Any        bool        `yaml:"any"`
	Conditions []Condition `yaml:"conditions"`
}

// Condition holds when Field satisfies every predicate set on it.
type Condition struct {
	Field   string        `yaml:"field"`
	Equals  interface{}   `yaml:"equals"`
	In      []interface{} `yaml:"in"`
	Matches string        `yaml:"matches"`
	NotNull bool          `yaml:"not_null"`
	Min     *float64      `yaml:"min"`
	Max     *float64      `yaml:"max"`
	Not     bool          `yaml:"not"`
}

func (c Condition) empty() bool {
	return c.Equals == nil && len(c.In) == 0 && c.Matches == "" && !c.NotNull && c.Min == nil && c.Max == nil
}

// IsEnabled reports whether the job runs. Datasets without a source are
// disabled unless enabled explicitly.
func (d DatasetConfig) IsEnabled() bool {
	if d.Enabled != nil {
		return *d.Enabled
	}
	return d.Source.Type != ""
}

// SourceConfig locates the raw data of a dataset. Which fields apply
// depends on Type.
type SourceConfig struct {
	Type string `yaml:"type"`

	// kaggle
	Dataset string `yaml:"dataset"`
	File    string `yaml:"file"`

	// http
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
	BearerToken string            `yaml:"bearer_token"`
	RateLimit   float64           `yaml:"rate_limit"`

	// file and parquet
	Path string `yaml:"path"`

	// s3
	S3  S3Config `yaml:"s3"`
	Key string   `yaml:"key"`

	// sql
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`

	// mongo
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	// shared
	Format  string        `yaml:"format"`
	Member  string        `yaml:"member"` // file inside a zip archive
	Timeout time.Duration `yaml:"timeout"`
}

func defaultDatasets() map[string]DatasetConfig {
	return map[string]DatasetConfig{
		datasets.NameRenewableEnergy: {
			Table: datasets.NameRenewableEnergy,
			Source: SourceConfig{
				Type:    SourceKaggle,
				Dataset: "alistairking/renewable-energy-consumption-in-the-u-s",
				File:    "dataset.csv",
			},
		},
		datasets.NamePollution: {
			Table: datasets.NamePollution,
			Source: SourceConfig{
				Type:    SourceKaggle,
				Dataset: "guslovesmath/us-pollution-data-200-to-2022",
				File:    "pollution_2000_2023.csv",
			},
		},
		datasets.NameEmissions: {
			Table: datasets.NameEmissions,
		},
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.withDefaults()
	return c
}

func (c *Config) withDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = DefaultDSN
	}
	if c.Runtime.Timeout <= 0 {
		c.Runtime.Timeout = 30 * time.Minute
	}
	r := &c.Runtime.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.Backoff == "" {
		r.Backoff = "exponential"
	}
	if c.Export.Enabled() && len(c.Export.Formats) == 0 {
		c.Export.Formats = []string{"csv"}
	}

	if c.Datasets == nil {
		c.Datasets = make(map[string]DatasetConfig)
	}
	for name, def := range defaultDatasets() {
		ds, ok := c.Datasets[name]
		if !ok {
			c.Datasets[name] = def
			continue
		}
		if ds.Table == "" {
			ds.Table = def.Table
		}
		if ds.Source.Type == "" && ds.Source.URL == "" && ds.Source.Path == "" {
			ds.Source = def.Source
		}
		c.Datasets[name] = ds
	}
}

// applyEnv overrides file settings from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVETL_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("ENVETL_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("ENVETL_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := getenv("KAGGLE_USERNAME"); v != "" {
		c.Kaggle.Username = v
	}
	if v := getenv("KAGGLE_KEY"); v != "" {
		c.Kaggle.Key = v
	}
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(b, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv(os.Getenv)
	c.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML into c, rejecting unknown keys.
func Parse(b []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := writers.DialectFor(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Errorf("database.driver: %w", err))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}
	switch c.Runtime.Retry.Backoff {
	case "exponential", "fixed":
	default:
		errs = append(errs, fmt.Errorf("runtime.retry.backoff: unknown strategy %q", c.Runtime.Retry.Backoff))
	}
	for _, f := range c.Export.Formats {
		format, err := types.ParseFormat(f)
		if err == nil && format == types.FormatTable {
			err = fmt.Errorf("format %q cannot be exported to files", f)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("export.formats: %w", err))
		}
	}

	for name, ds := range c.Datasets {
		if _, ok := datasets.Lookup(name); !ok {
			errs = append(errs, fmt.Errorf("datasets.%s: unknown dataset", name))
			continue
		}
		if !ds.IsEnabled() {
			continue
		}
		if err := validateSource(ds.Source); err != nil {
			errs = append(errs, fmt.Errorf("datasets.%s.source: %w", name, err))
		}
		if ds.Years != nil && ds.Years.To != 0 && ds.Years.From > ds.Years.To {
			errs = append(errs, fmt.Errorf("datasets.%s.years: from %d is after to %d", name, ds.Years.From, ds.Years.To))
		}
		if err := validateQuality(ds.Quality); err != nil {
			errs = append(errs, fmt.Errorf("datasets.%s.quality: %w", name, err))
		}
		if err := validateWhere(ds.Where); err != nil {
			errs = append(errs, fmt.Errorf("datasets.%s.where: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

var fieldTypes = map[string]bool{
	"": true, "string": true, "int": true, "float": true, "number": true, "bool": true, "date": true, "any": true,
}

func validateQuality(q *QualityConfig) error {
	if q == nil {
		return nil
	}
	var errs []error
	if q.MaxNullRate < 0 || q.MaxNullRate > 1 {
		errs = append(errs, fmt.Errorf("max_null_rate %v is outside 0..1", q.MaxNullRate))
	}
	for field, rule := range q.Fields {
		if !fieldTypes[rule.Type] {
			errs = append(errs, fmt.Errorf("fields.%s: unknown type %q", field, rule.Type))
		}
		if rule.Pattern != "" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("fields.%s.pattern: %w", field, err))
			}
		}
		if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
			errs = append(errs, fmt.Errorf("fields.%s: min %v is above max %v", field, *rule.Min, *rule.Max))
		}
	}
	return errors.Join(errs...)
}

func validateWhere(w *WhereConfig) error {
	if w == nil {
		return nil
	}
	var errs []error
	for i, c := range w.Conditions {
		switch {
		case c.Field == "":
			errs = append(errs, fmt.Errorf("conditions[%d]: field is required", i))
		case c.empty():
			errs = append(errs, fmt.Errorf("conditions[%d]: no predicate on %q", i, c.Field))
		}
		if c.Matches != "" {
			if _, err := regexp.Compile(c.Matches); err != nil {
				errs = append(errs, fmt.Errorf("conditions[%d].matches: %w", i, err))
			}
		}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			errs = append(errs, fmt.Errorf("conditions[%d]: min %v is above max %v", i, *c.Min, *c.Max))
		}
	}
	return errors.Join(errs...)
}

func validateSource(s SourceConfig) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("%s source requires %s", s.Type, field)
		}
		return nil
	}
	switch s.Type {
	case SourceKaggle:
		return errors.Join(need("dataset", s.Dataset), need("file", s.File))
	case SourceHTTP:
		return need("url", s.URL)
	case SourceFile, SourceParquet:
		return need("path", s.Path)
	case SourceS3:
		return errors.Join(need("s3.bucket", s.S3.Bucket), need("key", s.Key))
	case SourceSQL:
		return errors.Join(need("driver", s.Driver), need("dsn", s.DSN), need("query", s.Query))
	case SourceMongo:
		return errors.Join(need("uri", s.URI), need("database", s.Database), need("collection", s.Collection))
	case "":
		return fmt.Errorf("type is required")
	}
	return fmt.Errorf("unknown source type %q", s.Type)
}

// Selected returns the enabled dataset names in run order, restricted to
// names when it is non-empty.
func (c *Config) Selected(names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := datasets.Lookup(n); !ok {
			return nil, fmt.Errorf("unknown dataset %q", n)
		}
		want[n] = true
	}

	var out []string
	for _, d := range datasets.All() {
		if len(want) > 0 && !want[d.Name] {
			continue
		}
		if want[d.Name] && c.Datasets[d.Name].Source.Type == "" {
			return nil, fmt.Errorf("dataset %q has no source configured", d.Name)
		}
		if len(want) == 0 && !c.Datasets[d.Name].IsEnabled() {
			continue
		}
		out = append(out, d.Name)
	}
	return out, nil
}
