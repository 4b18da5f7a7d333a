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

// Package aggregate computes grouped summaries of a table, such as total
// emissions per pollutant.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aaronlmathis/envetl/core"
)

type output struct {
	name string
	agg  Aggregator
}

// GroupBy groups records by one or more fields and aggregates each group.
// Groups are returned in the order their first record was seen.
type GroupBy struct {
	groupFields []string
	outputs     []output
}

// NewGroupBy creates a new GroupBy aggregation
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{groupFields: groupFields}
}

// Count adds a count aggregator for the specified output field
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.With(outputField, &CountAggregator{})
}

// Sum adds a sum aggregator for the specified field
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.With(outputField, &SumAggregator{Field: field})
}

// Avg adds an average aggregator for the specified field
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.With(outputField, &AvgAggregator{Field: field})
}

// Min adds a minimum aggregator for the specified field
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.With(outputField, &MinAggregator{Field: field})
}

// Max adds a maximum aggregator for the specified field
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.With(outputField, &MaxAggregator{Field: field})
}

// With adds a custom aggregator written to outputField.
func (g *GroupBy) With(outputField string, agg Aggregator) *GroupBy {
	g.outputs = append(g.outputs, output{name: outputField, agg: agg})
	return g
}

type group struct {
	key  core.Record
	aggs []Aggregator
}

// Process aggregates every record of src. The result has the group fields
// followed by the output fields in the order they were added.
func (g *GroupBy) Process(ctx context.Context, src core.DataSource) (*core.Table, error) {
	index := make(map[string]*group)
	var order []*group

	for {
		record, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("group by: %w", err)
		}

		key := g.groupKey(record)
		grp, ok := index[key]
		if !ok {
			grp = &group{key: make(core.Record, len(g.groupFields))}
			for _, f := range g.groupFields {
				grp.key[f] = record[f]
			}
			for _, o := range g.outputs {
				grp.aggs = append(grp.aggs, o.agg.New())
			}
			index[key] = grp
			order = append(order, grp)
		}
		for i, agg := range grp.aggs {
			if err := agg.Add(ctx, record); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", g.outputs[i].name, err)
			}
		}
	}

	columns := append([]string(nil), g.groupFields...)
	for _, o := range g.outputs {
		columns = append(columns, o.name)
	}
	out := core.NewTable(columns)
	for _, grp := range order {
		rec := grp.key
		for i, agg := range grp.aggs {
			rec[g.outputs[i].name] = agg.Result()
		}
		out.Append(rec)
	}
	return out, nil
}

// Apply aggregates a table.
func (g *GroupBy) Apply(t *core.Table) (*core.Table, error) {
	return g.Process(context.Background(), t.Source())
}

// groupKey encodes the group values with their types so 1 and "1" differ.
func (g *GroupBy) groupKey(record core.Record) string {
	var b strings.Builder
	for _, field := range g.groupFields {
		fmt.Fprintf(&b, "%T:%v\x00", record[field], record[field])
	}
	return b.String()
}

// CountAggregator counts the number of records
type CountAggregator struct {
	count int
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() interface{} { return c.count }

func (c *CountAggregator) New() Aggregator { return &CountAggregator{} }

// SumAggregator sums numeric values. Missing and non-numeric values are skipped.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := toFloat64(record[s.Field]); ok {
		s.sum += num
	}
	return nil
}

func (s *SumAggregator) Result() interface{} { return s.sum }

func (s *SumAggregator) New() Aggregator { return &SumAggregator{Field: s.Field} }

// AvgAggregator calculates average of numeric values
type AvgAggregator struct {
	Field string
	sum   float64
	count int
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := toFloat64(record[a.Field]); ok {
		a.sum += num
		a.count++
	}
	return nil
}

func (a *AvgAggregator) Result() interface{} {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

func (a *AvgAggregator) New() Aggregator { return &AvgAggregator{Field: a.Field} }

// MinAggregator finds the minimum numeric value
type MinAggregator struct {
	Field string
	min   float64
	set   bool
}

func (m *MinAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := toFloat64(record[m.Field]); ok && (!m.set || num < m.min) {
		m.min, m.set = num, true
	}
	return nil
}

func (m *MinAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.min
}

func (m *MinAggregator) New() Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator finds the maximum numeric value
type MaxAggregator struct {
	Field string
	max   float64
	set   bool
}

func (m *MaxAggregator) Add(ctx context.Context, record core.Record) error {
	if num, ok := toFloat64(record[m.Field]); ok && (!m.set || num > m.max) {
		m.max, m.set = num, true
	}
	return nil
}

func (m *MaxAggregator) Result() interface{} {
	if !m.set {
		return nil
	}
	return m.max
}

func (m *MaxAggregator) New() Aggregator { return &MaxAggregator{Field: m.Field} }

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
