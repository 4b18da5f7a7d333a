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

package transform

import (
	"fmt"

	"github.com/aaronlmathis/envetl/core"
)

// MeltOptions configures Melt.
type MeltOptions struct {
	VarName   string
	ValueName string
	// VarFunc converts a value column name into the variable cell. The column
	// name itself is used when nil.
	VarFunc func(column string) (interface{}, error)
	// ValueFunc converts a value cell. The cell is copied as is when nil.
	ValueFunc func(value interface{}) interface{}
}

// MeltOption is a functional option for Melt.
type MeltOption func(*MeltOptions)

// WithVarName sets the name of the output variable column.
func WithVarName(name string) MeltOption {
	return func(o *MeltOptions) { o.VarName = name }
}

// WithValueName sets the name of the output value column.
func WithValueName(name string) MeltOption {
	return func(o *MeltOptions) { o.ValueName = name }
}

// WithVarFunc sets the conversion from value column name to variable cell.
func WithVarFunc(fn func(string) (interface{}, error)) MeltOption {
	return func(o *MeltOptions) { o.VarFunc = fn }
}

// WithValueFunc sets the conversion applied to every value cell.
func WithValueFunc(fn func(interface{}) interface{}) MeltOption {
	return func(o *MeltOptions) { o.ValueFunc = fn }
}

func (o *MeltOptions) withDefaults() *MeltOptions {
	if o.VarName == "" {
		o.VarName = "variable"
	}
	if o.ValueName == "" {
		o.ValueName = "value"
	}
	return o
}

// Melt unpivots t from wide to long form. For every input row, in order, and
// every value column, in the order given, it emits one row holding the id
// columns, the variable cell and the value cell. The result has
// len(ids)+2 columns and t.Len()*len(values) rows.
func Melt(t *core.Table, ids, values []string, options ...MeltOption) (*core.Table, error) {
	opts := (&MeltOptions{}).withDefaults()
	for _, opt := range options {
		opt(opts)
	}

	for _, c := range append(append([]string(nil), ids...), values...) {
		if !t.HasColumn(c) {
			return nil, fmt.Errorf("melt: no column %q", c)
		}
	}

	vars := make([]interface{}, len(values))
	for i, c := range values {
		if opts.VarFunc == nil {
			vars[i] = c
			continue
		}
		v, err := opts.VarFunc(c)
		if err != nil {
			return nil, fmt.Errorf("melt: column %q: %w", c, err)
		}
		vars[i] = v
	}

	columns := append(append([]string(nil), ids...), opts.VarName, opts.ValueName)
	out := core.NewTable(columns)
	for _, row := range t.Rows() {
		for i, c := range values {
			rec := make(core.Record, len(columns))
			for _, id := range ids {
				rec[id] = row[id]
			}
			rec[opts.VarName] = vars[i]
			if opts.ValueFunc != nil {
				rec[opts.ValueName] = opts.ValueFunc(row[c])
			} else {
				rec[opts.ValueName] = row[c]
			}
			out.Append(rec)
		}
	}
	return out, nil
}
