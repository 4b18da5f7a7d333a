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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	require.NoError(t, err)
	_, err = newLogger("WARN", "text")
	require.NoError(t, err)

	_, err = newLogger("loud", "text")
	assert.ErrorContains(t, err, "-log-level")
	_, err = newLogger("info", "xml")
	assert.ErrorContains(t, err, "-log-format")
}

func TestRun_BadFlagsAndConfig(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
	assert.Equal(t, 2, run([]string{"-log-format", "xml"}))
	assert.Equal(t, 1, run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Equal(t, 2, run([]string{"-datasets", "weather"}))
}

func TestRun_DryRunFromFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "emissions.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"State FIPS,State,Tier 1 Code,Tier 1 Description,Pollutant,emissions1990,emissions1991\n"+
			"1,AL,1,Fuel Comb.,CO,1.5,\n"), 0o644))

	cfgPath := filepath.Join(dir, "envetl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"datasets:\n"+
			"  emissions:\n"+
			"    source:\n"+
			"      type: file\n"+
			"      path: "+csvPath+"\n"), 0o644))

	assert.Equal(t, 0, run([]string{"-config", cfgPath, "-datasets", "emissions", "-dry-run", "-log-level", "error"}))
}
