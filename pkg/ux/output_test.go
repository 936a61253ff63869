// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_Machine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityMachine)

	p.Title("ignored")
	p.Success("stored")
	p.Warning("careful")
	p.KeyValues([][2]string{{"run", "base"}, {"events", "20"}})
	p.Table([]string{"SRC", "DST", "P"}, [][]string{{"a.c:1", "b.c:2", "0.6"}}, 2)

	want := "OK: stored\n" +
		"WARN: careful\n" +
		"run\tbase\n" +
		"events\t20\n" +
		"SRC\tDST\tP\n" +
		"a.c:1\tb.c:2\t0.6\n"
	assert.Equal(t, want, buf.String())
}

func TestPrinter_MinimalTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityMinimal)
	p.Table([]string{"NAME", "N"}, [][]string{{"long-name", "1"}, {"x", "100"}}, 1)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "long-name"))
	// The numeric column is right aligned, so both rows end together.
	assert.Equal(t, len(lines[1]), len(lines[2]))
	assert.True(t, strings.HasSuffix(lines[2], "100"))
}

func TestPrinter_MinimalKeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, PersonalityMinimal).KeyValues([][2]string{{"a", "1"}, {"long", "2"}})
	assert.Equal(t, "a:    1\nlong: 2\n", buf.String())
}
