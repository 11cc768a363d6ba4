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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	assert.False(t, p.Styled())
}

func TestPrinter_PlainOutput(t *testing.T) {
	tests := []struct {
		name  string
		print func(p *Printer)
		want  string
	}{
		{"title", func(p *Printer) { p.Title("Run") }, "Run\n"},
		{"success", func(p *Printer) { p.Success("saved") }, "OK: saved\n"},
		{"warning", func(p *Printer) { p.Warning("slow") }, "WARN: slow\n"},
		{"error", func(p *Printer) { p.Error("failed") }, "ERROR: failed\n"},
		{"field", func(p *Printer) { p.Field("states", 3) }, "  states       3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.print(NewPlainPrinter(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrinter_StyledOutputKeepsText(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf, styled: true}
	p.Success("saved")
	p.Field("states", 3)
	assert.Contains(t, buf.String(), "saved")
	assert.Contains(t, buf.String(), "states")
	assert.Contains(t, buf.String(), string(IconSuccess))
}
