// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Arctic palette.
var (
	colorTealBright  = lipgloss.Color("#2CD7C7")
	colorTealPrimary = lipgloss.Color("#20B9B4")
	colorTealDeep    = lipgloss.Color("#16858E")
	colorSlate       = lipgloss.Color("#2C4A54")
	colorWarning     = lipgloss.Color("#F4D03F")
	colorError       = lipgloss.Color("#E74C3C")
)

// palette styles inspect output and error lines. Without color it
// returns text unchanged.
type palette struct {
	color   bool
	adapter lipgloss.Style
	object  lipgloss.Style
	key     lipgloss.Style
	scalar  lipgloss.Style
	branch  lipgloss.Style
	cycle   lipgloss.Style
	err     lipgloss.Style
}

func colorPalette() palette {
	return palette{
		color:   true,
		adapter: lipgloss.NewStyle().Foreground(colorTealPrimary),
		object:  lipgloss.NewStyle().Bold(true).Foreground(colorTealBright),
		key:     lipgloss.NewStyle().Bold(true),
		scalar:  lipgloss.NewStyle().Foreground(colorTealDeep),
		branch:  lipgloss.NewStyle().Foreground(colorSlate),
		cycle:   lipgloss.NewStyle().Foreground(colorWarning),
		err:     lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
}

func (p palette) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// paletteFor returns colors for terminals and plain text otherwise.
func paletteFor(w io.Writer) palette {
	if isTerminal(w) {
		return colorPalette()
	}
	return palette{}
}

func errorLine(w io.Writer, err error) string {
	p := paletteFor(w)
	return p.paint(p.err, "frost: "+err.Error())
}
