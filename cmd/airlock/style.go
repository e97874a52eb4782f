// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	styleSafe    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWorking = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// initStyles downgrades the color profile when stdout is not a
// terminal or the environment asks for no color, so piped output
// stays free of escape sequences.
func initStyles() {
	if termenv.EnvNoColor() || !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// progressTerminal reports whether stderr supports in-place progress
// rendering.
func progressTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
