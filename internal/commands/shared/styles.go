// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/tombee/stepflow/pkg/workflow"
)

var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles informational text
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary/less important text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")) // blue bold
)

// IsTTY reports whether stdout should get terminal styling. It is false
// when stdout is piped, NO_COLOR is set, or TERM is "dumb" or empty.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if t := os.Getenv("TERM"); t == "dumb" || t == "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ConfigureStyles drops colors when stdout is not a terminal.
func ConfigureStyles() {
	if !IsTTY() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Status symbols
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// RenderOK renders a success message with symbol
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning message with symbol
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders an error message with symbol
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderInfo renders an informational line with symbol
func RenderInfo(msg string) string {
	return StatusInfo.Render(SymbolInfo) + " " + msg
}

// RenderLabel renders a muted label
func RenderLabel(label string) string {
	return Muted.Render(label)
}

// RenderDiagnostic renders one validation finding as a single line:
// symbol, code, location and message.
func RenderDiagnostic(d workflow.PublishError) string {
	loc := d.StepPath
	if d.Field != "" {
		loc += " " + d.Field
	}
	line := fmt.Sprintf("%s %s %s", Bold.Render(d.Code), Muted.Render(loc), d.Message)
	switch {
	case d.IsUnavailable():
		return RenderInfo(line)
	case d.Severity == workflow.SeverityWarning:
		return RenderWarn(line)
	default:
		return RenderError(line)
	}
}

// PrintDiagnostics writes one line per finding, errors first.
func PrintDiagnostics(w io.Writer, d workflow.Diagnostics) {
	for _, e := range d.Errors() {
		fmt.Fprintln(w, RenderDiagnostic(e))
	}
	for _, e := range d.Warnings() {
		fmt.Fprintln(w, RenderDiagnostic(e))
	}
}
