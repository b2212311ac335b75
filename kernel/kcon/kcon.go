// Package kcon renders severity-tagged diagnostic lines for the fault report
// engine. Output goes to a configurable sink; tests capture it by swapping in
// a buffer. The package adds no locking of its own: diagnostics during a
// fatal event are append-only and best-effort, and serializing concurrent
// writers is the sink's concern.
package kcon

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Severity classifies a diagnostic line. The tag set mirrors the severity
// classes the fault vectors report under.
type Severity uint8

const (
	// SevInt tags hardware interrupts (NMI).
	SevInt Severity = iota

	// SevTrap tags traps that user code may legitimately raise.
	SevTrap

	// SevError tags unrecoverable faults.
	SevError

	// SevErrorTrap tags the debug vector, which doubles as a trap.
	SevErrorTrap

	// SevTerminate tags the double fault.
	SevTerminate
)

var sevTags = [...]string{"INT", "TRAP", "ERROR", "ERROR / TRAP", "Terminate"}

// String implements fmt.Stringer for Severity.
func (s Severity) String() string {
	if int(s) >= len(sevTags) {
		return "UNKNOWN"
	}
	return sevTags[s]
}

// ANSI palette per severity: blue, yellow, red, red, red.
var sevColors = [...]lipgloss.Color{"4", "3", "1", "1", "1"}

const headingColor = lipgloss.Color("3")

var (
	outputSink io.Writer = os.Stdout
	renderer             = lipgloss.NewRenderer(os.Stdout)
)

// SetOutputSink redirects all diagnostic output to w. Passing nil restores
// the default sink (stdout). The color profile is re-detected for the new
// sink, so non-terminal sinks receive plain text.
func SetOutputSink(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	outputSink = w
	renderer = lipgloss.NewRenderer(w)
	renderer.SetColorProfile(termenv.NewOutput(w).ColorProfile())
}

// GetOutputSink returns the io.Writer that diagnostic output is sent to.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf writes formatted output to the active sink.
func Printf(format string, args ...any) {
	fmt.Fprintf(outputSink, format, args...)
}

// Tagf writes a severity-tagged diagnostic line: a bracketed tag styled
// according to sev, followed by the formatted message.
func Tagf(sev Severity, format string, args ...any) {
	style := renderer.NewStyle().Foreground(sevColors[sev]).Bold(true)
	fmt.Fprintf(outputSink, "[ %s ] ", style.Render(sev.String()))
	fmt.Fprintf(outputSink, format, args...)
}

// Headingf writes a highlighted heading line, used to introduce decoded
// error-code findings. A trailing newline is appended.
func Headingf(format string, args ...any) {
	style := renderer.NewStyle().Foreground(headingColor).Bold(true)
	fmt.Fprintf(outputSink, "%s\n", style.Render(fmt.Sprintf(format, args...)))
}
