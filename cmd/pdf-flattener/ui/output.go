// Package ui provides terminal output for the pdf-flattener CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	stdout io.Writer = color.Output
	stderr io.Writer = color.Error
)

// Init configures colored output. Color is also disabled when NO_COLOR is set.
func Init(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Success prints a success message.
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(stdout, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message to stderr.
func Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(stderr, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(stdout, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Table displays rows under headers.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
