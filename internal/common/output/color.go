package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	// Severity colors
	InfoEntry    = color.New(color.FgGreen)
	WarningEntry = color.New(color.FgYellow)
	ErrorEntry   = color.New(color.FgRed)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header = color.New(color.FgWhite, color.Bold)
	Job    = color.New(color.FgBlue, color.Bold)
	Value  = color.New(color.FgMagenta)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// SeverityColor returns the color for a log severity name
func SeverityColor(severity string) *color.Color {
	switch severity {
	case "Info":
		return InfoEntry
	case "Warning":
		return WarningEntry
	case "Error":
		return ErrorEntry
	default:
		return color.New(color.Reset)
	}
}

// FormatSeverity formats a severity name with its color
func FormatSeverity(severity string) string {
	return SeverityColor(severity).Sprintf("[%s]", severity)
}

// FormatLogEntry formats one batch log line
func FormatLogEntry(severity, message string) string {
	return FormatSeverity(severity) + " " + message
}

// FormatJob formats a job name with its category
func FormatJob(category, name string) string {
	if category != "" {
		return Job.Sprintf("%s/%s", category, name)
	}
	return Job.Sprint(name)
}

// FormatVariable formats a resolved variable as {name} = value
func FormatVariable(name, value string) string {
	return fmt.Sprintf("{%s} = %s", name, Value.Sprint(value))
}

// ProgressBar renders percent as a fixed-width bar. A negative percent
// renders an indeterminate bar.
func ProgressBar(percent, width int) string {
	if width <= 0 {
		width = 20
	}
	if percent < 0 {
		return "[" + strings.Repeat("?", width) + "]"
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]" +
		fmt.Sprintf(" %3d%%", percent)
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// Fprintln prints with color and newline to w
func Fprintln(w io.Writer, c *color.Color, a ...interface{}) {
	c.Fprintln(w, a...)
}

// Box prints a boxed message
func Box(w io.Writer, title, content string) {
	fmt.Fprintln(w)
	Header.Fprintln(w, "┌─ "+title+" ─")
	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│  "+content)
	fmt.Fprintln(w, "│")
	Header.Fprintln(w, "└────────────────")
	fmt.Fprintln(w)
}
