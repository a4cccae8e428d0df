package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: batch-output, Property 1: Color output matches severity**
func TestColorOutputMatchesSeverity(t *testing.T) {
	ForceColor()
	defer NoColor()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	severityColorCodes := map[string]string{
		"Info":    "\x1b[32m", // Green
		"Warning": "\x1b[33m", // Yellow
		"Error":   "\x1b[31m", // Red
	}
	severityGen := gen.OneConstOf("Info", "Warning", "Error")

	properties.Property("FormatSeverity contains correct ANSI code", prop.ForAll(
		func(severity string) bool {
			return strings.Contains(FormatSeverity(severity), severityColorCodes[severity])
		},
		severityGen,
	))

	properties.Property("FormatLogEntry keeps severity and message", prop.ForAll(
		func(severity, message string) bool {
			formatted := FormatLogEntry(severity, message)
			return strings.Contains(formatted, severity) && strings.HasSuffix(formatted, " "+message)
		},
		severityGen,
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// **Feature: batch-output, Property 2: No-color flag disables ANSI codes**
func TestNoColorFlagDisablesANSICodes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Sprintf contains no ANSI codes when NoColor is set", prop.ForAll(
		func(text string) bool {
			NoColor()
			defer ForceColor()

			colors := []*color.Color{InfoEntry, WarningEntry, ErrorEntry, Success, Error, Info, Warning, Job, Value}
			for _, c := range colors {
				if strings.Contains(Sprintf(c, "%s", text), "\x1b[") {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("FormatJob contains no ANSI codes when NoColor is set", prop.ForAll(
		func(category, name string) bool {
			NoColor()
			defer ForceColor()

			return !strings.Contains(FormatJob(category, name), "\x1b[")
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestFormatJob(t *testing.T) {
	NoColor()
	if got := FormatJob("Tools", "zeta"); got != "Tools/zeta" {
		t.Errorf("FormatJob() = %q", got)
	}
	if got := FormatJob("", "zeta"); got != "zeta" {
		t.Errorf("FormatJob() without category = %q", got)
	}
	if got := FormatVariable("ver", "1.2"); got != "{ver} = 1.2" {
		t.Errorf("FormatVariable() = %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "[----------]   0%"},
		{50, "[#####-----]  50%"},
		{100, "[##########] 100%"},
		{150, "[##########] 100%"},
		{-1, "[??????????]"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.percent, 10); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestBox(t *testing.T) {
	NoColor()
	var buf bytes.Buffer
	Box(&buf, "Summary", "1 of 3 applications installed successfully.")
	if !strings.Contains(buf.String(), "┌─ Summary ─") || !strings.Contains(buf.String(), "│  1 of 3") {
		t.Errorf("Box() = %q", buf.String())
	}
}
