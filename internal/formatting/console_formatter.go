package formatting

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"zapp/internal/lifecycle"
	"zapp/internal/locator"
	"zapp/internal/steps"
	zstrings "zapp/pkg/strings"
)

// ConsoleFormatter provides simple console output formatting
type ConsoleFormatter struct {
	options Options
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(options Options) Formatter {
	return &ConsoleFormatter{
		options: options,
	}
}

// FormatReport lists every scenario with its final status.
func (f *ConsoleFormatter) FormatReport(report lifecycle.Report) string {
	if len(report.Scenarios) == 0 {
		return "No scenarios were run."
	}

	var output []string
	if !f.options.Quiet {
		output = append(output, fmt.Sprintf("Scenarios (%d):", len(report.Scenarios)))
	}
	for i, sc := range report.Scenarios {
		line := fmt.Sprintf("  %d. %-8s %s (%s)", i+1, sc.Status, sc.Name, formatElapsed(sc.Elapsed))
		if sc.Attempts > 1 {
			line += fmt.Sprintf(", attempts: %d", sc.Attempts)
		}
		output = append(output, line)
		if sc.Err != nil && !f.options.Quiet {
			output = append(output, "     "+zstrings.TruncateDescription(sc.Err.Error(), 120))
		}
	}
	output = append(output, fmt.Sprintf("Passed: %d, failed: %d", report.Passed, report.Failed))
	for _, name := range slices.Sorted(maps.Keys(report.Sync)) {
		output = append(output, fmt.Sprintf("Zephyr: %s - %s", name, report.Sync[name]))
	}
	if report.SessionURL != "" {
		output = append(output, "Session: "+report.SessionURL)
	}
	return strings.Join(output, "\n")
}

// FormatLocators lists locators as name = selector.
func (f *ConsoleFormatter) FormatLocators(entries []locator.Entry) string {
	if len(entries) == 0 {
		return "No locators registered."
	}

	var output []string
	output = append(output, fmt.Sprintf("Locators (%d):", len(entries)))
	for _, e := range entries {
		output = append(output, fmt.Sprintf("  %-30s = %s", e.Name, e.Selector))
	}
	return strings.Join(output, "\n")
}

// FormatSteps lists step patterns grouped by section in registry order.
func (f *ConsoleFormatter) FormatSteps(defs []steps.Definition) string {
	if len(defs) == 0 {
		return "No steps registered."
	}

	var (
		output  []string
		section steps.Section
	)
	for _, d := range defs {
		if d.Section != section {
			section = d.Section
			output = append(output, string(section)+":")
		}
		line := "  " + d.Pattern
		if d.Deprecated != "" {
			line += " (deprecated)"
		}
		output = append(output, line)
	}
	return strings.Join(output, "\n")
}

// FormatData formats generic data (fallback to simple text representation)
func (f *ConsoleFormatter) FormatData(data interface{}) error {
	w := f.options.writer()
	switch d := data.(type) {
	case map[string]interface{}:
		fmt.Fprintln(w, PrettyJSON(d))
	case []interface{}:
		fmt.Fprintln(w, PrettyJSON(d))
	case string:
		fmt.Fprintln(w, d)
	default:
		fmt.Fprintf(w, "%v\n", d)
	}
	return nil
}

// SetOptions updates the formatter options
func (f *ConsoleFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *ConsoleFormatter) GetOptions() Options {
	return f.options
}
