package formatting

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"zapp/internal/lifecycle"
	"zapp/internal/locator"
	"zapp/internal/steps"
	zstrings "zapp/pkg/strings"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatReport renders one row per scenario and a footer with totals.
func (f *TableFormatter) FormatReport(report lifecycle.Report) string {
	if len(report.Scenarios) == 0 {
		return f.formatEmptyMessage("📋", "No scenarios were run")
	}

	t := f.createTable()
	t.AppendHeader(table.Row{f.header("#"), f.header("SCENARIO"), f.header("STATUS"), f.header("ATTEMPTS"), f.header("TIME")})
	for i, sc := range report.Scenarios {
		t.AppendRow(table.Row{
			i + 1,
			sc.Name + "\n" + f.dim(sc.Location),
			f.status(sc.Status),
			sc.Attempts,
			formatElapsed(sc.Elapsed),
		})
	}
	t.AppendFooter(table.Row{"", "", f.status(lifecycle.StatusPassed), report.Passed, ""})
	t.AppendFooter(table.Row{"", "", f.status(lifecycle.StatusFailed), report.Failed, ""})

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")

	if len(report.Sync) > 0 {
		st := f.createTable()
		st.AppendHeader(table.Row{f.header("SCENARIO"), f.header("ZEPHYR")})
		for _, name := range slices.Sorted(maps.Keys(report.Sync)) {
			st.AppendRow(table.Row{name, report.Sync[name]})
		}
		b.WriteString(st.Render())
		b.WriteString("\n")
	}
	if report.SessionURL != "" {
		fmt.Fprintf(&b, "%s %s\n", f.color(text.FgHiBlue, "Session:"), report.SessionURL)
	}
	if report.VideoURL != "" {
		fmt.Fprintf(&b, "%s %s\n", f.color(text.FgHiBlue, "Video:"), report.VideoURL)
	}
	return b.String()
}

// FormatLocators renders the registry sorted by name.
func (f *TableFormatter) FormatLocators(entries []locator.Entry) string {
	if len(entries) == 0 {
		return f.formatEmptyMessage("📋", "No locators registered")
	}

	t := f.createTable()
	t.AppendHeader(table.Row{f.header("NAME"), f.header("SELECTOR"), f.header("KIND"), f.header("SOURCE")})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Name,
			zstrings.TruncateDescription(e.Selector, zstrings.DefaultDescriptionMaxLen),
			string(locator.KindOf(e.Selector)),
			f.dim(e.Source),
		})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(entries)})
	return t.Render() + "\n"
}

// FormatSteps renders the step catalogue, one row per pattern.
func (f *TableFormatter) FormatSteps(defs []steps.Definition) string {
	if len(defs) == 0 {
		return f.formatEmptyMessage("📋", "No steps registered")
	}

	t := f.createTable()
	t.AppendHeader(table.Row{f.header("SECTION"), f.header("STEP"), f.header("NOTES")})
	for _, d := range defs {
		var notes []string
		if len(d.Unavailable) > 0 {
			names := make([]string, 0, len(d.Unavailable))
			for _, p := range d.Unavailable {
				names = append(names, string(p))
			}
			notes = append(notes, "not on "+strings.Join(names, ", "))
		}
		if d.Deprecated != "" {
			notes = append(notes, f.color(text.FgYellow, "deprecated"))
		}
		t.AppendRow(table.Row{string(d.Section), d.Pattern, strings.Join(notes, "; ")})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	return t.Render() + "\n"
}

// FormatData formats generic data using table logic
func (f *TableFormatter) FormatData(data interface{}) error {
	w := f.options.writer()
	switch d := data.(type) {
	case map[string]interface{}:
		return f.formatObjectData(d)
	case []interface{}:
		return f.formatArrayData(d)
	case string:
		fmt.Fprintln(w, d)
	default:
		fmt.Fprintf(w, "%v\n", d)
	}
	return nil
}

// SetOptions updates the formatter options
func (f *TableFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *TableFormatter) GetOptions() Options {
	return f.options
}

// Helper methods

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) color(c text.Color, s string) string {
	if !f.options.Color {
		return s
	}
	return c.Sprint(s)
}

func (f *TableFormatter) header(s string) string {
	return f.color(text.FgHiCyan, s)
}

func (f *TableFormatter) dim(s string) string {
	return f.color(text.FgHiBlack, s)
}

func (f *TableFormatter) status(s string) string {
	switch s {
	case lifecycle.StatusPassed:
		return f.color(text.FgGreen, s)
	case lifecycle.StatusFailed:
		return f.color(text.FgRed, s)
	default:
		return f.color(text.FgYellow, s)
	}
}

// formatEmptyMessage formats empty result messages
func (f *TableFormatter) formatEmptyMessage(icon, message string) string {
	if f.options.Quiet {
		return message + "\n"
	}
	return fmt.Sprintf("%s %s\n", f.color(text.FgYellow, icon), f.color(text.FgYellow, message))
}

// formatObjectData formats object data as key-value pairs
func (f *TableFormatter) formatObjectData(data map[string]interface{}) error {
	t := f.createTable()
	t.SetOutputMirror(f.options.writer())
	t.AppendHeader(table.Row{f.header("KEY"), f.header("VALUE")})

	for _, key := range slices.Sorted(maps.Keys(data)) {
		valueStr := zstrings.TruncateDescription(fmt.Sprintf("%v", data[key]), 100)
		t.AppendRow(table.Row{f.header(key), valueStr})
	}

	t.Render()
	return nil
}

// formatArrayData formats array data as a simple numbered list
func (f *TableFormatter) formatArrayData(data []interface{}) error {
	w := f.options.writer()
	if len(data) == 0 {
		fmt.Fprint(w, f.formatEmptyMessage("📋", "No items found"))
		return nil
	}

	for i, item := range data {
		fmt.Fprintf(w, "  %d. %v\n", i+1, item)
	}

	fmt.Fprintf(w, "\n%s %s %s\n",
		f.color(text.FgHiBlue, "Total:"),
		f.color(text.FgHiWhite, fmt.Sprint(len(data))),
		f.color(text.FgHiBlue, "items"))

	return nil
}
