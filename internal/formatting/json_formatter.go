package formatting

import (
	"encoding/json"
	"fmt"

	"zapp/internal/lifecycle"
	"zapp/internal/locator"
	"zapp/internal/steps"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatReport formats the run report as JSON
func (f *JSONFormatter) FormatReport(report lifecycle.Report) string {
	return f.marshal(viewReport(report))
}

// FormatLocators formats the registry as a JSON array
func (f *JSONFormatter) FormatLocators(entries []locator.Entry) string {
	return f.marshal(viewLocators(entries))
}

// FormatSteps formats the step catalogue as a JSON array
func (f *JSONFormatter) FormatSteps(defs []steps.Definition) string {
	return f.marshal(viewSteps(defs))
}

// FormatData formats generic data as JSON
func (f *JSONFormatter) FormatData(data interface{}) error {
	fmt.Fprintln(f.options.writer(), f.marshal(data))
	return nil
}

// SetOptions updates the formatter options
func (f *JSONFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}

// marshal converts data to JSON string with appropriate formatting
func (f *JSONFormatter) marshal(data interface{}) string {
	if !f.options.Quiet {
		return PrettyJSON(data)
	}

	// Compact JSON for quiet mode
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf(`{"error": "Failed to format JSON: %v"}`, err)
	}
	return string(jsonBytes)
}
