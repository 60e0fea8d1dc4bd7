package formatting

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"zapp/internal/lifecycle"
	"zapp/internal/locator"
	"zapp/internal/steps"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatReport formats the run report as YAML
func (f *YAMLFormatter) FormatReport(report lifecycle.Report) string {
	return f.marshal(viewReport(report))
}

// FormatLocators formats the registry as a YAML sequence
func (f *YAMLFormatter) FormatLocators(entries []locator.Entry) string {
	return f.marshal(viewLocators(entries))
}

// FormatSteps formats the step catalogue as a YAML sequence
func (f *YAMLFormatter) FormatSteps(defs []steps.Definition) string {
	return f.marshal(viewSteps(defs))
}

// FormatData formats generic data as YAML
func (f *YAMLFormatter) FormatData(data interface{}) error {
	fmt.Fprint(f.options.writer(), f.marshal(data))
	return nil
}

// SetOptions updates the formatter options
func (f *YAMLFormatter) SetOptions(options Options) {
	f.options = options
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}

// marshal converts data to YAML string
func (f *YAMLFormatter) marshal(data interface{}) string {
	yamlBytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error: \"Failed to format YAML: %v\"\n", err)
	}

	return string(yamlBytes)
}
