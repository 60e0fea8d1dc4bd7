package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Engine substitutes {{ name }} placeholders in step arguments
type Engine struct {
	// Pattern to match template variables like {{ name }} or {{ user.ids[0] }}
	templatePattern *regexp.Regexp
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		templatePattern: regexp.MustCompile(`\{\{\s*\.?([\p{L}_][\p{L}\p{N}_]*(?:\s*(?:\[\d+\]|[.,>]\s*[\p{L}\p{N}_\[\]]+))*)\s*\}\}`),
	}
}

// Replace replaces all template variables in a value with values from the resolver
func (e *Engine) Replace(value interface{}, resolver Resolver) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.ReplaceString(v, resolver)
	case map[string]interface{}:
		return e.replaceMapTemplates(v, resolver)
	case []interface{}:
		return e.replaceSliceTemplates(v, resolver)
	default:
		// Non-templatable types are returned as-is
		return value, nil
	}
}

// ReplaceString replaces template variables in a string
func (e *Engine) ReplaceString(template string, resolver Resolver) (string, error) {
	var missingVars []string

	result := e.templatePattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		match := e.templatePattern.FindStringSubmatch(placeholder)
		varName := strings.TrimSpace(match[1])

		replacement, exists := resolver.Lookup(varName)
		if !exists {
			missingVars = append(missingVars, varName)
			return placeholder
		}
		return format(replacement)
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missingVars, ", "))
	}

	return result, nil
}

func format(replacement interface{}) string {
	switch r := replacement.(type) {
	case nil:
		return ""
	case string:
		return r
	case int, int32, int64:
		return fmt.Sprintf("%d", r)
	case float64:
		// JSON numbers decode as float64; keep integral values integral
		if r == float64(int64(r)) {
			return fmt.Sprintf("%d", int64(r))
		}
		return fmt.Sprintf("%g", r)
	case bool:
		return fmt.Sprintf("%t", r)
	default:
		return fmt.Sprintf("%v", r)
	}
}

// replaceMapTemplates recursively replaces templates in a map
func (e *Engine) replaceMapTemplates(m map[string]interface{}, resolver Resolver) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for key, value := range m {
		replacedValue, err := e.Replace(value, resolver)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", key, err)
		}
		result[key] = replacedValue
	}

	return result, nil
}

// replaceSliceTemplates recursively replaces templates in a slice
func (e *Engine) replaceSliceTemplates(s []interface{}, resolver Resolver) ([]interface{}, error) {
	result := make([]interface{}, len(s))

	for i, value := range s {
		replacedValue, err := e.Replace(value, resolver)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		result[i] = replacedValue
	}

	return result, nil
}

// ExtractVariables extracts all template variable names from a value, sorted
func (e *Engine) ExtractVariables(value interface{}) []string {
	variables := make(map[string]bool)
	e.extractVariablesRecursive(value, variables)

	result := make([]string, 0, len(variables))
	for varName := range variables {
		result = append(result, varName)
	}
	sort.Strings(result)

	return result
}

// extractVariablesRecursive recursively extracts variables from any value type
func (e *Engine) extractVariablesRecursive(value interface{}, variables map[string]bool) {
	switch v := value.(type) {
	case string:
		matches := e.templatePattern.FindAllStringSubmatch(v, -1)
		for _, match := range matches {
			if len(match) >= 2 {
				variables[strings.TrimSpace(match[1])] = true
			}
		}
	case map[string]interface{}:
		for _, val := range v {
			e.extractVariablesRecursive(val, variables)
		}
	case []interface{}:
		for _, val := range v {
			e.extractVariablesRecursive(val, variables)
		}
	}
}

// ValidateContext ensures all required variables can be resolved
func (e *Engine) ValidateContext(value interface{}, resolver Resolver) error {
	requiredVars := e.ExtractVariables(value)

	var missingVars []string
	for _, varName := range requiredVars {
		if _, exists := resolver.Lookup(varName); !exists {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required variables: %s", strings.Join(missingVars, ", "))
	}

	return nil
}
