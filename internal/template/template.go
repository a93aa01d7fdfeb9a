// Package template renders campaign messages per recipient by replacing
// {placeholder} tokens with recipient values.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{[a-zA-Z_]+\}`)

// Render replaces known placeholders with recipient values. Unknown
// placeholders are left in the text untouched; missing values render as
// empty strings.
func Render(template string, vars map[string]string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	rendered := template
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}

	return rendered, nil
}

// Validate checks the template for balanced braces.
func Validate(template string) error {
	if template == "" {
		return fmt.Errorf("template cannot be empty")
	}

	openCount := strings.Count(template, "{")
	closeCount := strings.Count(template, "}")
	if openCount != closeCount {
		return fmt.Errorf("template has unbalanced braces: %d open, %d close", openCount, closeCount)
	}

	return nil
}

// Placeholders extracts all placeholders from a template.
func Placeholders(template string) []string {
	return placeholderRe.FindAllString(template, -1)
}
