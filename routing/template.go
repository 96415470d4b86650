package routing

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRegexp = regexp.MustCompile(`\$\{(\w+)\}`)

// Template represents a target string with named placeholders of the format
// ${name}. Templates are parsed once and are safe for concurrent use.
type Template struct {
	template     string
	placeholders []string
}

// NewTemplate parses a template string and returns a reusable *Template.
func NewTemplate(template string) *Template {
	matches := placeholderRegexp.FindAllStringSubmatch(template, -1)
	placeholders := make([]string, len(matches))
	for i, placeholder := range matches {
		placeholders[i] = placeholder[1]
	}

	return &Template{template: template, placeholders: placeholders}
}

// String returns the unsubstituted template text.
func (t *Template) String() string { return t.template }

// Substitute evaluates the template against a substitution mapping. Every
// placeholder must be present as a key in the mapping, otherwise an error
// naming the first missing placeholder is returned. A stray "${" without a
// closing brace is rejected as malformed.
func (t *Template) Substitute(mapping map[string]string) (string, error) {
	if strings.Count(t.template, "${") > len(t.placeholders) {
		return "", fmt.Errorf("malformed template %q", t.template)
	}
	result := t.template
	for _, placeholder := range t.placeholders {
		value, ok := mapping[placeholder]
		if !ok {
			return "", fmt.Errorf("unresolved placeholder ${%s}", placeholder)
		}
		result = strings.ReplaceAll(result, "${"+placeholder+"}", value)
	}
	return result, nil
}
