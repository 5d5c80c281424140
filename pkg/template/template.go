// Package template renders {{variable}} placeholders against a contact's
// variable bag.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// Render replaces every {{key}} occurrence in s with the value looked up in
// vars. Dotted keys walk nested maps. Absent or nil values render as the
// empty string. A template with no placeholders comes back unchanged; Render
// never fails.
func Render(s string, vars map[string]any) string {
	if s == "" {
		return s
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]

		return stringify(Lookup(vars, key))
	})
}

// Lookup resolves a dotted path in a nested variable bag. It returns nil when
// any segment is missing or a non-map value is reached before the last
// segment.
func Lookup(vars map[string]any, path string) any {
	if vars == nil {
		return nil
	}

	segments := strings.Split(path, ".")

	var current any = vars

	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = m[segment]
		if !ok {
			return nil
		}
	}

	return current
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		// JSON numbers decode as float64; keep integers unadorned.
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
