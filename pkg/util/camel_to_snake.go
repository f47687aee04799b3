package util

import (
	"regexp"
	"strings"
)

var camelRegex = regexp.MustCompile("[A-Z]?[a-z0-9]+")

// CamelToSnakeCase maps struct field names to column names for sqlx, e.g.
// "TargetInstance" to "target_instance" and "DurationMs" to "duration_ms".
func CamelToSnakeCase(str string) string {
	matches := camelRegex.FindAllString(str, -1)

	for i, match := range matches {
		matches[i] = strings.ToLower(match)
	}

	return strings.Join(matches, "_")
}
