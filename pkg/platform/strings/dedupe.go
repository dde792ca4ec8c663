// Package strings holds small list helpers used when parsing configuration
// and command-line input.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and duplicates,
// keeping first-seen order.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a separated list such as "kafka-1:9092, kafka-2:9092"
// and cleans it with DedupeAndTrim. It returns nil when nothing remains.
func SplitList(v, sep string) []string {
	out := DedupeAndTrim(strings.Split(v, sep))
	if len(out) == 0 {
		return nil
	}
	return out
}
