// Package strings parses the comma-separated lists used in configuration.
package strings

import (
	"strings"
)

// SplitList splits raw on commas, trims each element and drops empty and
// repeated ones. Order is preserved.
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092")
//	// []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(raw string) []string {
	return dedupe(strings.Split(raw, ","), strings.TrimSpace)
}

// SplitListLower is SplitList for case-insensitive values such as sink names.
func SplitListLower(raw string) []string {
	return dedupe(strings.Split(raw, ","), func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}
