package utils

import (
	"strings"
)

// DeduplicateStrings trims values, drops blanks and duplicates, and keeps the first occurrence order.
func DeduplicateStrings(values []string) []string {
	encountered := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := encountered[trimmed]; exists {
			continue
		}
		encountered[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// Truncate returns at most limit runes of text.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
