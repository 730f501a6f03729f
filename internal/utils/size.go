package utils

import (
	"fmt"
	"strings"
)

var sizeUnits = []string{"b", "kb", "mb", "gb"}

// FormatFileSize converts a byte length into a human-readable lower-case unit string.
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		return "0b"
	}
	value := float64(bytes)
	unitIndex := 0
	for value >= 1024 && unitIndex < len(sizeUnits)-1 {
		value /= 1024
		unitIndex++
	}
	if unitIndex == 0 {
		return fmt.Sprintf("%db", bytes)
	}
	if value < 10 {
		return strings.TrimSuffix(fmt.Sprintf("%.1f", value), ".0") + sizeUnits[unitIndex]
	}
	return fmt.Sprintf("%.0f%s", value, sizeUnits[unitIndex])
}
