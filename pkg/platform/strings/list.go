// Package strings holds list helpers for configuration values.
package strings

import (
	"slices"
	"strings"
)

// SplitList splits v on sep and returns the trimmed, non-empty items with
// repeats removed. First-seen order wins. An empty v yields nil.
func SplitList(v, sep string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return Compact(strings.Split(v, sep))
}

// Compact trims every item, then drops empties and repeats.
func Compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}
