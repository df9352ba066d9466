package utils

import (
	"regexp"
	"strings"
)

var invalidSegmentChars = regexp.MustCompile(`[^a-z0-9._-]+`)

const maxSegmentLength = 64

// SanitizePathSegment lowercases name and reduces it to a safe single path segment.
// Used for category directories in blob keys and index output.
func SanitizePathSegment(name string) string {
	sanitized := invalidSegmentChars.ReplaceAllString(strings.ToLower(name), "_")
	sanitized = strings.Trim(sanitized, "_.")
	if len(sanitized) > maxSegmentLength {
		sanitized = strings.Trim(sanitized[:maxSegmentLength], "_.")
	}
	if sanitized == "" {
		sanitized = "uncategorized"
	}
	return sanitized
}
