package utils

import (
	"regexp"
)

// CompileRegexPatterns compiles regex strings into usable *regexp.Regexp objects.
// Patterns are matched case-insensitively when caseInsensitive is set.
func CompileRegexPatterns(patterns []string, caseInsensitive bool) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" { // Skip empty patterns silently
			continue
		}
		if caseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid regex pattern #%d ('%s'): %v", i+1, patterns[i], err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// CountMatches returns how many of the patterns match s.
func CountMatches(patterns []*regexp.Regexp, s string) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(s) {
			n++
		}
	}
	return n
}
