package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandGlobs expands log file arguments (paths or glob patterns) into a
// sorted, deduplicated list of files. Patterns may use ** to match any
// number of directories, e.g. /var/log/**/*.log. Directories are dropped.
// Patterns that match nothing are kept as literal paths so the caller
// reports a file-not-found error for them.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			result = append(result, path)
		}
	}

	for _, pattern := range patterns {
		matches, err := MatchGlob(pattern)
		if err != nil {
			return nil, err
		}

		if len(matches) == 0 {
			add(pattern)
			continue
		}

		for _, match := range matches {
			add(match)
		}
	}

	sort.Strings(result)

	return result, nil
}

// IsGlob reports whether pattern contains glob syntax.
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// MatchGlob returns the regular files matching one pattern, sorted.
func MatchGlob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
