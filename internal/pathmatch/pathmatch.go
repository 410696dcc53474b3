// Package pathmatch implements glob matching for project-relative paths.
// Patterns use the usual shell syntax per segment plus "**", which matches
// any number of segments (including none).
package pathmatch

import (
	"path"
	"strings"
)

// Match reports whether relPath matches pattern. Both are slash-separated
// and project-root-relative. Invalid patterns never match.
func Match(pattern, relPath string) bool {
	pattern = strings.Trim(pattern, "/")
	relPath = strings.Trim(relPath, "/")

	if pattern == "" {
		return relPath == ""
	}
	if relPath == "" {
		return false
	}

	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

// MatchAny reports whether relPath matches any of the patterns.
func MatchAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		if Match(pattern, relPath) {
			return true
		}
	}

	return false
}

// Filter returns the subset of relPaths matching pattern, preserving order.
func Filter(pattern string, relPaths []string) []string {
	var out []string
	for _, p := range relPaths {
		if Match(pattern, p) {
			out = append(out, p)
		}
	}

	return out
}

// IsStatic reports whether pattern contains no glob metacharacters, i.e.
// it names exactly one path.
func IsStatic(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?[")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			// "**" swallows zero or more leading segments.
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}

			return false
		}

		if len(segs) == 0 {
			return false
		}

		ok, err := path.Match(pattern[0], segs[0])
		if err != nil || !ok {
			return false
		}

		pattern = pattern[1:]
		segs = segs[1:]
	}

	return len(segs) == 0
}
