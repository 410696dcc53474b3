package fileindex

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/nowdev/devserver/internal/pathmatch"
)

// IgnoreFile is read from the project root for user ignore rules, one glob
// per line, # comments.
const IgnoreFile = ".nowignore"

// defaultIgnores are always excluded from the index regardless of the
// ignore file.
var defaultIgnores = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	".env",
	".env.build",
	".nowignore",
	".now",
}

// IgnoreFilter decides which project paths are hidden from the file index
// and the watcher.
type IgnoreFilter struct {
	patterns []string
}

// NewIgnoreFilter builds a filter from the default rules plus extra
// patterns.
func NewIgnoreFilter(extra ...string) *IgnoreFilter {
	patterns := make([]string, 0, len(defaultIgnores)+len(extra))
	patterns = append(patterns, defaultIgnores...)
	patterns = append(patterns, extra...)

	return &IgnoreFilter{patterns: patterns}
}

// LoadIgnoreFilter reads the project ignore file and combines it with the
// defaults. A missing ignore file is fine.
func LoadIgnoreFilter(root string) (*IgnoreFilter, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return NewIgnoreFilter(), nil
		}

		return nil, err
	}
	defer f.Close()

	var extra []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		extra = append(extra, strings.Trim(line, "/"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewIgnoreFilter(extra...), nil
}

// Ignores reports whether relPath is excluded. A pattern matching a
// directory excludes everything under it.
func (f *IgnoreFilter) Ignores(relPath string) bool {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")

	for _, pattern := range f.patterns {
		if pathmatch.Match(pattern, relPath) || pathmatch.Match(pattern+"/**", relPath) {
			return true
		}
	}

	return false
}
