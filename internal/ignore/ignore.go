// Package ignore compiles library-level and per-directory ignore rules
// into matchers used by the Directory Walker. Patterns
// are doublestar globs, matched the way standardbeagle-lci's file watcher
// matches its include/exclude lists.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher holds one directory's compiled set of glob patterns, plus any
// inherited from its library-level configuration. A path matches if it
// matches ANY pattern (the design: ignore rules are a union, not a
// pipeline).
type Matcher struct {
	patterns []string
}

// Compile validates every pattern up front — an invalid glob fails the
// whole Init task rather than silently matching nothing at scan time.
func Compile(patterns []string) (*Matcher, error) {
	compiled := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &InvalidPatternError{Pattern: p}
		}
		compiled = append(compiled, p)
	}
	return &Matcher{patterns: compiled}, nil
}

type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "invalid ignore pattern: " + e.Pattern
}

// Match reports whether relPath should be skipped by the walker. relPath
// is relative to the directory being walked: the library root during a
// library walk, the series directory during a series walk.
func (m *Matcher) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
		// Also match against the base name alone, so a bare "*.tmp" rule
		// ignores a file at any depth, not only at the pattern's own depth.
		if ok, _ := doublestar.Match(p, filepath.Base(relPath)); ok {
			return true
		}
	}
	return false
}

// Empty reports whether this matcher has no compiled patterns, letting
// the walker skip the match call entirely on the hot path.
func (m *Matcher) Empty() bool {
	return len(m.patterns) == 0
}

// LoadDotfile reads a ".stumpignore" file from a directory, one pattern
// per line, "#" for comments — the per-directory override layer that
// stacks on top of the library-level ignore_rules.
func LoadDotfile(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".stumpignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// Merge combines library-level rules with a directory's own .stumpignore
// rules into one Matcher.
func Merge(libraryRules, dirRules []string) (*Matcher, error) {
	all := make([]string, 0, len(libraryRules)+len(dirRules))
	all = append(all, libraryRules...)
	all = append(all, dirRules...)
	return Compile(all)
}
