// Package pathmatch implements exclusion pattern matching for backup runs.
//
// Patterns follow glob syntax (*, ?, [...]). A pattern without a path
// separator matches against a path's basename anywhere in the tree, which
// aligns with .gitignore behavior (e.g. "node_modules" matches at any depth).
// Patterns containing a separator match against the full source-relative
// path. Matching is case sensitive.
package pathmatch

import (
	"path/filepath"
	"strings"

	"github.com/alphagoones/smartbackup/pkg/plog"
)

type matchType int

const (
	literalMatch matchType = iota
	prefixMatch
	suffixMatch
	globMatch
)

// Matcher holds categorized exclusion patterns for efficient matching.
type Matcher struct {
	// literals are for exact full-path matches, which are the fastest to check.
	literals map[string]struct{}
	// basenameLiterals are for exact basename matches (e.g., "node_modules"), also very fast.
	basenameLiterals map[string]struct{}
	// nonLiterals are for patterns requiring more complex logic (wildcards, basename matches).
	nonLiterals []pattern
}

// pattern stores the pre-analyzed pattern details.
type pattern struct {
	raw           string    // The original pattern for logging/debugging.
	clean         string    // The pattern without wildcards for prefix/suffix matching, or the full pattern for glob/literal.
	matchType     matchType // The type of match to perform (prefix, suffix, glob, literal).
	matchBasename bool      // If true, the match is against the path's basename; otherwise, the full relative path.
	dirPrefix     bool      // If true, clean names a directory and may only match at a path boundary.
}

// New analyzes and categorizes patterns to enable optimized matching later.
// An empty pattern list yields a matcher that matches nothing.
func New(patterns []string) *Matcher {
	m := &Matcher{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
		nonLiterals:      make([]pattern, 0, len(patterns)),
	}

	// A pattern should match against the basename if it does NOT contain a
	// path separator.
	shouldMatchBasename := func(p string) bool { return !strings.Contains(p, "/") }

	for _, p := range patterns {
		p = filepath.ToSlash(p)
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			// If it's a prefix pattern like `build/*`, we can optimize it.
			if strings.HasSuffix(p, "/*") {
				m.nonLiterals = append(m.nonLiterals, pattern{
					raw:           p,
					clean:         strings.TrimSuffix(p, "/*"), // e.g., "build"
					matchType:     prefixMatch,
					matchBasename: false, // This is a full-path prefix.
					dirPrefix:     true,
				})
			} else if strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?[]") {
				// A pattern like `~*` or `temp_*`.
				m.nonLiterals = append(m.nonLiterals, pattern{
					raw:           p,
					clean:         strings.TrimSuffix(p, "*"), // e.g., "~"
					matchType:     prefixMatch,
					matchBasename: shouldMatchBasename(p),
				})
			} else if strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?[]") {
				// A pattern like `*.log` or `*.tmp`.
				m.nonLiterals = append(m.nonLiterals, pattern{
					raw:           p,
					clean:         p[1:], // e.g., ".log"
					matchType:     suffixMatch,
					matchBasename: shouldMatchBasename(p),
				})
			} else {
				// Otherwise, it's a general glob pattern.
				m.nonLiterals = append(m.nonLiterals, pattern{
					raw: p, clean: p, matchType: globMatch, matchBasename: shouldMatchBasename(p),
				})
			}
		} else {
			// No wildcards.
			if strings.HasSuffix(p, "/") {
				// A pattern like `build/` is explicitly a full-path prefix match.
				m.nonLiterals = append(m.nonLiterals, pattern{
					raw:           p,
					clean:         strings.TrimSuffix(p, "/"),
					matchType:     prefixMatch,
					matchBasename: false,
					dirPrefix:     true,
				})
			} else {
				// A pattern like "node_modules" or "docs/config.json".
				// If it contains a path separator, it's a full-path literal
				// match. If not, it's a basename literal match.
				if shouldMatchBasename(p) {
					m.basenameLiterals[p] = struct{}{}
				} else {
					m.literals[p] = struct{}{}
				}
			}
		}
	}
	return m
}

// Matches reports whether the given source-relative path matches any of the
// exclusion patterns. The path is normalized to forward slashes internally.
func (m *Matcher) Matches(relPath string) bool {
	path := filepath.ToSlash(relPath)
	base := filepath.Base(path)

	// 1. Check for O(1) full-path literal matches.
	if _, ok := m.literals[path]; ok {
		return true
	}

	// 2. Check for O(1) basename literal matches.
	if _, ok := m.basenameLiterals[base]; ok {
		return true
	}

	// 3. If no literal match, check other pattern types (wildcards).
	for _, p := range m.nonLiterals {
		pathToCheck := path
		if p.matchBasename {
			pathToCheck = base
		}

		switch p.matchType {
		case prefixMatch:
			if strings.HasPrefix(pathToCheck, p.clean) {
				// Directory prefixes ("build/", "build/*") only match at a
				// path boundary, never siblings like "build-tools".
				if p.dirPrefix {
					if pathToCheck != p.clean && !strings.HasPrefix(pathToCheck, p.clean+"/") {
						continue // Not a true directory prefix match.
					}
				}
				return true
			}
		case suffixMatch:
			if strings.HasSuffix(pathToCheck, p.clean) {
				return true
			}

		case globMatch:
			match, err := filepath.Match(p.clean, pathToCheck)
			if err != nil {
				// Log the error for the invalid pattern but continue checking others.
				plog.Warn("Invalid exclusion pattern", "pattern", p.clean, "error", err)
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}
