// Package ignore matches file paths against ignore-list patterns,
// delegating the actual glob semantics to internal/pathglob.
package ignore

import (
	"path/filepath"

	"github.com/satorihq/satori-index/internal/pathglob"
)

// Matcher matches file paths against a compiled set of ignore patterns.
type Matcher struct {
	patterns []pathglob.Pattern
}

// NewMatcher compiles patterns into a reusable Matcher.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: pathglob.CompileAll(patterns)}
}

// ShouldIgnore returns true if path matches any configured pattern.
func (m *Matcher) ShouldIgnore(path string) bool {
	return pathglob.MatchAny(m.patterns, filepath.ToSlash(path))
}

// DefaultPatterns returns the built-in ignore patterns applied even
// when a codebase carries no explicit ignore configuration.
func DefaultPatterns() []string {
	return []string{
		"target/",
		"build/",
		"dist/",
		"out/",

		"node_modules/",
		".pnp/",

		"**/*.min.js",
		"**/*.bundle.js",

		".git/",

		".idea/",
		".vscode/",
		"*.iml",
	}
}
