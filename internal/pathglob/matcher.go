// Package pathglob matches relative file paths against gitignore-style
// glob patterns, used by the ignore list and by the Operator Parser's
// path/-path operators (spec section 4.3).
package pathglob

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is one compiled gitignore-style pattern. A leading "!" has no
// special meaning and stays part of the glob; spec section 4.3's
// "-path" exclusion reuses the same matcher and inverts the result in
// the caller.
type Pattern struct {
	raw       string
	glob      string
	anchored  bool
	dirOnly   bool
}

// Compile normalizes a single gitignore-style pattern line into a
// doublestar glob. It does not evaluate "!" negation, and neither does
// the ignore list (pkg/ignore), which passes its patterns through
// unchanged.
func Compile(pattern string) Pattern {
	raw := pattern
	p := pattern

	dirOnly := strings.HasSuffix(p, "/")
	if dirOnly {
		p = strings.TrimSuffix(p, "/")
	}

	anchored := strings.HasPrefix(p, "/")
	if anchored {
		p = strings.TrimPrefix(p, "/")
	}

	if !anchored && !strings.Contains(p, "/") {
		p = "**/" + p
	}

	return Pattern{raw: raw, glob: p, anchored: anchored, dirOnly: dirOnly}
}

// Match reports whether relativePath (forward-slash separated, no
// leading slash) matches the pattern. As in gitignore, relativePath also
// matches if it is a descendant of a directory matching the pattern's
// glob; an anchored pattern only matches under the root.
func (p Pattern) Match(relativePath string) bool {
	relativePath = strings.TrimPrefix(relativePath, "/")

	if matched, _ := doublestar.Match(p.glob, relativePath); matched {
		return true
	}

	if matched, _ := doublestar.Match(p.glob+"/**", relativePath); matched {
		return true
	}

	return false
}

// Raw returns the original, uncompiled pattern text.
func (p Pattern) Raw() string { return p.raw }

// MatchAny reports whether relativePath matches any of patterns.
func MatchAny(patterns []Pattern, relativePath string) bool {
	for _, p := range patterns {
		if p.Match(relativePath) {
			return true
		}
	}
	return false
}

// CompileAll compiles a list of pattern strings, skipping blank lines
// and "#"-prefixed comments as gitignore does.
func CompileAll(patterns []string) []Pattern {
	compiled := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		compiled = append(compiled, Compile(line))
	}
	return compiled
}
