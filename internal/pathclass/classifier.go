// Package pathclass maps a relative file path to a PathCategory and a
// NoiseCategory (spec section 4.4), the decision-order-by-segment idiom
// the teacher uses for file-path scoring generalized from a boolean
// test/source/vendor split into the full category enum the scope
// multiplier table and noise hint depend on.
package pathclass

import (
	"strings"

	"github.com/satorihq/satori-index/internal/types"
)

var docsSuffixes = []string{".md", ".mdx", ".rst", ".adoc", ".txt"}
var testSuffixPairs = [][2]string{
	{".test.", ""}, {".spec.", ""},
}
var generatedSuffixes = []string{".min.js", ".min.css"}
var entrypointPrefixes = []string{"main.", "index.", "app.", "server.", "cli.", "entry."}

// Classify maps relativePath to its PathCategory following the fixed
// decision order of spec section 4.4: docs, tests, generated,
// entrypoint, core, srcRuntime, neutral.
func Classify(relativePath string) types.PathCategory {
	p := strings.ToLower(strings.ReplaceAll(relativePath, "\\", "/"))
	segments := strings.Split(p, "/")
	base := segments[len(segments)-1]

	if hasSegmentAny(segments, "docs", "doc", "documentation", "guide", "guides") || hasSuffixAny(p, docsSuffixes...) {
		return types.CategoryDocs
	}

	if hasSegmentAny(segments, "test", "tests", "__tests__") || hasTestSuffix(base) {
		return types.CategoryTests
	}

	if hasSegmentAny(segments, "dist", "build", "coverage", ".next", "generated") || hasSuffixAny(p, generatedSuffixes...) {
		return types.CategoryGenerated
	}

	if hasEntrypointPrefix(base) {
		return types.CategoryEntrypoint
	}

	if strings.Contains(p, "src/core") || hasSegmentAny(segments, "core") {
		return types.CategoryCore
	}

	if hasSegmentAny(segments, "src") {
		return types.CategorySrcRuntime
	}

	return types.CategoryNeutral
}

// ClassifyNoise maps relativePath to its NoiseCategory, following the
// precedence generated > tests > fixtures > docs > runtime.
func ClassifyNoise(relativePath string) types.NoiseCategory {
	p := strings.ToLower(strings.ReplaceAll(relativePath, "\\", "/"))
	segments := strings.Split(p, "/")
	base := segments[len(segments)-1]

	if hasSegmentAny(segments, "dist", "build", "coverage", ".next", "generated") || hasSuffixAny(p, generatedSuffixes...) {
		return types.NoiseGenerated
	}
	if hasSegmentAny(segments, "test", "tests", "__tests__") || hasTestSuffix(base) {
		return types.NoiseTests
	}
	if hasSegmentAny(segments, "fixture", "fixtures", "testdata") {
		return types.NoiseFixtures
	}
	if hasSegmentAny(segments, "docs", "doc", "documentation", "guide", "guides") || hasSuffixAny(p, docsSuffixes...) {
		return types.NoiseDocs
	}
	return types.NoiseRuntime
}

func hasSegmentAny(segments []string, candidates ...string) bool {
	for _, s := range segments {
		for _, c := range candidates {
			if s == c {
				return true
			}
		}
	}
	return false
}

func hasSuffixAny(p string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(p, s) {
			return true
		}
	}
	return false
}

func hasTestSuffix(base string) bool {
	for _, pair := range testSuffixPairs {
		if strings.Contains(base, pair[0]) {
			return true
		}
	}
	return false
}

func hasEntrypointPrefix(base string) bool {
	for _, prefix := range entrypointPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}
