// Package langsupport decides whether a language is eligible for
// incremental call-graph sidecar rebuild, grounded on a real
// tree-sitter grammar registry rather than a hardcoded string list.
// Parsing itself (producing the sidecar's nodes/edges) is out of
// scope; this package only answers "is this language supported".
package langsupport

import (
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Registry maps a normalized language id to its tree-sitter grammar.
type Registry struct {
	grammars map[string]*sitter.Language
}

// NewRegistry builds the registry with the grammars carried by this
// module (spec.md §4.9's "supported languages" set).
func NewRegistry() *Registry {
	return &Registry{
		grammars: map[string]*sitter.Language{
			"java":       java.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": typescript.GetLanguage(),
		},
	}
}

// Supported reports whether language (already lower-cased, e.g. from
// a ChunkResult.Language field) has a registered grammar.
func (r *Registry) Supported(language string) bool {
	_, ok := r.grammars[language]
	return ok
}

// SupportedLanguages returns the set of registered language ids.
func (r *Registry) SupportedLanguages() []string {
	out := make([]string, 0, len(r.grammars))
	for lang := range r.grammars {
		out = append(out, lang)
	}
	return out
}

// Grammar returns the tree-sitter language for an incremental-rebuild
// eligibility check; nil if unsupported.
func (r *Registry) Grammar(language string) *sitter.Language {
	return r.grammars[language]
}

// SupportedForPath reports whether a relative file path's extension maps
// to a registered grammar, used by readers that need an
// unsupported_language verdict before a v3 sidecar exists for that file.
func (r *Registry) SupportedForPath(relativePath string) bool {
	return r.Supported(languageForExt(relativePath))
}

func languageForExt(relativePath string) string {
	switch filepath.Ext(relativePath) {
	case ".java":
		return "java"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	default:
		return ""
	}
}
