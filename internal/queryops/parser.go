// Package queryops tokenizes the operator prefix of a search query
// (spec section 4.3): lang/path/-path/must/exclude operators plus the
// remaining semantic text, grounded on the teacher's
// strings.Fields-based tokenizing style in internal/search/searcher.go
// (findMatchPositions/applyHybridScoring both work over whitespace-
// split query words).
package queryops

import (
	"path/filepath"
	"strings"
)

// Parsed holds the operator lists extracted from a query plus the
// remaining semantic text.
type Parsed struct {
	Lang          []string
	Path          []string
	ExcludePath   []string
	Must          []string
	Exclude       []string
	SemanticQuery string
}

const defaultOperatorPrefixMaxChars = 512

// Parse tokenizes query per spec section 4.3. operatorPrefixMaxChars
// caps how much of the query is scanned for operators before the
// prefix block is considered closed; pass 0 to use the spec default.
func Parse(query string, operatorPrefixMaxChars int) Parsed {
	if operatorPrefixMaxChars <= 0 {
		operatorPrefixMaxChars = defaultOperatorPrefixMaxChars
	}

	prefix := query
	suffix := ""
	if idx := strings.Index(query, "\n\n"); idx != -1 {
		prefix = query[:idx]
		suffix = query[idx+2:]
	}
	if len(prefix) > operatorPrefixMaxChars {
		suffix = prefix[operatorPrefixMaxChars:] + suffix
		prefix = prefix[:operatorPrefixMaxChars]
	}

	tokens := tokenize(prefix)

	parsed := Parsed{}
	var semanticTokens []string
	sawEscape := false

	for _, tok := range tokens {
		if strings.HasPrefix(tok, `\`) {
			semanticTokens = append(semanticTokens, tok[1:])
			sawEscape = true
			continue
		}

		key, value, isOperator := splitOperator(tok)
		if !isOperator {
			semanticTokens = append(semanticTokens, tok)
			continue
		}

		switch key {
		case "lang":
			parsed.Lang = append(parsed.Lang, strings.ToLower(value))
		case "path":
			parsed.Path = append(parsed.Path, filepath.ToSlash(value))
		case "-path":
			parsed.ExcludePath = append(parsed.ExcludePath, filepath.ToSlash(value))
		case "must":
			parsed.Must = append(parsed.Must, value)
		case "exclude":
			parsed.Exclude = append(parsed.Exclude, value)
		default:
			semanticTokens = append(semanticTokens, tok)
		}
	}

	semantic := strings.Join(semanticTokens, " ")
	if suffix != "" {
		if semantic != "" {
			semantic += " "
		}
		semantic += strings.TrimSpace(suffix)
	}
	parsed.SemanticQuery = strings.TrimSpace(semantic)

	if len(parsed.Lang) == 0 && len(parsed.Path) == 0 && len(parsed.ExcludePath) == 0 &&
		len(parsed.Must) == 0 && len(parsed.Exclude) == 0 && !sawEscape {
		parsed.SemanticQuery = strings.TrimSpace(query)
	}

	return parsed
}

var operatorKeys = map[string]bool{
	"lang": true, "path": true, "-path": true, "must": true, "exclude": true,
}

// splitOperator reports whether tok is a key:value operator with a
// recognized key, unquoting the value if quoted.
func splitOperator(tok string) (key, value string, ok bool) {
	idx := strings.Index(tok, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = tok[:idx]
	value = tok[idx+1:]
	if !operatorKeys[key] {
		return "", "", false
	}
	value = unquote(value)
	return key, value, value != ""
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	v = strings.ReplaceAll(v, `\"`, `"`)
	return v
}

// tokenize splits a prefix block into whitespace-separated tokens,
// respecting double-quoted strings (spaces inside quotes are kept) and
// backslash escapes of the quote character.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	escaped := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			current.WriteRune(r)
			escaped = true
		case r == '"':
			current.WriteRune(r)
			inQuotes = !inQuotes
		case (r == ' ' || r == '\t' || r == '\n') && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}
