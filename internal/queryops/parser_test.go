package queryops

import (
	"reflect"
	"testing"
)

func TestParseExtractsOperators(t *testing.T) {
	p := Parse(`lang:go path:internal/** -path:internal/mcp/** must:"run function" exclude:deprecated run the worker`, 0)

	if !reflect.DeepEqual(p.Lang, []string{"go"}) {
		t.Errorf("Lang = %v", p.Lang)
	}
	if !reflect.DeepEqual(p.Path, []string{"internal/**"}) {
		t.Errorf("Path = %v", p.Path)
	}
	if !reflect.DeepEqual(p.ExcludePath, []string{"internal/mcp/**"}) {
		t.Errorf("ExcludePath = %v", p.ExcludePath)
	}
	if !reflect.DeepEqual(p.Must, []string{"run function"}) {
		t.Errorf("Must = %v", p.Must)
	}
	if !reflect.DeepEqual(p.Exclude, []string{"deprecated"}) {
		t.Errorf("Exclude = %v", p.Exclude)
	}
	if p.SemanticQuery != "run the worker" {
		t.Errorf("SemanticQuery = %q", p.SemanticQuery)
	}
}

func TestParseNoOperatorsReturnsTrimmedOriginal(t *testing.T) {
	p := Parse("  how does retry work  ", 0)
	if p.SemanticQuery != "how does retry work" {
		t.Errorf("SemanticQuery = %q", p.SemanticQuery)
	}
	if len(p.Lang) != 0 || len(p.Must) != 0 {
		t.Errorf("expected no operators, got %+v", p)
	}
}

func TestParseEscapedColonTokenStaysSemantic(t *testing.T) {
	p := Parse(`\lang:go is a config key`, 0)
	if len(p.Lang) != 0 {
		t.Errorf("expected escaped token to not be consumed as an operator, got Lang=%v", p.Lang)
	}
	if p.SemanticQuery != "lang:go is a config key" {
		t.Errorf("SemanticQuery = %q", p.SemanticQuery)
	}
}

func TestParseSuffixAfterBlankLineIsSemantic(t *testing.T) {
	p := Parse("lang:ts\n\nhow are components wired together", 0)
	if !reflect.DeepEqual(p.Lang, []string{"ts"}) {
		t.Errorf("Lang = %v", p.Lang)
	}
	if p.SemanticQuery != "how are components wired together" {
		t.Errorf("SemanticQuery = %q", p.SemanticQuery)
	}
}

func TestParseUnknownKeyStaysSemantic(t *testing.T) {
	p := Parse("foo:bar run the worker", 0)
	if len(p.Lang) != 0 {
		t.Errorf("expected no lang operator parsed from unknown key")
	}
	if p.SemanticQuery != "foo:bar run the worker" {
		t.Errorf("SemanticQuery = %q", p.SemanticQuery)
	}
}
