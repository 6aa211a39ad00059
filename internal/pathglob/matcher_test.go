package pathglob

import "testing"

func TestMatchBasenamePattern(t *testing.T) {
	p := Compile("*.log")
	tests := []struct {
		path string
		want bool
	}{
		{"debug.log", true},
		{"internal/server/debug.log", true},
		{"internal/server/debug.go", false},
	}
	for _, tt := range tests {
		if got := p.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatchAnchoredPattern(t *testing.T) {
	p := Compile("/vendor")
	if !p.Match("vendor/module/file.go") {
		t.Errorf("expected anchored directory pattern to match descendant path")
	}
	if p.Match("internal/vendor/module/file.go") {
		t.Errorf("anchored pattern must not match a non-root vendor directory")
	}
}

func TestMatchDirOnlyPattern(t *testing.T) {
	p := Compile("node_modules/")
	if !p.Match("node_modules/pkg/index.js") {
		t.Errorf("expected directory-only pattern to match descendant path")
	}
}

func TestCompileAllSkipsCommentsAndBlankLines(t *testing.T) {
	patterns := CompileAll([]string{"# comment", "", "*.tmp", "  "})
	if len(patterns) != 1 {
		t.Fatalf("expected 1 compiled pattern, got %d", len(patterns))
	}
	if !MatchAny(patterns, "scratch.tmp") {
		t.Errorf("expected scratch.tmp to match *.tmp")
	}
}
