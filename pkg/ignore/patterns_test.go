package ignore

import "testing"

func TestMatcherShouldIgnoreDefaults(t *testing.T) {
	m := NewMatcher(DefaultPatterns())

	shouldIgnore := []string{
		"node_modules/lodash/index.js",
		"dist/bundle.js",
		".git/HEAD",
		"project.iml",
		"lib/vendor.min.js",
	}
	for _, p := range shouldIgnore {
		if !m.ShouldIgnore(p) {
			t.Errorf("expected %q to be ignored", p)
		}
	}

	shouldKeep := []string{
		"internal/server/handler.go",
		"cmd/main.go",
	}
	for _, p := range shouldKeep {
		if m.ShouldIgnore(p) {
			t.Errorf("expected %q to NOT be ignored", p)
		}
	}
}

func TestMatcherCustomPatterns(t *testing.T) {
	m := NewMatcher([]string{"*.log", "tmp/"})

	if !m.ShouldIgnore("server/debug.log") {
		t.Errorf("expected *.log pattern to match nested file")
	}
	if !m.ShouldIgnore("tmp/scratch.txt") {
		t.Errorf("expected tmp/ pattern to match descendant file")
	}
	if m.ShouldIgnore("internal/config.go") {
		t.Errorf("expected unrelated file to not be ignored")
	}
}
