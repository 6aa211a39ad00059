package vcsprobe

import "testing"

func TestParsePorcelainExcludesUntracked(t *testing.T) {
	output := []byte(" M internal/foo.go\n?? scratch.tmp\nA  internal/bar.go\n")

	files := parsePorcelain(output)

	want := map[string]bool{"internal/foo.go": true, "internal/bar.go": true}
	if len(files) != len(want) {
		t.Fatalf("Expected %d tracked files, got %d: %v", len(want), len(files), files)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("Unexpected file in result: %s", f)
		}
	}
}

func TestParsePorcelainEmpty(t *testing.T) {
	if files := parsePorcelain([]byte("")); len(files) != 0 {
		t.Errorf("Expected no files for empty output, got %v", files)
	}
}
