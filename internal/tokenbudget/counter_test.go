package tokenbudget

import (
	"strings"
	"testing"
)

func TestCounterCount(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter failed: %v", err)
	}

	if n := c.Count(""); n != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", n)
	}

	short := c.Count("func main() {}")
	long := c.Count(strings.Repeat("func main() {}\n", 50))
	if long <= short {
		t.Errorf("expected longer text to encode to more tokens: short=%d long=%d", short, long)
	}
}

func TestCounterTruncateLinesWithinBudget(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter failed: %v", err)
	}

	text := "package main\n\nfunc main() {}\n"
	if got := c.TruncateLines(text, 1000); got != text {
		t.Errorf("expected text under budget to pass through unchanged, got %q", got)
	}
}

func TestCounterTruncateLinesDropsTrailingLines(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter failed: %v", err)
	}

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "var x = 1 // filler line to pad out the token count")
	}
	text := strings.Join(lines, "\n")

	truncated := c.TruncateLines(text, 50)
	if c.Count(truncated) > 50 {
		t.Errorf("expected truncated text to fit within 50 tokens, got %d", c.Count(truncated))
	}
	if len(strings.Split(truncated, "\n")) >= len(lines) {
		t.Errorf("expected TruncateLines to drop trailing lines")
	}
}

func TestCounterTruncateLinesDisabled(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Fatalf("NewCounter failed: %v", err)
	}

	text := strings.Repeat("x\n", 500)
	if got := c.TruncateLines(text, 0); got != text {
		t.Errorf("expected maxTokens<=0 to disable truncation")
	}
}
