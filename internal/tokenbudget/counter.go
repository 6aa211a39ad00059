// Package tokenbudget counts and trims reranker-document text by actual
// model token count rather than by line/character heuristics alone,
// grounded on the cl100k_base tokenizer usage in
// jamaly87-codebase-semantic-search-mcp's internal/indexer/token_chunker.go
// and the cached-encoding TokenCounter pattern in kadirpekel-hector's
// pkg/utils/tokens.go.
package tokenbudget

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens against a single cached cl100k_base encoding,
// the encoding used by most modern embedding and chat models.
type Counter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

// NewCounter builds a Counter. The encoding lookup only happens once;
// Count/Truncate are safe for concurrent use.
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer: %w", err)
	}
	return &Counter{encoding: enc}, nil
}

// Count returns the number of tokens text encodes to.
func (c *Counter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// TruncateLines drops trailing lines from text until its token count
// is at most maxTokens, mirroring the line-boundary-aware accumulation
// in token_chunker.go's chunkWithLimits rather than a mid-token cut.
// maxTokens <= 0 disables truncation.
func (c *Counter) TruncateLines(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.encoding.Encode(text, nil, nil)) <= maxTokens {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0:0]
	budget := 0
	for _, line := range lines {
		lineTokens := len(c.encoding.Encode(line, nil, nil))
		if budget+lineTokens > maxTokens && len(kept) > 0 {
			break
		}
		kept = append(kept, line)
		budget += lineTokens
	}
	return strings.Join(kept, "\n")
}
