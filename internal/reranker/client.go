// Package reranker adapts a cross-encoder reranking HTTP API into the
// collaborator interface consumed by the retrieval pipeline:
// rerank(query, documents, {topK, truncation, returnDocuments}).
//
// Reranking improves result quality beyond vector similarity alone by
// evaluating actual query-document relevance, at the cost of one extra
// HTTP round trip per search. Failures at either the API-call or
// parse-results phase must never fail the parent request: the caller
// falls back to the pre-rerank order (spec section 7).
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/satorihq/satori-index/pkg/config"
)

// Phase identifies where a rerank attempt failed, surfaced to the
// caller so it can attach the right warning.
type Phase string

const (
	PhaseAPICall      Phase = "api_call"
	PhaseParseResults Phase = "parse_results"
)

// Error wraps a rerank failure with the phase it occurred in.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("reranker failed at %s: %v", e.Phase, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Document is one candidate passed to the reranker, already formatted
// per spec section 4.5: relativePath\nlanguage\nsymbolLabel\n<content>.
type Document struct {
	Index int
	Text  string
}

// RankedDocument is one entry of the reranker's response: the original
// document index and its new relevance-ordered rank (1-based).
type RankedDocument struct {
	Index int
	Rank  int
}

// Options configures one rerank call.
type Options struct {
	TopK           int
	Truncation     bool
	ReturnDocuments bool
}

// Client talks to a cross-encoder reranking HTTP endpoint (Cohere- and
// VoyageAI-style rerank APIs share this request/response shape).
type Client struct {
	cfg        *config.RerankerConfig
	httpClient *http.Client
}

// NewClient builds a reranker client bound to the configured provider.
func NewClient(cfg *config.RerankerConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k"`
	Truncation bool    `json:"truncation"`
}

type rerankResponseItem struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResponseItem `json:"results"`
}

// Rerank sends documents to the reranker and returns them in descending
// relevance order. On any failure it returns an *Error identifying the
// phase; the caller is responsible for falling back, never erroring
// the parent request.
func (c *Client) Rerank(ctx context.Context, query string, documents []Document, opts Options) ([]RankedDocument, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	texts := make([]string, len(documents))
	for i, d := range documents {
		texts[i] = d.Text
	}

	topK := opts.TopK
	if topK <= 0 || topK > len(texts) {
		topK = len(texts)
	}

	reqBody, err := json.Marshal(rerankRequest{
		Query:      query,
		Documents:  texts,
		Model:      c.cfg.Model,
		TopK:       topK,
		Truncation: opts.Truncation,
	})
	if err != nil {
		return nil, &Error{Phase: PhaseAPICall, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := c.endpointFor(c.cfg.Provider)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &Error{Phase: PhaseAPICall, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Phase: PhaseAPICall, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &Error{Phase: PhaseAPICall, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Phase: PhaseParseResults, Err: err}
	}

	ranked := make([]RankedDocument, 0, len(parsed.Results))
	for rank, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(documents) {
			return nil, &Error{Phase: PhaseParseResults, Err: fmt.Errorf("index %d out of range", item.Index)}
		}
		ranked = append(ranked, RankedDocument{Index: documents[item.Index].Index, Rank: rank + 1})
	}

	return ranked, nil
}

func (c *Client) endpointFor(provider string) string {
	switch provider {
	case "VoyageAI":
		return "https://api.voyageai.com/v1/rerank"
	default:
		return "https://api.cohere.ai/v1/rerank"
	}
}
