// Package embedengine adapts an embedding provider (Ollama or VoyageAI)
// plus the vector store into the single "Embedding engine" collaborator
// the retrieval pipeline depends on: getProvider, getDimension, and
// semanticSearch(root, query, limit, floor) -> chunk results.
package embedengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/satorihq/satori-index/internal/types"
	"github.com/satorihq/satori-index/internal/vectorstore"
	"github.com/satorihq/satori-index/pkg/config"
)

// VectorStore is the subset of vectorstore.Client the engine depends on,
// kept narrow so tests can substitute a fake.
type VectorStore interface {
	Query(ctx context.Context, canonicalRoot string, vector []float32, limit int, floor float64) ([]vectorstore.QueryResult, error)
}

// Client generates query embeddings and runs them against the vector
// store on the caller's behalf.
type Client struct {
	cfg        *config.EmbeddingsConfig
	store      VectorStore
	httpClient *http.Client
}

// NewClient builds an embedding engine bound to a vector store.
func NewClient(cfg *config.EmbeddingsConfig, store VectorStore) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
		ForceAttemptHTTP2:   false,
	}

	c := &Client{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}

	c.logMRLConfig()
	return c
}

// GetProvider returns the embedding provider id contributed to the
// runtime fingerprint.
func (c *Client) GetProvider() string { return c.cfg.Provider }

// GetModel returns the embedding model id contributed to the runtime
// fingerprint.
func (c *Client) GetModel() string { return c.cfg.Model }

// GetDimension returns the embedding dimension actually served, after
// any MRL truncation.
func (c *Client) GetDimension() int {
	if c.cfg.UseMRL && c.cfg.Dimensions > 0 && c.cfg.Dimensions < c.cfg.FullDimension {
		return c.cfg.Dimensions
	}
	return c.cfg.FullDimension
}

// Embed generates a single document embedding, used by the index
// builder when it upserts new chunk content rather than querying
// existing ones.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.generateEmbedding(ctx, text)
}

// SemanticSearch embeds query and runs it against the codebase's
// collection at canonicalRoot, returning chunk results above floor.
func (c *Client) SemanticSearch(ctx context.Context, canonicalRoot, query string, limit int, floor float64) ([]types.ChunkResult, error) {
	embedding, err := c.generateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := c.store.Query(ctx, canonicalRoot, embedding, limit, floor)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	results := make([]types.ChunkResult, len(hits))
	for i, h := range hits {
		results[i] = types.ChunkResult{
			RelativePath: h.Document.RelativePath,
			StartLine:    h.Document.StartLine,
			EndLine:      h.Document.EndLine,
			Language:     h.Document.Language,
			SymbolID:     h.Document.SymbolID,
			SymbolLabel:  h.Document.SymbolLabel,
			Content:      h.Document.Content,
			Similarity:   h.Score,
			IndexedAt:    h.Document.IndexedAt,
		}
	}
	return results, nil
}

type embedRequestOllama struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponseOllama struct {
	Embedding []float32 `json:"embedding"`
}

type embedRequestVoyage struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponseVoyage struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// generateEmbedding dispatches to the configured provider and applies
// MRL truncation / L2 normalization identically regardless of source.
func (c *Client) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	maxChars := 4000
	if len(text) > maxChars {
		text = text[:maxChars]
	}

	var embedding []float32
	var err error

	switch c.cfg.Provider {
	case "VoyageAI":
		embedding, err = c.generateEmbeddingVoyage(ctx, text)
	default:
		embedding, err = c.generateEmbeddingOllama(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	fullDim := c.cfg.FullDimension
	if fullDim == 0 {
		fullDim = 768
	}
	if len(embedding) != fullDim {
		return nil, fmt.Errorf("expected %d dimensions from provider, got %d", fullDim, len(embedding))
	}

	if c.cfg.UseMRL && c.cfg.Dimensions < fullDim {
		embedding = applyMRL(embedding, c.cfg.Dimensions)
	}
	if c.cfg.Normalize {
		embedding = normalize(embedding)
	}

	return embedding, nil
}

func (c *Client) generateEmbeddingOllama(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequestOllama{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", c.cfg.OllamaURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var response embedResponseOllama
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Embedding, nil
}

func (c *Client) generateEmbeddingVoyage(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequestVoyage{Input: []string{text}, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.voyageai.com/v1/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.VoyageKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voyage returned status %d: %s", resp.StatusCode, string(body))
	}

	var response embedResponseVoyage
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("voyage returned no embeddings")
	}
	return response.Data[0].Embedding, nil
}

// normalize performs L2 normalization on a vector.
func normalize(vec []float32) []float32 {
	var sum float32
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return vec
	}

	magnitude := float32(1.0) / float32(sqrt64(float64(sum)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v * magnitude
	}
	return normalized
}

func sqrt64(x float64) float64 {
	if x < 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = z - (z*z-x)/(2*z)
	}
	return z
}

// applyMRL applies Matryoshka Representation Learning dimension
// truncation, slicing to one of the model's trained sub-dimensions.
func applyMRL(embedding []float32, targetDim int) []float32 {
	validDims := []int{64, 128, 256, 512, 768}
	isValid := false
	for _, dim := range validDims {
		if targetDim == dim {
			isValid = true
			break
		}
	}

	if !isValid {
		if targetDim < 64 {
			targetDim = 64
		} else if targetDim > 768 {
			targetDim = 768
		} else {
			for i := 0; i < len(validDims)-1; i++ {
				if targetDim > validDims[i] && targetDim < validDims[i+1] {
					if targetDim-validDims[i] < validDims[i+1]-targetDim {
						targetDim = validDims[i]
					} else {
						targetDim = validDims[i+1]
					}
					break
				}
			}
		}
	}

	if targetDim > len(embedding) {
		targetDim = len(embedding)
	}

	sliced := make([]float32, targetDim)
	copy(sliced, embedding[:targetDim])
	return sliced
}

func (c *Client) logMRLConfig() {
	fullDim := c.cfg.FullDimension
	if fullDim == 0 {
		fullDim = 768
	}

	if c.cfg.UseMRL {
		reduction := float64(fullDim-c.cfg.Dimensions) / float64(fullDim) * 100
		log.Printf("MRL enabled: %dd -> %dd (%.0f%% smaller)", fullDim, c.cfg.Dimensions, reduction)
	} else {
		log.Printf("MRL disabled: using full %dd embeddings", fullDim)
	}
}
