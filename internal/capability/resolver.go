// Package capability decides reranker availability and the default-on
// policy from the configured embedding and reranker providers (spec
// section 8 scenario S6). A VoyageAI encoder unlocks a "fast"
// performance profile and defaults reranking on whenever a reranker
// API key is present; any other encoder provider is "slow" and never
// defaults reranking on, even with a valid key, since the teacher's
// Ollama path has no low-latency local reranker to pair with it.
package capability

import "github.com/satorihq/satori-index/pkg/config"

// PerformanceProfile is a coarse latency expectation surfaced to
// callers deciding whether to enable rankingMode=auto_changed_first
// by default.
type PerformanceProfile string

const (
	ProfileFast PerformanceProfile = "fast"
	ProfileSlow PerformanceProfile = "slow"
)

// Capabilities is the resolved capability set for the current config.
type Capabilities struct {
	HasReranker         bool
	PerformanceProfile  PerformanceProfile
	DefaultRerankEnabled bool
}

// Resolve inspects embeddings + reranker config and produces the
// capability set. The reranker's effective provider defaults to the
// embedding provider when not set explicitly, since a reranker model
// id (e.g. "rerank-2.5") is typically configured alongside a single
// encoder account rather than a second provider selection.
func Resolve(embeddings *config.EmbeddingsConfig, reranker *config.RerankerConfig) Capabilities {
	effectiveProvider := reranker.Provider
	if effectiveProvider == "" {
		effectiveProvider = embeddings.Provider
	}

	hasReranker := reranker.Model != "" && rerankerKeyPresent(embeddings, reranker, effectiveProvider)

	profile := ProfileSlow
	if embeddings.Provider == "VoyageAI" {
		profile = ProfileFast
	}

	return Capabilities{
		HasReranker:          hasReranker,
		PerformanceProfile:   profile,
		DefaultRerankEnabled: hasReranker && profile == ProfileFast,
	}
}

// rerankerKeyPresent checks the provider-appropriate credential: a
// VoyageAI reranker reuses the embeddings VoyageKey (one account, one
// key), any other provider falls back to its own configured APIKey.
func rerankerKeyPresent(embeddings *config.EmbeddingsConfig, reranker *config.RerankerConfig, effectiveProvider string) bool {
	if effectiveProvider == "VoyageAI" {
		return embeddings.VoyageKey != ""
	}
	return reranker.APIKey != ""
}
