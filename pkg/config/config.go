package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the index query core and its
// surrounding collaborators.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Search      SearchConfig      `yaml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	VectorDB    VectorDBConfig    `yaml:"vectordb"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Logging     LoggingConfig     `yaml:"logging"`
	Ignore      IgnoreConfig      `yaml:"ignore_patterns"`
	Languages   LanguagesConfig   `yaml:"supported_languages"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type IndexingConfig struct {
	MaxFileSizeMB   int  `yaml:"max_file_size_mb"`
	ParallelWorkers int  `yaml:"parallel_workers"`
	Background      bool `yaml:"background"`
	Incremental     bool `yaml:"incremental"`
	SchemaVersion   string `yaml:"schema_version"`
	// StaleGraceMS is how long an `indexing` entry may sit untouched
	// before the stale-indexing recovery probe kicks in.
	StaleGraceMS int64 `yaml:"stale_grace_ms"`
	// WatcherDebounceMS is the retry-after hint handed back when a
	// mutating operation targets a root that is currently `indexing`.
	WatcherDebounceMS int64 `yaml:"watcher_debounce_ms"`
}

// SearchConfig carries every normative constant from section 6 of the
// retrieval specification, each exposed as an overridable field.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`

	RRFK int `yaml:"rrf_k"`

	MaxCandidates       int     `yaml:"max_candidates"`
	MustRetryRounds     int     `yaml:"must_retry_rounds"`
	MustRetryMultiplier float64 `yaml:"must_retry_multiplier"`
	ProximityWindow     int     `yaml:"proximity_window"`
	SimilarityFloor     float64 `yaml:"similarity_floor"`
	EnrichmentPhrase    string  `yaml:"enrichment_phrase"`
	PassWeightPrimary   float64 `yaml:"pass_weight_primary"`
	PassWeightExpanded  float64 `yaml:"pass_weight_expanded"`

	DiversityMaxPerFile     int `yaml:"diversity_max_per_file"`
	DiversityMaxPerSymbol   int `yaml:"diversity_max_per_symbol"`
	DiversityRelaxedFileCap int `yaml:"diversity_relaxed_file_cap"`

	ChangedFilesCacheTTLMS      int64   `yaml:"changed_files_cache_ttl_ms"`
	ChangedFirstMultiplier      float64 `yaml:"changed_first_multiplier"`
	ChangedFirstMaxChangedFiles int     `yaml:"changed_first_max_changed_files"`

	NoiseHintTopK     int      `yaml:"noise_hint_top_k"`
	NoiseHintThreshold float64 `yaml:"noise_hint_threshold"`
	NoiseHintPatterns []string `yaml:"noise_hint_patterns"`

	StalenessFreshMS int64 `yaml:"staleness_fresh_ms"`
	StalenessAgingMS int64 `yaml:"staleness_aging_ms"`

	OperatorPrefixMaxChars int `yaml:"operator_prefix_max_chars"`

	// ScopePathMultipliers[scope][category] is a dense lookup table
	// covering every (scope, category) pair from the path classifier.
	ScopePathMultipliers map[string]map[string]float64 `yaml:"scope_path_multipliers"`
}

// RerankerConfig configures the optional reranker collaborator and its
// fusion weighting into the retrieval pipeline.
type RerankerConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	RRFK        int    `yaml:"rrf_k"`
	Weight      float64 `yaml:"weight"`
	TopK        int    `yaml:"top_k"`
	DocMaxLines int    `yaml:"doc_max_lines"`
	DocMaxChars int    `yaml:"doc_max_chars"`
	DocMaxTokens int   `yaml:"doc_max_tokens"`
	TimeoutMS   int64  `yaml:"timeout_ms"`
}

type EmbeddingsConfig struct {
	Provider      string `yaml:"provider"` // e.g. "VoyageAI", "Ollama"
	Model         string `yaml:"model"`
	OllamaURL     string `yaml:"ollama_url"`
	VoyageKey     string `yaml:"voyage_key"`
	Dimensions    int    `yaml:"dimensions"`
	FullDimension int    `yaml:"full_dimension"`
	ContextLength int    `yaml:"context_length"`
	Normalize     bool   `yaml:"normalize"`
	UseMRL        bool   `yaml:"use_mrl"`
}

type VectorDBConfig struct {
	Provider       string `yaml:"provider"`
	CollectionName string `yaml:"collection_name"`
	DistanceMetric string `yaml:"distance_metric"`
	VectorSize     int    `yaml:"vector_size"`
	OnDiskPayload  bool   `yaml:"on_disk_payload"`
	MaxCollections int    `yaml:"max_collections"`
}

type SnapshotConfig struct {
	Directory string `yaml:"directory"`
	FileName  string `yaml:"file_name"`
}

type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

type LanguagesConfig struct {
	Java       LanguageConfig `yaml:"java"`
	TypeScript LanguageConfig `yaml:"typescript"`
	JavaScript LanguageConfig `yaml:"javascript"`
}

type LanguageConfig struct {
	Extensions []string `yaml:"extensions"`
	Parser     string   `yaml:"parser"`
}

// Load loads configuration from file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.Snapshot.Directory = expandPath(cfg.Snapshot.Directory)
	cfg.Logging.Directory = expandPath(cfg.Logging.Directory)

	return cfg, nil
}

// DefaultConfig returns the default configuration, with every §6
// normative constant set to its specified value.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "satori-index",
			Version: "0.1.0",
		},
		Indexing: IndexingConfig{
			MaxFileSizeMB:     1,
			ParallelWorkers:   runtime.NumCPU(),
			Background:        true,
			Incremental:       true,
			SchemaVersion:     "hybrid_v3",
			StaleGraceMS:      5 * 60 * 1000,
			WatcherDebounceMS: 2000,
		},
		Search: SearchConfig{
			DefaultLimit: 5,

			RRFK: 60,

			MaxCandidates:       200,
			MustRetryRounds:     2,
			MustRetryMultiplier: 2.0,
			ProximityWindow:     20,
			SimilarityFloor:     0.3,
			EnrichmentPhrase:    "implementation details, usage, and related context",
			PassWeightPrimary:   1.0,
			PassWeightExpanded:  0.75,

			DiversityMaxPerFile:     3,
			DiversityMaxPerSymbol:   2,
			DiversityRelaxedFileCap: 6,

			ChangedFilesCacheTTLMS:      30 * 1000,
			ChangedFirstMultiplier:      1.35,
			ChangedFirstMaxChangedFiles: 50,

			NoiseHintTopK:      20,
			NoiseHintThreshold: 0.6,
			NoiseHintPatterns: []string{
				"**/*.test.*", "**/*.spec.*", "**/dist/**", "**/build/**", "**/__tests__/**",
			},

			StalenessFreshMS: 24 * 60 * 60 * 1000,
			StalenessAgingMS: 7 * 24 * 60 * 60 * 1000,

			OperatorPrefixMaxChars: 512,

			ScopePathMultipliers: defaultScopePathMultipliers(),
		},
		Reranker: RerankerConfig{
			Provider:    "",
			Model:       "",
			RRFK:        60,
			Weight:      2.0,
			TopK:        30,
			DocMaxLines: 40,
			DocMaxChars: 2000,
			DocMaxTokens: 512,
			TimeoutMS:   8000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:      "Ollama",
			Model:         "nomic-embed-text",
			OllamaURL:     "http://localhost:11434",
			Dimensions:    256,
			FullDimension: 768,
			ContextLength: 8192,
			Normalize:     true,
			UseMRL:        true,
		},
		VectorDB: VectorDBConfig{
			Provider:       "qdrant",
			CollectionName: "code_chunks",
			DistanceMetric: "cosine",
			VectorSize:     256,
			OnDiskPayload:  true,
			MaxCollections: 20,
		},
		Snapshot: SnapshotConfig{
			Directory: "~/.satori-index/snapshot",
			FileName:  "codebases.json",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Directory:  "~/.satori-index/logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Ignore: IgnoreConfig{
			Patterns: []string{
				"target/**",
				"build/**",
				"dist/**",
				"out/**",
				"node_modules/**",
				".pnp/**",
				"**/*.min.js",
				"**/*.bundle.js",
				".git/**",
				".idea/**",
				".vscode/**",
				"*.iml",
			},
		},
		Languages: LanguagesConfig{
			Java: LanguageConfig{
				Extensions: []string{".java"},
				Parser:     "tree-sitter-java",
			},
			TypeScript: LanguageConfig{
				Extensions: []string{".ts", ".tsx"},
				Parser:     "tree-sitter-typescript",
			},
			JavaScript: LanguageConfig{
				Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
				Parser:     "tree-sitter-javascript",
			},
		},
	}
}

// defaultScopePathMultipliers is the dense (scope, category) table
// required by section 4.5's final-score computation.
func defaultScopePathMultipliers() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"runtime": {
			"docs": 0, "tests": 0,
			"generated": 0.5, "entrypoint": 1.2, "core": 1.3,
			"srcRuntime": 1.1, "neutral": 1.0, "fixtures": 0.4,
		},
		"docs": {
			"docs": 1.3, "tests": 1.0,
			"generated": 0, "entrypoint": 0, "core": 0,
			"srcRuntime": 0, "neutral": 0, "fixtures": 0,
		},
		"mixed": {
			"docs": 1.0, "tests": 0.9,
			"generated": 0.5, "entrypoint": 1.1, "core": 1.2,
			"srcRuntime": 1.0, "neutral": 1.0, "fixtures": 0.6,
		},
	}
}

func getConfigPath() string {
	if path := os.Getenv("SATORI_INDEX_CONFIG"); path != "" {
		return path
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".satori-index", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.Embeddings.OllamaURL = url
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Embeddings.Model = model
	}
	if key := os.Getenv("VOYAGE_API_KEY"); key != "" {
		cfg.Embeddings.VoyageKey = key
	}
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		cfg.Embeddings.Provider = provider
	}
	if model := os.Getenv("RERANKER_MODEL"); model != "" {
		cfg.Reranker.Model = model
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
