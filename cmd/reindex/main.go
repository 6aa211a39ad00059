package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/embedengine"
	"github.com/satorihq/satori-index/internal/indexbuilder"
	"github.com/satorihq/satori-index/internal/lifecycle"
	"github.com/satorihq/satori-index/internal/snapshot"
	"github.com/satorihq/satori-index/internal/types"
	"github.com/satorihq/satori-index/internal/vectorstore"
	"github.com/satorihq/satori-index/pkg/config"
)

// cmd/reindex is a debug CLI that drives a single synchronous, forced
// reindex through internal/lifecycle.Manager without going through the
// MCP tool surface or its readiness gate, for operators who need to
// repair a codebase's index out-of-band.
func main() {
	repoPath, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get current directory: %v", err)
	}
	if len(os.Args) > 1 {
		repoPath = os.Args[1]
	}

	slog.Info("Starting forced reindex", "repository", repoPath)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	vectorStoreClient, err := vectorstore.NewClient(&cfg.VectorDB)
	if err != nil {
		log.Fatalf("Failed to create vector store client: %v", err)
	}
	defer vectorStoreClient.Close()

	embedClient := embedengine.NewClient(&cfg.Embeddings, vectorStoreClient)

	snapshotStore, err := snapshot.NewStore(cfg.Snapshot.Directory, cfg.Snapshot.FileName)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}

	fingerprint := types.IndexFingerprint{
		EmbeddingProvider:   cfg.Embeddings.Provider,
		EmbeddingModel:      cfg.Embeddings.Model,
		EmbeddingDimension:  embedClient.GetDimension(),
		VectorStoreProvider: cfg.VectorDB.Provider,
		SchemaVersion:       cfg.Indexing.SchemaVersion,
	}

	validator := completionproof.NewValidator(vectorStoreClient)
	builder := indexbuilder.NewBuilder(embedClient, vectorStoreClient)
	lifecycleMgr := lifecycle.NewManager(snapshotStore, vectorStoreClient, builder, validator, fingerprint, cfg.Indexing.StaleGraceMS)

	slog.Info("Collaborators ready", "model", cfg.Embeddings.Model, "vectorStore", cfg.VectorDB.Provider)

	start := time.Now()
	entry, err := lifecycleMgr.Reindex(context.Background(), repoPath, true, nil)
	duration := time.Since(start)

	if err != nil {
		slog.Error("Reindex failed", "error", err, "repository", repoPath, "duration", duration)
		os.Exit(1)
	}

	slog.Info("Reindex completed",
		"repository", entry.RepoPath,
		"status", entry.Status,
		"indexedFiles", entry.IndexedFiles,
		"totalChunks", entry.TotalChunks,
		"duration", duration)
}
