// Package indexbuilder implements the lifecycle.Builder collaborator: it
// walks a codebase's files, embeds their content, and upserts the
// resulting chunks into the vector store. Per-language AST chunking and
// symbol extraction are out of scope (the language parser that produces
// call-graph sidecar nodes is a separate, unbuilt artifact); this
// builder treats each file as a single whole-file chunk, the same
// coarse granularity the teacher's scanner walks before its AST chunker
// narrows further.
package indexbuilder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/satorihq/satori-index/internal/lifecycle"
	"github.com/satorihq/satori-index/internal/vectorstore"
	"github.com/satorihq/satori-index/pkg/ignore"
)

// Embedder is the subset of embedengine.Client the builder depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetDimension() int
}

// VectorStore is the subset of vectorstore.Client the builder depends on.
type VectorStore interface {
	EnsureCollection(ctx context.Context, canonicalRoot string, vectorSize int) error
	Upsert(ctx context.Context, canonicalRoot string, docs []vectorstore.Document, vectors [][]float32) error
	DeleteByPaths(ctx context.Context, canonicalRoot string, relativePaths []string) error
	CountChunks(ctx context.Context, canonicalRoot string) (int, error)
}

// maxFileBytes bounds how much of one file is embedded per chunk; the
// teacher's scanner enforces a similar max_file_size_mb cutoff before a
// file ever reaches its chunker.
const maxFileBytes = 256 * 1024

// Builder is a whole-file indexing pipeline satisfying lifecycle.Builder.
type Builder struct {
	embedder Embedder
	store    VectorStore
	now      func() time.Time
}

// NewBuilder builds a Builder bound to its embedding and storage
// collaborators.
func NewBuilder(embedder Embedder, store VectorStore) *Builder {
	return &Builder{embedder: embedder, store: store, now: time.Now}
}

// IndexCodebase walks canonicalRoot, embeds every non-ignored file, and
// upserts the resulting chunks, satisfying lifecycle.Builder.
func (b *Builder) IndexCodebase(ctx context.Context, canonicalRoot string, ignorePatterns []string) (lifecycle.BuildStats, error) {
	if err := b.store.EnsureCollection(ctx, canonicalRoot, b.embedder.GetDimension()); err != nil {
		return lifecycle.BuildStats{}, fmt.Errorf("failed to ensure collection: %w", err)
	}

	files, err := b.walk(canonicalRoot, ignorePatterns)
	if err != nil {
		return lifecycle.BuildStats{}, err
	}

	stats, err := b.embedAndUpsert(ctx, canonicalRoot, files)
	if err != nil {
		return lifecycle.BuildStats{}, err
	}
	return stats, nil
}

// ReindexByChange re-embeds only the changed files, deleting stale
// chunks for files no longer present, satisfying lifecycle.Builder.
func (b *Builder) ReindexByChange(ctx context.Context, canonicalRoot string, changedFiles []string, ignorePatterns []string) (lifecycle.SyncStats, error) {
	matcher := ignore.NewMatcher(append(ignorePatterns, ignore.DefaultPatterns()...))

	var toEmbed []string
	var removed []string
	for _, rel := range changedFiles {
		if matcher.ShouldIgnore(rel) {
			continue
		}
		abs := filepath.Join(canonicalRoot, rel)
		if _, err := os.Stat(abs); err != nil {
			removed = append(removed, rel)
			continue
		}
		toEmbed = append(toEmbed, rel)
	}

	if len(removed) > 0 {
		if err := b.store.DeleteByPaths(ctx, canonicalRoot, removed); err != nil {
			return lifecycle.SyncStats{}, fmt.Errorf("failed to delete stale chunks: %w", err)
		}
	}
	if len(toEmbed) > 0 {
		if err := b.store.DeleteByPaths(ctx, canonicalRoot, toEmbed); err != nil {
			return lifecycle.SyncStats{}, fmt.Errorf("failed to clear changed-file chunks before re-embedding: %w", err)
		}
	}

	buildStats, err := b.embedAndUpsert(ctx, canonicalRoot, toEmbed)
	if err != nil {
		return lifecycle.SyncStats{}, err
	}

	totalChunks, err := b.store.CountChunks(ctx, canonicalRoot)
	if err != nil {
		totalChunks = buildStats.TotalChunks
	}

	return lifecycle.SyncStats{
		AddedFiles:    0,
		RemovedFiles:  len(removed),
		ModifiedFiles: len(toEmbed),
		TotalChunks:   totalChunks,
		Manifest:      buildStats.Manifest,
	}, nil
}

func (b *Builder) walk(canonicalRoot string, ignorePatterns []string) ([]string, error) {
	matcher := ignore.NewMatcher(append(append([]string{}, ignorePatterns...), ignore.DefaultPatterns()...))

	var files []string
	err := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(canonicalRoot, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if rel != "." && matcher.ShouldIgnore(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}
		if matcher.ShouldIgnore(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk codebase: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (b *Builder) embedAndUpsert(ctx context.Context, canonicalRoot string, relativePaths []string) (lifecycle.BuildStats, error) {
	var docs []vectorstore.Document
	var vectors [][]float32
	manifest := make([]string, 0, len(relativePaths))

	for _, rel := range relativePaths {
		content, err := os.ReadFile(filepath.Join(canonicalRoot, rel))
		if err != nil {
			continue
		}
		if len(content) > maxFileBytes {
			content = content[:maxFileBytes]
		}
		if len(content) == 0 {
			continue
		}

		vector, err := b.embedder.Embed(ctx, string(content))
		if err != nil {
			return lifecycle.BuildStats{}, fmt.Errorf("failed to embed %s: %w", rel, err)
		}

		lineCount := countLines(content)
		docs = append(docs, vectorstore.Document{
			RelativePath: rel,
			StartLine:    1,
			EndLine:      lineCount,
			Language:     languageFor(rel),
			Content:      string(content),
			IndexedAt:    b.now(),
		})
		vectors = append(vectors, vector)
		manifest = append(manifest, rel)
	}

	if err := b.store.Upsert(ctx, canonicalRoot, docs, vectors); err != nil {
		return lifecycle.BuildStats{}, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	return lifecycle.BuildStats{
		IndexedFiles: len(manifest),
		TotalChunks:  len(docs),
		Manifest:     manifest,
	}, nil
}

func countLines(content []byte) int {
	n := 1
	for _, c := range content {
		if c == '\n' {
			n++
		}
	}
	return n
}

func languageFor(relativePath string) string {
	switch filepath.Ext(relativePath) {
	case ".java":
		return "java"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".md", ".mdx":
		return "markdown"
	default:
		return "text"
	}
}
