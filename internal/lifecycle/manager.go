// Package lifecycle drives the indexing lifecycle state machine (spec
// section 4.8): creating a codebase entry, reindexing it, running an
// incremental sync, clearing it, recovering a stale in-flight run, and
// non-destructively reconciling the local snapshot against whatever the
// cloud vector store actually has. The content pipeline itself — scanning,
// chunking, embedding, upserting — is a pluggable Builder collaborator;
// this package owns only the state around it.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/readiness"
	"github.com/satorihq/satori-index/internal/types"
)

// SnapshotStore is the subset of snapshot.Store the manager depends on.
type SnapshotStore interface {
	Get(canonicalRoot string) *types.CodebaseEntry
	All() []*types.CodebaseEntry
	Mutate(canonicalRoot string, fn func(current *types.CodebaseEntry) (*types.CodebaseEntry, error)) (*types.CodebaseEntry, error)
	Remove(canonicalRoot string) error
}

// MarkerStore is the subset of vectorstore.Client the manager depends on
// for completion-marker lifecycle, collection teardown, and the cloud
// reconcile pass.
type MarkerStore interface {
	completionproof.MarkerStore
	WriteCompletionMarker(ctx context.Context, canonicalRoot string, marker types.CompletionMarker) error
	ClearCompletionMarker(ctx context.Context, canonicalRoot string) error
	DropCollection(ctx context.Context, canonicalRoot string) error
	ListCollections(ctx context.Context) ([]string, error)
	ReadCompletionMarkerByCollection(ctx context.Context, collectionName string) (*types.CompletionMarker, error)
}

// BuildStats is what a create/reindex run reports back.
type BuildStats struct {
	IndexedFiles int
	TotalChunks  int
	Manifest     []string
}

// SyncStats is what an incremental sync run reports back.
type SyncStats struct {
	AddedFiles    int
	RemovedFiles  int
	ModifiedFiles int
	TotalChunks   int
	Manifest      []string
}

// Builder is the out-of-scope content pipeline: scanning, chunking,
// embedding, and upserting a codebase. The manager never touches file
// content itself; it only sequences Builder calls around state
// transitions and completion-marker bookkeeping.
type Builder interface {
	IndexCodebase(ctx context.Context, canonicalRoot string, ignorePatterns []string) (BuildStats, error)
	ReindexByChange(ctx context.Context, canonicalRoot string, changedFiles []string, ignorePatterns []string) (SyncStats, error)
}

// Manager drives the state machine in spec section 4.8.
type Manager struct {
	store        SnapshotStore
	markers      MarkerStore
	builder      Builder
	validator    *completionproof.Validator
	fingerprint  types.IndexFingerprint
	staleGraceMS int64
	now          func() time.Time
}

// NewManager builds a Manager bound to its collaborators, stamped with
// the runtime fingerprint every completed run is marked with.
func NewManager(store SnapshotStore, markers MarkerStore, builder Builder, validator *completionproof.Validator, fingerprint types.IndexFingerprint, staleGraceMS int64) *Manager {
	return &Manager{
		store:        store,
		markers:      markers,
		builder:      builder,
		validator:    validator,
		fingerprint:  fingerprint,
		staleGraceMS: staleGraceMS,
		now:          time.Now,
	}
}

// Create runs a fresh index build for canonicalRoot: not_found (or a
// failed/stale prior attempt) moves to indexing immediately, then to
// indexed on success or indexfailed on error. Callers wanting a
// background run should invoke Create from their own goroutine; the
// method itself runs synchronously so its caller controls concurrency.
func (m *Manager) Create(ctx context.Context, canonicalRoot string, ignorePatterns []string) (*types.CodebaseEntry, error) {
	runID := uuid.NewString()

	if _, err := m.store.Mutate(canonicalRoot, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		e := current
		if e == nil {
			e = &types.CodebaseEntry{}
		}
		e.Status = types.StatusIndexing
		e.IndexingPercentage = 0
		e.ErrorMessage = ""
		e.ReindexMessage = ""
		e.ReindexReason = ""
		return e, nil
	}); err != nil {
		return nil, err
	}

	_ = m.markers.ClearCompletionMarker(ctx, canonicalRoot)

	stats, buildErr := m.builder.IndexCodebase(ctx, canonicalRoot, ignorePatterns)
	if buildErr != nil {
		return m.fail(canonicalRoot, buildErr)
	}

	return m.finishIndexing(ctx, canonicalRoot, runID, stats)
}

// Reindex re-creates the index for canonicalRoot. When force is true the
// remote collection is dropped first (spec section 4.8's force path),
// discarding whatever state the prior run left behind; otherwise Reindex
// behaves like Create on top of whatever entry already exists.
func (m *Manager) Reindex(ctx context.Context, canonicalRoot string, force bool, ignorePatterns []string) (*types.CodebaseEntry, error) {
	if force {
		if err := m.markers.DropCollection(ctx, canonicalRoot); err != nil {
			return nil, fmt.Errorf("failed to drop collection for reindex: %w", err)
		}
	}
	return m.Create(ctx, canonicalRoot, ignorePatterns)
}

// Sync runs an incremental update against an already-indexed codebase:
// indexed -> sync_completed (carrying the added/removed/modified counts)
// -> indexed (carrying the refreshed totals), per spec section 4.8.
func (m *Manager) Sync(ctx context.Context, canonicalRoot string, changedFiles []string, ignorePatterns []string) (*types.CodebaseEntry, error) {
	stats, err := m.builder.ReindexByChange(ctx, canonicalRoot, changedFiles, ignorePatterns)
	if err != nil {
		return m.fail(canonicalRoot, err)
	}

	if _, err := m.store.Mutate(canonicalRoot, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		e := current.Clone()
		if e == nil {
			e = &types.CodebaseEntry{}
		}
		e.Status = types.StatusSyncCompleted
		e.AddedFiles = stats.AddedFiles
		e.RemovedFiles = stats.RemovedFiles
		e.ModifiedFiles = stats.ModifiedFiles
		e.TotalChunks = stats.TotalChunks
		e.IndexManifest = stats.Manifest
		return e, nil
	}); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return m.finishIndexing(ctx, canonicalRoot, runID, BuildStats{
		IndexedFiles: len(stats.Manifest),
		TotalChunks:  stats.TotalChunks,
		Manifest:     stats.Manifest,
	})
}

// Clear tears down the remote collection, clears its completion marker,
// and removes the local snapshot entry entirely.
func (m *Manager) Clear(ctx context.Context, canonicalRoot string) error {
	if err := m.markers.DropCollection(ctx, canonicalRoot); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := m.markers.ClearCompletionMarker(ctx, canonicalRoot); err != nil {
		return fmt.Errorf("failed to clear completion marker: %w", err)
	}
	return m.store.Remove(canonicalRoot)
}

func (m *Manager) fail(canonicalRoot string, buildErr error) (*types.CodebaseEntry, error) {
	return m.store.Mutate(canonicalRoot, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		e := current.Clone()
		if e == nil {
			e = &types.CodebaseEntry{}
		}
		e.Status = types.StatusIndexFailed
		e.ErrorMessage = buildErr.Error()
		e.LastAttemptedPercentage = e.IndexingPercentage
		return e, nil
	})
}

func (m *Manager) finishIndexing(ctx context.Context, canonicalRoot, runID string, stats BuildStats) (*types.CodebaseEntry, error) {
	marker := types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: canonicalRoot,
		Fingerprint:  m.fingerprint,
		IndexedFiles: stats.IndexedFiles,
		TotalChunks:  stats.TotalChunks,
		CompletedAt:  m.now().UTC().Format(time.RFC3339),
		RunID:        runID,
	}
	if err := m.markers.WriteCompletionMarker(ctx, canonicalRoot, marker); err != nil {
		return m.fail(canonicalRoot, fmt.Errorf("failed to persist completion marker: %w", err))
	}

	fp := m.fingerprint
	return m.store.Mutate(canonicalRoot, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		e := current.Clone()
		if e == nil {
			e = &types.CodebaseEntry{}
		}
		e.Status = types.StatusIndexed
		e.IndexingPercentage = 100
		e.IndexedFiles = stats.IndexedFiles
		e.TotalChunks = stats.TotalChunks
		e.IndexManifest = stats.Manifest
		e.IndexFingerprint = &fp
		e.FingerprintSource = types.FingerprintVerified
		e.ErrorMessage = ""
		e.ReindexMessage = ""
		e.ReindexReason = ""
		return e, nil
	})
}

// RecoverStale probes every tracked entry still reporting indexing past
// the stale-indexing grace window (spec section 4.8): a valid completion
// marker means a run actually finished and the local snapshot simply
// missed the update, so the entry is promoted straight to indexed; a
// missing or mismatched marker means the run died, so the entry is
// failed instead, clearing the way for a fresh create.
func (m *Manager) RecoverStale(ctx context.Context) ([]*types.CodebaseEntry, error) {
	var recovered []*types.CodebaseEntry
	now := m.now()

	for _, entry := range m.store.All() {
		if !readiness.StaleIndexingGrace(entry, m.staleGraceMS, now) {
			continue
		}

		result := m.validator.Validate(ctx, entry.RepoPath, m.fingerprint)
		var updated *types.CodebaseEntry
		var err error
		if result.Outcome == completionproof.OutcomeValid {
			fp := m.fingerprint
			updated, err = m.store.Mutate(entry.RepoPath, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
				e := current.Clone()
				e.Status = types.StatusIndexed
				e.IndexingPercentage = 100
				e.IndexedFiles = result.Marker.IndexedFiles
				e.TotalChunks = result.Marker.TotalChunks
				e.IndexFingerprint = &fp
				e.FingerprintSource = types.FingerprintVerified
				e.ErrorMessage = ""
				return e, nil
			})
		} else {
			updated, err = m.store.Mutate(entry.RepoPath, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
				e := current.Clone()
				e.Status = types.StatusIndexFailed
				e.ErrorMessage = "stale indexing run detected: no valid completion proof found"
				e.LastAttemptedPercentage = e.IndexingPercentage
				return e, nil
			})
		}
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, updated)
	}

	return recovered, nil
}

// Reconcile is the non-destructive cloud reconcile pass (spec section
// 4.8): it walks every remote collection, reads its completion marker,
// and repairs any local entry that is not currently indexing and does
// not already carry a valid ready state — it never removes a local
// entry, even one the cloud no longer has a collection for, since the
// local snapshot may simply be ahead of an async cloud reconciliation.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	collections, err := m.markers.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list collections: %w", err)
	}

	repaired := 0
	for _, collection := range collections {
		marker, err := m.markers.ReadCompletionMarkerByCollection(ctx, collection)
		if err != nil || marker == nil || marker.Kind != types.CompletionMarkerKind {
			continue
		}
		if !marker.Fingerprint.Equal(m.fingerprint) {
			continue
		}

		existing := m.store.Get(marker.CodebasePath)
		if existing != nil && existing.Status == types.StatusIndexing {
			continue
		}
		if existing != nil && (existing.Status == types.StatusIndexed || existing.Status == types.StatusSyncCompleted) &&
			existing.IndexFingerprint != nil && existing.IndexFingerprint.Equal(marker.Fingerprint) {
			continue
		}

		fp := marker.Fingerprint
		if _, err := m.store.Mutate(marker.CodebasePath, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
			e := current.Clone()
			if e == nil {
				e = &types.CodebaseEntry{}
			}
			e.Status = types.StatusIndexed
			e.IndexingPercentage = 100
			e.IndexedFiles = marker.IndexedFiles
			e.TotalChunks = marker.TotalChunks
			e.IndexFingerprint = &fp
			e.FingerprintSource = types.FingerprintVerified
			e.ErrorMessage = ""
			e.ReindexMessage = ""
			e.ReindexReason = ""
			return e, nil
		}); err != nil {
			return repaired, err
		}
		repaired++
	}

	return repaired, nil
}
