package readiness

import (
	"context"
	"testing"
	"time"

	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/types"
)

var runtimeFP = types.IndexFingerprint{
	EmbeddingProvider:   "Ollama",
	EmbeddingModel:      "nomic-embed-text",
	EmbeddingDimension:  768,
	VectorStoreProvider: "qdrant",
	SchemaVersion:       "hybrid_v3",
}

type fakeSnapshotStore struct {
	entries map[string]*types.CodebaseEntry
}

func (f *fakeSnapshotStore) Get(root string) *types.CodebaseEntry { return f.entries[root] }

func (f *fakeSnapshotStore) All() []*types.CodebaseEntry {
	out := make([]*types.CodebaseEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *fakeSnapshotStore) Mutate(root string, fn func(*types.CodebaseEntry) (*types.CodebaseEntry, error)) (*types.CodebaseEntry, error) {
	updated, err := fn(f.entries[root])
	if err != nil {
		return nil, err
	}
	f.entries[root] = updated
	return updated, nil
}

type fakeMarkerStore struct {
	marker *types.CompletionMarker
	err    error
}

func (f fakeMarkerStore) ReadCompletionMarker(ctx context.Context, canonicalRoot string) (*types.CompletionMarker, error) {
	return f.marker, f.err
}

func TestAdmitRequiresReindexBlocksRegardlessOfOperation(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo": {RepoPath: "/repo", Status: types.StatusRequiresReindex, ReindexMessage: "Legacy v2 index detected."},
	}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{}), runtimeFP, 2000)

	decision := gate.Admit(context.Background(), "/repo", OpCallGraph)
	if decision.Status != StatusRequiresReindex {
		t.Fatalf("expected requires_reindex, got %v", decision.Status)
	}
	if decision.Hints.ReindexArgsPath != "/repo" {
		t.Errorf("expected reindex hint path /repo, got %q", decision.Hints.ReindexArgsPath)
	}
}

func TestAdmitStatusOperationBypassesBlockedRoot(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo": {RepoPath: "/repo", Status: types.StatusRequiresReindex},
	}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{}), runtimeFP, 2000)

	decision := gate.Admit(context.Background(), "/repo", OpStatus)
	if decision.Status == StatusRequiresReindex {
		t.Errorf("status operation should not be forced into requires_reindex by the blocked-root check")
	}
}

func TestAdmitStaleLocalReturnsNotIndexed(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo": {RepoPath: "/repo", Status: types.StatusIndexed, IndexFingerprint: &runtimeFP},
	}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{marker: nil}), runtimeFP, 2000)

	decision := gate.Admit(context.Background(), "/repo", OpSearch)
	if decision.Status != StatusNotIndexed {
		t.Fatalf("expected not_indexed, got %v", decision.Status)
	}
	if decision.Hints.StaleLocalReason != completionproof.ReasonMissingMarkerDoc {
		t.Errorf("expected missing_marker_doc hint, got %v", decision.Hints.StaleLocalReason)
	}
}

func TestAdmitCompletionProofFingerprintMismatch(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo": {RepoPath: "/repo", Status: types.StatusIndexed, IndexFingerprint: &runtimeFP},
	}}
	mismatched := runtimeFP
	mismatched.EmbeddingModel = "voyage-3"
	marker := &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo",
		Fingerprint:  mismatched,
		CompletedAt:  "2026-07-30T00:00:00Z",
	}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{marker: marker}), runtimeFP, 2000)

	decision := gate.Admit(context.Background(), "/repo", OpSearch)
	if decision.Status != StatusRequiresReindex {
		t.Fatalf("expected requires_reindex, got %v", decision.Status)
	}
	if store.entries["/repo"].Status != types.StatusRequiresReindex {
		t.Errorf("expected snapshot entry mutated to requires_reindex")
	}
}

func TestAdmitIndexingBlocksWritesAndDegradesReads(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo": {RepoPath: "/repo", Status: types.StatusIndexing},
	}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{}), runtimeFP, 2000)

	writeDecision := gate.Admit(context.Background(), "/repo", OpSync)
	if writeDecision.Status != StatusBlocked || writeDecision.RetryAfterMS != 2000 {
		t.Fatalf("expected blocked with retry-after 2000, got %v/%d", writeDecision.Status, writeDecision.RetryAfterMS)
	}

	readDecision := gate.Admit(context.Background(), "/repo", OpSearch)
	if readDecision.Status != StatusNotReady {
		t.Fatalf("expected not_ready, got %v", readDecision.Status)
	}
}

func TestAdmitNoTrackedEntryIsNotIndexedExceptCreate(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{}), runtimeFP, 2000)

	searchDecision := gate.Admit(context.Background(), "/unknown", OpSearch)
	if searchDecision.Status != StatusNotIndexed {
		t.Fatalf("expected not_indexed for unknown root, got %v", searchDecision.Status)
	}

	createDecision := gate.Admit(context.Background(), "/unknown", OpCreate)
	if !createDecision.Proceed() {
		t.Fatalf("expected create to proceed on an unknown root, got %v", createDecision.Status)
	}
}

func TestAdmitEffectiveRootPrefersLongestAncestor(t *testing.T) {
	store := &fakeSnapshotStore{entries: map[string]*types.CodebaseEntry{
		"/repo":            {RepoPath: "/repo", Status: types.StatusIndexing},
		"/repo/sub/nested": {RepoPath: "/repo/sub/nested", Status: types.StatusIndexed, IndexFingerprint: &runtimeFP},
	}}
	gate := NewGate(store, completionproof.NewValidator(fakeMarkerStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo/sub/nested",
		Fingerprint:  runtimeFP,
		CompletedAt:  "2026-07-30T00:00:00Z",
	}}), runtimeFP, 2000)

	decision := gate.Admit(context.Background(), "/repo/sub/nested/internal/file.go", OpSearch)
	if decision.EffectiveRoot != "/repo/sub/nested" {
		t.Fatalf("expected effective root /repo/sub/nested, got %q", decision.EffectiveRoot)
	}
	if decision.Status != StatusOK {
		t.Fatalf("expected ok, got %v", decision.Status)
	}
}

func TestStaleIndexingGrace(t *testing.T) {
	entry := &types.CodebaseEntry{Status: types.StatusIndexing, LastUpdated: time.Now().Add(-10 * time.Minute)}
	if !StaleIndexingGrace(entry, 5*60*1000, time.Now()) {
		t.Errorf("expected stale-indexing grace to have elapsed")
	}

	fresh := &types.CodebaseEntry{Status: types.StatusIndexing, LastUpdated: time.Now()}
	if StaleIndexingGrace(fresh, 5*60*1000, time.Now()) {
		t.Errorf("expected stale-indexing grace to not have elapsed for a fresh entry")
	}
}
