package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/types"
)

var testFP = types.IndexFingerprint{
	EmbeddingProvider:   "Ollama",
	EmbeddingModel:      "nomic-embed-text",
	EmbeddingDimension:  768,
	VectorStoreProvider: "qdrant",
	SchemaVersion:       "hybrid_v3",
}

type fakeStore struct {
	entries map[string]*types.CodebaseEntry
}

func newFakeStore() *fakeStore { return &fakeStore{entries: map[string]*types.CodebaseEntry{}} }

func (f *fakeStore) Get(root string) *types.CodebaseEntry { return f.entries[root].Clone() }

func (f *fakeStore) All() []*types.CodebaseEntry {
	out := make([]*types.CodebaseEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Clone())
	}
	return out
}

func (f *fakeStore) Mutate(root string, fn func(*types.CodebaseEntry) (*types.CodebaseEntry, error)) (*types.CodebaseEntry, error) {
	next, err := fn(f.entries[root].Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(f.entries, root)
		return nil, nil
	}
	next.RepoPath = root
	f.entries[root] = next
	return next.Clone(), nil
}

func (f *fakeStore) Remove(root string) error {
	delete(f.entries, root)
	return nil
}

type fakeMarkers struct {
	markers     map[string]*types.CompletionMarker
	collections map[string]string // collection name -> canonical root
	dropped     []string
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{markers: map[string]*types.CompletionMarker{}, collections: map[string]string{}}
}

func (f *fakeMarkers) ReadCompletionMarker(ctx context.Context, canonicalRoot string) (*types.CompletionMarker, error) {
	return f.markers[canonicalRoot], nil
}

func (f *fakeMarkers) WriteCompletionMarker(ctx context.Context, canonicalRoot string, marker types.CompletionMarker) error {
	m := marker
	f.markers[canonicalRoot] = &m
	f.collections[canonicalRoot+"-collection"] = canonicalRoot
	return nil
}

func (f *fakeMarkers) ClearCompletionMarker(ctx context.Context, canonicalRoot string) error {
	delete(f.markers, canonicalRoot)
	return nil
}

func (f *fakeMarkers) DropCollection(ctx context.Context, canonicalRoot string) error {
	f.dropped = append(f.dropped, canonicalRoot)
	delete(f.markers, canonicalRoot)
	return nil
}

func (f *fakeMarkers) ListCollections(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.collections))
	for name := range f.collections {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeMarkers) ReadCompletionMarkerByCollection(ctx context.Context, collectionName string) (*types.CompletionMarker, error) {
	root, ok := f.collections[collectionName]
	if !ok {
		return nil, nil
	}
	return f.markers[root], nil
}

type fakeBuilder struct {
	indexStats BuildStats
	indexErr   error
	syncStats  SyncStats
	syncErr    error
}

func (f *fakeBuilder) IndexCodebase(ctx context.Context, canonicalRoot string, ignorePatterns []string) (BuildStats, error) {
	return f.indexStats, f.indexErr
}

func (f *fakeBuilder) ReindexByChange(ctx context.Context, canonicalRoot string, changedFiles, ignorePatterns []string) (SyncStats, error) {
	return f.syncStats, f.syncErr
}

func newManager(store *fakeStore, markers *fakeMarkers, builder *fakeBuilder) *Manager {
	validator := completionproof.NewValidator(markers)
	m := NewManager(store, markers, builder, validator, testFP, 2000)
	m.now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestCreateTransitionsToIndexedOnSuccess(t *testing.T) {
	store := newFakeStore()
	markers := newFakeMarkers()
	builder := &fakeBuilder{indexStats: BuildStats{IndexedFiles: 3, TotalChunks: 12, Manifest: []string{"a.go", "b.go"}}}
	m := newManager(store, markers, builder)

	entry, err := m.Create(context.Background(), "/repo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.StatusIndexed {
		t.Fatalf("expected indexed, got %v", entry.Status)
	}
	if entry.TotalChunks != 12 || entry.IndexedFiles != 3 {
		t.Errorf("expected stats carried over, got %+v", entry)
	}
	if markers.markers["/repo"] == nil {
		t.Errorf("expected completion marker to be written")
	}
}

func TestCreateTransitionsToIndexFailedOnBuildError(t *testing.T) {
	store := newFakeStore()
	markers := newFakeMarkers()
	builder := &fakeBuilder{indexErr: errors.New("scan failed")}
	m := newManager(store, markers, builder)

	entry, err := m.Create(context.Background(), "/repo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.StatusIndexFailed {
		t.Fatalf("expected indexfailed, got %v", entry.Status)
	}
	if entry.ErrorMessage != "scan failed" {
		t.Errorf("expected error message carried over, got %q", entry.ErrorMessage)
	}
}

func TestReindexForceDropsCollectionFirst(t *testing.T) {
	store := newFakeStore()
	markers := newFakeMarkers()
	markers.markers["/repo"] = &types.CompletionMarker{Kind: types.CompletionMarkerKind, CodebasePath: "/repo"}
	builder := &fakeBuilder{indexStats: BuildStats{IndexedFiles: 1, TotalChunks: 1}}
	m := newManager(store, markers, builder)

	if _, err := m.Reindex(context.Background(), "/repo", true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markers.dropped) != 1 || markers.dropped[0] != "/repo" {
		t.Errorf("expected collection dropped before reindex, got %+v", markers.dropped)
	}
}

func TestSyncTransitionsThroughSyncCompletedToIndexed(t *testing.T) {
	store := newFakeStore()
	store.entries["/repo"] = &types.CodebaseEntry{RepoPath: "/repo", Status: types.StatusIndexed}
	markers := newFakeMarkers()
	builder := &fakeBuilder{syncStats: SyncStats{AddedFiles: 1, ModifiedFiles: 2, TotalChunks: 20, Manifest: []string{"a.go"}}}
	m := newManager(store, markers, builder)

	entry, err := m.Sync(context.Background(), "/repo", []string{"a.go"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != types.StatusIndexed {
		t.Fatalf("expected final state indexed, got %v", entry.Status)
	}
	if entry.TotalChunks != 20 {
		t.Errorf("expected refreshed chunk total, got %d", entry.TotalChunks)
	}
}

func TestClearRemovesEntryAndMarker(t *testing.T) {
	store := newFakeStore()
	store.entries["/repo"] = &types.CodebaseEntry{RepoPath: "/repo", Status: types.StatusIndexed}
	markers := newFakeMarkers()
	markers.markers["/repo"] = &types.CompletionMarker{Kind: types.CompletionMarkerKind, CodebasePath: "/repo"}
	m := newManager(store, markers, &fakeBuilder{})

	if err := m.Clear(context.Background(), "/repo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Get("/repo") != nil {
		t.Errorf("expected entry removed")
	}
	if markers.markers["/repo"] != nil {
		t.Errorf("expected marker cleared")
	}
}

func TestRecoverStalePromotesValidRun(t *testing.T) {
	store := newFakeStore()
	old := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	store.entries["/repo"] = &types.CodebaseEntry{RepoPath: "/repo", Status: types.StatusIndexing, LastUpdated: old}
	markers := newFakeMarkers()
	markers.markers["/repo"] = &types.CompletionMarker{
		Kind: types.CompletionMarkerKind, CodebasePath: "/repo", Fingerprint: testFP,
		IndexedFiles: 5, TotalChunks: 50, CompletedAt: "2026-07-31T11:59:00Z",
	}
	m := newManager(store, markers, &fakeBuilder{})

	recovered, err := m.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recovered) != 1 || recovered[0].Status != types.StatusIndexed {
		t.Fatalf("expected one entry promoted to indexed, got %+v", recovered)
	}
}

func TestRecoverStaleFailsRunWithNoMarker(t *testing.T) {
	store := newFakeStore()
	old := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	store.entries["/repo"] = &types.CodebaseEntry{RepoPath: "/repo", Status: types.StatusIndexing, LastUpdated: old}
	m := newManager(store, newFakeMarkers(), &fakeBuilder{})

	recovered, err := m.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recovered) != 1 || recovered[0].Status != types.StatusIndexFailed {
		t.Fatalf("expected one entry failed, got %+v", recovered)
	}
}

func TestRecoverStaleIgnoresFreshIndexingEntries(t *testing.T) {
	store := newFakeStore()
	store.entries["/repo"] = &types.CodebaseEntry{RepoPath: "/repo", Status: types.StatusIndexing, LastUpdated: time.Date(2026, 7, 31, 11, 59, 59, 0, time.UTC)}
	m := newManager(store, newFakeMarkers(), &fakeBuilder{})

	recovered, err := m.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recovered) != 0 {
		t.Fatalf("expected no entries recovered within the grace window, got %+v", recovered)
	}
}

func TestReconcileRepairsMissingLocalEntryWithoutRemovingOthers(t *testing.T) {
	store := newFakeStore()
	store.entries["/other"] = &types.CodebaseEntry{RepoPath: "/other", Status: types.StatusIndexing}
	markers := newFakeMarkers()
	markers.collections["remote-collection"] = "/repo"
	markers.markers["/repo"] = &types.CompletionMarker{
		Kind: types.CompletionMarkerKind, CodebasePath: "/repo", Fingerprint: testFP,
		IndexedFiles: 4, TotalChunks: 40, CompletedAt: "2026-07-31T11:00:00Z",
	}
	m := newManager(store, markers, &fakeBuilder{})

	repaired, err := m.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repaired entry, got %d", repaired)
	}
	if store.Get("/repo") == nil || store.Get("/repo").Status != types.StatusIndexed {
		t.Errorf("expected /repo repaired to indexed")
	}
	if store.Get("/other") == nil || store.Get("/other").Status != types.StatusIndexing {
		t.Errorf("expected /other left untouched, reconcile must never override an in-flight entry")
	}
}

func TestReconcileSkipsMismatchedFingerprint(t *testing.T) {
	store := newFakeStore()
	markers := newFakeMarkers()
	mismatched := testFP
	mismatched.EmbeddingModel = "voyage-3"
	markers.collections["remote-collection"] = "/repo"
	markers.markers["/repo"] = &types.CompletionMarker{
		Kind: types.CompletionMarkerKind, CodebasePath: "/repo", Fingerprint: mismatched,
		CompletedAt: "2026-07-31T11:00:00Z",
	}
	m := newManager(store, markers, &fakeBuilder{})

	repaired, err := m.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("expected fingerprint-mismatched remote entries skipped, got %d repaired", repaired)
	}
}
