package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/satorihq/satori-index/internal/types"
)

func TestStoreMutateAndGet(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewStore(filepath.Join(tmpDir, "snap"), "codebases.json")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	root := "/repo"

	if e := store.Get(root); e != nil {
		t.Fatalf("Expected no entry before first mutate, got %+v", e)
	}

	_, err = store.Mutate(root, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		if current != nil {
			t.Fatalf("Expected nil current entry on first create")
		}
		return &types.CodebaseEntry{Status: types.StatusIndexing, IndexingPercentage: 0}, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	entry := store.Get(root)
	if entry == nil {
		t.Fatalf("Expected entry after create")
	}
	if entry.Status != types.StatusIndexing {
		t.Errorf("Expected status indexing, got %s", entry.Status)
	}

	_, err = store.Mutate(root, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
		current.Status = types.StatusIndexed
		current.IndexedFiles = 42
		current.TotalChunks = 500
		return current, nil
	})
	if err != nil {
		t.Fatalf("Mutate to indexed failed: %v", err)
	}

	entry = store.Get(root)
	if entry.Status != types.StatusIndexed || entry.IndexedFiles != 42 {
		t.Errorf("Unexpected entry after transition: %+v", entry)
	}
}

func TestStorePersistsAcrossReload(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "snap")

	store, err := NewStore(dir, "codebases.json")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	root := "/repo"
	_, err = store.Mutate(root, func(*types.CodebaseEntry) (*types.CodebaseEntry, error) {
		return &types.CodebaseEntry{Status: types.StatusIndexed, IndexedFiles: 7}, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	reloaded, err := NewStore(dir, "codebases.json")
	if err != nil {
		t.Fatalf("Failed to reload store: %v", err)
	}

	entry := reloaded.Get(root)
	if entry == nil || entry.IndexedFiles != 7 {
		t.Fatalf("Expected persisted entry to survive reload, got %+v", entry)
	}
}

func TestStoreRemove(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore(filepath.Join(tmpDir, "snap"), "codebases.json")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	root := "/repo"
	if _, err := store.Mutate(root, func(*types.CodebaseEntry) (*types.CodebaseEntry, error) {
		return &types.CodebaseEntry{Status: types.StatusIndexed}, nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if err := store.Remove(root); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if e := store.Get(root); e != nil {
		t.Errorf("Expected entry removed, got %+v", e)
	}
}

func TestStoreAllSortedByPath(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewStore(filepath.Join(tmpDir, "snap"), "codebases.json")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for _, root := range []string{"/repo/zeta", "/repo/alpha", "/repo/mid"} {
		if _, err := store.Mutate(root, func(*types.CodebaseEntry) (*types.CodebaseEntry, error) {
			return &types.CodebaseEntry{Status: types.StatusIndexed}, nil
		}); err != nil {
			t.Fatalf("Mutate failed for %s: %v", root, err)
		}
	}

	all := store.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	if all[0].RepoPath != "/repo/alpha" || all[2].RepoPath != "/repo/zeta" {
		t.Errorf("Expected lexical ordering, got %v, %v, %v", all[0].RepoPath, all[1].RepoPath, all[2].RepoPath)
	}
}
