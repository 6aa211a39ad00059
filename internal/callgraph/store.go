// Package callgraph reads the immutable v3 call-graph sidecar from
// disk and answers outline and call-graph queries over it. Building
// the sidecar (producing nodes/edges/notes from source) is out of
// scope; this package only reads what a builder already wrote.
package callgraph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/satorihq/satori-index/internal/types"
)

// Store reads/writes the on-disk sidecar file for a canonical root,
// one JSON file per codebase, named by a stable hash of the root —
// the same content-addressing idiom as the teacher's file-hash cache.
type Store struct {
	dir string
}

// NewStore binds a Store to a directory, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sidecar directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(canonicalRoot string) string {
	hash := sha256.Sum256([]byte(canonicalRoot))
	return filepath.Join(s.dir, fmt.Sprintf("callgraph-%x.json", hash[:8]))
}

// Load reads the sidecar for canonicalRoot, returning nil without
// error if none has been built yet.
func (s *Store) Load(canonicalRoot string) (*types.CallGraphSidecar, error) {
	data, err := os.ReadFile(s.pathFor(canonicalRoot))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var sidecar types.CallGraphSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar: %w", err)
	}
	return &sidecar, nil
}

// Save atomically writes the sidecar via write-then-rename, the same
// durability pattern used by the snapshot store.
func (s *Store) Save(canonicalRoot string, sidecar *types.CallGraphSidecar) error {
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}

	path := s.pathFor(canonicalRoot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar temp file: %w", err)
	}
	return os.Rename(tmp, path)
}
