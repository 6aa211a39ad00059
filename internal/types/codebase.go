package types

import "time"

// CodebaseStatus is the state machine driving every codebase entry (spec
// section 4.8). Transitions are enforced by the lifecycle package, not by
// this type itself.
type CodebaseStatus string

const (
	StatusIndexed         CodebaseStatus = "indexed"
	StatusIndexing        CodebaseStatus = "indexing"
	StatusIndexFailed     CodebaseStatus = "indexfailed"
	StatusSyncCompleted   CodebaseStatus = "sync_completed"
	StatusRequiresReindex CodebaseStatus = "requires_reindex"
	StatusNotFound        CodebaseStatus = "not_found"
)

// FingerprintSource records whether the entry's fingerprint was verified
// against a completion marker or merely inferred from runtime config.
type FingerprintSource string

const (
	FingerprintVerified FingerprintSource = "verified"
	FingerprintInferred FingerprintSource = "inferred"
)

// CallGraphSidecarPointer is the lightweight summary of the v3 sidecar
// kept inline on the codebase entry so readers don't have to open the
// sidecar file just to know whether one exists.
type CallGraphSidecarPointer struct {
	Version   string           `json:"version"`
	BuiltAt   time.Time        `json:"builtAt"`
	NodeCount int              `json:"nodeCount"`
	EdgeCount int              `json:"edgeCount"`
	Fingerprint IndexFingerprint `json:"fingerprint"`
}

// CodebaseEntry is keyed by canonical absolute root path in the snapshot
// store. Only the fields relevant to the current status are meaningful;
// invariant 1 of spec section 3 forbids holding payload inconsistent with
// status, which the lifecycle package enforces on every transition.
type CodebaseEntry struct {
	RepoPath    string         `json:"repoPath"`
	Status      CodebaseStatus `json:"status"`
	LastUpdated time.Time      `json:"lastUpdated"`

	// indexing payload
	IndexingPercentage float64 `json:"indexingPercentage,omitempty"`

	// indexed / sync_completed payload
	IndexedFiles int `json:"indexedFiles,omitempty"`
	TotalChunks  int `json:"totalChunks,omitempty"`

	// indexfailed payload
	ErrorMessage            string  `json:"errorMessage,omitempty"`
	LastAttemptedPercentage float64 `json:"lastAttemptedPercentage,omitempty"`

	// sync_completed payload
	AddedFiles    int `json:"addedFiles,omitempty"`
	RemovedFiles  int `json:"removedFiles,omitempty"`
	ModifiedFiles int `json:"modifiedFiles,omitempty"`

	// requires_reindex payload
	ReindexMessage string `json:"reindexMessage,omitempty"`
	ReindexReason  string `json:"reindexReason,omitempty"`

	IndexFingerprint  *IndexFingerprint        `json:"indexFingerprint,omitempty"`
	FingerprintSource FingerprintSource        `json:"fingerprintSource,omitempty"`
	CallGraphSidecar  *CallGraphSidecarPointer `json:"callGraphSidecar,omitempty"`

	// IndexManifest is the ordered set of relative paths last indexed.
	IndexManifest []string `json:"indexManifest,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to a caller without
// sharing the snapshot store's backing slices/maps.
func (e *CodebaseEntry) Clone() *CodebaseEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.IndexFingerprint != nil {
		fp := *e.IndexFingerprint
		c.IndexFingerprint = &fp
	}
	if e.CallGraphSidecar != nil {
		sc := *e.CallGraphSidecar
		c.CallGraphSidecar = &sc
	}
	if e.IndexManifest != nil {
		c.IndexManifest = append([]string(nil), e.IndexManifest...)
	}
	return &c
}
