package types

import "time"

// EdgeKind distinguishes the two directions a call-graph edge can be
// queried in.
type EdgeKind string

const (
	EdgeCallers EdgeKind = "callers"
	EdgeCallees EdgeKind = "callees"
)

// Span is a 1-based, inclusive line range.
type Span struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// GraphNode is one symbol in the call-graph sidecar.
type GraphNode struct {
	SymbolID    string `json:"symbolId"`
	SymbolLabel string `json:"symbolLabel,omitempty"`
	File        string `json:"file"`
	Span        Span   `json:"span"`
	Language    string `json:"language"`
}

// GraphEdge connects two symbols in one direction.
type GraphEdge struct {
	Src  string   `json:"src"`
	Dst  string   `json:"dst"`
	Kind EdgeKind `json:"kind"`
}

// NoteType enumerates the sidecar-builder diagnostics a reader needs to
// surface, most importantly missing-symbol-metadata gaps.
type NoteType string

const (
	NoteMissingSymbolMetadata NoteType = "missing_symbol_metadata"
)

// GraphNote is a sidecar-builder diagnostic attached to the artifact.
type GraphNote struct {
	Type    NoteType `json:"type"`
	File    string   `json:"file,omitempty"`
	Details string   `json:"details,omitempty"`
}

// CallGraphSidecar is the immutable v3 per-codebase call-graph artifact.
// It is produced by a builder out of scope for this module; the module
// only reads it.
type CallGraphSidecar struct {
	Version     string           `json:"version"` // always "v3"
	BuiltAt     time.Time        `json:"builtAt"`
	Fingerprint IndexFingerprint `json:"fingerprint"`
	NodeCount   int              `json:"nodeCount"`
	EdgeCount   int              `json:"edgeCount"`
	NoteCount   int              `json:"noteCount"`
	Nodes       []GraphNode      `json:"nodes"`
	Edges       []GraphEdge      `json:"edges"`
	Notes       []GraphNote      `json:"notes"`
}

const SidecarVersionV3 = "v3"
