// Package completionproof fetches and validates the cloud-side
// completion marker for a codebase (spec section 4.2). It is the
// dominant source of truth over the local snapshot: a valid marker
// makes a codebase searchable even if the local snapshot disagrees,
// and a missing or malformed marker overrides a local snapshot that
// claims readiness.
package completionproof

import (
	"context"
	"time"

	"github.com/satorihq/satori-index/internal/types"
)

// Outcome is the validator's verdict for one probe.
type Outcome string

const (
	OutcomeValid              Outcome = "valid"
	OutcomeStaleLocal         Outcome = "stale_local"
	OutcomeFingerprintMismatch Outcome = "fingerprint_mismatch"
	OutcomeProbeFailed        Outcome = "probe_failed"
)

// StaleReason further classifies an OutcomeStaleLocal verdict.
type StaleReason string

const (
	ReasonMissingMarkerDoc StaleReason = "missing_marker_doc"
	ReasonInvalidMarkerKind StaleReason = "invalid_marker_kind"
	ReasonPathMismatch     StaleReason = "path_mismatch"
	ReasonInvalidPayload   StaleReason = "invalid_payload"
)

// Result is the validator's full verdict for one canonical root.
type Result struct {
	Outcome     Outcome
	StaleReason StaleReason // only set when Outcome == OutcomeStaleLocal
	Marker      *types.CompletionMarker
}

// MarkerStore is the subset of vectorstore.Client the validator depends
// on, kept narrow so tests can substitute a fake.
type MarkerStore interface {
	ReadCompletionMarker(ctx context.Context, canonicalRoot string) (*types.CompletionMarker, error)
}

// Validator probes and validates completion markers.
type Validator struct {
	store MarkerStore
}

// NewValidator builds a Validator bound to a marker-reading store.
func NewValidator(store MarkerStore) *Validator {
	return &Validator{store: store}
}

// Validate fetches the completion marker for canonicalRoot and checks it
// against runtimeFingerprint, per spec section 4.2's four outcomes.
func (v *Validator) Validate(ctx context.Context, canonicalRoot string, runtimeFingerprint types.IndexFingerprint) Result {
	marker, err := v.store.ReadCompletionMarker(ctx, canonicalRoot)
	if err != nil {
		return Result{Outcome: OutcomeProbeFailed}
	}

	if marker == nil {
		return Result{Outcome: OutcomeStaleLocal, StaleReason: ReasonMissingMarkerDoc}
	}

	if marker.Kind != types.CompletionMarkerKind {
		return Result{Outcome: OutcomeStaleLocal, StaleReason: ReasonInvalidMarkerKind, Marker: marker}
	}

	if marker.CodebasePath != canonicalRoot {
		return Result{Outcome: OutcomeStaleLocal, StaleReason: ReasonPathMismatch, Marker: marker}
	}

	if marker.IndexedFiles < 0 || marker.TotalChunks < 0 {
		return Result{Outcome: OutcomeStaleLocal, StaleReason: ReasonInvalidPayload, Marker: marker}
	}
	if _, err := time.Parse(time.RFC3339, marker.CompletedAt); err != nil {
		return Result{Outcome: OutcomeStaleLocal, StaleReason: ReasonInvalidPayload, Marker: marker}
	}

	if !marker.Fingerprint.Equal(runtimeFingerprint) {
		return Result{Outcome: OutcomeFingerprintMismatch, Marker: marker}
	}

	return Result{Outcome: OutcomeValid, Marker: marker}
}
