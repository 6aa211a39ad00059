package completionproof

import (
	"context"
	"errors"
	"testing"

	"github.com/satorihq/satori-index/internal/types"
)

var runtimeFP = types.IndexFingerprint{
	EmbeddingProvider:   "Ollama",
	EmbeddingModel:      "nomic-embed-text",
	EmbeddingDimension:  768,
	VectorStoreProvider: "qdrant",
	SchemaVersion:       "hybrid_v3",
}

type fakeStore struct {
	marker *types.CompletionMarker
	err    error
}

func (f fakeStore) ReadCompletionMarker(ctx context.Context, canonicalRoot string) (*types.CompletionMarker, error) {
	return f.marker, f.err
}

func TestValidateValid(t *testing.T) {
	v := NewValidator(fakeStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo",
		Fingerprint:  runtimeFP,
		IndexedFiles: 10,
		TotalChunks:  100,
		CompletedAt:  "2026-07-30T00:00:00Z",
	}})

	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeValid {
		t.Fatalf("expected valid, got %v", got.Outcome)
	}
}

func TestValidateMissingMarker(t *testing.T) {
	v := NewValidator(fakeStore{marker: nil})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeStaleLocal || got.StaleReason != ReasonMissingMarkerDoc {
		t.Fatalf("expected stale_local/missing_marker_doc, got %v/%v", got.Outcome, got.StaleReason)
	}
}

func TestValidateInvalidKind(t *testing.T) {
	v := NewValidator(fakeStore{marker: &types.CompletionMarker{Kind: "something_else", CodebasePath: "/repo"}})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeStaleLocal || got.StaleReason != ReasonInvalidMarkerKind {
		t.Fatalf("expected stale_local/invalid_marker_kind, got %v/%v", got.Outcome, got.StaleReason)
	}
}

func TestValidatePathMismatch(t *testing.T) {
	v := NewValidator(fakeStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/other",
	}})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeStaleLocal || got.StaleReason != ReasonPathMismatch {
		t.Fatalf("expected stale_local/path_mismatch, got %v/%v", got.Outcome, got.StaleReason)
	}
}

func TestValidateInvalidPayload(t *testing.T) {
	v := NewValidator(fakeStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo",
		IndexedFiles: -1,
		CompletedAt:  "2026-07-30T00:00:00Z",
	}})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeStaleLocal || got.StaleReason != ReasonInvalidPayload {
		t.Fatalf("expected stale_local/invalid_payload, got %v/%v", got.Outcome, got.StaleReason)
	}

	v2 := NewValidator(fakeStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo",
		CompletedAt:  "not-a-date",
	}})
	got2 := v2.Validate(context.Background(), "/repo", runtimeFP)
	if got2.Outcome != OutcomeStaleLocal || got2.StaleReason != ReasonInvalidPayload {
		t.Fatalf("expected stale_local/invalid_payload for bad date, got %v/%v", got2.Outcome, got2.StaleReason)
	}
}

func TestValidateFingerprintMismatch(t *testing.T) {
	mismatched := runtimeFP
	mismatched.EmbeddingModel = "voyage-3"

	v := NewValidator(fakeStore{marker: &types.CompletionMarker{
		Kind:         types.CompletionMarkerKind,
		CodebasePath: "/repo",
		Fingerprint:  mismatched,
		CompletedAt:  "2026-07-30T00:00:00Z",
	}})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeFingerprintMismatch {
		t.Fatalf("expected fingerprint_mismatch, got %v", got.Outcome)
	}
}

func TestValidateProbeFailed(t *testing.T) {
	v := NewValidator(fakeStore{err: errors.New("transport error")})
	got := v.Validate(context.Background(), "/repo", runtimeFP)
	if got.Outcome != OutcomeProbeFailed {
		t.Fatalf("expected probe_failed, got %v", got.Outcome)
	}
}
