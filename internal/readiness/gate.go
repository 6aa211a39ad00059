// Package readiness implements the Readiness Gate (spec section 4.1):
// the single entry point guarding every read and every lifecycle
// mutation. It resolves an effective root among tracked codebases,
// checks for blocked ancestors, verifies fingerprint compatibility,
// validates the cloud completion proof for reads, and applies
// operation-specific rules for in-flight or failed codebases.
package readiness

import (
	"context"
	"strings"
	"time"

	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/types"
)

// Operation is the kind of request the gate is asked to admit.
type Operation string

const (
	OpSearch      Operation = "search"
	OpFileOutline Operation = "file_outline"
	OpCallGraph   Operation = "call_graph"
	OpStatus      Operation = "status"
	OpSync        Operation = "sync"
	OpClear       Operation = "clear"
	OpCreate      Operation = "create"
	OpReindex     Operation = "reindex"
)

func (o Operation) isRead() bool {
	return o == OpSearch || o == OpFileOutline || o == OpCallGraph
}

func (o Operation) isLifecycleWrite() bool {
	return o == OpSync || o == OpClear || o == OpCreate || o == OpReindex
}

// Status is the gate's verdict, independent of which tool issued the
// request.
type Status string

const (
	StatusOK              Status = "ok"
	StatusNotReady        Status = "not_ready"
	StatusNotIndexed      Status = "not_indexed"
	StatusRequiresReindex Status = "requires_reindex"
	StatusBlocked         Status = "blocked"
)

// DebugProofCheck is attached to the envelope when a completion-proof
// probe transport-failed; the local status is kept as-is.
type DebugProofCheck struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// Compatibility is carried on every gate decision (spec section 4.1's
// closing paragraph): the runtime fingerprint, the indexed fingerprint
// if known, its source, any reindex reason, and the status observed.
type Compatibility struct {
	RuntimeFingerprint types.IndexFingerprint
	IndexedFingerprint *types.IndexFingerprint
	FingerprintSource  types.FingerprintSource
	ReindexReason      string
	StatusAtCheck      types.CodebaseStatus
}

// Hints surfaces the create/reindex/staleLocal action hints spec
// section 4.2/4.1 attach to blocked and degraded envelopes.
type Hints struct {
	CreateArgsPath    string
	ReindexArgsPath   string
	StaleLocalReason  completionproof.StaleReason
}

// Decision is the gate's complete verdict for one request.
type Decision struct {
	EffectiveRoot string
	Entry         *types.CodebaseEntry
	Status        Status
	Reason        string
	RetryAfterMS  int64
	Compatibility Compatibility
	DebugProofCheck *DebugProofCheck
	Hints         Hints
}

// Proceed reports whether the caller should continue past the gate
// into the operation's own handler.
func (d Decision) Proceed() bool { return d.Status == StatusOK }

// SnapshotStore is the subset of snapshot.Store the gate depends on.
type SnapshotStore interface {
	Get(canonicalRoot string) *types.CodebaseEntry
	All() []*types.CodebaseEntry
	Mutate(canonicalRoot string, fn func(current *types.CodebaseEntry) (*types.CodebaseEntry, error)) (*types.CodebaseEntry, error)
}

// Gate is the readiness gate.
type Gate struct {
	store              SnapshotStore
	validator          *completionproof.Validator
	runtimeFingerprint types.IndexFingerprint
	watcherDebounceMS  int64
}

// NewGate builds a Gate bound to a snapshot store and completion-proof
// validator, stamped with the runtime fingerprint it enforces.
func NewGate(store SnapshotStore, validator *completionproof.Validator, runtimeFingerprint types.IndexFingerprint, watcherDebounceMS int64) *Gate {
	return &Gate{
		store:              store,
		validator:          validator,
		runtimeFingerprint: runtimeFingerprint,
		watcherDebounceMS:  watcherDebounceMS,
	}
}

// acceptableStatuses returns the set of CodebaseEntry statuses an
// ancestor may carry and still be considered the effective root for op.
func acceptableStatuses(op Operation) map[types.CodebaseStatus]bool {
	all := map[types.CodebaseStatus]bool{
		types.StatusIndexed:         true,
		types.StatusIndexing:        true,
		types.StatusIndexFailed:     true,
		types.StatusSyncCompleted:   true,
		types.StatusRequiresReindex: true,
		types.StatusNotFound:        true,
	}
	if op == OpCreate || op == OpStatus {
		return all
	}
	delete(all, types.StatusNotFound)
	return all
}

// isAncestorOrSelf reports whether root is requestPath itself or a
// directory ancestor of it, comparing forward-slash-normalized paths.
func isAncestorOrSelf(root, requestPath string) bool {
	root = strings.TrimRight(root, "/")
	requestPath = strings.TrimRight(requestPath, "/")
	if root == requestPath {
		return true
	}
	return strings.HasPrefix(requestPath, root+"/")
}

// resolveEffectiveRoot picks the longest tracked ancestor acceptable
// for op, breaking ties by lexical order (spec section 4.1).
func (g *Gate) resolveEffectiveRoot(requestPath string, op Operation) *types.CodebaseEntry {
	accepted := acceptableStatuses(op)

	var best *types.CodebaseEntry
	for _, entry := range g.store.All() {
		if !isAncestorOrSelf(entry.RepoPath, requestPath) {
			continue
		}
		if !accepted[entry.Status] {
			continue
		}
		if best == nil ||
			len(entry.RepoPath) > len(best.RepoPath) ||
			(len(entry.RepoPath) == len(best.RepoPath) && entry.RepoPath < best.RepoPath) {
			best = entry
		}
	}
	return best
}

// Admit runs the full gate pipeline for requestPath and op, returning
// the decision the caller must honor before touching the operation's
// own handler.
func (g *Gate) Admit(ctx context.Context, requestPath string, op Operation) Decision {
	entry := g.resolveEffectiveRoot(requestPath, op)

	if entry == nil {
		if op == OpCreate {
			return Decision{EffectiveRoot: requestPath, Status: StatusOK}
		}
		return Decision{
			EffectiveRoot: requestPath,
			Status:        StatusNotIndexed,
			Reason:        "not_indexed",
			Hints:         Hints{CreateArgsPath: requestPath},
		}
	}

	// A requires_reindex ancestor outranks a deeper effective root for
	// the blocked-root check below.
	if op != OpStatus && entry.Status != types.StatusRequiresReindex {
		for _, ancestor := range g.store.All() {
			if ancestor.Status == types.StatusRequiresReindex && isAncestorOrSelf(ancestor.RepoPath, requestPath) {
				entry = ancestor
				break
			}
		}
	}

	compat := Compatibility{
		RuntimeFingerprint: g.runtimeFingerprint,
		IndexedFingerprint: entry.IndexFingerprint,
		FingerprintSource:  entry.FingerprintSource,
		ReindexReason:      entry.ReindexReason,
		StatusAtCheck:      entry.Status,
	}

	// (a) blocked-root check: any ancestor already requires_reindex
	// forces requires_reindex regardless of operation, except status.
	if entry.Status == types.StatusRequiresReindex && op != OpStatus {
		return Decision{
			EffectiveRoot: entry.RepoPath,
			Entry:         entry,
			Status:        StatusRequiresReindex,
			Reason:        "requires_reindex",
			Compatibility: compat,
			Hints:         Hints{ReindexArgsPath: entry.RepoPath},
		}
	}

	// (b) fingerprint-compatibility check.
	if entry.IndexFingerprint != nil && !entry.IndexFingerprint.Equal(g.runtimeFingerprint) {
		updated, err := g.store.Mutate(entry.RepoPath, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
			c := current.Clone()
			c.Status = types.StatusRequiresReindex
			c.ReindexReason = "fingerprint_mismatch"
			return c, nil
		})
		if err == nil {
			entry = updated
		}
		compat.StatusAtCheck = types.StatusRequiresReindex
		compat.ReindexReason = "fingerprint_mismatch"
		return Decision{
			EffectiveRoot: entry.RepoPath,
			Entry:         entry,
			Status:        StatusRequiresReindex,
			Reason:        "requires_reindex",
			Compatibility: compat,
			Hints:         Hints{ReindexArgsPath: entry.RepoPath},
		}
	}

	// (c) completion-proof validation for read operations on entries
	// claiming readiness.
	if op.isRead() && (entry.Status == types.StatusIndexed || entry.Status == types.StatusSyncCompleted) {
		result := g.validator.Validate(ctx, entry.RepoPath, g.runtimeFingerprint)
		switch result.Outcome {
		case completionproof.OutcomeStaleLocal:
			return Decision{
				EffectiveRoot: entry.RepoPath,
				Entry:         entry,
				Status:        StatusNotIndexed,
				Reason:        "not_indexed",
				Compatibility: compat,
				Hints: Hints{
					CreateArgsPath:   entry.RepoPath,
					StaleLocalReason: result.StaleReason,
				},
			}
		case completionproof.OutcomeFingerprintMismatch:
			updated, err := g.store.Mutate(entry.RepoPath, func(current *types.CodebaseEntry) (*types.CodebaseEntry, error) {
				c := current.Clone()
				c.Status = types.StatusRequiresReindex
				c.ReindexReason = "completion_proof_fingerprint_mismatch"
				return c, nil
			})
			if err == nil {
				entry = updated
			}
			compat.ReindexReason = "completion_proof_fingerprint_mismatch"
			return Decision{
				EffectiveRoot: entry.RepoPath,
				Entry:         entry,
				Status:        StatusRequiresReindex,
				Reason:        "requires_reindex",
				Compatibility: compat,
				Hints:         Hints{ReindexArgsPath: entry.RepoPath},
			}
		case completionproof.OutcomeProbeFailed:
			compat.StatusAtCheck = entry.Status
			decision := Decision{
				EffectiveRoot: entry.RepoPath,
				Entry:         entry,
				Status:        StatusOK,
				Compatibility: compat,
				DebugProofCheck: &DebugProofCheck{OK: false, Reason: "probe_failed"},
			}
			return decision
		}
		// OutcomeValid falls through to operation-specific rules.
	}

	// (d) operation-specific rules.
	if entry.Status == types.StatusIndexing {
		if op.isLifecycleWrite() {
			return Decision{
				EffectiveRoot: entry.RepoPath,
				Entry:         entry,
				Status:        StatusBlocked,
				Reason:        "indexing",
				RetryAfterMS:  g.watcherDebounceMS,
				Compatibility: compat,
			}
		}
		if op.isRead() {
			return Decision{
				EffectiveRoot: entry.RepoPath,
				Entry:         entry,
				Status:        StatusNotReady,
				Reason:        "not_ready",
				Compatibility: compat,
			}
		}
	}

	if (entry.Status == types.StatusIndexFailed || entry.Status == types.StatusNotFound) && op != OpCreate {
		return Decision{
			EffectiveRoot: entry.RepoPath,
			Entry:         entry,
			Status:        StatusNotIndexed,
			Reason:        "not_indexed",
			Compatibility: compat,
			Hints:         Hints{CreateArgsPath: entry.RepoPath},
		}
	}

	return Decision{
		EffectiveRoot: entry.RepoPath,
		Entry:         entry,
		Status:        StatusOK,
		Compatibility: compat,
	}
}

// StaleIndexingGrace reports whether an "indexing" entry has exceeded
// the stale-indexing recovery grace window (spec section 4.8), the
// trigger the lifecycle package uses to probe for an orphaned run.
func StaleIndexingGrace(entry *types.CodebaseEntry, graceMS int64, now time.Time) bool {
	if entry.Status != types.StatusIndexing {
		return false
	}
	return now.Sub(entry.LastUpdated) > time.Duration(graceMS)*time.Millisecond
}
