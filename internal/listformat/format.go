// Package listformat renders the list_codebases tool's markdown body
// (spec section 8 S3): every tracked codebase bucketed by status into a
// fixed heading order, paths sorted lexicographically within a bucket.
package listformat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satorihq/satori-index/internal/types"
)

// Bucket is one of the four fixed list_codebases sections, in the exact
// order they must render.
type Bucket string

const (
	BucketReady           Bucket = "Ready"
	BucketIndexing        Bucket = "Indexing"
	BucketRequiresReindex Bucket = "Requires Reindex"
	BucketFailed          Bucket = "Failed"
)

var bucketOrder = []Bucket{BucketReady, BucketIndexing, BucketRequiresReindex, BucketFailed}

// Line is one rendered row within a bucket.
type Line struct {
	Path   string
	Detail string
}

func bucketFor(status types.CodebaseStatus) (Bucket, bool) {
	switch status {
	case types.StatusIndexed, types.StatusSyncCompleted:
		return BucketReady, true
	case types.StatusIndexing:
		return BucketIndexing, true
	case types.StatusRequiresReindex:
		return BucketRequiresReindex, true
	case types.StatusIndexFailed:
		return BucketFailed, true
	default:
		return "", false
	}
}

func detailFor(entry *types.CodebaseEntry) string {
	switch entry.Status {
	case types.StatusIndexing:
		return fmt.Sprintf("(%.1f%%)", entry.IndexingPercentage)
	case types.StatusRequiresReindex:
		if entry.ReindexReason == "completion_proof_fingerprint_mismatch" {
			return "completion_proof_fingerprint_mismatch"
		}
		if entry.ReindexMessage != "" {
			return entry.ReindexMessage
		}
		return entry.ReindexReason
	case types.StatusIndexFailed:
		return entry.ErrorMessage
	default:
		return ""
	}
}

// Render produces the markdown body for list_codebases: one heading per
// non-empty bucket in fixed order, entries sorted lexicographically by
// path within each bucket.
func Render(entries []*types.CodebaseEntry) string {
	grouped := map[Bucket][]Line{}
	for _, e := range entries {
		bucket, ok := bucketFor(e.Status)
		if !ok {
			continue
		}
		grouped[bucket] = append(grouped[bucket], Line{Path: e.RepoPath, Detail: detailFor(e)})
	}

	for _, lines := range grouped {
		sort.Slice(lines, func(i, j int) bool { return lines[i].Path < lines[j].Path })
	}

	var b strings.Builder
	wrote := false
	for _, bucket := range bucketOrder {
		lines, ok := grouped[bucket]
		if !ok || len(lines) == 0 {
			continue
		}
		if wrote {
			b.WriteString("\n")
		}
		b.WriteString("### ")
		b.WriteString(string(bucket))
		b.WriteString("\n")
		for _, l := range lines {
			if l.Detail != "" {
				fmt.Fprintf(&b, "- %s %s\n", l.Path, l.Detail)
			} else {
				fmt.Fprintf(&b, "- %s\n", l.Path)
			}
		}
		wrote = true
	}

	if !wrote {
		return "No codebases tracked."
	}
	return strings.TrimRight(b.String(), "\n")
}
