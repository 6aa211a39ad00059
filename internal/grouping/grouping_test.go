package grouping

import (
	"testing"
	"time"

	"github.com/satorihq/satori-index/internal/types"
)

func candidate(path string, start, end int, symbolID string, score float64) types.SearchCandidate {
	return types.SearchCandidate{
		Result: types.ChunkResult{
			RelativePath: path,
			StartLine:    start,
			EndLine:      end,
			Language:     "go",
			SymbolID:     symbolID,
			SymbolLabel:  symbolID,
		},
		FinalScore: score,
	}
}

func TestGroupBySymbolCollapsesChunksSharingSymbolID(t *testing.T) {
	candidates := []types.SearchCandidate{
		candidate("internal/worker.go", 10, 20, "sym1", 0.9),
		candidate("internal/worker.go", 10, 20, "sym1", 0.7),
	}

	groups := Group(candidates, Options{GroupBy: GroupBySymbol, ProximityWindow: 20})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].CollapsedChunkCount != 2 {
		t.Errorf("expected collapsed count 2, got %d", groups[0].CollapsedChunkCount)
	}
	if groups[0].Score != 0.9 {
		t.Errorf("expected best score 0.9, got %v", groups[0].Score)
	}
}

func TestGroupFallbackIDWhenNoSymbol(t *testing.T) {
	candidates := []types.SearchCandidate{candidate("internal/worker.go", 10, 20, "", 0.9)}
	groups := Group(candidates, Options{GroupBy: GroupBySymbol, ProximityWindow: 20})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].GroupID == "" || groups[0].GroupID[:4] != "grp_" {
		t.Errorf("expected fallback group id prefix grp_, got %q", groups[0].GroupID)
	}
}

func TestApplyDiversityCapsPerFileThenRelaxes(t *testing.T) {
	var candidates []types.SearchCandidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidate("internal/a.go", i*10+1, i*10+5, "", float64(5-i)))
	}

	groups := Group(candidates, Options{
		GroupBy:         GroupBySymbol,
		ProximityWindow: 1,
		Limit:           4,
		MaxPerFile:      2,
		RelaxedFileCap:  10,
	})

	if len(groups) != 4 {
		t.Fatalf("expected relaxed pass to fill to 4 groups, got %d", len(groups))
	}
}

func TestStalenessBucketing(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	fresh := candidate("a.go", 1, 5, "", 1.0)
	fresh.Result.IndexedAt = now.Add(-1 * time.Minute)

	groups := Group([]types.SearchCandidate{fresh}, Options{
		GroupBy:          GroupBySymbol,
		ProximityWindow:  1,
		StalenessFreshMS: int64(5 * time.Minute / time.Millisecond),
		StalenessAgingMS: int64(time.Hour / time.Millisecond),
		Now:              now,
	})

	if groups[0].StalenessBucket != types.StalenessFresh {
		t.Errorf("expected fresh bucket, got %v", groups[0].StalenessBucket)
	}
}

func TestGroupOrderingIsDeterministic(t *testing.T) {
	a := candidate("b.go", 1, 5, "", 1.0)
	b := candidate("a.go", 1, 5, "", 1.0)

	groups := Group([]types.SearchCandidate{a, b}, Options{GroupBy: GroupBySymbol, ProximityWindow: 1})
	if groups[0].File != "a.go" {
		t.Errorf("expected a.go first on tie-break by file, got %s", groups[0].File)
	}
}
