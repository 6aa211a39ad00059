// Package grouping implements grouping, diversity capping, and
// deterministic ordering over a filtered, scored candidate set (spec
// section 4.6): group-by-symbol or group-by-file, a two-pass diversity
// cap (per-file, per-symbol, then a relaxed file cap), and the
// score/file/line/symbolLabel/symbolId/language tie-break chain.
package grouping

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/satorihq/satori-index/internal/types"
)

// GroupBy selects the grouping key.
type GroupBy string

const (
	GroupBySymbol GroupBy = "symbol"
	GroupByFile   GroupBy = "file"
)

// Options configures one grouping pass.
type Options struct {
	GroupBy                 GroupBy
	Limit                   int
	ProximityWindow         int
	MaxPerFile              int
	MaxPerSymbol            int
	RelaxedFileCap          int
	StalenessFreshMS        int64
	StalenessAgingMS        int64
	Now                     time.Time
}

// Group builds groups from candidates and applies the two-pass
// diversity cap, returning them in deterministic score order. When
// opts.Limit<=0 no diversity cap or truncation is applied (raw mode is
// handled by the caller before reaching this package).
func Group(candidates []types.SearchCandidate, opts Options) []types.SearchGroup {
	buckets := bucket(candidates, opts)

	groups := make([]types.SearchGroup, 0, len(buckets))
	for _, b := range buckets {
		groups = append(groups, b.toGroup(opts))
	}

	sort.SliceStable(groups, func(i, j int) bool { return groupLess(groups[i], groups[j]) })

	return applyDiversity(groups, opts)
}

type bucketKey struct {
	file     string
	symbolID string
	window   int
}

type groupBucket struct {
	key     bucketKey
	members []types.SearchCandidate
}

func bucket(candidates []types.SearchCandidate, opts Options) []*groupBucket {
	order := make([]bucketKey, 0)
	byKey := map[bucketKey]*groupBucket{}

	for _, c := range candidates {
		var key bucketKey
		if opts.GroupBy == GroupByFile {
			key = bucketKey{file: c.Result.RelativePath}
		} else if c.Result.SymbolID != "" {
			key = bucketKey{file: c.Result.RelativePath, symbolID: c.Result.SymbolID}
		} else {
			window := (c.Result.StartLine - 1) / maxInt(opts.ProximityWindow, 1)
			key = bucketKey{file: c.Result.RelativePath, window: window}
		}

		b, ok := byKey[key]
		if !ok {
			b = &groupBucket{key: key}
			byKey[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, c)
	}

	out := make([]*groupBucket, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// toGroup reduces a bucket's members into one SearchGroup: best chunk
// score after must-satisfied candidates sort first, min/max span, max
// indexedAt, and the computed staleness bucket.
func (b *groupBucket) toGroup(opts Options) types.SearchGroup {
	members := append([]types.SearchCandidate(nil), b.members...)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].PassesMatchedMust != members[j].PassesMatchedMust {
			return members[i].PassesMatchedMust
		}
		return members[i].FinalScore > members[j].FinalScore
	})

	best := members[0]
	minLine, maxLine := best.Result.StartLine, best.Result.EndLine
	var maxIndexed time.Time
	for _, m := range members {
		if m.Result.StartLine < minLine {
			minLine = m.Result.StartLine
		}
		if m.Result.EndLine > maxLine {
			maxLine = m.Result.EndLine
		}
		if m.Result.IndexedAt.After(maxIndexed) {
			maxIndexed = m.Result.IndexedAt
		}
	}

	groupID := best.Result.SymbolID
	if groupID == "" {
		groupID = fallbackGroupID(best.Result.RelativePath, minLine, maxLine)
	}

	var indexedAt *time.Time
	if !maxIndexed.IsZero() {
		t := maxIndexed
		indexedAt = &t
	}

	return types.SearchGroup{
		GroupID:             groupID,
		File:                best.Result.RelativePath,
		Span:                types.Span{StartLine: minLine, EndLine: maxLine},
		Language:            best.Result.Language,
		SymbolID:            best.Result.SymbolID,
		SymbolLabel:         best.Result.SymbolLabel,
		Score:               best.FinalScore,
		IndexedAt:           indexedAt,
		StalenessBucket:     staleness(maxIndexed, opts),
		CollapsedChunkCount: len(members),
		Preview:             best.Result.Content,
	}
}

func fallbackGroupID(path string, start, end int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d-%d", path, start, end)))
	return "grp_" + hex.EncodeToString(sum[:])[:16]
}

func staleness(indexedAt time.Time, opts Options) types.StalenessBucket {
	if indexedAt.IsZero() {
		return types.StalenessUnknown
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	age := now.Sub(indexedAt)
	if age <= time.Duration(opts.StalenessFreshMS)*time.Millisecond {
		return types.StalenessFresh
	}
	if age <= time.Duration(opts.StalenessAgingMS)*time.Millisecond {
		return types.StalenessAging
	}
	return types.StalenessStale
}

// applyDiversity runs the two-pass diversity cap (spec section 4.6):
// pass 1 with MaxPerFile/MaxPerSymbol; if fewer than min(limit,total)
// groups were selected, pass 2 relaxes the file cap.
func applyDiversity(groups []types.SearchGroup, opts Options) []types.SearchGroup {
	if opts.Limit <= 0 {
		return groups
	}

	target := minInt(opts.Limit, len(groups))

	selected := selectWithCap(groups, opts.MaxPerFile, opts.MaxPerSymbol, target)
	if len(selected) >= target {
		return selected
	}

	relaxed := selectWithCap(groups, opts.RelaxedFileCap, opts.MaxPerSymbol, target)
	return relaxed
}

func selectWithCap(groups []types.SearchGroup, maxPerFile, maxPerSymbol, target int) []types.SearchGroup {
	perFile := map[string]int{}
	perSymbol := map[string]int{}

	var out []types.SearchGroup
	for _, g := range groups {
		if len(out) >= target {
			break
		}
		if maxPerFile > 0 && perFile[g.File] >= maxPerFile {
			continue
		}
		if g.SymbolID != "" && maxPerSymbol > 0 && perSymbol[g.SymbolID] >= maxPerSymbol {
			continue
		}
		out = append(out, g)
		perFile[g.File]++
		if g.SymbolID != "" {
			perSymbol[g.SymbolID]++
		}
	}
	return out
}

// groupLess implements the deterministic tie-break chain: score desc,
// file lex asc, startLine asc, symbolLabel lex asc, symbolId lex asc,
// with language asc as the trailing key (spec section 9 open question).
func groupLess(a, b types.SearchGroup) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Span.StartLine != b.Span.StartLine {
		return a.Span.StartLine < b.Span.StartLine
	}
	if a.SymbolLabel != b.SymbolLabel {
		return a.SymbolLabel < b.SymbolLabel
	}
	if a.SymbolID != b.SymbolID {
		return a.SymbolID < b.SymbolID
	}
	return a.Language < b.Language
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
