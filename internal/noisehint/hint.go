// Package noisehint computes the noise mitigation hint (spec section
// 4.7): when a large share of the top results classify into
// low-signal noise categories (generated code, tests, fixtures, docs), the
// response carries a hint nudging the caller toward a narrower query
// or an explicit path operator instead of silently drowning useful
// results in boilerplate.
package noisehint

import (
	"fmt"

	"github.com/satorihq/satori-index/internal/pathclass"
	"github.com/satorihq/satori-index/internal/pathglob"
	"github.com/satorihq/satori-index/internal/types"
)

// Hint is attached to a search response envelope when noise reaches or
// exceeds the configured threshold.
type Hint struct {
	Triggered       bool                             `json:"triggered"`
	Ratio           float64                           `json:"ratio,omitempty"`
	DominantCategory types.NoiseCategory             `json:"dominantCategory,omitempty"`
	Message         string                           `json:"message,omitempty"`
	CategoryCounts  map[types.NoiseCategory]int       `json:"categoryCounts,omitempty"`
}

// Options configures noise evaluation.
type Options struct {
	TopK            int
	Threshold       float64
	ExtraPatterns   []pathglob.Pattern
}

// Evaluate inspects the first opts.TopK groups' files and computes the
// noise ratio, returning a triggered Hint when it reaches or exceeds
// opts.Threshold. Files matching opts.ExtraPatterns (from
// search.noiseHintPatterns config) are always counted as generated
// noise regardless of what pathclass.ClassifyNoise would say, since
// those patterns encode operator-specific exclusions the structural
// classifier cannot know about.
func Evaluate(groups []types.SearchGroup, opts Options) Hint {
	topK := opts.TopK
	if topK <= 0 || topK > len(groups) {
		topK = len(groups)
	}
	sample := groups[:topK]
	if len(sample) == 0 {
		return Hint{}
	}

	counts := map[types.NoiseCategory]int{}
	noisy := 0
	for _, g := range sample {
		cat := classify(g.File, opts.ExtraPatterns)
		counts[cat]++
		if cat != types.NoiseRuntime {
			noisy++
		}
	}

	ratio := float64(noisy) / float64(len(sample))
	if ratio < opts.Threshold {
		return Hint{Ratio: ratio, CategoryCounts: counts}
	}

	dominant := dominantCategory(counts)
	return Hint{
		Triggered:        true,
		Ratio:            ratio,
		DominantCategory: dominant,
		CategoryCounts:   counts,
		Message: fmt.Sprintf(
			"%.0f%% of the top results are %s; consider a path: operator or a narrower query to focus on runtime code",
			ratio*100, dominant,
		),
	}
}

func classify(relativePath string, extra []pathglob.Pattern) types.NoiseCategory {
	if pathglob.MatchAny(extra, relativePath) {
		return types.NoiseGenerated
	}
	return pathclass.ClassifyNoise(relativePath)
}

func dominantCategory(counts map[types.NoiseCategory]int) types.NoiseCategory {
	order := []types.NoiseCategory{
		types.NoiseGenerated, types.NoiseTests, types.NoiseFixtures, types.NoiseDocs, types.NoiseRuntime,
	}
	best := types.NoiseRuntime
	bestCount := -1
	for _, c := range order {
		if c == types.NoiseRuntime {
			continue
		}
		if counts[c] > bestCount {
			bestCount = counts[c]
			best = c
		}
	}
	if bestCount <= 0 {
		return types.NoiseRuntime
	}
	return best
}
