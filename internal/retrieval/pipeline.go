// Package retrieval implements the multi-pass hybrid retrieval pipeline
// (spec section 4.5): two concurrent semantic passes fused by
// reciprocal-rank fusion, scope/lang/path/must/exclude filtering, a
// must-retry loop, the changed-files boost, and optional reranker
// fusion. The two-goroutine-plus-select fan-out is grounded on
// dshills-gocontext-mcp's searcher.hybridSearch/runVectorSearch/
// runTextSearch (other_examples); RRF fusion is grounded on the same
// source's applyRRF and on kadirpekel-hector's
// pkg/databases/qdrant.go reciprocalRankFusion.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/satorihq/satori-index/internal/changedfiles"
	"github.com/satorihq/satori-index/internal/pathclass"
	"github.com/satorihq/satori-index/internal/pathglob"
	"github.com/satorihq/satori-index/internal/queryops"
	"github.com/satorihq/satori-index/internal/reranker"
	"github.com/satorihq/satori-index/internal/tokenbudget"
	"github.com/satorihq/satori-index/internal/types"
	"github.com/satorihq/satori-index/pkg/config"
)

// Scope controls which path categories survive scope-inclusion
// filtering (spec section 4.5).
type Scope string

const (
	ScopeRuntime Scope = "runtime"
	ScopeMixed   Scope = "mixed"
	ScopeDocs    Scope = "docs"
)

// RankingMode selects whether the changed-files boost is applied.
type RankingMode string

const (
	RankingDefault         RankingMode = "default"
	RankingAutoChangedFirst RankingMode = "auto_changed_first"
)

// EmbeddingEngine is the "Embedding engine" collaborator (spec section 6).
type EmbeddingEngine interface {
	SemanticSearch(ctx context.Context, canonicalRoot, query string, limit int, floor float64) ([]types.ChunkResult, error)
}

// Reranker is the reranker collaborator, narrowed to what the pipeline needs.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []reranker.Document, opts reranker.Options) ([]reranker.RankedDocument, error)
}

// Request is one search_codebase invocation already past the
// readiness gate.
type Request struct {
	CanonicalRoot string
	Query         string
	Scope         Scope
	RankingMode   RankingMode
	Limit         int
	RerankerEnabled bool
}

// PassOutcome records one semantic pass's fate for the debug summary
// and the SEARCH_PASS_FAILED warning.
type PassOutcome struct {
	PassID  string
	Results []types.ChunkResult
	Err     error
}

// Response is the pipeline's output: surviving, scored candidates plus
// warnings and the parsed operator set (the caller groups and
// envelopes it).
type Response struct {
	Candidates  []types.SearchCandidate
	Warnings    []string
	Parsed      queryops.Parsed
	RemovedByReason map[string]int
}

// Pipeline runs the retrieval pipeline.
type Pipeline struct {
	cfg        *config.SearchConfig
	rerankCfg  *config.RerankerConfig
	engine     EmbeddingEngine
	rerank     Reranker
	changed    *changedfiles.Cache
	tokens     *tokenbudget.Counter
}

// NewPipeline builds a Pipeline bound to its collaborators. Token-aware
// reranker document truncation is best-effort: if the tokenizer can't be
// loaded, the pipeline falls back to formatRerankDoc's line/char caps.
func NewPipeline(cfg *config.SearchConfig, rerankCfg *config.RerankerConfig, engine EmbeddingEngine, rerank Reranker, changed *changedfiles.Cache) *Pipeline {
	tokens, _ := tokenbudget.NewCounter()
	return &Pipeline{cfg: cfg, rerankCfg: rerankCfg, engine: engine, rerank: rerank, changed: changed, tokens: tokens}
}

// Run executes the full pipeline for req, including the must-retry loop.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	parsed := queryops.Parse(req.Query, p.cfg.OperatorPrefixMaxChars)

	limit := req.Limit
	if limit <= 0 {
		limit = p.cfg.DefaultLimit
	}

	candidateLimit := clamp(maxInt(limit*8, 32), 1, p.cfg.MaxCandidates)
	hasMust := len(parsed.Must) > 0

	var (
		candidates []types.SearchCandidate
		warnings   []string
		removed    map[string]int
	)

	rounds := 1 + p.cfg.MustRetryRounds
	for attempt := 0; attempt < rounds; attempt++ {
		outcomes, err := p.runPasses(ctx, req.CanonicalRoot, parsed.SemanticQuery, candidateLimit)
		if err != nil {
			return Response{}, err
		}

		for _, o := range outcomes {
			if o.Err != nil {
				warnings = append(warnings, fmt.Sprintf("SEARCH_PASS_FAILED:%s", o.PassID))
			}
		}

		fused := fuse(outcomes, p.cfg.RRFK, p.cfg.PassWeightPrimary, p.cfg.PassWeightExpanded)
		candidates, removed = p.filter(fused, parsed, req.Scope)

		if !hasMust || len(candidates) >= limit || candidateLimit >= p.cfg.MaxCandidates {
			if hasMust && len(candidates) < limit && candidateLimit >= p.cfg.MaxCandidates {
				warnings = append(warnings, "FILTER_MUST_UNSATISFIED")
			}
			break
		}

		grown := maxInt(candidateLimit+1, int(math.Ceil(float64(candidateLimit)*p.cfg.MustRetryMultiplier)))
		candidateLimit = clamp(grown, 1, p.cfg.MaxCandidates)
	}

	changedSet := map[string]bool{}
	if req.RankingMode == RankingAutoChangedFirst {
		result := p.changed.Get(ctx, req.CanonicalRoot)
		if result.Available && len(result.Files) > 0 && len(result.Files) <= p.cfg.ChangedFirstMaxChangedFiles {
			for _, f := range result.Files {
				changedSet[f] = true
			}
		}
	}

	for i := range candidates {
		c := &candidates[i]
		c.PathCategory = pathclass.Classify(c.Result.RelativePath)
		c.PathMultiplier = scopeMultiplier(p.cfg, req.Scope, c.PathCategory)
		c.ChangedFilesMultiplier = 1.0
		if changedSet[c.Result.RelativePath] {
			c.ChangedFilesMultiplier = p.cfg.ChangedFirstMultiplier
		}
		c.FinalScore = c.FusionScore * c.PathMultiplier * c.ChangedFilesMultiplier
	}

	if req.RerankerEnabled && req.Scope != ScopeDocs && p.rerank != nil {
		candidates, warnings = p.applyReranker(ctx, parsed.SemanticQuery, candidates, warnings)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidateLess(candidates[i], candidates[j])
	})

	return Response{Candidates: candidates, Warnings: warnings, Parsed: parsed, RemovedByReason: removed}, nil
}

// runPasses runs the primary and expanded semantic passes concurrently,
// awaiting both regardless of which completes first. One pass may fail
// without failing the request; both failing is a transport error.
func (p *Pipeline) runPasses(ctx context.Context, canonicalRoot, semanticQuery string, candidateLimit int) ([]PassOutcome, error) {
	type passJob struct {
		id    string
		query string
	}
	jobs := []passJob{
		{id: "primary", query: semanticQuery},
		{id: "expanded", query: strings.TrimSpace(semanticQuery + " " + p.cfg.EnrichmentPhrase)},
	}

	resultChan := make(chan PassOutcome, len(jobs))
	for _, job := range jobs {
		go func(job passJob) {
			results, err := p.engine.SemanticSearch(ctx, canonicalRoot, job.query, candidateLimit, p.cfg.SimilarityFloor)
			outcome := PassOutcome{PassID: job.id, Results: results, Err: err}
			select {
			case resultChan <- outcome:
			case <-ctx.Done():
			}
		}(job)
	}

	outcomes := make([]PassOutcome, 0, len(jobs))
	for i := 0; i < len(jobs); i++ {
		select {
		case o := <-resultChan:
			outcomes = append(outcomes, o)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed == len(outcomes) {
		return nil, fmt.Errorf("both semantic passes failed")
	}

	return outcomes, nil
}

// fuse applies reciprocal-rank fusion keyed by (relativePath, startLine,
// endLine, language): each pass contributes passWeight / (k + rank);
// base score is the max native similarity seen across passes.
func fuse(outcomes []PassOutcome, k int, weightPrimary, weightExpanded float64) []types.SearchCandidate {
	byKey := map[types.CandidateKey]*types.SearchCandidate{}

	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		weight := weightExpanded
		if o.PassID == "primary" {
			weight = weightPrimary
		}

		ranked := append([]types.ChunkResult(nil), o.Results...)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Similarity > ranked[j].Similarity })

		for rank, result := range ranked {
			key := result.CandidateKey()
			contribution := weight / float64(k+rank+1)

			existing, ok := byKey[key]
			if !ok {
				byKey[key] = &types.SearchCandidate{
					Result:      result,
					BaseScore:   result.Similarity,
					FusionScore: contribution,
				}
				continue
			}
			existing.FusionScore += contribution
			if result.Similarity > existing.BaseScore {
				existing.BaseScore = result.Similarity
			}
		}
	}

	candidates := make([]types.SearchCandidate, 0, len(byKey))
	for _, c := range byKey {
		candidates = append(candidates, *c)
	}
	return candidates
}

// filter applies, in order: scope inclusion, lang allow-list, path
// include, -path exclude, must AND, exclude ANY. Each removal is
// counted by reason for the debug summary.
func (p *Pipeline) filter(candidates []types.SearchCandidate, parsed queryops.Parsed, scope Scope) ([]types.SearchCandidate, map[string]int) {
	removed := map[string]int{}
	pathInclude := pathglob.CompileAll(parsed.Path)
	pathExclude := pathglob.CompileAll(parsed.ExcludePath)

	out := make([]types.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		category := pathclass.Classify(c.Result.RelativePath)

		if !scopeAllows(scope, category) {
			removed["scope"]++
			continue
		}

		if len(parsed.Lang) > 0 && !containsFold(parsed.Lang, c.Result.Language) {
			removed["lang"]++
			continue
		}

		if len(pathInclude) > 0 && !pathglob.MatchAny(pathInclude, c.Result.RelativePath) {
			removed["path"]++
			continue
		}

		if len(pathExclude) > 0 && pathglob.MatchAny(pathExclude, c.Result.RelativePath) {
			removed["-path"]++
			continue
		}

		if len(parsed.Must) > 0 && !matchesAllMust(c, parsed.Must) {
			removed["must"]++
			continue
		}
		if len(parsed.Must) > 0 {
			c.PassesMatchedMust = true
		}

		if len(parsed.Exclude) > 0 && matchesAnyExclude(c, parsed.Exclude) {
			removed["exclude"]++
			continue
		}

		out = append(out, c)
	}

	return out, removed
}

func scopeAllows(scope Scope, category types.PathCategory) bool {
	switch scope {
	case ScopeRuntime:
		return category != types.CategoryDocs && category != types.CategoryTests
	case ScopeDocs:
		return category == types.CategoryDocs || category == types.CategoryTests
	default: // mixed
		return true
	}
}

func scopeMultiplier(cfg *config.SearchConfig, scope Scope, category types.PathCategory) float64 {
	byScope, ok := cfg.ScopePathMultipliers[string(scope)]
	if !ok {
		return 1.0
	}
	if m, ok := byScope[string(category)]; ok {
		return m
	}
	return 1.0
}

func matchesAllMust(c types.SearchCandidate, must []string) bool {
	for _, token := range must {
		if !matchesAnyField(c, token) {
			return false
		}
	}
	return true
}

func matchesAnyExclude(c types.SearchCandidate, exclude []string) bool {
	for _, token := range exclude {
		if matchesAnyField(c, token) {
			return true
		}
	}
	return false
}

func matchesAnyField(c types.SearchCandidate, token string) bool {
	token = strings.ToLower(token)
	return containsFold1(c.Result.SymbolLabel, token) ||
		containsFold1(c.Result.RelativePath, token) ||
		containsFold1(c.Result.Content, token)
}

func containsFold1(haystack, needleLower string) bool {
	return strings.Contains(strings.ToLower(haystack), needleLower)
}

func containsFold(list []string, value string) bool {
	valueLower := strings.ToLower(value)
	for _, item := range list {
		if strings.ToLower(item) == valueLower {
			return true
		}
	}
	return false
}

// applyReranker sends the top RERANK_TOP_K candidates by finalScore to
// the reranker and folds the returned ranks into fusionScore/finalScore.
// A failure at either phase falls back to the pre-rerank order and
// emits RERANKER_FAILED — never errors the request.
func (p *Pipeline) applyReranker(ctx context.Context, semanticQuery string, candidates []types.SearchCandidate, warnings []string) ([]types.SearchCandidate, []string) {
	sorted := append([]types.SearchCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FinalScore > sorted[j].FinalScore })

	topK := minInt(len(sorted), p.rerankTopK())
	if topK == 0 {
		return candidates, warnings
	}

	docs := make([]reranker.Document, topK)
	for i := 0; i < topK; i++ {
		docs[i] = reranker.Document{Index: i, Text: formatRerankDoc(sorted[i], p.rerankCfg, p.tokens)}
	}

	ranked, err := p.rerank.Rerank(ctx, semanticQuery, docs, reranker.Options{TopK: topK, Truncation: true})
	if err != nil {
		return candidates, append(warnings, "RERANKER_FAILED")
	}

	rankByIndex := map[int]int{}
	for _, r := range ranked {
		rankByIndex[r.Index] = r.Rank
	}

	rerankK := p.rerankRRFK()
	weight := p.rerankWeight()
	for i := 0; i < topK; i++ {
		if rank, ok := rankByIndex[i]; ok {
			sorted[i].FusionScore += weight / float64(rerankK+rank)
			sorted[i].FinalScore = sorted[i].FusionScore * sorted[i].PathMultiplier * sorted[i].ChangedFilesMultiplier
		}
	}

	return sorted, warnings
}

func formatRerankDoc(c types.SearchCandidate, cfg *config.RerankerConfig, tokens *tokenbudget.Counter) string {
	content := c.Result.Content
	lines := strings.Split(content, "\n")
	if cfg.DocMaxLines > 0 && len(lines) > cfg.DocMaxLines {
		lines = lines[:cfg.DocMaxLines]
	}
	content = strings.Join(lines, "\n")
	if cfg.DocMaxChars > 0 && len(content) > cfg.DocMaxChars {
		content = content[:cfg.DocMaxChars]
	}
	if tokens != nil && cfg.DocMaxTokens > 0 {
		content = tokens.TruncateLines(content, cfg.DocMaxTokens)
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", c.Result.RelativePath, c.Result.Language, c.Result.SymbolLabel, content)
}

func (p *Pipeline) rerankTopK() int       { return p.rerankCfg.TopK }
func (p *Pipeline) rerankRRFK() int       { return p.rerankCfg.RRFK }
func (p *Pipeline) rerankWeight() float64 { return p.rerankCfg.Weight }

// candidateLess implements the deterministic tie-break chain of spec
// section 4.6, extended per section 9's open-question resolution with
// symbolId as the final stable key.
func candidateLess(a, b types.SearchCandidate) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.Result.RelativePath != b.Result.RelativePath {
		return a.Result.RelativePath < b.Result.RelativePath
	}
	if a.Result.StartLine != b.Result.StartLine {
		return a.Result.StartLine < b.Result.StartLine
	}
	if a.Result.SymbolLabel != b.Result.SymbolLabel {
		return a.Result.SymbolLabel < b.Result.SymbolLabel
	}
	if a.Result.SymbolID != b.Result.SymbolID {
		return a.Result.SymbolID < b.Result.SymbolID
	}
	return a.Result.Language < b.Result.Language
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
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
