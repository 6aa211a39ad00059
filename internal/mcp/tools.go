package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/satorihq/satori-index/internal/callgraph"
	"github.com/satorihq/satori-index/internal/grouping"
	"github.com/satorihq/satori-index/internal/listformat"
	"github.com/satorihq/satori-index/internal/noisehint"
	"github.com/satorihq/satori-index/internal/pathglob"
	"github.com/satorihq/satori-index/internal/readiness"
	"github.com/satorihq/satori-index/internal/retrieval"
	"github.com/satorihq/satori-index/internal/types"
)

// getTools returns the five-tool surface this server registers with the
// MCP runtime.
func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "manage_index",
			Description: "Create, reindex, sync, clear, or check the status of a codebase's index. Use action=create the first time a repository is searched, action=reindex after a schema/embedding change or when the gate reports requires_reindex, action=sync after a small set of files changed, action=clear to drop a codebase entirely, and action=status (with no path) to run stale-run recovery and a cloud reconcile pass across every tracked codebase.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"description": "The lifecycle operation to perform.",
						"enum":        []string{"create", "reindex", "sync", "clear", "status"},
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the codebase root. May be omitted for action=status to run the global recovery/reconcile pass.",
					},
					"force": map[string]interface{}{
						"type":        "boolean",
						"description": "For action=reindex: drop the existing collection before rebuilding (default: false).",
						"default":     false,
					},
					"ignorePatterns": map[string]interface{}{
						"type":        "array",
						"description": "Additional gitignore-style patterns to exclude from indexing, appended to the default ignore set.",
						"items":       map[string]interface{}{"type": "string"},
					},
				},
				Required: []string{"action"},
			},
		},
		{
			Name:        "search_codebase",
			Description: "Run a multi-pass hybrid semantic search against an indexed codebase. Supports operator prefixes in the query (lang:, path:, -path:, must:, exclude:), scope filtering, grouped or raw result shape, and an optional changed-files-first ranking mode.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":        map[string]interface{}{"type": "string", "description": "Absolute path to the codebase root."},
					"query":       map[string]interface{}{"type": "string", "description": "Natural language search query, optionally prefixed with lang:/path:/-path:/must:/exclude: operators."},
					"scope":       map[string]interface{}{"type": "string", "description": "Path-category scope to search within.", "enum": []string{"runtime", "mixed", "docs"}, "default": "mixed"},
					"resultMode":  map[string]interface{}{"type": "string", "description": "Whether to collapse chunks into groups or return raw candidates.", "enum": []string{"grouped", "raw"}, "default": "grouped"},
					"groupBy":     map[string]interface{}{"type": "string", "description": "Grouping key when resultMode=grouped.", "enum": []string{"symbol", "file"}, "default": "symbol"},
					"rankingMode": map[string]interface{}{"type": "string", "description": "Whether to boost files changed per VCS status.", "enum": []string{"default", "auto_changed_first"}, "default": "default"},
					"limit":       map[string]interface{}{"type": "number", "description": "Maximum number of results to return."},
					"debug":       map[string]interface{}{"type": "boolean", "description": "Attach a debugSearch hint with per-reason removal counts.", "default": false},
				},
				Required: []string{"path", "query"},
			},
		},
		{
			Name:        "file_outline",
			Description: "List the symbols the call-graph sidecar recorded for one file, optionally windowed by line range or resolved exactly by symbol id/label.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":             map[string]interface{}{"type": "string", "description": "Absolute path to the codebase root."},
					"file":             map[string]interface{}{"type": "string", "description": "Relative path of the file to outline."},
					"start_line":       map[string]interface{}{"type": "number", "description": "Optional inclusive window start."},
					"end_line":         map[string]interface{}{"type": "number", "description": "Optional inclusive window end."},
					"resolveMode":      map[string]interface{}{"type": "string", "enum": []string{"outline", "exact"}, "default": "outline"},
					"symbolIdExact":    map[string]interface{}{"type": "string", "description": "Exact symbol id to resolve, when resolveMode=exact."},
					"symbolLabelExact": map[string]interface{}{"type": "string", "description": "Exact symbol label to resolve, when resolveMode=exact."},
					"limitSymbols":     map[string]interface{}{"type": "number", "description": "Maximum symbols to return in outline mode."},
				},
				Required: []string{"path", "file"},
			},
		},
		{
			Name:        "call_graph",
			Description: "Traverse the call-graph sidecar from a symbol up to 3 hops in the callers, callees, or both directions.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":        map[string]interface{}{"type": "string", "description": "Absolute path to the codebase root."},
					"symbolRef": map[string]interface{}{
						"type":        "object",
						"description": "The symbol to start traversal from.",
						"properties": map[string]interface{}{
							"file":        map[string]interface{}{"type": "string"},
							"symbolId":    map[string]interface{}{"type": "string"},
							"symbolLabel": map[string]interface{}{"type": "string"},
						},
					},
					"direction": map[string]interface{}{"type": "string", "enum": []string{"callers", "callees", "both"}, "default": "both"},
					"depth":     map[string]interface{}{"type": "number", "description": "Hop count, clamped to [1,3].", "default": 1},
					"limit":     map[string]interface{}{"type": "number", "description": "Maximum total nodes returned.", "default": 20},
				},
				Required: []string{"path", "symbolRef"},
			},
		},
		{
			Name:        "list_codebases",
			Description: "List every tracked codebase grouped into Ready, Indexing, Requires Reindex, and Failed buckets.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
	}
}

// --- argument extraction helpers ---

func argString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argIntPtr(args map[string]interface{}, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	}
	return nil
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argMap(args map[string]interface{}, key string) map[string]interface{} {
	m, _ := args[key].(map[string]interface{})
	return m
}

// compatibilityPayload renders a readiness.Compatibility block the way
// every gate-blocked tool envelope (blockedEnvelope) carries it (spec section 4.1's closing
// paragraph).
func compatibilityPayload(c readiness.Compatibility) map[string]interface{} {
	payload := map[string]interface{}{
		"runtimeFingerprint": c.RuntimeFingerprint,
		"statusAtCheck":      c.StatusAtCheck,
	}
	if c.IndexedFingerprint != nil {
		payload["indexedFingerprint"] = c.IndexedFingerprint
	}
	if c.FingerprintSource != "" {
		payload["fingerprintSource"] = c.FingerprintSource
	}
	if c.ReindexReason != "" {
		payload["reindexReason"] = c.ReindexReason
	}
	return payload
}

// hintsPayload renders the hints map attached to blocked/degraded
// envelopes: hints.create.args, hints.reindex.args,
// hints.staleLocal.completionProof.
func hintsPayload(h readiness.Hints) map[string]interface{} {
	hints := map[string]interface{}{"version": 1}
	if h.CreateArgsPath != "" {
		hints["create"] = map[string]interface{}{
			"args": map[string]interface{}{"action": "create", "path": h.CreateArgsPath},
		}
	}
	if h.ReindexArgsPath != "" {
		hints["reindex"] = map[string]interface{}{
			"args": map[string]interface{}{"action": "reindex", "path": h.ReindexArgsPath},
		}
	}
	if h.StaleLocalReason != "" {
		hints["staleLocal"] = map[string]interface{}{"completionProof": h.StaleLocalReason}
	}
	return hints
}

// blockedEnvelope renders the non-proceeding gate decision into the
// shared JSON envelope shape every tool returns on a blocked/degraded
// path.
func blockedEnvelope(decision readiness.Decision) map[string]interface{} {
	payload := map[string]interface{}{
		"status":        decision.Status,
		"reason":        decision.Reason,
		"compatibility": compatibilityPayload(decision.Compatibility),
		"hints":         hintsPayload(decision.Hints),
	}
	if decision.RetryAfterMS > 0 {
		payload["retryAfterMs"] = decision.RetryAfterMS
	}
	return payload
}

// --- manage_index ---

func (s *Server) handleManageIndex(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	action := argString(args, "action", "")
	path := argString(args, "path", "")

	switch action {
	case "create", "reindex", "sync", "clear", "status":
	default:
		return errorResult(fmt.Sprintf("unknown action: %s", action)), nil
	}

	if action == "status" && path == "" {
		recovered, err := s.lifecycleMgr.RecoverStale(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("stale-indexing recovery failed: %v", err)), nil
		}
		repaired, err := s.lifecycleMgr.Reconcile(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("cloud reconcile failed: %v", err)), nil
		}
		return successResult(map[string]interface{}{
			"status":          "ok",
			"recoveredStale":  len(recovered),
			"reconciledCloud": repaired,
			"codebases":       s.snapshotStore.All(),
		}), nil
	}

	if path == "" {
		return errorResult("path is required for this action"), nil
	}

	op := map[string]readiness.Operation{
		"create":  readiness.OpCreate,
		"reindex": readiness.OpReindex,
		"sync":    readiness.OpSync,
		"clear":   readiness.OpClear,
		"status":  readiness.OpStatus,
	}[action]

	decision := s.gate.Admit(ctx, path, op)
	if !decision.Proceed() {
		return successResult(blockedEnvelope(decision)), nil
	}

	ignorePatterns := argStringSlice(args, "ignorePatterns")
	root := decision.EffectiveRoot

	var entry *types.CodebaseEntry
	var err error

	switch action {
	case "create":
		entry, err = s.lifecycleMgr.Create(ctx, root, ignorePatterns)
	case "reindex":
		force := argBool(args, "force", false)
		entry, err = s.lifecycleMgr.Reindex(ctx, root, force, ignorePatterns)
	case "sync":
		changed := s.changedCache.Get(ctx, root)
		entry, err = s.lifecycleMgr.Sync(ctx, root, changed.Files, ignorePatterns)
	case "clear":
		err = s.lifecycleMgr.Clear(ctx, root)
	case "status":
		entry = decision.Entry
	}

	if err != nil {
		return errorResult(fmt.Sprintf("%s failed: %v", action, err)), nil
	}

	response := map[string]interface{}{"status": "ok", "action": action, "path": root}
	if entry != nil {
		response["codebase"] = entry
	}
	return successResult(response), nil
}

// --- search_codebase ---

func (s *Server) handleSearchCodebase(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path := argString(args, "path", "")
	query := argString(args, "query", "")
	if path == "" || query == "" {
		return errorResult("path and query are required"), nil
	}

	decision := s.gate.Admit(ctx, path, readiness.OpSearch)
	if !decision.Proceed() {
		return successResult(blockedEnvelope(decision)), nil
	}

	scope := retrieval.Scope(argString(args, "scope", "mixed"))
	resultMode := argString(args, "resultMode", "grouped")
	groupBy := grouping.GroupBy(argString(args, "groupBy", "symbol"))
	rankingMode := retrieval.RankingMode(argString(args, "rankingMode", "default"))
	limit := argInt(args, "limit", s.config.Search.DefaultLimit)
	debug := argBool(args, "debug", false)

	rerankerEnabled := s.caps.HasReranker && s.caps.DefaultRerankEnabled
	if v, ok := args["rerankerEnabled"].(bool); ok {
		rerankerEnabled = v && s.caps.HasReranker
	}

	resp, err := s.pipeline.Run(ctx, retrieval.Request{
		CanonicalRoot:   decision.EffectiveRoot,
		Query:           query,
		Scope:           scope,
		RankingMode:     rankingMode,
		Limit:           limit,
		RerankerEnabled: rerankerEnabled,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	sidecar, _ := s.callgraphStore.Load(decision.EffectiveRoot)

	var groups []types.SearchGroup
	if resultMode == "raw" {
		groups = rawGroups(resp.Candidates, limit)
	} else {
		groups = grouping.Group(resp.Candidates, grouping.Options{
			GroupBy:          groupBy,
			Limit:            limit,
			ProximityWindow:  s.config.Search.ProximityWindow,
			MaxPerFile:       s.config.Search.DiversityMaxPerFile,
			MaxPerSymbol:     s.config.Search.DiversityMaxPerSymbol,
			RelaxedFileCap:   s.config.Search.DiversityRelaxedFileCap,
			StalenessFreshMS: s.config.Search.StalenessFreshMS,
			StalenessAgingMS: s.config.Search.StalenessAgingMS,
			Now:              time.Now(),
		})
	}
	attachCallGraphHints(groups, sidecar)

	warnings := dedupeSorted(resp.Warnings)

	hints := map[string]interface{}{"version": 1}
	noise := noisehint.Evaluate(groups, noisehint.Options{
		TopK:          s.config.Search.NoiseHintTopK,
		Threshold:     s.config.Search.NoiseHintThreshold,
		ExtraPatterns: pathglob.CompileAll(s.config.Search.NoiseHintPatterns),
	})
	if noise.Triggered {
		hints["noiseMitigation"] = noise
	}
	if debug {
		hints["debugSearch"] = map[string]interface{}{
			"parsed":          resp.Parsed,
			"removedByReason": resp.RemovedByReason,
			"rerankerEnabled": rerankerEnabled,
		}
	}
	if decision.DebugProofCheck != nil {
		hints["debugProofCheck"] = decision.DebugProofCheck
	}

	response := map[string]interface{}{
		"status":    "ok",
		"results":   groups,
		"warnings":  warnings,
		"hints":     hints,
	}
	return successResult(response), nil
}

// rawGroups renders candidates directly as SearchGroup records, one per
// candidate, when resultMode=raw skips the collapsing grouping does.
func rawGroups(candidates []types.SearchCandidate, limit int) []types.SearchGroup {
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	groups := make([]types.SearchGroup, 0, len(candidates))
	for _, c := range candidates {
		groups = append(groups, types.SearchGroup{
			GroupID:             c.Result.CandidateKey().RelativePath,
			File:                c.Result.RelativePath,
			Span:                types.Span{StartLine: c.Result.StartLine, EndLine: c.Result.EndLine},
			Language:            c.Result.Language,
			SymbolID:            c.Result.SymbolID,
			SymbolLabel:         c.Result.SymbolLabel,
			Score:               c.FinalScore,
			StalenessBucket:     types.StalenessUnknown,
			CollapsedChunkCount: 1,
			Preview:             c.Result.Content,
		})
	}
	return groups
}

// attachCallGraphHints annotates each group's callGraphHint from the
// loaded sidecar, so callers don't need a second call_graph round trip
// just to learn whether one is possible.
func attachCallGraphHints(groups []types.SearchGroup, sidecar *types.CallGraphSidecar) {
	if sidecar == nil {
		for i := range groups {
			groups[i].CallGraphHint = types.CallGraphHint{Supported: false, Reason: "not_ready"}
		}
		return
	}
	bySymbol := make(map[string]bool, len(sidecar.Nodes))
	for _, n := range sidecar.Nodes {
		bySymbol[n.SymbolID] = true
	}
	for i := range groups {
		if groups[i].SymbolID != "" && bySymbol[groups[i].SymbolID] {
			groups[i].CallGraphHint = types.CallGraphHint{Supported: true}
		} else {
			groups[i].CallGraphHint = types.CallGraphHint{Supported: false, Reason: "missing_symbol"}
		}
	}
}

func dedupeSorted(warnings []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// --- file_outline ---

func (s *Server) handleFileOutline(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path := argString(args, "path", "")
	file := argString(args, "file", "")
	if path == "" || file == "" {
		return errorResult("path and file are required"), nil
	}

	decision := s.gate.Admit(ctx, path, readiness.OpFileOutline)
	if !decision.Proceed() {
		return successResult(blockedEnvelope(decision)), nil
	}

	sidecar, err := s.callgraphStore.Load(decision.EffectiveRoot)
	if err != nil || sidecar == nil {
		status := callgraph.StatusNotReady
		if !s.langSupport.SupportedForPath(file) {
			status = callgraph.StatusUnsupportedLang
		}
		return successResult(map[string]interface{}{
			"status": status,
			"reason": "no_sidecar",
			"hints":  hintsPayload(readiness.Hints{ReindexArgsPath: decision.EffectiveRoot}),
			"nodes":  []types.GraphNode{},
		}), nil
	}

	req := callgraph.OutlineRequest{
		File:             file,
		StartLine:        argIntPtr(args, "start_line"),
		EndLine:          argIntPtr(args, "end_line"),
		ResolveMode:      callgraph.ResolveMode(argString(args, "resolveMode", "outline")),
		SymbolIDExact:    argString(args, "symbolIdExact", ""),
		SymbolLabelExact: argString(args, "symbolLabelExact", ""),
		LimitSymbols:     argInt(args, "limitSymbols", 50),
	}
	result := callgraph.Outline(sidecar, req)

	return successResult(map[string]interface{}{
		"status": result.Status,
		"nodes":  result.Nodes,
	}), nil
}

// --- call_graph ---

func (s *Server) handleCallGraph(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path := argString(args, "path", "")
	symbolRef := argMap(args, "symbolRef")
	if path == "" || symbolRef == nil {
		return errorResult("path and symbolRef are required"), nil
	}

	decision := s.gate.Admit(ctx, path, readiness.OpCallGraph)
	if !decision.Proceed() {
		envelope := blockedEnvelope(decision)
		envelope["supported"] = false
		envelope["freshnessDecision"] = freshnessDecisionFor(decision.Status)
		envelope["nodes"] = []types.GraphNode{}
		envelope["edges"] = []types.GraphEdge{}
		envelope["notes"] = []types.GraphNote{}
		return successResult(envelope), nil
	}

	ref := callgraph.SymbolRef{
		File:        argString(symbolRef, "file", ""),
		SymbolID:    argString(symbolRef, "symbolId", ""),
		SymbolLabel: argString(symbolRef, "symbolLabel", ""),
	}

	sidecar, err := s.callgraphStore.Load(decision.EffectiveRoot)
	if err != nil || sidecar == nil {
		status := callgraph.StatusNotReady
		if !s.langSupport.SupportedForPath(ref.File) {
			status = callgraph.StatusUnsupportedLang
		}
		return successResult(map[string]interface{}{
			"status":    status,
			"supported": false,
			"hints":     hintsPayload(readiness.Hints{ReindexArgsPath: decision.EffectiveRoot}),
			"nodes":     []types.GraphNode{},
			"edges":     []types.GraphEdge{},
			"notes":     []types.GraphNote{},
		}), nil
	}
	direction := callgraph.Direction(argString(args, "direction", "both"))
	depth := argInt(args, "depth", 1)
	limit := argInt(args, "limit", 20)

	result := callgraph.Query(sidecar, ref, direction, depth, limit)

	return successResult(map[string]interface{}{
		"status":    result.Status,
		"supported": result.Status == callgraph.StatusOK,
		"nodes":     result.Nodes,
		"edges":     result.Edges,
		"notes":     result.Notes,
	}), nil
}

// freshnessDecisionFor mirrors the sync manager's freshness verdict for
// a blocked call_graph request (spec's glossary entry).
func freshnessDecisionFor(status readiness.Status) map[string]interface{} {
	mode := "skipped"
	if status == readiness.StatusRequiresReindex {
		mode = "skipped_requires_reindex"
	}
	return map[string]interface{}{"mode": mode}
}

// --- list_codebases ---

func (s *Server) handleListCodebases(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	entries := s.snapshotStore.All()
	text := listformat.Render(entries)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}, nil
}

// --- shared result helpers ---

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(jsonData)},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Error: %s", message)},
		},
		IsError: true,
	}
}
