package callgraph

import (
	"path/filepath"
	"strings"

	"github.com/satorihq/satori-index/internal/types"
)

// Status mirrors the call_graph/file_outline result status per spec
// section 4.9.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusNotFound           Status = "not_found"
	StatusUnsupportedLang    Status = "unsupported"
	StatusNotReady           Status = "not_ready"
	StatusAmbiguous          Status = "ambiguous"
)

// Direction selects which edges a call-graph query traverses.
type Direction string

const (
	DirectionCallers Direction = "callers"
	DirectionCallees Direction = "callees"
	DirectionBoth    Direction = "both"
)

// SymbolRef identifies the symbol a call_graph request starts from.
type SymbolRef struct {
	File        string
	SymbolID    string
	SymbolLabel string
	Span        *types.Span
}

// GraphResult is the result of a call_graph traversal.
type GraphResult struct {
	Status Status
	Nodes  []types.GraphNode
	Edges  []types.GraphEdge
	Notes  []types.GraphNote
}

// Query resolves symbolRef against the sidecar and walks up to depth
// hops in direction, capped at limit total nodes. A nil sidecar means
// no v3 artifact has been built yet.
func Query(sidecar *types.CallGraphSidecar, ref SymbolRef, direction Direction, depth, limit int) GraphResult {
	if sidecar == nil {
		return GraphResult{Status: StatusNotReady}
	}

	root := resolveSymbol(sidecar, ref)
	if root == nil {
		return GraphResult{Status: StatusNotFound, Notes: sidecar.Notes}
	}

	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	nodesByID := map[string]types.GraphNode{}
	for _, n := range sidecar.Nodes {
		nodesByID[n.SymbolID] = n
	}

	visited := map[string]bool{root.SymbolID: true}
	resultNodes := []types.GraphNode{*root}
	var resultEdges []types.GraphEdge

	frontier := []string{root.SymbolID}
	for d := 0; d < depth && len(resultNodes) < limit; d++ {
		var next []string
		for _, id := range frontier {
			for _, e := range sidecar.Edges {
				neighbor, matched := matchEdge(e, id, direction)
				if !matched {
					continue
				}
				resultEdges = append(resultEdges, e)
				if visited[neighbor] {
					continue
				}
				if len(resultNodes) >= limit {
					continue
				}
				visited[neighbor] = true
				if n, ok := nodesByID[neighbor]; ok {
					resultNodes = append(resultNodes, n)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return GraphResult{Status: StatusOK, Nodes: resultNodes, Edges: resultEdges, Notes: sidecar.Notes}
}

func matchEdge(e types.GraphEdge, id string, direction Direction) (string, bool) {
	switch direction {
	case DirectionCallers:
		if e.Dst == id && e.Kind == types.EdgeCallers {
			return e.Src, true
		}
	case DirectionCallees:
		if e.Src == id && e.Kind == types.EdgeCallees {
			return e.Dst, true
		}
	default:
		if e.Dst == id && e.Kind == types.EdgeCallers {
			return e.Src, true
		}
		if e.Src == id && e.Kind == types.EdgeCallees {
			return e.Dst, true
		}
	}
	return "", false
}

func resolveSymbol(sidecar *types.CallGraphSidecar, ref SymbolRef) *types.GraphNode {
	for i := range sidecar.Nodes {
		n := &sidecar.Nodes[i]
		if ref.SymbolID != "" && n.SymbolID == ref.SymbolID {
			return n
		}
	}
	if ref.SymbolID == "" && ref.SymbolLabel != "" {
		for i := range sidecar.Nodes {
			n := &sidecar.Nodes[i]
			if n.File == ref.File && n.SymbolLabel == ref.SymbolLabel {
				return n
			}
		}
	}
	return nil
}

// ResolveMode selects exact vs. outline filtering for file_outline.
type ResolveMode string

const (
	ResolveOutline ResolveMode = "outline"
	ResolveExact   ResolveMode = "exact"
)

// OutlineRequest describes a file_outline query.
type OutlineRequest struct {
	File             string
	StartLine        *int
	EndLine          *int
	ResolveMode      ResolveMode
	SymbolIDExact    string
	SymbolLabelExact string
	LimitSymbols     int
}

// OutlineResult is the result of a file_outline query.
type OutlineResult struct {
	Status Status
	Nodes  []types.GraphNode
}

// Outline filters sidecar nodes by normalized file path, an optional
// line window, and (in exact mode) an exact symbol id/label match.
func Outline(sidecar *types.CallGraphSidecar, req OutlineRequest) OutlineResult {
	if sidecar == nil {
		return OutlineResult{Status: StatusNotReady}
	}

	normalizedFile := filepath.ToSlash(req.File)

	var matches []types.GraphNode
	for _, n := range sidecar.Nodes {
		if filepath.ToSlash(n.File) != normalizedFile {
			continue
		}
		if req.StartLine != nil && n.Span.EndLine < *req.StartLine {
			continue
		}
		if req.EndLine != nil && n.Span.StartLine > *req.EndLine {
			continue
		}
		matches = append(matches, n)
	}

	if req.ResolveMode == ResolveExact {
		var exact []types.GraphNode
		for _, n := range matches {
			if req.SymbolIDExact != "" && n.SymbolID != req.SymbolIDExact {
				continue
			}
			if req.SymbolLabelExact != "" && !strings.EqualFold(n.SymbolLabel, req.SymbolLabelExact) {
				continue
			}
			exact = append(exact, n)
		}
		switch len(exact) {
		case 0:
			return OutlineResult{Status: StatusNotFound}
		case 1:
			return OutlineResult{Status: StatusOK, Nodes: exact}
		default:
			return OutlineResult{Status: StatusAmbiguous, Nodes: exact}
		}
	}

	if req.LimitSymbols > 0 && len(matches) > req.LimitSymbols {
		matches = matches[:req.LimitSymbols]
	}
	if len(matches) == 0 {
		return OutlineResult{Status: StatusNotFound}
	}
	return OutlineResult{Status: StatusOK, Nodes: matches}
}
