package callgraph

import (
	"testing"

	"github.com/satorihq/satori-index/internal/types"
)

func testSidecar() *types.CallGraphSidecar {
	return &types.CallGraphSidecar{
		Version: types.SidecarVersionV3,
		Nodes: []types.GraphNode{
			{SymbolID: "sym_run", SymbolLabel: "Run", File: "src/runtime.ts", Span: types.Span{StartLine: 1, EndLine: 10}, Language: "typescript"},
			{SymbolID: "sym_caller", SymbolLabel: "Caller", File: "src/caller.ts", Span: types.Span{StartLine: 1, EndLine: 5}, Language: "typescript"},
			{SymbolID: "sym_callee", SymbolLabel: "Callee", File: "src/callee.ts", Span: types.Span{StartLine: 1, EndLine: 5}, Language: "typescript"},
		},
		Edges: []types.GraphEdge{
			{Src: "sym_caller", Dst: "sym_run", Kind: types.EdgeCallers},
			{Src: "sym_run", Dst: "sym_callee", Kind: types.EdgeCallees},
		},
	}
}

func TestQueryBothDirections(t *testing.T) {
	result := Query(testSidecar(), SymbolRef{SymbolID: "sym_run"}, DirectionBoth, 1, 10)
	if result.Status != StatusOK {
		t.Fatalf("expected ok, got %v", result.Status)
	}
	if len(result.Nodes) != 3 {
		t.Errorf("expected 3 nodes (root + caller + callee), got %d", len(result.Nodes))
	}
}

func TestQueryMissingSymbolReturnsNotFound(t *testing.T) {
	result := Query(testSidecar(), SymbolRef{SymbolID: "sym_missing"}, DirectionBoth, 1, 10)
	if result.Status != StatusNotFound {
		t.Errorf("expected not_found, got %v", result.Status)
	}
}

func TestQueryNilSidecarIsNotReady(t *testing.T) {
	result := Query(nil, SymbolRef{SymbolID: "sym_run"}, DirectionBoth, 1, 10)
	if result.Status != StatusNotReady {
		t.Errorf("expected not_ready, got %v", result.Status)
	}
}

func TestOutlineFiltersByFileAndWindow(t *testing.T) {
	start := 1
	end := 3
	result := Outline(testSidecar(), OutlineRequest{File: "src/caller.ts", StartLine: &start, EndLine: &end, ResolveMode: ResolveOutline})
	if result.Status != StatusOK {
		t.Fatalf("expected ok, got %v", result.Status)
	}
	if len(result.Nodes) != 1 || result.Nodes[0].SymbolID != "sym_caller" {
		t.Errorf("expected sym_caller, got %+v", result.Nodes)
	}
}

func TestOutlineExactAmbiguous(t *testing.T) {
	sidecar := testSidecar()
	sidecar.Nodes = append(sidecar.Nodes, types.GraphNode{SymbolID: "sym_run2", SymbolLabel: "Run", File: "src/runtime.ts", Span: types.Span{StartLine: 20, EndLine: 30}})

	result := Outline(sidecar, OutlineRequest{File: "src/runtime.ts", ResolveMode: ResolveExact, SymbolLabelExact: "Run"})
	if result.Status != StatusAmbiguous {
		t.Errorf("expected ambiguous, got %v", result.Status)
	}
}

func TestOutlineExactNotFound(t *testing.T) {
	result := Outline(testSidecar(), OutlineRequest{File: "src/runtime.ts", ResolveMode: ResolveExact, SymbolIDExact: "sym_nope"})
	if result.Status != StatusNotFound {
		t.Errorf("expected not_found, got %v", result.Status)
	}
}
