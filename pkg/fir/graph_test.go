package fir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSection_RebasesJumpTargets(t *testing.T) {
	graph := ExecGraph{
		ExprNode(0),
		ExprNode(1),
		JumpIfNotNode(4),
		ExprNode(2),
		UnitNode(),
		RetNode(),
	}

	got := Section(graph, GraphRange{Start: 1, End: 5})
	want := ExecGraph{
		ExprNode(1),
		JumpIfNotNode(3),
		ExprNode(2),
		UnitNode(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("section mismatch (-want +got):\n%s", diff)
	}
}

func TestSection_AllowsJumpToEnd(t *testing.T) {
	// A conditional that skips everything jumps one past the last node.
	graph := ExecGraph{
		ExprNode(0),
		JumpIfNode(3),
		ExprNode(1),
		RetNode(),
	}

	got := Section(graph, GraphRange{Start: 0, End: 3})
	if got[1].Target != 3 {
		t.Fatalf("jump target = %d, want 3", got[1].Target)
	}
}

func TestSection_DoesNotAliasSource(t *testing.T) {
	graph := ExecGraph{ExprNode(0), RetNode()}
	section := Section(graph, GraphRange{Start: 0, End: 1})
	section[0] = UnitNode()
	if graph[0].Kind != GraphExpr {
		t.Fatalf("source graph mutated through section")
	}
}

func TestSection_PanicsOnEscapingJump(t *testing.T) {
	graph := ExecGraph{
		JumpNode(3),
		ExprNode(0),
		UnitNode(),
		RetNode(),
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for jump escaping the section")
		}
	}()
	Section(graph, GraphRange{Start: 0, End: 2})
}
