package fir

import "fmt"

// GraphNodeKind identifies an execution graph instruction.
type GraphNodeKind int

const (
	// GraphBind pops the current value into the pattern's bindings.
	GraphBind GraphNodeKind = iota
	// GraphExpr evaluates an expression into the current value.
	GraphExpr
	// GraphStmt marks the start of a statement for stepping and spans.
	GraphStmt
	// GraphJump moves execution to an absolute node index.
	GraphJump
	// GraphJumpIf jumps when the current value is true.
	GraphJumpIf
	// GraphJumpIfNot jumps when the current value is false.
	GraphJumpIfNot
	// GraphStore pushes the current value onto the operand stack.
	GraphStore
	// GraphUnit replaces the current value with unit.
	GraphUnit
	// GraphRet ends the graph and pops the active call frame.
	GraphRet
	// GraphRetFrame is GraphRet emitted by debug builds, which also track
	// the frame in the debugger's view of the call stack.
	GraphRetFrame
	// GraphPushScope opens a variable scope, only present in debug builds.
	GraphPushScope
	// GraphPopScope closes the innermost variable scope.
	GraphPopScope
	// GraphBlockEnd marks the last step point before a block ends.
	GraphBlockEnd
)

func (k GraphNodeKind) String() string {
	switch k {
	case GraphBind:
		return "bind"
	case GraphExpr:
		return "expr"
	case GraphStmt:
		return "stmt"
	case GraphJump:
		return "jump"
	case GraphJumpIf:
		return "jump-if"
	case GraphJumpIfNot:
		return "jump-if-not"
	case GraphStore:
		return "store"
	case GraphUnit:
		return "unit"
	case GraphRet:
		return "ret"
	case GraphRetFrame:
		return "ret-frame"
	case GraphPushScope:
		return "push-scope"
	case GraphPopScope:
		return "pop-scope"
	case GraphBlockEnd:
		return "block-end"
	default:
		return fmt.Sprintf("unknown_node_%d", int(k))
	}
}

// GraphNode is one instruction of a flattened control flow graph. The
// payload field read depends on the kind; jump targets are absolute indices
// into the containing graph.
type GraphNode struct {
	Kind   GraphNodeKind
	Pat    PatId
	Expr   ExprId
	Stmt   StmtId
	Block  BlockId
	Target int
}

func (n GraphNode) String() string {
	switch n.Kind {
	case GraphBind:
		return fmt.Sprintf("bind %d", n.Pat)
	case GraphExpr:
		return fmt.Sprintf("expr %d", n.Expr)
	case GraphStmt:
		return fmt.Sprintf("stmt %d", n.Stmt)
	case GraphJump, GraphJumpIf, GraphJumpIfNot:
		return fmt.Sprintf("%s %d", n.Kind, n.Target)
	case GraphBlockEnd:
		return fmt.Sprintf("block-end %d", n.Block)
	default:
		return n.Kind.String()
	}
}

// BindNode binds the current value against a pattern.
func BindNode(pat PatId) GraphNode { return GraphNode{Kind: GraphBind, Pat: pat} }

// ExprNode evaluates an expression.
func ExprNode(expr ExprId) GraphNode { return GraphNode{Kind: GraphExpr, Expr: expr} }

// StmtNode marks a statement boundary.
func StmtNode(stmt StmtId) GraphNode { return GraphNode{Kind: GraphStmt, Stmt: stmt} }

// JumpNode jumps unconditionally to target.
func JumpNode(target int) GraphNode { return GraphNode{Kind: GraphJump, Target: target} }

// JumpIfNode jumps to target when the current value is true.
func JumpIfNode(target int) GraphNode { return GraphNode{Kind: GraphJumpIf, Target: target} }

// JumpIfNotNode jumps to target when the current value is false.
func JumpIfNotNode(target int) GraphNode { return GraphNode{Kind: GraphJumpIfNot, Target: target} }

// StoreNode pushes the current value onto the operand stack.
func StoreNode() GraphNode { return GraphNode{Kind: GraphStore} }

// UnitNode sets the current value to unit.
func UnitNode() GraphNode { return GraphNode{Kind: GraphUnit} }

// RetNode ends the graph.
func RetNode() GraphNode { return GraphNode{Kind: GraphRet} }

// RetFrameNode ends the graph in a debug build.
func RetFrameNode() GraphNode { return GraphNode{Kind: GraphRetFrame} }

// PushScopeNode opens a tracked variable scope.
func PushScopeNode() GraphNode { return GraphNode{Kind: GraphPushScope} }

// PopScopeNode closes a tracked variable scope.
func PopScopeNode() GraphNode { return GraphNode{Kind: GraphPopScope} }

// BlockEndNode marks the end of a block.
func BlockEndNode(block BlockId) GraphNode { return GraphNode{Kind: GraphBlockEnd, Block: block} }

// ExecGraph is a flattened control flow graph executed top to bottom except
// where jump nodes redirect.
type ExecGraph []GraphNode

// GraphRange is a half-open node range into a containing execution graph.
type GraphRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Section copies the subrange out of the graph and rebases every jump target
// so the copy executes standalone. Statements record the ranges used here.
func Section(graph ExecGraph, r GraphRange) ExecGraph {
	if r.Start < 0 || r.End < r.Start || r.End > len(graph) {
		panic(fmt.Sprintf("fir: graph section %d..%d out of bounds for graph of %d nodes", r.Start, r.End, len(graph)))
	}
	section := make(ExecGraph, r.End-r.Start)
	copy(section, graph[r.Start:r.End])
	for i := range section {
		switch section[i].Kind {
		case GraphJump, GraphJumpIf, GraphJumpIfNot:
			target := section[i].Target - r.Start
			// Targets may point one past the last node; execution then
			// falls off the end of the section.
			if target < 0 || target > len(section) {
				panic(fmt.Sprintf("fir: jump to %d escapes graph section %d..%d", section[i].Target, r.Start, r.End))
			}
			section[i].Target = target
		}
	}
	return section
}
