package fir

import (
	"fmt"
	"math/big"
)

// The flattened intermediate representation of a compiled program. Every
// node lives in a dense per-package table and refers to other nodes by id,
// so the evaluator never chases pointers into a syntax tree.

//-----------------------------------------------------------------------------
// Expressions
//-----------------------------------------------------------------------------

// Expr is an expression entry in a package table.
type Expr struct {
	Id   ExprId
	Span Span
	Kind ExprKind
}

// ExprKind is the closed set of expression shapes.
type ExprKind interface {
	exprKind()
}

// ArrayExpr is an array literal with computed items: `[a, b, c]`.
type ArrayExpr struct {
	Items []ExprId
}

// ArrayLitExpr is an array whose items are all literals: `[1, 2, 3]`. The
// items never produce graph nodes; the evaluator materializes them directly.
type ArrayLitExpr struct {
	Items []ExprId
}

// ArrayRepeatExpr repeats a value: `[a, size = b]`.
type ArrayRepeatExpr struct {
	Value ExprId
	Size  ExprId
}

// AssignExpr is `set a = b`.
type AssignExpr struct {
	Lhs ExprId
	Rhs ExprId
}

// AssignOpExpr is a compound assignment such as `set a += b`. Append marks
// the array append form, which binds the right-hand side only and may grow
// the array in place; it stands in for the static type of the left-hand side.
type AssignOpExpr struct {
	Op     BinOp
	Lhs    ExprId
	Rhs    ExprId
	Append bool
}

// AssignFieldExpr is `set a w/= Field <- b`.
type AssignFieldExpr struct {
	Record  ExprId
	Field   Field
	Replace ExprId
}

// AssignIndexExpr is `set a w/= i <- b`.
type AssignIndexExpr struct {
	Array   ExprId
	Index   ExprId
	Replace ExprId
}

// BinOpExpr is a binary operator application.
type BinOpExpr struct {
	Op  BinOp
	Lhs ExprId
	Rhs ExprId
}

// BlockExpr is `{ ... }`.
type BlockExpr struct {
	Block BlockId
}

// CallExpr is `a(b)`.
type CallExpr struct {
	Callee ExprId
	Arg    ExprId
}

// ClosureExpr fixes a list of local variables as the leading arguments of a
// callable item.
type ClosureExpr struct {
	Captures []LocalVarId
	Callable LocalItemId
}

// FailExpr is `fail "message"`.
type FailExpr struct {
	Message ExprId
}

// FieldExpr is a field access `a::F`.
type FieldExpr struct {
	Record ExprId
	Field  Field
}

// HoleExpr is `_`.
type HoleExpr struct{}

// IfExpr is `if a { ... }` with an optional else expression.
type IfExpr struct {
	Cond ExprId
	Then ExprId
	Else *ExprId
}

// IndexExpr is `a[b]`.
type IndexExpr struct {
	Array ExprId
	Index ExprId
}

// LitExpr is a literal.
type LitExpr struct {
	Lit Lit
}

// RangeExpr is `start..step..end` with any of the three parts open.
type RangeExpr struct {
	Start *ExprId
	Step  *ExprId
	End   *ExprId
}

// ReturnExpr is `return a`.
type ReturnExpr struct {
	Value ExprId
}

// StringExpr is a string with literal and interpolated components.
type StringExpr struct {
	Components []StringComponent
}

// StructExpr constructs or copies a record: `new Foo { ...a, Bar = b }`.
type StructExpr struct {
	Item   ItemId
	Copy   *ExprId
	Fields []FieldAssign
}

// TupleExpr is `(a, b, c)`.
type TupleExpr struct {
	Items []ExprId
}

// UnOpExpr is a unary operator application.
type UnOpExpr struct {
	Op      UnOp
	Operand ExprId
}

// UpdateIndexExpr is a copy-and-update of an array: `a w/ b <- c`.
type UpdateIndexExpr struct {
	Array   ExprId
	Index   ExprId
	Replace ExprId
}

// UpdateFieldExpr is a copy-and-update of a record: `a w/ B <- c`.
type UpdateFieldExpr struct {
	Record  ExprId
	Field   Field
	Replace ExprId
}

// VarExpr reads a resolved name.
type VarExpr struct {
	Res Res
}

// WhileExpr is `while a { ... }`.
type WhileExpr struct {
	Cond  ExprId
	Block BlockId
}

func (ArrayExpr) exprKind()       {}
func (ArrayLitExpr) exprKind()    {}
func (ArrayRepeatExpr) exprKind() {}
func (AssignExpr) exprKind()      {}
func (AssignOpExpr) exprKind()    {}
func (AssignFieldExpr) exprKind() {}
func (AssignIndexExpr) exprKind() {}
func (BinOpExpr) exprKind()       {}
func (BlockExpr) exprKind()       {}
func (CallExpr) exprKind()        {}
func (ClosureExpr) exprKind()     {}
func (FailExpr) exprKind()        {}
func (FieldExpr) exprKind()       {}
func (HoleExpr) exprKind()        {}
func (IfExpr) exprKind()          {}
func (IndexExpr) exprKind()       {}
func (LitExpr) exprKind()         {}
func (RangeExpr) exprKind()       {}
func (ReturnExpr) exprKind()      {}
func (StringExpr) exprKind()      {}
func (StructExpr) exprKind()      {}
func (TupleExpr) exprKind()       {}
func (UnOpExpr) exprKind()        {}
func (UpdateIndexExpr) exprKind() {}
func (UpdateFieldExpr) exprKind() {}
func (VarExpr) exprKind()         {}
func (WhileExpr) exprKind()       {}

// FieldAssign assigns one field in a struct constructor.
type FieldAssign struct {
	Field Field
	Value ExprId
}

// StringComponent is one piece of a string expression.
type StringComponent interface {
	stringComponent()
}

// LitComponent is a literal string piece.
type LitComponent struct {
	Text string
}

// ExprComponent is an interpolated expression piece.
type ExprComponent struct {
	Expr ExprId
}

func (LitComponent) stringComponent()  {}
func (ExprComponent) stringComponent() {}

//-----------------------------------------------------------------------------
// Names
//-----------------------------------------------------------------------------

// Res connects a name usage to the declaration it resolved to.
type Res interface {
	res()
}

// ItemRes resolves to a global item.
type ItemRes struct {
	Item ItemId
}

// LocalRes resolves to a local variable.
type LocalRes struct {
	Var LocalVarId
}

func (ItemRes) res()  {}
func (LocalRes) res() {}

// Field names a component of a record, tuple, or range.
type Field interface {
	field()
}

// PathField follows tuple item indices from the outside in.
type PathField struct {
	Indices []int
}

// PrimField is a built-in field of a range.
type PrimField int

const (
	FieldStart PrimField = iota
	FieldStep
	FieldEnd
)

func (f PrimField) String() string {
	switch f {
	case FieldStart:
		return "Start"
	case FieldStep:
		return "Step"
	case FieldEnd:
		return "End"
	default:
		return fmt.Sprintf("unknown_field_%d", int(f))
	}
}

func (PathField) field() {}
func (PrimField) field() {}

//-----------------------------------------------------------------------------
// Statements, patterns, blocks
//-----------------------------------------------------------------------------

// Stmt is a statement entry in a package table. GraphRange locates the
// statement's nodes within the graph it was flattened into, so a single
// statement can execute on its own.
type Stmt struct {
	Id         StmtId
	Span       Span
	Kind       StmtKind
	GraphRange GraphRange
}

// StmtKind is the closed set of statement shapes.
type StmtKind interface {
	stmtKind()
}

// ExprStmt is an expression without a trailing semicolon.
type ExprStmt struct {
	Expr ExprId
}

// SemiStmt is an expression with a trailing semicolon.
type SemiStmt struct {
	Expr ExprId
}

// LocalStmt is a `let` or `mutable` binding.
type LocalStmt struct {
	Mutable bool
	Pat     PatId
	Expr    ExprId
}

// ItemStmt declares an item local to a block.
type ItemStmt struct {
	Item LocalItemId
}

func (ExprStmt) stmtKind()  {}
func (SemiStmt) stmtKind()  {}
func (LocalStmt) stmtKind() {}
func (ItemStmt) stmtKind()  {}

// Pat is a pattern entry in a package table.
type Pat struct {
	Id   PatId
	Span Span
	Kind PatKind
}

// PatKind is the closed set of pattern shapes.
type PatKind interface {
	patKind()
}

// BindPat binds a single name.
type BindPat struct {
	Name Ident
}

// DiscardPat is `_`.
type DiscardPat struct{}

// TuplePat destructures a tuple.
type TuplePat struct {
	Items []PatId
}

func (BindPat) patKind()    {}
func (DiscardPat) patKind() {}
func (TuplePat) patKind()   {}

// Ident is a declared name.
type Ident struct {
	Var  LocalVarId
	Span Span
	Name string
}

// Block is a sequence of statements.
type Block struct {
	Id    BlockId
	Span  Span
	Stmts []StmtId
}

//-----------------------------------------------------------------------------
// Operators and literals
//-----------------------------------------------------------------------------

// BinOp is a binary operator.
type BinOp int

const (
	BinOpAdd BinOp = iota
	BinOpAndB
	BinOpAndL
	BinOpDiv
	BinOpEq
	BinOpExp
	BinOpGt
	BinOpGte
	BinOpLt
	BinOpLte
	BinOpMod
	BinOpMul
	BinOpNeq
	BinOpOrB
	BinOpOrL
	BinOpShl
	BinOpShr
	BinOpSub
	BinOpXorB
)

func (op BinOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpAndB:
		return "&&&"
	case BinOpAndL:
		return "and"
	case BinOpDiv:
		return "/"
	case BinOpEq:
		return "=="
	case BinOpExp:
		return "^"
	case BinOpGt:
		return ">"
	case BinOpGte:
		return ">="
	case BinOpLt:
		return "<"
	case BinOpLte:
		return "<="
	case BinOpMod:
		return "%"
	case BinOpMul:
		return "*"
	case BinOpNeq:
		return "!="
	case BinOpOrB:
		return "|||"
	case BinOpOrL:
		return "or"
	case BinOpShl:
		return "<<<"
	case BinOpShr:
		return ">>>"
	case BinOpSub:
		return "-"
	case BinOpXorB:
		return "^^^"
	default:
		return fmt.Sprintf("unknown_binop_%d", int(op))
	}
}

// UnOp is a unary operator. The two functor applications are flattened into
// the operator set since they carry no other payload.
type UnOp int

const (
	UnOpNeg UnOp = iota
	UnOpNotB
	UnOpNotL
	UnOpPos
	UnOpUnwrap
	UnOpAdjoint
	UnOpControlled
)

// Lit is a literal value carried by a LitExpr.
type Lit interface {
	lit()
}

// BigIntLit is an arbitrary precision integer literal.
type BigIntLit struct {
	Val *big.Int
}

// BoolLit is a boolean literal.
type BoolLit struct {
	Val bool
}

// DoubleLit is a floating point literal.
type DoubleLit struct {
	Val float64
}

// IntLit is a 64-bit integer literal.
type IntLit struct {
	Val int64
}

// PauliLit is a Pauli operator literal.
type PauliLit struct {
	Val Pauli
}

// ResultLit is a measurement result literal.
type ResultLit struct {
	One bool
}

func (BigIntLit) lit() {}
func (BoolLit) lit()   {}
func (DoubleLit) lit() {}
func (IntLit) lit()    {}
func (PauliLit) lit()  {}
func (ResultLit) lit() {}

// Pauli is one of the four Pauli operators.
type Pauli int

const (
	PauliI Pauli = iota
	PauliX
	PauliY
	PauliZ
)

func (p Pauli) String() string {
	switch p {
	case PauliI:
		return "PauliI"
	case PauliX:
		return "PauliX"
	case PauliY:
		return "PauliY"
	case PauliZ:
		return "PauliZ"
	default:
		return fmt.Sprintf("unknown_pauli_%d", int(p))
	}
}
