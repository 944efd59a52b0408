package fir

import "fmt"

// Builder assembles a package programmatically. Registration methods insert
// table entries and hand back ids; Finish flattens every callable
// specialization and the entry sequence into execution graphs with the same
// node placement the compiler's lowering pass produces.
//
// Each registered expression, statement, and block belongs to exactly one
// enclosing construct; sharing a node between two graphs is not supported.
type Builder struct {
	pkg   *Package
	debug bool

	nextItem  LocalItemId
	nextVar   LocalVarId
	nextExpr  ExprId
	nextStmt  StmtId
	nextPat   PatId
	nextBlock BlockId

	cursor  uint32
	pending *Span
}

// NoExpr marks an absent optional expression in builder arguments.
const NoExpr ExprId = -1

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{pkg: NewPackage(), cursor: 1}
}

// WithDebug toggles debug flattening: statement markers, scope tracking
// nodes, and frame-tracking returns.
func (b *Builder) WithDebug(enable bool) *Builder {
	b.debug = enable
	return b
}

// Span sets the source span recorded on the next registered node. Without
// it the builder assigns small distinct spans automatically.
func (b *Builder) Span(lo, hi uint32) *Builder {
	b.pending = &Span{Lo: lo, Hi: hi}
	return b
}

func (b *Builder) nextSpan() Span {
	if b.pending != nil {
		span := *b.pending
		b.pending = nil
		return span
	}
	span := Span{Lo: b.cursor, Hi: b.cursor + 1}
	b.cursor++
	return span
}

//-----------------------------------------------------------------------------
// Expressions
//-----------------------------------------------------------------------------

// Expr registers an expression of any kind.
func (b *Builder) Expr(kind ExprKind) ExprId {
	id := b.nextExpr
	b.nextExpr++
	b.pkg.Exprs[id] = &Expr{Id: id, Span: b.nextSpan(), Kind: kind}
	return id
}

// Int registers an integer literal.
func (b *Builder) Int(val int64) ExprId {
	return b.Expr(LitExpr{Lit: IntLit{Val: val}})
}

// Bool registers a boolean literal.
func (b *Builder) Bool(val bool) ExprId {
	return b.Expr(LitExpr{Lit: BoolLit{Val: val}})
}

// Double registers a floating point literal.
func (b *Builder) Double(val float64) ExprId {
	return b.Expr(LitExpr{Lit: DoubleLit{Val: val}})
}

// BigLit registers a big integer literal.
func (b *Builder) BigLit(lit BigIntLit) ExprId {
	return b.Expr(LitExpr{Lit: lit})
}

// Result registers a measurement result literal.
func (b *Builder) Result(one bool) ExprId {
	return b.Expr(LitExpr{Lit: ResultLit{One: one}})
}

// PauliVal registers a Pauli literal.
func (b *Builder) PauliVal(p Pauli) ExprId {
	return b.Expr(LitExpr{Lit: PauliLit{Val: p}})
}

// Str registers a string made only of literal text.
func (b *Builder) Str(text string) ExprId {
	return b.Expr(StringExpr{Components: []StringComponent{LitComponent{Text: text}}})
}

// InterpStr registers a string with the given components.
func (b *Builder) InterpStr(components ...StringComponent) ExprId {
	return b.Expr(StringExpr{Components: components})
}

// Tuple registers a tuple expression; with no items it is the unit literal.
func (b *Builder) Tuple(items ...ExprId) ExprId {
	return b.Expr(TupleExpr{Items: items})
}

// Unit registers the unit literal.
func (b *Builder) Unit() ExprId {
	return b.Tuple()
}

// Array registers an array expression. When every item is a literal the
// all-literal form is used and the items are kept out of the graph.
func (b *Builder) Array(items ...ExprId) ExprId {
	allLits := true
	for _, item := range items {
		if _, ok := b.pkg.Expr(item).Kind.(LitExpr); !ok {
			allLits = false
			break
		}
	}
	if allLits {
		return b.Expr(ArrayLitExpr{Items: items})
	}
	return b.Expr(ArrayExpr{Items: items})
}

// ArrayRepeat registers `[value, size = size]`.
func (b *Builder) ArrayRepeat(value, size ExprId) ExprId {
	return b.Expr(ArrayRepeatExpr{Value: value, Size: size})
}

// BinExpr registers a binary operator application.
func (b *Builder) BinExpr(op BinOp, lhs, rhs ExprId) ExprId {
	return b.Expr(BinOpExpr{Op: op, Lhs: lhs, Rhs: rhs})
}

// UnExpr registers a unary operator application.
func (b *Builder) UnExpr(op UnOp, operand ExprId) ExprId {
	return b.Expr(UnOpExpr{Op: op, Operand: operand})
}

// Var registers a local variable read.
func (b *Builder) Var(v LocalVarId) ExprId {
	return b.Expr(VarExpr{Res: LocalRes{Var: v}})
}

// Global registers a reference to an item in this package.
func (b *Builder) Global(item LocalItemId) ExprId {
	return b.Expr(VarExpr{Res: ItemRes{Item: ItemId{Package: CurrentPackage, Item: item}}})
}

// GlobalIn registers a reference to an item in another package.
func (b *Builder) GlobalIn(pkg PackageId, item LocalItemId) ExprId {
	return b.Expr(VarExpr{Res: ItemRes{Item: ItemId{Package: pkg, Item: item}}})
}

// Call registers `callee(arg)`.
func (b *Builder) Call(callee, arg ExprId) ExprId {
	return b.Expr(CallExpr{Callee: callee, Arg: arg})
}

// If registers an if expression without an else branch.
func (b *Builder) If(cond, then ExprId) ExprId {
	return b.Expr(IfExpr{Cond: cond, Then: then})
}

// IfElse registers an if expression with an else branch.
func (b *Builder) IfElse(cond, then, els ExprId) ExprId {
	return b.Expr(IfExpr{Cond: cond, Then: then, Else: &els})
}

// While registers a while loop.
func (b *Builder) While(cond ExprId, body BlockId) ExprId {
	return b.Expr(WhileExpr{Cond: cond, Block: body})
}

// BlockVal registers a block expression.
func (b *Builder) BlockVal(block BlockId) ExprId {
	return b.Expr(BlockExpr{Block: block})
}

// Return registers `return value`.
func (b *Builder) Return(value ExprId) ExprId {
	return b.Expr(ReturnExpr{Value: value})
}

// Fail registers `fail message`.
func (b *Builder) Fail(message ExprId) ExprId {
	return b.Expr(FailExpr{Message: message})
}

// Range registers a range with any part NoExpr to leave it open.
func (b *Builder) Range(start, step, end ExprId) ExprId {
	kind := RangeExpr{}
	if start != NoExpr {
		kind.Start = &start
	}
	if step != NoExpr {
		kind.Step = &step
	}
	if end != NoExpr {
		kind.End = &end
	}
	return b.Expr(kind)
}

// Index registers `array[index]`.
func (b *Builder) Index(array, index ExprId) ExprId {
	return b.Expr(IndexExpr{Array: array, Index: index})
}

// Field registers a field access.
func (b *Builder) Field(record ExprId, field Field) ExprId {
	return b.Expr(FieldExpr{Record: record, Field: field})
}

// UpdateIndex registers `array w/ index <- replace`.
func (b *Builder) UpdateIndex(array, index, replace ExprId) ExprId {
	return b.Expr(UpdateIndexExpr{Array: array, Index: index, Replace: replace})
}

// UpdateField registers `record w/ field <- replace`.
func (b *Builder) UpdateField(record ExprId, field Field, replace ExprId) ExprId {
	return b.Expr(UpdateFieldExpr{Record: record, Field: field, Replace: replace})
}

// Assign registers `set lhs = rhs`.
func (b *Builder) Assign(lhs, rhs ExprId) ExprId {
	return b.Expr(AssignExpr{Lhs: lhs, Rhs: rhs})
}

// AssignBin registers a compound assignment `set lhs op= rhs`.
func (b *Builder) AssignBin(op BinOp, lhs, rhs ExprId) ExprId {
	return b.Expr(AssignOpExpr{Op: op, Lhs: lhs, Rhs: rhs})
}

// AssignAppend registers the array append form `set lhs += rhs`.
func (b *Builder) AssignAppend(lhs, rhs ExprId) ExprId {
	return b.Expr(AssignOpExpr{Op: BinOpAdd, Lhs: lhs, Rhs: rhs, Append: true})
}

// AssignIndex registers `set array w/= index <- replace`.
func (b *Builder) AssignIndex(array, index, replace ExprId) ExprId {
	return b.Expr(AssignIndexExpr{Array: array, Index: index, Replace: replace})
}

// AssignField registers `set record w/= field <- replace`.
func (b *Builder) AssignField(record ExprId, field Field, replace ExprId) ExprId {
	return b.Expr(AssignFieldExpr{Record: record, Field: field, Replace: replace})
}

// Closure registers a closure over the given locals.
func (b *Builder) Closure(captures []LocalVarId, callable LocalItemId) ExprId {
	return b.Expr(ClosureExpr{Captures: captures, Callable: callable})
}

// StructNew registers a struct constructor for an item in this package.
func (b *Builder) StructNew(item LocalItemId, fields ...FieldAssign) ExprId {
	return b.Expr(StructExpr{
		Item:   ItemId{Package: CurrentPackage, Item: item},
		Fields: fields,
	})
}

// StructCopy registers a struct copy constructor `new T { ...copy, fields }`.
func (b *Builder) StructCopy(item LocalItemId, copy ExprId, fields ...FieldAssign) ExprId {
	return b.Expr(StructExpr{
		Item:   ItemId{Package: CurrentPackage, Item: item},
		Copy:   &copy,
		Fields: fields,
	})
}

// Hole registers `_`.
func (b *Builder) Hole() ExprId {
	return b.Expr(HoleExpr{})
}

// PathAssign builds a field assignment following tuple indices.
func PathAssign(value ExprId, indices ...int) FieldAssign {
	return FieldAssign{Field: PathField{Indices: indices}, Value: value}
}

//-----------------------------------------------------------------------------
// Patterns, statements, blocks
//-----------------------------------------------------------------------------

// Bind registers a name binding pattern and returns the fresh variable id.
func (b *Builder) Bind(name string) (PatId, LocalVarId) {
	v := b.nextVar
	b.nextVar++
	span := b.nextSpan()
	id := b.nextPat
	b.nextPat++
	b.pkg.Pats[id] = &Pat{Id: id, Span: span, Kind: BindPat{Name: Ident{Var: v, Span: span, Name: name}}}
	return id, v
}

// Discard registers `_` as a pattern.
func (b *Builder) Discard() PatId {
	id := b.nextPat
	b.nextPat++
	b.pkg.Pats[id] = &Pat{Id: id, Span: b.nextSpan(), Kind: DiscardPat{}}
	return id
}

// TuplePattern registers a tuple pattern; with no items it matches unit.
func (b *Builder) TuplePattern(items ...PatId) PatId {
	id := b.nextPat
	b.nextPat++
	b.pkg.Pats[id] = &Pat{Id: id, Span: b.nextSpan(), Kind: TuplePat{Items: items}}
	return id
}

// UnitPattern registers the unit pattern.
func (b *Builder) UnitPattern() PatId {
	return b.TuplePattern()
}

func (b *Builder) stmt(kind StmtKind) StmtId {
	id := b.nextStmt
	b.nextStmt++
	b.pkg.Stmts[id] = &Stmt{Id: id, Span: b.nextSpan(), Kind: kind}
	return id
}

// ExprStatement registers an expression statement without a semicolon.
func (b *Builder) ExprStatement(expr ExprId) StmtId {
	return b.stmt(ExprStmt{Expr: expr})
}

// Semi registers an expression statement with a semicolon.
func (b *Builder) Semi(expr ExprId) StmtId {
	return b.stmt(SemiStmt{Expr: expr})
}

// Let registers an immutable binding statement.
func (b *Builder) Let(pat PatId, expr ExprId) StmtId {
	return b.stmt(LocalStmt{Pat: pat, Expr: expr})
}

// Mut registers a mutable binding statement.
func (b *Builder) Mut(pat PatId, expr ExprId) StmtId {
	return b.stmt(LocalStmt{Mutable: true, Pat: pat, Expr: expr})
}

// ItemStatement registers a local item statement.
func (b *Builder) ItemStatement(item LocalItemId) StmtId {
	return b.stmt(ItemStmt{Item: item})
}

// BlockOf registers a block of statements.
func (b *Builder) BlockOf(stmts ...StmtId) BlockId {
	id := b.nextBlock
	b.nextBlock++
	b.pkg.Blocks[id] = &Block{Id: id, Span: b.nextSpan(), Stmts: stmts}
	return id
}

//-----------------------------------------------------------------------------
// Items
//-----------------------------------------------------------------------------

// CallableDef describes a callable with specialized implementations.
type CallableDef struct {
	Name       string
	Input      PatId
	UnitOutput bool
	Body       BlockId
	Adj        *BlockId
	Ctl        *CtlDef
	CtlAdj     *CtlDef
}

// CtlDef is a controlled specialization: the controls binder and the body.
type CtlDef struct {
	Controls PatId
	Block    BlockId
}

func (b *Builder) item(kind ItemKind) LocalItemId {
	id := b.nextItem
	b.nextItem++
	b.pkg.Items[id] = &Item{Id: id, Span: b.nextSpan(), Kind: kind}
	return id
}

// Callable registers a callable with a body and optional functor
// specializations. Graphs are flattened by Finish.
func (b *Builder) Callable(def CallableDef) LocalItemId {
	impl := SpecImpl{Body: SpecDecl{Block: def.Body}}
	if def.Adj != nil {
		impl.Adj = &SpecDecl{Block: *def.Adj}
	}
	if def.Ctl != nil {
		controls := def.Ctl.Controls
		impl.Ctl = &SpecDecl{Block: def.Ctl.Block, Input: &controls}
	}
	if def.CtlAdj != nil {
		controls := def.CtlAdj.Controls
		impl.CtlAdj = &SpecDecl{Block: def.CtlAdj.Block, Input: &controls}
	}
	return b.item(CallableItem{Decl: CallableDecl{
		Name:       def.Name,
		Input:      def.Input,
		UnitOutput: def.UnitOutput,
		Impl:       impl,
	}})
}

// Intrinsic registers a callable dispatched by name at run time.
func (b *Builder) Intrinsic(name string, input PatId, unitOutput bool) LocalItemId {
	return b.item(CallableItem{Decl: CallableDecl{
		Name:       name,
		Input:      input,
		UnitOutput: unitOutput,
		Impl:       IntrinsicImpl{},
	}})
}

// SimulatableIntrinsic registers an intrinsic with a body to execute in its
// place when simulating.
func (b *Builder) SimulatableIntrinsic(name string, input PatId, unitOutput bool, body BlockId) LocalItemId {
	return b.item(CallableItem{Decl: CallableDecl{
		Name:       name,
		Input:      input,
		UnitOutput: unitOutput,
		Impl:       SimulatableIntrinsicImpl{Body: SpecDecl{Block: body}},
	}})
}

// Udt registers a user-defined record type.
func (b *Builder) Udt(name string) LocalItemId {
	return b.item(UdtItem{Name: name})
}

// Entry sets the package entry expression.
func (b *Builder) Entry(expr ExprId) *Builder {
	b.pkg.Entry = &expr
	return b
}

// TopStmt appends a top-level statement, executable later as a fragment.
func (b *Builder) TopStmt(stmt StmtId) *Builder {
	b.pkg.TopStmts = append(b.pkg.TopStmts, stmt)
	return b
}

// Finish flattens all execution graphs and returns the package. The builder
// must not be reused afterwards.
func (b *Builder) Finish() *Package {
	for _, item := range b.pkg.Items {
		callable, ok := item.Kind.(CallableItem)
		if !ok {
			continue
		}
		switch impl := callable.Decl.Impl.(type) {
		case SpecImpl:
			impl.Body.Graph = b.flattenSpec(impl.Body.Block)
			if impl.Adj != nil {
				impl.Adj.Graph = b.flattenSpec(impl.Adj.Block)
			}
			if impl.Ctl != nil {
				impl.Ctl.Graph = b.flattenSpec(impl.Ctl.Block)
			}
			if impl.CtlAdj != nil {
				impl.CtlAdj.Graph = b.flattenSpec(impl.CtlAdj.Block)
			}
			callable.Decl.Impl = impl
			item.Kind = callable
		case SimulatableIntrinsicImpl:
			impl.Body.Graph = b.flattenSpec(impl.Body.Block)
			callable.Decl.Impl = impl
			item.Kind = callable
		}
	}

	lower := &graphLowerer{pkg: b.pkg, debug: b.debug}
	for _, stmt := range b.pkg.TopStmts {
		lower.stmt(stmt)
	}
	if b.pkg.Entry != nil {
		lower.expr(*b.pkg.Entry)
	}
	b.pkg.EntryGraph = lower.take()
	return b.pkg
}

func (b *Builder) flattenSpec(block BlockId) ExecGraph {
	lower := &graphLowerer{pkg: b.pkg, debug: b.debug}
	lower.block(block)
	return lower.take()
}

//-----------------------------------------------------------------------------
// Graph flattening
//-----------------------------------------------------------------------------

// graphLowerer turns registered trees into flat node sequences. Node
// placement mirrors the compiler's lowering pass: operands that must
// survive later evaluation get Store nodes, short-circuit operators patch
// placeholder jumps, and assignment targets are kept out of the graph.
type graphLowerer struct {
	pkg   *Package
	graph ExecGraph
	debug bool
}

func (l *graphLowerer) push(node GraphNode) {
	l.graph = append(l.graph, node)
}

func (l *graphLowerer) take() ExecGraph {
	ret := RetNode()
	if l.debug {
		ret = RetFrameNode()
	}
	graph := append(l.graph, ret)
	l.graph = nil
	return graph
}

func (l *graphLowerer) block(id BlockId) {
	block := l.pkg.Block(id)
	if l.debug {
		l.push(PushScopeNode())
	}
	for _, stmt := range block.Stmts {
		l.stmt(stmt)
	}
	setUnit := len(block.Stmts) == 0
	if !setUnit {
		last := l.pkg.Stmt(block.Stmts[len(block.Stmts)-1])
		if _, ok := last.Kind.(ExprStmt); !ok {
			setUnit = true
		}
	}
	if setUnit {
		l.push(UnitNode())
	}
	if l.debug {
		l.push(BlockEndNode(id))
		l.push(PopScopeNode())
	}
}

func (l *graphLowerer) stmt(id StmtId) {
	stmt := l.pkg.Stmt(id)
	start := len(l.graph)
	if l.debug {
		l.push(StmtNode(id))
	}
	switch kind := stmt.Kind.(type) {
	case ExprStmt:
		l.expr(kind.Expr)
	case SemiStmt:
		l.expr(kind.Expr)
	case LocalStmt:
		l.expr(kind.Expr)
		l.push(BindNode(kind.Pat))
	case ItemStmt:
		// Items execute nothing.
	default:
		panic(fmt.Sprintf("fir: unknown statement kind %T", stmt.Kind))
	}
	stmt.GraphRange = GraphRange{Start: start, End: len(l.graph)}
}

func (l *graphLowerer) expr(id ExprId) {
	expr := l.pkg.Expr(id)
	switch kind := expr.Kind.(type) {
	case ArrayLitExpr, LitExpr, VarExpr, ClosureExpr, HoleExpr:
		// No operands to execute.

	case ArrayExpr:
		for _, item := range kind.Items {
			l.expr(item)
			l.push(StoreNode())
		}

	case ArrayRepeatExpr:
		l.expr(kind.Value)
		l.push(StoreNode())
		l.expr(kind.Size)

	case AssignExpr:
		// The assignment target is not executed.
		l.expr(kind.Rhs)

	case AssignOpExpr:
		if !kind.Append {
			l.expr(kind.Lhs)
		}
		idx := len(l.graph)
		switch {
		case kind.Op == BinOpAndL || kind.Op == BinOpOrL:
			l.push(JumpNode(0))
		case !kind.Append:
			l.push(StoreNode())
		}
		l.expr(kind.Rhs)
		switch kind.Op {
		case BinOpAndL:
			l.graph[idx] = JumpIfNotNode(len(l.graph))
		case BinOpOrL:
			l.graph[idx] = JumpIfNode(len(l.graph))
		}

	case AssignFieldExpr:
		l.expr(kind.Replace)
		l.push(StoreNode())
		l.expr(kind.Record)

	case AssignIndexExpr:
		l.expr(kind.Index)
		l.push(StoreNode())
		l.expr(kind.Replace)
		// The assignment target is not executed.

	case BinOpExpr:
		l.expr(kind.Lhs)
		idx := len(l.graph)
		if kind.Op == BinOpAndL || kind.Op == BinOpOrL {
			l.push(JumpNode(0))
		} else {
			l.push(StoreNode())
		}
		l.expr(kind.Rhs)
		switch kind.Op {
		case BinOpAndL:
			// Skip the right-hand side when the left is false.
			l.graph[idx] = JumpIfNotNode(len(l.graph))
		case BinOpOrL:
			// Skip the right-hand side when the left is true.
			l.graph[idx] = JumpIfNode(len(l.graph))
		}

	case BlockExpr:
		l.block(kind.Block)

	case CallExpr:
		l.expr(kind.Callee)
		l.push(StoreNode())
		l.expr(kind.Arg)

	case FailExpr:
		l.expr(kind.Message)

	case FieldExpr:
		l.expr(kind.Record)

	case IfExpr:
		l.expr(kind.Cond)
		branchIdx := len(l.graph)
		l.push(JumpNode(0))
		l.expr(kind.Then)
		var elseIdx int
		if kind.Else != nil {
			idx := len(l.graph)
			l.push(JumpNode(0))
			l.expr(*kind.Else)
			l.graph[idx] = JumpNode(len(l.graph))
			elseIdx = idx + 1
		} else {
			// Without an else the expression is always unit.
			elseIdx = len(l.graph)
			l.push(UnitNode())
		}
		l.graph[branchIdx] = JumpIfNotNode(elseIdx)

	case IndexExpr:
		l.expr(kind.Array)
		l.push(StoreNode())
		l.expr(kind.Index)

	case RangeExpr:
		if kind.Start != nil {
			l.expr(*kind.Start)
			l.push(StoreNode())
		}
		if kind.Step != nil {
			l.expr(*kind.Step)
			l.push(StoreNode())
		}
		if kind.End != nil {
			l.expr(*kind.End)
		}

	case ReturnExpr:
		l.expr(kind.Value)
		if l.debug {
			l.push(RetFrameNode())
		} else {
			l.push(RetNode())
		}

	case StructExpr:
		if kind.Copy != nil {
			l.expr(*kind.Copy)
			l.push(StoreNode())
		}
		for _, field := range kind.Fields {
			l.expr(field.Value)
			l.push(StoreNode())
		}

	case StringExpr:
		for _, component := range kind.Components {
			if comp, ok := component.(ExprComponent); ok {
				l.expr(comp.Expr)
				l.push(StoreNode())
			}
		}

	case TupleExpr:
		for _, item := range kind.Items {
			l.expr(item)
			l.push(StoreNode())
		}

	case UnOpExpr:
		l.expr(kind.Operand)

	case UpdateIndexExpr:
		l.expr(kind.Index)
		l.push(StoreNode())
		l.expr(kind.Replace)
		l.push(StoreNode())
		l.expr(kind.Array)

	case UpdateFieldExpr:
		l.expr(kind.Replace)
		l.push(StoreNode())
		l.expr(kind.Record)

	case WhileExpr:
		condIdx := len(l.graph)
		l.expr(kind.Cond)
		idx := len(l.graph)
		l.push(JumpNode(0))
		l.block(kind.Block)
		l.push(JumpNode(condIdx))
		l.graph[idx] = JumpIfNotNode(len(l.graph))
		// While loops are always unit.
		l.push(UnitNode())

	default:
		panic(fmt.Sprintf("fir: unknown expression kind %T", expr.Kind))
	}

	switch kind := expr.Kind.(type) {
	case BinOpExpr:
		// Logical operators resolve through the jumps above and leave
		// their result in the current value without a dispatch node.
		if kind.Op != BinOpAndL && kind.Op != BinOpOrL {
			l.push(ExprNode(id))
		}
	case BlockExpr, IfExpr, ReturnExpr, WhileExpr:
		// Control flow is fully expanded above.
	case AssignExpr, AssignFieldExpr, AssignIndexExpr, AssignOpExpr:
		// Assignments evaluate to unit.
		l.push(ExprNode(id))
		l.push(UnitNode())
	default:
		l.push(ExprNode(id))
	}
}
