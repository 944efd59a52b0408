package fir

import (
	"fmt"
	"sort"
)

//-----------------------------------------------------------------------------
// Items and callables
//-----------------------------------------------------------------------------

// Item is a global declaration within a package.
type Item struct {
	Id   LocalItemId
	Span Span
	Kind ItemKind
}

// ItemKind is the closed set of item shapes.
type ItemKind interface {
	itemKind()
}

// CallableItem declares a function or operation.
type CallableItem struct {
	Decl CallableDecl
}

// UdtItem declares a user-defined record type. Constructing one is an
// identity operation at run time; field layout is resolved before execution.
type UdtItem struct {
	Name string
}

func (CallableItem) itemKind() {}
func (UdtItem) itemKind()      {}

// CallableDecl is a callable declaration header.
type CallableDecl struct {
	Name string
	// Input is the parameter pattern the argument binds against.
	Input PatId
	// UnitOutput records whether the declared return type is Unit. Intrinsic
	// callables declared non-unit must not return unit at run time.
	UnitOutput bool
	Impl       CallableImpl
}

// CallableImpl is how a callable executes.
type CallableImpl interface {
	callableImpl()
}

// IntrinsicImpl dispatches by callable name to the intrinsic table.
type IntrinsicImpl struct{}

// SpecImpl carries the functor specializations of a callable.
type SpecImpl struct {
	Body   SpecDecl
	Adj    *SpecDecl
	Ctl    *SpecDecl
	CtlAdj *SpecDecl
}

// SimulatableIntrinsicImpl is an intrinsic with a graph to execute in place
// of the intrinsic when running against a simulator.
type SimulatableIntrinsicImpl struct {
	Body SpecDecl
}

func (IntrinsicImpl) callableImpl()            {}
func (SpecImpl) callableImpl()                 {}
func (SimulatableIntrinsicImpl) callableImpl() {}

// SpecDecl is one specialization of a callable.
type SpecDecl struct {
	// Block is the source block the graph was flattened from.
	Block BlockId
	// Input binds the control qubits for controlled specializations and is
	// nil for body and adjoint.
	Input *PatId
	Graph ExecGraph
}

// Global is a resolved global item: a callable or a user-defined type.
type Global interface {
	global()
}

// CallableGlobal is a callable resolved from the store.
type CallableGlobal struct {
	Decl *CallableDecl
}

// UdtGlobal is a user-defined type resolved from the store.
type UdtGlobal struct{}

func (CallableGlobal) global() {}
func (UdtGlobal) global()      {}

//-----------------------------------------------------------------------------
// Packages
//-----------------------------------------------------------------------------

// Package is the root of one program fragment's tables. Ids are dense and
// assigned by the builder; lookups panic on a missing id since references
// between tables are fixed before execution.
type Package struct {
	Items  map[LocalItemId]*Item
	Blocks map[BlockId]*Block
	Exprs  map[ExprId]*Expr
	Pats   map[PatId]*Pat
	Stmts  map[StmtId]*Stmt

	// Entry is the entry expression of an executable package, with its
	// flattened graph. Top-level statement ranges index into EntryGraph.
	Entry      *ExprId
	EntryGraph ExecGraph

	// TopStmts lists the package's top-level statements in order, so they
	// can be executed one at a time as fragments.
	TopStmts []StmtId
}

// NewPackage returns an empty package.
func NewPackage() *Package {
	return &Package{
		Items:  map[LocalItemId]*Item{},
		Blocks: map[BlockId]*Block{},
		Exprs:  map[ExprId]*Expr{},
		Pats:   map[PatId]*Pat{},
		Stmts:  map[StmtId]*Stmt{},
	}
}

// Expr looks up an expression.
func (p *Package) Expr(id ExprId) *Expr {
	expr, ok := p.Exprs[id]
	if !ok {
		panic(fmt.Sprintf("fir: expression %d not found", id))
	}
	return expr
}

// Stmt looks up a statement.
func (p *Package) Stmt(id StmtId) *Stmt {
	stmt, ok := p.Stmts[id]
	if !ok {
		panic(fmt.Sprintf("fir: statement %d not found", id))
	}
	return stmt
}

// Pat looks up a pattern.
func (p *Package) Pat(id PatId) *Pat {
	pat, ok := p.Pats[id]
	if !ok {
		panic(fmt.Sprintf("fir: pattern %d not found", id))
	}
	return pat
}

// Block looks up a block.
func (p *Package) Block(id BlockId) *Block {
	block, ok := p.Blocks[id]
	if !ok {
		panic(fmt.Sprintf("fir: block %d not found", id))
	}
	return block
}

// Item looks up an item.
func (p *Package) Item(id LocalItemId) *Item {
	item, ok := p.Items[id]
	if !ok {
		panic(fmt.Sprintf("fir: item %d not found", id))
	}
	return item
}

// Global resolves an item to a global, or nil when the item does not exist
// or is not a global.
func (p *Package) Global(id LocalItemId) Global {
	item, ok := p.Items[id]
	if !ok {
		return nil
	}
	switch kind := item.Kind.(type) {
	case CallableItem:
		return CallableGlobal{Decl: &kind.Decl}
	case UdtItem:
		return UdtGlobal{}
	default:
		return nil
	}
}

// StmtSection extracts the standalone graph for a single top-level
// statement, with jump targets rebased.
func (p *Package) StmtSection(id StmtId) ExecGraph {
	return Section(p.EntryGraph, p.Stmt(id).GraphRange)
}

//-----------------------------------------------------------------------------
// Package store
//-----------------------------------------------------------------------------

// PackageStoreLookup finds program elements across packages. The evaluator
// depends on this capability rather than on the store itself.
type PackageStoreLookup interface {
	Expr(id StoreExprId) *Expr
	Stmt(id StoreStmtId) *Stmt
	Pat(id StorePatId) *Pat
	Block(id StoreBlockId) *Block
	Item(id StoreItemId) *Item
	Global(id StoreItemId) Global
}

// PackageStore holds every package of a program.
type PackageStore struct {
	packages map[PackageId]*Package
}

// NewPackageStore returns an empty store.
func NewPackageStore() *PackageStore {
	return &PackageStore{packages: map[PackageId]*Package{}}
}

// Insert adds a package under the given id, replacing any previous package.
func (s *PackageStore) Insert(id PackageId, pkg *Package) {
	s.packages[id] = pkg
}

// Get returns the package with the given id.
func (s *PackageStore) Get(id PackageId) *Package {
	pkg, ok := s.packages[id]
	if !ok {
		panic(fmt.Sprintf("fir: package %d not found in store", id))
	}
	return pkg
}

// Len reports how many packages the store holds.
func (s *PackageStore) Len() int {
	return len(s.packages)
}

// Ids lists the package ids present in the store in ascending order.
func (s *PackageStore) Ids() []PackageId {
	ids := make([]PackageId, 0, len(s.packages))
	for id := range s.packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *PackageStore) Expr(id StoreExprId) *Expr {
	return s.Get(id.Package).Expr(id.Expr)
}

func (s *PackageStore) Stmt(id StoreStmtId) *Stmt {
	return s.Get(id.Package).Stmt(id.Stmt)
}

func (s *PackageStore) Pat(id StorePatId) *Pat {
	return s.Get(id.Package).Pat(id.Pat)
}

func (s *PackageStore) Block(id StoreBlockId) *Block {
	return s.Get(id.Package).Block(id.Block)
}

func (s *PackageStore) Item(id StoreItemId) *Item {
	return s.Get(id.Package).Item(id.Item)
}

func (s *PackageStore) Global(id StoreItemId) Global {
	return s.Get(id.Package).Global(id.Item)
}
