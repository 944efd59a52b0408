package fir

import "fmt"

// PackageId identifies a package within a package store.
type PackageId int

// CurrentPackage marks an item reference that resolves against whichever
// package is executing when the reference is read.
const CurrentPackage PackageId = -1

// LocalItemId identifies an item within a package.
type LocalItemId int

// LocalVarId identifies a local variable within a package.
type LocalVarId int

// ExprId identifies an expression within a package.
type ExprId int

// StmtId identifies a statement within a package.
type StmtId int

// PatId identifies a pattern within a package.
type PatId int

// BlockId identifies a block within a package.
type BlockId int

// Span is a half-open byte range into the source a package was built from.
// The zero span marks generated code with no source location.
type Span struct {
	Lo uint32 `json:"lo"`
	Hi uint32 `json:"hi"`
}

// IsZero reports whether the span carries no source location.
func (s Span) IsZero() bool {
	return s == Span{}
}

// PackageSpan locates a span within a specific package of a store.
type PackageSpan struct {
	Package PackageId
	Span    Span
}

// ItemId references an item either in an explicit package or in the package
// currently executing (Package == CurrentPackage).
type ItemId struct {
	Package PackageId
	Item    LocalItemId
}

// In resolves the reference against the executing package.
func (id ItemId) In(current PackageId) StoreItemId {
	if id.Package == CurrentPackage {
		return StoreItemId{Package: current, Item: id.Item}
	}
	return StoreItemId{Package: id.Package, Item: id.Item}
}

func (id ItemId) String() string {
	if id.Package == CurrentPackage {
		return fmt.Sprintf("Item %d", id.Item)
	}
	return fmt.Sprintf("Item %d (Package %d)", id.Item, id.Package)
}

// StoreItemId is a fully resolved item reference within a package store.
type StoreItemId struct {
	Package PackageId
	Item    LocalItemId
}

func (id StoreItemId) String() string {
	return fmt.Sprintf("Item %d (Package %d)", id.Item, id.Package)
}

// StoreExprId is a fully resolved expression reference within a package store.
type StoreExprId struct {
	Package PackageId
	Expr    ExprId
}

// StoreStmtId is a fully resolved statement reference within a package store.
type StoreStmtId struct {
	Package PackageId
	Stmt    StmtId
}

// StorePatId is a fully resolved pattern reference within a package store.
type StorePatId struct {
	Package PackageId
	Pat     PatId
}

// StoreBlockId is a fully resolved block reference within a package store.
type StoreBlockId struct {
	Package PackageId
	Block   BlockId
}
