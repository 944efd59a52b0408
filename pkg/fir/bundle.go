package fir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
)

// BundleVersion is the serialized package format understood by this build.
const BundleVersion = 1

// EncodeBundle serialises a package to its JSON bundle form. Tables are
// written in id order so the output is deterministic.
func EncodeBundle(pkg *Package) ([]byte, error) {
	if pkg == nil {
		return nil, fmt.Errorf("bundle: nil package")
	}
	data, err := json.MarshalIndent(pkg.toDisk(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeBundle parses a JSON bundle produced by EncodeBundle.
func DecodeBundle(data []byte) (*Package, error) {
	var raw bundleDisk
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bundle: parse: %w", err)
	}
	if raw.Version != BundleVersion {
		return nil, fmt.Errorf("bundle: unsupported format version %d", raw.Version)
	}
	return raw.toPackage()
}

// WriteBundle serialises a package to a file.
func WriteBundle(pkg *Package, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bundle: resolve %s: %w", path, err)
	}
	data, err := EncodeBundle(pkg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("bundle: write %s: %w", abs, err)
	}
	return nil
}

// LoadBundle parses a bundle file from disk.
func LoadBundle(path string) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	pkg, err := DecodeBundle(data)
	if err != nil {
		return nil, fmt.Errorf("bundle: %s: %w", abs, err)
	}
	return pkg, nil
}

//-----------------------------------------------------------------------------
// Disk layout
//-----------------------------------------------------------------------------

type bundleDisk struct {
	Version    int         `json:"version"`
	Items      []itemDisk  `json:"items,omitempty"`
	Blocks     []blockDisk `json:"blocks,omitempty"`
	Exprs      []exprDisk  `json:"exprs,omitempty"`
	Pats       []patDisk   `json:"pats,omitempty"`
	Stmts      []stmtDisk  `json:"stmts,omitempty"`
	Entry      *int        `json:"entry,omitempty"`
	EntryGraph []nodeDisk  `json:"entryGraph,omitempty"`
	TopStmts   []int       `json:"topStmts,omitempty"`
}

type itemDisk struct {
	Id         int       `json:"id"`
	Span       Span      `json:"span"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name,omitempty"`
	Input      *int      `json:"input,omitempty"`
	UnitOutput bool      `json:"unitOutput,omitempty"`
	Impl       *implDisk `json:"impl,omitempty"`
}

type implDisk struct {
	Kind   string    `json:"kind"`
	Body   *specDisk `json:"body,omitempty"`
	Adj    *specDisk `json:"adj,omitempty"`
	Ctl    *specDisk `json:"ctl,omitempty"`
	CtlAdj *specDisk `json:"ctlAdj,omitempty"`
}

type specDisk struct {
	Block int        `json:"block"`
	Input *int       `json:"input,omitempty"`
	Graph []nodeDisk `json:"graph,omitempty"`
}

type blockDisk struct {
	Id    int   `json:"id"`
	Span  Span  `json:"span"`
	Stmts []int `json:"stmts,omitempty"`
}

type stmtDisk struct {
	Id      int         `json:"id"`
	Span    Span        `json:"span"`
	Kind    string      `json:"kind"`
	Expr    *int        `json:"expr,omitempty"`
	Mutable bool        `json:"mutable,omitempty"`
	Pat     *int        `json:"pat,omitempty"`
	Item    *int        `json:"item,omitempty"`
	Range   *GraphRange `json:"graphRange,omitempty"`
}

type patDisk struct {
	Id    int    `json:"id"`
	Span  Span   `json:"span"`
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Var   *int   `json:"var,omitempty"`
	Items []int  `json:"items,omitempty"`
}

type exprDisk struct {
	Id         int             `json:"id"`
	Span       Span            `json:"span"`
	Kind       string          `json:"kind"`
	Op         string          `json:"op,omitempty"`
	Append     bool            `json:"append,omitempty"`
	Items      []int           `json:"items,omitempty"`
	Lhs        *int            `json:"lhs,omitempty"`
	Rhs        *int            `json:"rhs,omitempty"`
	Record     *int            `json:"record,omitempty"`
	Field      *fieldDisk      `json:"field,omitempty"`
	Array      *int            `json:"array,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Replace    *int            `json:"replace,omitempty"`
	Value      *int            `json:"value,omitempty"`
	Size       *int            `json:"size,omitempty"`
	Callee     *int            `json:"callee,omitempty"`
	Arg        *int            `json:"arg,omitempty"`
	Cond       *int            `json:"cond,omitempty"`
	Then       *int            `json:"then,omitempty"`
	Else       *int            `json:"else,omitempty"`
	Block      *int            `json:"block,omitempty"`
	Message    *int            `json:"message,omitempty"`
	Start      *int            `json:"start,omitempty"`
	Step       *int            `json:"step,omitempty"`
	End        *int            `json:"end,omitempty"`
	Operand    *int            `json:"operand,omitempty"`
	Captures   []int           `json:"captures,omitempty"`
	Callable   *int            `json:"callable,omitempty"`
	Item       *itemRefDisk    `json:"item,omitempty"`
	Copy       *int            `json:"copy,omitempty"`
	Fields     []fieldSetDisk  `json:"fields,omitempty"`
	Components []componentDisk `json:"components,omitempty"`
	Lit        *litDisk        `json:"lit,omitempty"`
	Res        *resDisk        `json:"res,omitempty"`
}

type itemRefDisk struct {
	Package int `json:"package"`
	Item    int `json:"item"`
}

type resDisk struct {
	Item  *itemRefDisk `json:"item,omitempty"`
	Local *int         `json:"local,omitempty"`
}

type fieldDisk struct {
	Kind string `json:"kind"`
	Path []int  `json:"path,omitempty"`
	Prim string `json:"prim,omitempty"`
}

type fieldSetDisk struct {
	Field fieldDisk `json:"field"`
	Value int       `json:"value"`
}

type componentDisk struct {
	Text *string `json:"text,omitempty"`
	Expr *int    `json:"expr,omitempty"`
}

type litDisk struct {
	Int    *int64   `json:"int,omitempty"`
	BigInt *string  `json:"bigInt,omitempty"`
	Double *float64 `json:"double,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
	Pauli  *string  `json:"pauli,omitempty"`
	Result *string  `json:"result,omitempty"`
}

type nodeDisk struct {
	Kind   string `json:"kind"`
	Pat    *int   `json:"pat,omitempty"`
	Expr   *int   `json:"expr,omitempty"`
	Stmt   *int   `json:"stmt,omitempty"`
	Block  *int   `json:"block,omitempty"`
	Target *int   `json:"target,omitempty"`
}

//-----------------------------------------------------------------------------
// Encoding
//-----------------------------------------------------------------------------

func ref[T ~int](id T) *int {
	v := int(id)
	return &v
}

func optRef[T ~int](id *T) *int {
	if id == nil {
		return nil
	}
	return ref(*id)
}

func (p *Package) toDisk() bundleDisk {
	disk := bundleDisk{Version: BundleVersion}

	for _, id := range sortedKeys(p.Items) {
		disk.Items = append(disk.Items, itemToDisk(p.Items[id]))
	}
	for _, id := range sortedKeys(p.Blocks) {
		block := p.Blocks[id]
		stmts := make([]int, 0, len(block.Stmts))
		for _, s := range block.Stmts {
			stmts = append(stmts, int(s))
		}
		disk.Blocks = append(disk.Blocks, blockDisk{Id: int(block.Id), Span: block.Span, Stmts: stmts})
	}
	for _, id := range sortedKeys(p.Exprs) {
		disk.Exprs = append(disk.Exprs, exprToDisk(p.Exprs[id]))
	}
	for _, id := range sortedKeys(p.Pats) {
		disk.Pats = append(disk.Pats, patToDisk(p.Pats[id]))
	}
	for _, id := range sortedKeys(p.Stmts) {
		disk.Stmts = append(disk.Stmts, stmtToDisk(p.Stmts[id]))
	}

	disk.Entry = optRef(p.Entry)
	disk.EntryGraph = graphToDisk(p.EntryGraph)
	for _, s := range p.TopStmts {
		disk.TopStmts = append(disk.TopStmts, int(s))
	}
	return disk
}

func sortedKeys[K ~int, V any](table map[K]*V) []K {
	keys := make([]K, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func itemToDisk(item *Item) itemDisk {
	disk := itemDisk{Id: int(item.Id), Span: item.Span}
	switch kind := item.Kind.(type) {
	case CallableItem:
		disk.Kind = "callable"
		disk.Name = kind.Decl.Name
		disk.Input = ref(kind.Decl.Input)
		disk.UnitOutput = kind.Decl.UnitOutput
		disk.Impl = implToDisk(kind.Decl.Impl)
	case UdtItem:
		disk.Kind = "udt"
		disk.Name = kind.Name
	default:
		panic(fmt.Sprintf("fir: unknown item kind %T", item.Kind))
	}
	return disk
}

func implToDisk(impl CallableImpl) *implDisk {
	switch kind := impl.(type) {
	case IntrinsicImpl:
		return &implDisk{Kind: "intrinsic"}
	case SpecImpl:
		disk := &implDisk{Kind: "spec", Body: specToDisk(&kind.Body)}
		disk.Adj = specToDisk(kind.Adj)
		disk.Ctl = specToDisk(kind.Ctl)
		disk.CtlAdj = specToDisk(kind.CtlAdj)
		return disk
	case SimulatableIntrinsicImpl:
		return &implDisk{Kind: "simulatable", Body: specToDisk(&kind.Body)}
	default:
		panic(fmt.Sprintf("fir: unknown callable implementation %T", impl))
	}
}

func specToDisk(spec *SpecDecl) *specDisk {
	if spec == nil {
		return nil
	}
	return &specDisk{
		Block: int(spec.Block),
		Input: optRef(spec.Input),
		Graph: graphToDisk(spec.Graph),
	}
}

func stmtToDisk(stmt *Stmt) stmtDisk {
	disk := stmtDisk{Id: int(stmt.Id), Span: stmt.Span}
	if stmt.GraphRange != (GraphRange{}) {
		r := stmt.GraphRange
		disk.Range = &r
	}
	switch kind := stmt.Kind.(type) {
	case ExprStmt:
		disk.Kind = "expr"
		disk.Expr = ref(kind.Expr)
	case SemiStmt:
		disk.Kind = "semi"
		disk.Expr = ref(kind.Expr)
	case LocalStmt:
		disk.Kind = "local"
		disk.Mutable = kind.Mutable
		disk.Pat = ref(kind.Pat)
		disk.Expr = ref(kind.Expr)
	case ItemStmt:
		disk.Kind = "item"
		disk.Item = ref(kind.Item)
	default:
		panic(fmt.Sprintf("fir: unknown statement kind %T", stmt.Kind))
	}
	return disk
}

func patToDisk(pat *Pat) patDisk {
	disk := patDisk{Id: int(pat.Id), Span: pat.Span}
	switch kind := pat.Kind.(type) {
	case BindPat:
		disk.Kind = "bind"
		disk.Name = kind.Name.Name
		disk.Var = ref(kind.Name.Var)
	case DiscardPat:
		disk.Kind = "discard"
	case TuplePat:
		disk.Kind = "tuple"
		disk.Items = make([]int, 0, len(kind.Items))
		for _, item := range kind.Items {
			disk.Items = append(disk.Items, int(item))
		}
	default:
		panic(fmt.Sprintf("fir: unknown pattern kind %T", pat.Kind))
	}
	return disk
}

func exprToDisk(expr *Expr) exprDisk {
	disk := exprDisk{Id: int(expr.Id), Span: expr.Span}
	switch kind := expr.Kind.(type) {
	case ArrayExpr:
		disk.Kind = "array"
		disk.Items = exprIds(kind.Items)
	case ArrayLitExpr:
		disk.Kind = "arrayLit"
		disk.Items = exprIds(kind.Items)
	case ArrayRepeatExpr:
		disk.Kind = "arrayRepeat"
		disk.Value = ref(kind.Value)
		disk.Size = ref(kind.Size)
	case AssignExpr:
		disk.Kind = "assign"
		disk.Lhs = ref(kind.Lhs)
		disk.Rhs = ref(kind.Rhs)
	case AssignOpExpr:
		disk.Kind = "assignOp"
		disk.Op = kind.Op.String()
		disk.Append = kind.Append
		disk.Lhs = ref(kind.Lhs)
		disk.Rhs = ref(kind.Rhs)
	case AssignFieldExpr:
		disk.Kind = "assignField"
		disk.Record = ref(kind.Record)
		field := fieldToDisk(kind.Field)
		disk.Field = &field
		disk.Replace = ref(kind.Replace)
	case AssignIndexExpr:
		disk.Kind = "assignIndex"
		disk.Array = ref(kind.Array)
		disk.Index = ref(kind.Index)
		disk.Replace = ref(kind.Replace)
	case BinOpExpr:
		disk.Kind = "binOp"
		disk.Op = kind.Op.String()
		disk.Lhs = ref(kind.Lhs)
		disk.Rhs = ref(kind.Rhs)
	case BlockExpr:
		disk.Kind = "block"
		disk.Block = ref(kind.Block)
	case CallExpr:
		disk.Kind = "call"
		disk.Callee = ref(kind.Callee)
		disk.Arg = ref(kind.Arg)
	case ClosureExpr:
		disk.Kind = "closure"
		disk.Captures = make([]int, 0, len(kind.Captures))
		for _, capture := range kind.Captures {
			disk.Captures = append(disk.Captures, int(capture))
		}
		disk.Callable = ref(kind.Callable)
	case FailExpr:
		disk.Kind = "fail"
		disk.Message = ref(kind.Message)
	case FieldExpr:
		disk.Kind = "field"
		disk.Record = ref(kind.Record)
		field := fieldToDisk(kind.Field)
		disk.Field = &field
	case HoleExpr:
		disk.Kind = "hole"
	case IfExpr:
		disk.Kind = "if"
		disk.Cond = ref(kind.Cond)
		disk.Then = ref(kind.Then)
		disk.Else = optRef(kind.Else)
	case IndexExpr:
		disk.Kind = "index"
		disk.Array = ref(kind.Array)
		disk.Index = ref(kind.Index)
	case LitExpr:
		disk.Kind = "lit"
		lit := litToDisk(kind.Lit)
		disk.Lit = &lit
	case RangeExpr:
		disk.Kind = "range"
		disk.Start = optRef(kind.Start)
		disk.Step = optRef(kind.Step)
		disk.End = optRef(kind.End)
	case ReturnExpr:
		disk.Kind = "return"
		disk.Value = ref(kind.Value)
	case StringExpr:
		disk.Kind = "string"
		disk.Components = make([]componentDisk, 0, len(kind.Components))
		for _, component := range kind.Components {
			disk.Components = append(disk.Components, componentToDisk(component))
		}
	case StructExpr:
		disk.Kind = "struct"
		disk.Item = &itemRefDisk{Package: int(kind.Item.Package), Item: int(kind.Item.Item)}
		disk.Copy = optRef(kind.Copy)
		disk.Fields = make([]fieldSetDisk, 0, len(kind.Fields))
		for _, assign := range kind.Fields {
			disk.Fields = append(disk.Fields, fieldSetDisk{
				Field: fieldToDisk(assign.Field),
				Value: int(assign.Value),
			})
		}
	case TupleExpr:
		disk.Kind = "tuple"
		disk.Items = exprIds(kind.Items)
	case UnOpExpr:
		disk.Kind = "unOp"
		disk.Op = unOpName(kind.Op)
		disk.Operand = ref(kind.Operand)
	case UpdateIndexExpr:
		disk.Kind = "updateIndex"
		disk.Array = ref(kind.Array)
		disk.Index = ref(kind.Index)
		disk.Replace = ref(kind.Replace)
	case UpdateFieldExpr:
		disk.Kind = "updateField"
		disk.Record = ref(kind.Record)
		field := fieldToDisk(kind.Field)
		disk.Field = &field
		disk.Replace = ref(kind.Replace)
	case VarExpr:
		disk.Kind = "var"
		res := resToDisk(kind.Res)
		disk.Res = &res
	case WhileExpr:
		disk.Kind = "while"
		disk.Cond = ref(kind.Cond)
		disk.Block = ref(kind.Block)
	default:
		panic(fmt.Sprintf("fir: unknown expression kind %T", expr.Kind))
	}
	return disk
}

func exprIds(items []ExprId) []int {
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, int(item))
	}
	return out
}

func fieldToDisk(field Field) fieldDisk {
	switch kind := field.(type) {
	case PathField:
		return fieldDisk{Kind: "path", Path: kind.Indices}
	case PrimField:
		return fieldDisk{Kind: "prim", Prim: kind.String()}
	default:
		panic(fmt.Sprintf("fir: unknown field accessor %T", field))
	}
}

func componentToDisk(component StringComponent) componentDisk {
	switch kind := component.(type) {
	case LitComponent:
		text := kind.Text
		return componentDisk{Text: &text}
	case ExprComponent:
		return componentDisk{Expr: ref(kind.Expr)}
	default:
		panic(fmt.Sprintf("fir: unknown string component %T", component))
	}
}

func litToDisk(lit Lit) litDisk {
	switch kind := lit.(type) {
	case IntLit:
		v := kind.Val
		return litDisk{Int: &v}
	case BigIntLit:
		s := kind.Val.String()
		return litDisk{BigInt: &s}
	case DoubleLit:
		v := kind.Val
		return litDisk{Double: &v}
	case BoolLit:
		v := kind.Val
		return litDisk{Bool: &v}
	case PauliLit:
		s := kind.Val.String()
		return litDisk{Pauli: &s}
	case ResultLit:
		s := "Zero"
		if kind.One {
			s = "One"
		}
		return litDisk{Result: &s}
	default:
		panic(fmt.Sprintf("fir: unknown literal %T", lit))
	}
}

func resToDisk(res Res) resDisk {
	switch kind := res.(type) {
	case ItemRes:
		return resDisk{Item: &itemRefDisk{Package: int(kind.Item.Package), Item: int(kind.Item.Item)}}
	case LocalRes:
		return resDisk{Local: ref(kind.Var)}
	default:
		panic(fmt.Sprintf("fir: unknown resolution %T", res))
	}
}

func graphToDisk(graph ExecGraph) []nodeDisk {
	if len(graph) == 0 {
		return nil
	}
	out := make([]nodeDisk, 0, len(graph))
	for _, node := range graph {
		disk := nodeDisk{Kind: node.Kind.String()}
		switch node.Kind {
		case GraphBind:
			disk.Pat = ref(node.Pat)
		case GraphExpr:
			disk.Expr = ref(node.Expr)
		case GraphStmt:
			disk.Stmt = ref(node.Stmt)
		case GraphJump, GraphJumpIf, GraphJumpIfNot:
			target := node.Target
			disk.Target = &target
		case GraphBlockEnd:
			disk.Block = ref(node.Block)
		}
		out = append(out, disk)
	}
	return out
}

//-----------------------------------------------------------------------------
// Decoding
//-----------------------------------------------------------------------------

func need(field *int, owner, name string) (int, error) {
	if field == nil {
		return 0, fmt.Errorf("bundle: %s: missing %s", owner, name)
	}
	return *field, nil
}

func (d bundleDisk) toPackage() (*Package, error) {
	pkg := NewPackage()

	for _, raw := range d.Items {
		item, err := raw.toItem()
		if err != nil {
			return nil, err
		}
		pkg.Items[item.Id] = item
	}
	for _, raw := range d.Blocks {
		stmts := make([]StmtId, 0, len(raw.Stmts))
		for _, s := range raw.Stmts {
			stmts = append(stmts, StmtId(s))
		}
		pkg.Blocks[BlockId(raw.Id)] = &Block{Id: BlockId(raw.Id), Span: raw.Span, Stmts: stmts}
	}
	for _, raw := range d.Exprs {
		expr, err := raw.toExpr()
		if err != nil {
			return nil, err
		}
		pkg.Exprs[expr.Id] = expr
	}
	for _, raw := range d.Pats {
		pat, err := raw.toPat()
		if err != nil {
			return nil, err
		}
		pkg.Pats[pat.Id] = pat
	}
	for _, raw := range d.Stmts {
		stmt, err := raw.toStmt()
		if err != nil {
			return nil, err
		}
		pkg.Stmts[stmt.Id] = stmt
	}

	if d.Entry != nil {
		entry := ExprId(*d.Entry)
		pkg.Entry = &entry
	}
	graph, err := graphFromDisk(d.EntryGraph, "entry graph")
	if err != nil {
		return nil, err
	}
	pkg.EntryGraph = graph
	for _, s := range d.TopStmts {
		pkg.TopStmts = append(pkg.TopStmts, StmtId(s))
	}
	return pkg, nil
}

func (d itemDisk) toItem() (*Item, error) {
	owner := fmt.Sprintf("item %d", d.Id)
	item := &Item{Id: LocalItemId(d.Id), Span: d.Span}
	switch d.Kind {
	case "callable":
		input, err := need(d.Input, owner, "input")
		if err != nil {
			return nil, err
		}
		if d.Impl == nil {
			return nil, fmt.Errorf("bundle: %s: missing impl", owner)
		}
		impl, err := d.Impl.toImpl(owner)
		if err != nil {
			return nil, err
		}
		item.Kind = CallableItem{Decl: CallableDecl{
			Name:       d.Name,
			Input:      PatId(input),
			UnitOutput: d.UnitOutput,
			Impl:       impl,
		}}
	case "udt":
		item.Kind = UdtItem{Name: d.Name}
	default:
		return nil, fmt.Errorf("bundle: %s: unknown kind %q", owner, d.Kind)
	}
	return item, nil
}

func (d *implDisk) toImpl(owner string) (CallableImpl, error) {
	switch d.Kind {
	case "intrinsic":
		return IntrinsicImpl{}, nil
	case "spec":
		if d.Body == nil {
			return nil, fmt.Errorf("bundle: %s: missing body", owner)
		}
		body, err := d.Body.toSpec(owner)
		if err != nil {
			return nil, err
		}
		impl := SpecImpl{Body: *body}
		if impl.Adj, err = optSpec(d.Adj, owner); err != nil {
			return nil, err
		}
		if impl.Ctl, err = optSpec(d.Ctl, owner); err != nil {
			return nil, err
		}
		if impl.CtlAdj, err = optSpec(d.CtlAdj, owner); err != nil {
			return nil, err
		}
		return impl, nil
	case "simulatable":
		if d.Body == nil {
			return nil, fmt.Errorf("bundle: %s: missing body", owner)
		}
		body, err := d.Body.toSpec(owner)
		if err != nil {
			return nil, err
		}
		return SimulatableIntrinsicImpl{Body: *body}, nil
	default:
		return nil, fmt.Errorf("bundle: %s: unknown impl kind %q", owner, d.Kind)
	}
}

func optSpec(d *specDisk, owner string) (*SpecDecl, error) {
	if d == nil {
		return nil, nil
	}
	return d.toSpec(owner)
}

func (d *specDisk) toSpec(owner string) (*SpecDecl, error) {
	graph, err := graphFromDisk(d.Graph, owner)
	if err != nil {
		return nil, err
	}
	spec := &SpecDecl{Block: BlockId(d.Block), Graph: graph}
	if d.Input != nil {
		input := PatId(*d.Input)
		spec.Input = &input
	}
	return spec, nil
}

func (d stmtDisk) toStmt() (*Stmt, error) {
	owner := fmt.Sprintf("stmt %d", d.Id)
	stmt := &Stmt{Id: StmtId(d.Id), Span: d.Span}
	if d.Range != nil {
		stmt.GraphRange = *d.Range
	}
	switch d.Kind {
	case "expr", "semi":
		expr, err := need(d.Expr, owner, "expr")
		if err != nil {
			return nil, err
		}
		if d.Kind == "expr" {
			stmt.Kind = ExprStmt{Expr: ExprId(expr)}
		} else {
			stmt.Kind = SemiStmt{Expr: ExprId(expr)}
		}
	case "local":
		pat, err := need(d.Pat, owner, "pat")
		if err != nil {
			return nil, err
		}
		expr, err := need(d.Expr, owner, "expr")
		if err != nil {
			return nil, err
		}
		stmt.Kind = LocalStmt{Mutable: d.Mutable, Pat: PatId(pat), Expr: ExprId(expr)}
	case "item":
		item, err := need(d.Item, owner, "item")
		if err != nil {
			return nil, err
		}
		stmt.Kind = ItemStmt{Item: LocalItemId(item)}
	default:
		return nil, fmt.Errorf("bundle: %s: unknown kind %q", owner, d.Kind)
	}
	return stmt, nil
}

func (d patDisk) toPat() (*Pat, error) {
	owner := fmt.Sprintf("pat %d", d.Id)
	pat := &Pat{Id: PatId(d.Id), Span: d.Span}
	switch d.Kind {
	case "bind":
		v, err := need(d.Var, owner, "var")
		if err != nil {
			return nil, err
		}
		pat.Kind = BindPat{Name: Ident{Var: LocalVarId(v), Span: d.Span, Name: d.Name}}
	case "discard":
		pat.Kind = DiscardPat{}
	case "tuple":
		items := make([]PatId, 0, len(d.Items))
		for _, item := range d.Items {
			items = append(items, PatId(item))
		}
		pat.Kind = TuplePat{Items: items}
	default:
		return nil, fmt.Errorf("bundle: %s: unknown kind %q", owner, d.Kind)
	}
	return pat, nil
}

func (d exprDisk) toExpr() (*Expr, error) {
	owner := fmt.Sprintf("expr %d", d.Id)
	expr := &Expr{Id: ExprId(d.Id), Span: d.Span}

	one := func(field *int, name string) (ExprId, error) {
		v, err := need(field, owner, name)
		return ExprId(v), err
	}
	opt := func(field *int) *ExprId {
		if field == nil {
			return nil
		}
		v := ExprId(*field)
		return &v
	}

	var err error
	switch d.Kind {
	case "array", "arrayLit", "tuple":
		items := make([]ExprId, 0, len(d.Items))
		for _, item := range d.Items {
			items = append(items, ExprId(item))
		}
		switch d.Kind {
		case "array":
			expr.Kind = ArrayExpr{Items: items}
		case "arrayLit":
			expr.Kind = ArrayLitExpr{Items: items}
		default:
			expr.Kind = TupleExpr{Items: items}
		}
	case "arrayRepeat":
		kind := ArrayRepeatExpr{}
		if kind.Value, err = one(d.Value, "value"); err != nil {
			return nil, err
		}
		if kind.Size, err = one(d.Size, "size"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "assign":
		kind := AssignExpr{}
		if kind.Lhs, err = one(d.Lhs, "lhs"); err != nil {
			return nil, err
		}
		if kind.Rhs, err = one(d.Rhs, "rhs"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "assignOp":
		kind := AssignOpExpr{Append: d.Append}
		if kind.Op, err = binOpFromName(d.Op, owner); err != nil {
			return nil, err
		}
		if kind.Lhs, err = one(d.Lhs, "lhs"); err != nil {
			return nil, err
		}
		if kind.Rhs, err = one(d.Rhs, "rhs"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "assignField":
		kind := AssignFieldExpr{}
		if kind.Record, err = one(d.Record, "record"); err != nil {
			return nil, err
		}
		if kind.Field, err = fieldFromDisk(d.Field, owner); err != nil {
			return nil, err
		}
		if kind.Replace, err = one(d.Replace, "replace"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "assignIndex":
		kind := AssignIndexExpr{}
		if kind.Array, err = one(d.Array, "array"); err != nil {
			return nil, err
		}
		if kind.Index, err = one(d.Index, "index"); err != nil {
			return nil, err
		}
		if kind.Replace, err = one(d.Replace, "replace"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "binOp":
		kind := BinOpExpr{}
		if kind.Op, err = binOpFromName(d.Op, owner); err != nil {
			return nil, err
		}
		if kind.Lhs, err = one(d.Lhs, "lhs"); err != nil {
			return nil, err
		}
		if kind.Rhs, err = one(d.Rhs, "rhs"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "block":
		block, err := need(d.Block, owner, "block")
		if err != nil {
			return nil, err
		}
		expr.Kind = BlockExpr{Block: BlockId(block)}
	case "call":
		kind := CallExpr{}
		if kind.Callee, err = one(d.Callee, "callee"); err != nil {
			return nil, err
		}
		if kind.Arg, err = one(d.Arg, "arg"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "closure":
		callable, err := need(d.Callable, owner, "callable")
		if err != nil {
			return nil, err
		}
		captures := make([]LocalVarId, 0, len(d.Captures))
		for _, capture := range d.Captures {
			captures = append(captures, LocalVarId(capture))
		}
		expr.Kind = ClosureExpr{Captures: captures, Callable: LocalItemId(callable)}
	case "fail":
		kind := FailExpr{}
		if kind.Message, err = one(d.Message, "message"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "field":
		kind := FieldExpr{}
		if kind.Record, err = one(d.Record, "record"); err != nil {
			return nil, err
		}
		if kind.Field, err = fieldFromDisk(d.Field, owner); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "hole":
		expr.Kind = HoleExpr{}
	case "if":
		kind := IfExpr{Else: opt(d.Else)}
		if kind.Cond, err = one(d.Cond, "cond"); err != nil {
			return nil, err
		}
		if kind.Then, err = one(d.Then, "then"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "index":
		kind := IndexExpr{}
		if kind.Array, err = one(d.Array, "array"); err != nil {
			return nil, err
		}
		if kind.Index, err = one(d.Index, "index"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "lit":
		lit, err := litFromDisk(d.Lit, owner)
		if err != nil {
			return nil, err
		}
		expr.Kind = LitExpr{Lit: lit}
	case "range":
		expr.Kind = RangeExpr{Start: opt(d.Start), Step: opt(d.Step), End: opt(d.End)}
	case "return":
		kind := ReturnExpr{}
		if kind.Value, err = one(d.Value, "value"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "string":
		components := make([]StringComponent, 0, len(d.Components))
		for _, component := range d.Components {
			switch {
			case component.Text != nil:
				components = append(components, LitComponent{Text: *component.Text})
			case component.Expr != nil:
				components = append(components, ExprComponent{Expr: ExprId(*component.Expr)})
			default:
				return nil, fmt.Errorf("bundle: %s: empty string component", owner)
			}
		}
		expr.Kind = StringExpr{Components: components}
	case "struct":
		if d.Item == nil {
			return nil, fmt.Errorf("bundle: %s: missing item", owner)
		}
		kind := StructExpr{
			Item: ItemId{Package: PackageId(d.Item.Package), Item: LocalItemId(d.Item.Item)},
			Copy: opt(d.Copy),
		}
		kind.Fields = make([]FieldAssign, 0, len(d.Fields))
		for _, assign := range d.Fields {
			field := assign.Field
			decoded, err := fieldFromDisk(&field, owner)
			if err != nil {
				return nil, err
			}
			kind.Fields = append(kind.Fields, FieldAssign{Field: decoded, Value: ExprId(assign.Value)})
		}
		expr.Kind = kind
	case "unOp":
		kind := UnOpExpr{}
		if kind.Op, err = unOpFromName(d.Op, owner); err != nil {
			return nil, err
		}
		if kind.Operand, err = one(d.Operand, "operand"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "updateIndex":
		kind := UpdateIndexExpr{}
		if kind.Array, err = one(d.Array, "array"); err != nil {
			return nil, err
		}
		if kind.Index, err = one(d.Index, "index"); err != nil {
			return nil, err
		}
		if kind.Replace, err = one(d.Replace, "replace"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "updateField":
		kind := UpdateFieldExpr{}
		if kind.Record, err = one(d.Record, "record"); err != nil {
			return nil, err
		}
		if kind.Field, err = fieldFromDisk(d.Field, owner); err != nil {
			return nil, err
		}
		if kind.Replace, err = one(d.Replace, "replace"); err != nil {
			return nil, err
		}
		expr.Kind = kind
	case "var":
		if d.Res == nil {
			return nil, fmt.Errorf("bundle: %s: missing res", owner)
		}
		switch {
		case d.Res.Item != nil:
			expr.Kind = VarExpr{Res: ItemRes{Item: ItemId{
				Package: PackageId(d.Res.Item.Package),
				Item:    LocalItemId(d.Res.Item.Item),
			}}}
		case d.Res.Local != nil:
			expr.Kind = VarExpr{Res: LocalRes{Var: LocalVarId(*d.Res.Local)}}
		default:
			return nil, fmt.Errorf("bundle: %s: empty res", owner)
		}
	case "while":
		kind := WhileExpr{}
		if kind.Cond, err = one(d.Cond, "cond"); err != nil {
			return nil, err
		}
		block, err := need(d.Block, owner, "block")
		if err != nil {
			return nil, err
		}
		kind.Block = BlockId(block)
		expr.Kind = kind
	default:
		return nil, fmt.Errorf("bundle: %s: unknown kind %q", owner, d.Kind)
	}
	return expr, nil
}

func fieldFromDisk(d *fieldDisk, owner string) (Field, error) {
	if d == nil {
		return nil, fmt.Errorf("bundle: %s: missing field", owner)
	}
	switch d.Kind {
	case "path":
		return PathField{Indices: d.Path}, nil
	case "prim":
		switch d.Prim {
		case "Start":
			return FieldStart, nil
		case "Step":
			return FieldStep, nil
		case "End":
			return FieldEnd, nil
		}
		return nil, fmt.Errorf("bundle: %s: unknown range field %q", owner, d.Prim)
	default:
		return nil, fmt.Errorf("bundle: %s: unknown field kind %q", owner, d.Kind)
	}
}

func litFromDisk(d *litDisk, owner string) (Lit, error) {
	if d == nil {
		return nil, fmt.Errorf("bundle: %s: missing lit", owner)
	}
	switch {
	case d.Int != nil:
		return IntLit{Val: *d.Int}, nil
	case d.BigInt != nil:
		val, ok := new(big.Int).SetString(*d.BigInt, 10)
		if !ok {
			return nil, fmt.Errorf("bundle: %s: invalid big integer %q", owner, *d.BigInt)
		}
		return BigIntLit{Val: val}, nil
	case d.Double != nil:
		return DoubleLit{Val: *d.Double}, nil
	case d.Bool != nil:
		return BoolLit{Val: *d.Bool}, nil
	case d.Pauli != nil:
		for _, p := range []Pauli{PauliI, PauliX, PauliY, PauliZ} {
			if p.String() == *d.Pauli {
				return PauliLit{Val: p}, nil
			}
		}
		return nil, fmt.Errorf("bundle: %s: unknown Pauli %q", owner, *d.Pauli)
	case d.Result != nil:
		switch *d.Result {
		case "Zero":
			return ResultLit{}, nil
		case "One":
			return ResultLit{One: true}, nil
		}
		return nil, fmt.Errorf("bundle: %s: unknown result %q", owner, *d.Result)
	default:
		return nil, fmt.Errorf("bundle: %s: empty lit", owner)
	}
}

func binOpFromName(name, owner string) (BinOp, error) {
	for op := BinOpAdd; op <= BinOpXorB; op++ {
		if op.String() == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("bundle: %s: unknown operator %q", owner, name)
}

func unOpName(op UnOp) string {
	switch op {
	case UnOpNeg:
		return "neg"
	case UnOpNotB:
		return "notB"
	case UnOpNotL:
		return "notL"
	case UnOpPos:
		return "pos"
	case UnOpUnwrap:
		return "unwrap"
	case UnOpAdjoint:
		return "adjoint"
	case UnOpControlled:
		return "controlled"
	default:
		panic(fmt.Sprintf("fir: unknown unary operator %d", op))
	}
}

func unOpFromName(name, owner string) (UnOp, error) {
	switch name {
	case "neg":
		return UnOpNeg, nil
	case "notB":
		return UnOpNotB, nil
	case "notL":
		return UnOpNotL, nil
	case "pos":
		return UnOpPos, nil
	case "unwrap":
		return UnOpUnwrap, nil
	case "adjoint":
		return UnOpAdjoint, nil
	case "controlled":
		return UnOpControlled, nil
	default:
		return 0, fmt.Errorf("bundle: %s: unknown unary operator %q", owner, name)
	}
}

func graphFromDisk(nodes []nodeDisk, owner string) (ExecGraph, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	graph := make(ExecGraph, 0, len(nodes))
	for i, raw := range nodes {
		at := fmt.Sprintf("%s node %d", owner, i)
		var node GraphNode
		switch raw.Kind {
		case "bind":
			pat, err := need(raw.Pat, at, "pat")
			if err != nil {
				return nil, err
			}
			node = BindNode(PatId(pat))
		case "expr":
			expr, err := need(raw.Expr, at, "expr")
			if err != nil {
				return nil, err
			}
			node = ExprNode(ExprId(expr))
		case "stmt":
			stmt, err := need(raw.Stmt, at, "stmt")
			if err != nil {
				return nil, err
			}
			node = StmtNode(StmtId(stmt))
		case "jump", "jump-if", "jump-if-not":
			target, err := need(raw.Target, at, "target")
			if err != nil {
				return nil, err
			}
			switch raw.Kind {
			case "jump":
				node = JumpNode(target)
			case "jump-if":
				node = JumpIfNode(target)
			default:
				node = JumpIfNotNode(target)
			}
		case "store":
			node = StoreNode()
		case "unit":
			node = UnitNode()
		case "ret":
			node = RetNode()
		case "ret-frame":
			node = RetFrameNode()
		case "push-scope":
			node = PushScopeNode()
		case "pop-scope":
			node = PopScopeNode()
		case "block-end":
			block, err := need(raw.Block, at, "block")
			if err != nil {
				return nil, err
			}
			node = BlockEndNode(BlockId(block))
		default:
			return nil, fmt.Errorf("bundle: %s: unknown kind %q", at, raw.Kind)
		}
		graph = append(graph, node)
	}
	return graph, nil
}
