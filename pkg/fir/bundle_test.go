package fir

import (
	"bytes"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var bundleCmpOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 }),
}

func richPackage(t *testing.T) *Package {
	t.Helper()
	b := NewBuilder().WithDebug(true)

	point := b.Udt("Point")
	input := b.UnitPattern()
	body := b.BlockOf()
	adj := b.BlockOf()
	op := b.Callable(CallableDef{
		Name:       "Flip",
		Input:      input,
		UnitOutput: true,
		Body:       body,
		Adj:        &adj,
	})

	lenInput := b.Discard()
	length := b.Intrinsic("Length", lenInput, false)

	pat, x := b.Bind("x")
	big9 := new(big.Int)
	big9.SetString("123456789012345678901234567890", 10)
	lits := b.Array(
		b.Int(-3),
		b.Double(2.5),
		b.Bool(true),
		b.PauliVal(PauliY),
		b.Result(true),
		b.BigLit(BigIntLit{Val: big9}),
	)
	let := b.Let(pat, lits)
	b.TopStmt(let)

	structVal := b.StructNew(point, PathAssign(b.Int(1), 0), PathAssign(b.Int(2), 1))
	fieldRead := b.Field(structVal, PathField{Indices: []int{1}})
	rangeVal := b.Range(b.Int(0), NoExpr, b.Var(x))
	stepRead := b.Field(rangeVal, FieldStep)
	cond := b.BinExpr(BinOpLt, fieldRead, stepRead)
	call := b.Call(b.Global(op), b.Unit())
	lenCall := b.Call(b.GlobalIn(PackageId(0), length), b.InterpStr(
		LitComponent{Text: "x = "},
		ExprComponent{Expr: b.Var(x)},
	))
	b.Entry(b.IfElse(cond, call, lenCall))
	return b.Finish()
}

func TestBundle_RoundTrip(t *testing.T) {
	pkg := richPackage(t)

	data, err := EncodeBundle(pkg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeBundle(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(pkg, got, bundleCmpOpts...); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBundle_DeterministicEncoding(t *testing.T) {
	pkg := richPackage(t)

	first, err := EncodeBundle(pkg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := EncodeBundle(pkg)
	if err != nil {
		t.Fatalf("encode again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("two encodings of the same package differ")
	}
}

func TestBundle_RejectsUnknownVersion(t *testing.T) {
	_, err := DecodeBundle([]byte(`{"version": 99}`))
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("err = %v, want version error", err)
	}
}

func TestBundle_RejectsUnknownExprKind(t *testing.T) {
	data := []byte(`{
  "version": 1,
  "exprs": [{"id": 0, "span": {"lo": 0, "hi": 0}, "kind": "teleport"}]
}`)
	_, err := DecodeBundle(data)
	if err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Fatalf("err = %v, want unknown kind error", err)
	}
}

func TestBundle_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeBundle([]byte(`{"version": 1, "bogus": true}`))
	if err == nil {
		t.Fatalf("decode accepted unknown top-level field")
	}
}

func TestBundle_RejectsMissingOperand(t *testing.T) {
	data := []byte(`{
  "version": 1,
  "exprs": [{"id": 4, "span": {"lo": 0, "hi": 0}, "kind": "call", "callee": 1}]
}`)
	_, err := DecodeBundle(data)
	if err == nil || !strings.Contains(err.Error(), "expr 4") {
		t.Fatalf("err = %v, want missing arg error for expr 4", err)
	}
}

func TestBundle_WriteAndLoadFile(t *testing.T) {
	pkg := richPackage(t)
	path := filepath.Join(t.TempDir(), "program.fir.json")

	if err := WriteBundle(pkg, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadBundle(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(pkg, got, bundleCmpOpts...); diff != "" {
		t.Fatalf("file round trip mismatch (-want +got):\n%s", diff)
	}
}
