// Command fir-export writes the built-in sample bundles: small programs
// assembled with the fir builder and serialized in the bundle format the
// quill CLI loads. The samples double as debugger fodder, so every package
// is built with debug flattening on.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"quill/interpreter-go/pkg/fir"
)

func main() {
	outFlag := flag.String("out", "samples", "directory to write sample bundles into")
	flag.Parse()

	if err := exportSamples(*outFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exportSamples(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fir export: create %s: %w", dir, err)
	}

	samples := []struct {
		name  string
		build func() *fir.Package
	}{
		{"bell", bellPackage},
		{"qrng", qrngPackage},
		{"sum", sumPackage},
	}
	for _, sample := range samples {
		path := filepath.Join(dir, sample.name+".fir.json")
		if err := fir.WriteBundle(sample.build(), path); err != nil {
			return fmt.Errorf("fir export: %s: %w", sample.name, err)
		}
	}
	fmt.Printf("Wrote %d sample bundle(s) under %s\n", len(samples), dir)
	return nil
}

// declareQuantum registers the qubit management and gate intrinsics the
// quantum samples call.
type quantumItems struct {
	alloc   fir.LocalItemId
	release fir.LocalItemId
	h       fir.LocalItemId
	cx      fir.LocalItemId
	mresetz fir.LocalItemId
}

func declareQuantum(b *fir.Builder) quantumItems {
	release, _ := b.Bind("qubit")
	hq, _ := b.Bind("qubit")
	control, _ := b.Bind("control")
	target, _ := b.Bind("target")
	mq, _ := b.Bind("qubit")
	return quantumItems{
		alloc:   b.Intrinsic("__quantum__rt__qubit_allocate", b.UnitPattern(), false),
		release: b.Intrinsic("__quantum__rt__qubit_release", release, true),
		h:       b.Intrinsic("__quantum__qis__h__body", hq, true),
		cx:      b.Intrinsic("__quantum__qis__cx__body", b.TuplePattern(control, target), true),
		mresetz: b.Intrinsic("__quantum__qis__mresetz__body", mq, false),
	}
}

// bellPackage prepares a Bell pair and measures both halves, returning the
// pair of results. The measurements always agree.
func bellPackage() *fir.Package {
	b := fir.NewBuilder().WithDebug(true)
	q := declareQuantum(b)

	q0Pat, q0 := b.Bind("q0")
	q1Pat, q1 := b.Bind("q1")
	r0Pat, r0 := b.Bind("r0")
	r1Pat, r1 := b.Bind("r1")

	block := b.BlockOf(
		b.Let(q0Pat, b.Call(b.Global(q.alloc), b.Unit())),
		b.Let(q1Pat, b.Call(b.Global(q.alloc), b.Unit())),
		b.Semi(b.Call(b.Global(q.h), b.Var(q0))),
		b.Semi(b.Call(b.Global(q.cx), b.Tuple(b.Var(q0), b.Var(q1)))),
		b.Let(r0Pat, b.Call(b.Global(q.mresetz), b.Var(q0))),
		b.Let(r1Pat, b.Call(b.Global(q.mresetz), b.Var(q1))),
		b.Semi(b.Call(b.Global(q.release), b.Var(q0))),
		b.Semi(b.Call(b.Global(q.release), b.Var(q1))),
		b.ExprStatement(b.Tuple(b.Var(r0), b.Var(r1))),
	)
	return b.Entry(b.BlockVal(block)).Finish()
}

// qrngPackage draws eight random bits from repeated prepare-and-measure
// rounds and assembles them into an integer in 0..255.
func qrngPackage() *fir.Package {
	b := fir.NewBuilder().WithDebug(true)
	q := declareQuantum(b)

	iPat, i := b.Bind("i")
	nPat, n := b.Bind("n")
	qbPat, qb := b.Bind("q")
	rPat, r := b.Bind("r")

	bit := b.IfElse(
		b.BinExpr(fir.BinOpEq, b.Var(r), b.Result(true)),
		b.Int(1),
		b.Int(0),
	)
	round := b.BlockOf(
		b.Let(qbPat, b.Call(b.Global(q.alloc), b.Unit())),
		b.Semi(b.Call(b.Global(q.h), b.Var(qb))),
		b.Let(rPat, b.Call(b.Global(q.mresetz), b.Var(qb))),
		b.Semi(b.Call(b.Global(q.release), b.Var(qb))),
		b.Semi(b.Assign(b.Var(n), b.BinExpr(fir.BinOpAdd,
			b.BinExpr(fir.BinOpMul, b.Var(n), b.Int(2)),
			bit,
		))),
		b.Semi(b.Assign(b.Var(i), b.BinExpr(fir.BinOpAdd, b.Var(i), b.Int(1)))),
	)

	block := b.BlockOf(
		b.Mut(iPat, b.Int(0)),
		b.Mut(nPat, b.Int(0)),
		b.Semi(b.While(b.BinExpr(fir.BinOpLt, b.Var(i), b.Int(8)), round)),
		b.ExprStatement(b.Var(n)),
	)
	return b.Entry(b.BlockVal(block)).Finish()
}

// sumPackage is a purely classical sample: it totals an array with an
// indexed loop and reports the running state, which makes it a convenient
// target for stepping through in the debugger.
func sumPackage() *fir.Package {
	b := fir.NewBuilder().WithDebug(true)

	lengthArg, _ := b.Bind("array")
	length := b.Intrinsic("Length", lengthArg, false)
	messageArg, _ := b.Bind("message")
	message := b.Intrinsic("Message", messageArg, true)

	xsPat, xs := b.Bind("xs")
	iPat, i := b.Bind("i")
	totalPat, total := b.Bind("total")

	body := b.BlockOf(
		b.Semi(b.Assign(b.Var(total), b.BinExpr(fir.BinOpAdd,
			b.Var(total),
			b.Index(b.Var(xs), b.Var(i)),
		))),
		b.Semi(b.Assign(b.Var(i), b.BinExpr(fir.BinOpAdd, b.Var(i), b.Int(1)))),
	)

	block := b.BlockOf(
		b.Let(xsPat, b.Array(b.Int(1), b.Int(2), b.Int(3), b.Int(4), b.Int(5))),
		b.Mut(iPat, b.Int(0)),
		b.Mut(totalPat, b.Int(0)),
		b.Semi(b.While(
			b.BinExpr(fir.BinOpLt, b.Var(i), b.Call(b.Global(length), b.Var(xs))),
			body,
		)),
		b.Semi(b.Call(b.Global(message), b.InterpStr(
			fir.LitComponent{Text: "total "},
			fir.ExprComponent{Expr: b.Var(total)},
		))),
		b.ExprStatement(b.Var(total)),
	)
	return b.Entry(b.BlockVal(block)).Finish()
}
