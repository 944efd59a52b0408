package driver

import (
	"bytes"
	"context"
	"fmt"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"quill/interpreter-go/pkg/backend"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

// ShotResult is the outcome of one shot: the program value or the error
// that stopped it, plus everything the shot printed.
type ShotResult struct {
	Shot   int
	Value  runtime.Value
	Output string
	Err    error
}

// ShotOptions configure a multi-shot run.
type ShotOptions struct {
	// Shots is the number of entry evaluations; values below one run once.
	Shots int
	// Workers bounds concurrent shots; non-positive means one per CPU.
	Workers int
	// Seed makes the run reproducible: shot i runs under seed Seed+i. Nil
	// draws fresh randomness per shot.
	Seed *uint64
	// NewBackend builds each shot's backend; nil means a fresh BasisSim.
	NewBackend func() backend.Backend
}

// RunShots evaluates the program entry once per shot. Shots are
// independent: each gets its own state, environment, backend, and output
// buffer over the shared store. Results keep shot order regardless of
// scheduling. Cancelling ctx stops scheduling further shots and surfaces
// the context error; shots already running finish.
func RunShots(ctx context.Context, program *Program, opts ShotOptions) ([]ShotResult, error) {
	graph := program.EntryGraph()
	if len(graph) == 0 {
		return nil, fmt.Errorf("shots: program has no entry point")
	}
	shots := opts.Shots
	if shots < 1 {
		shots = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = goruntime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	results := make([]ShotResult, shots)
	for i := 0; i < shots; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = runShot(program, graph, i, opts)
			if results[i].Err != nil {
				log.Debug().Int("shot", i).Err(results[i].Err).Msg("shot failed")
			} else {
				log.Debug().Int("shot", i).Stringer("value", results[i].Value).Msg("shot complete")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("shots: %w", err)
	}
	return results, nil
}

func runShot(program *Program, graph fir.ExecGraph, shot int, opts ShotOptions) ShotResult {
	var seed *uint64
	if opts.Seed != nil {
		derived := *opts.Seed + uint64(shot)
		seed = &derived
	}
	var back backend.Backend
	if opts.NewBackend != nil {
		back = opts.NewBackend()
	} else {
		back = backend.NewBasisSim()
	}
	back.SetSeed(seed)

	var buf bytes.Buffer
	state := interpreter.NewState(program.Entry, graph, seed)
	res, err := state.Eval(program.Store, runtime.NewEnv(), back, output.NewGenericReceiver(&buf), nil, interpreter.StepContinue)
	result := ShotResult{Shot: shot, Output: buf.String()}
	if err != nil {
		result.Err = err
		return result
	}
	result.Value = res.Value
	return result
}
