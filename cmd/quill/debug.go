package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"quill/interpreter-go/pkg/driver"
	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/output"
	"quill/interpreter-go/pkg/runtime"
)

const (
	debugPrompt = "debug> "
	historyFile = ".quill_history"
)

func runDebug(args []string) int {
	var target string
	var seed *uint64

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--seed" || strings.HasPrefix(arg, "--seed="):
			value, ok := flagValue(args, &i, "--seed")
			if !ok {
				return 1
			}
			s, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --seed value %q\n", value)
				return 1
			}
			seed = &s
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", arg)
			printUsage()
			return 1
		case target != "":
			fmt.Fprintf(os.Stderr, "unexpected argument %q\n", arg)
			return 1
		default:
			target = arg
		}
	}
	if target == "" {
		fmt.Fprintln(os.Stderr, "quill debug requires a bundle file")
		return 1
	}

	program, err := driver.Load(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	dbg, err := driver.NewDebugger(program, driver.Options{
		Receiver: output.NewGenericReceiver(os.Stdout),
		Seed:     seed,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return debugConsole(program, dbg)
}

func debugConsole(program *driver.Program, dbg *driver.Debugger) int {
	fmt.Println("paused at program start; type help for commands, Ctrl+D to exit")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	breakpoints := map[fir.StmtId]bool{}
	for {
		line, err := ln.Prompt(debugPrompt)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if err != nil {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]
		switch cmd {
		case "help", "h":
			printDebugHelp()
		case "quit", "exit", "q":
			return 0
		case "break", "b":
			breakCommand(dbg, breakpoints, rest)
		case "continue", "c":
			if code, done := stepCommand(program, dbg, interpreter.StepContinue); done {
				return code
			}
		case "next", "n":
			if code, done := stepCommand(program, dbg, interpreter.StepNext); done {
				return code
			}
		case "step", "s", "in":
			if code, done := stepCommand(program, dbg, interpreter.StepIn); done {
				return code
			}
		case "out", "o":
			if code, done := stepCommand(program, dbg, interpreter.StepOut); done {
				return code
			}
		case "stack", "bt":
			stackCommand(dbg)
		case "locals":
			localsCommand(dbg, rest)
		case "print", "p":
			printCommand(dbg, rest)
		default:
			fmt.Printf("unknown command %q; type help for commands\n", cmd)
		}
	}
}

func printDebugHelp() {
	fmt.Println("Commands:")
	fmt.Println("  break            list breakable statements (* marks set breakpoints)")
	fmt.Println("  break <id ...>   toggle breakpoints on the given statements")
	fmt.Println("  continue (c)     run until a breakpoint or the end of the program")
	fmt.Println("  next (n)         run to the next statement, stepping over calls")
	fmt.Println("  step (s, in)     run to the next statement, stepping into calls")
	fmt.Println("  out (o)          run until the current call returns")
	fmt.Println("  stack (bt)       show the call stack")
	fmt.Println("  locals [frame]   show variables in a stack frame (default innermost)")
	fmt.Println("  print <name>     show the value of a variable")
	fmt.Println("  quit (q)         exit the debugger")
}

// stepCommand resumes execution and reports where it stopped. The second
// return is true when the console should exit: the program completed,
// failed, or was never resumable.
func stepCommand(program *driver.Program, dbg *driver.Debugger, action interpreter.StepAction) (int, bool) {
	res, err := dbg.Step(action)
	if err != nil {
		fmt.Fprintln(os.Stderr, program.DescribeError(err))
		return 1, true
	}
	if res.Kind == interpreter.StepResultReturn {
		if res.Value != nil && res.Value.Kind() != runtime.KindUnit {
			fmt.Println(res.Value)
		}
		fmt.Println("program exited")
		return 0, true
	}
	span := dbg.CurrentSpan()
	if res.Kind == interpreter.StepResultBreakpoint {
		fmt.Printf("breakpoint hit at stmt %d [%d..%d]\n", res.Stmt, span.Lo, span.Hi)
	} else {
		fmt.Printf("paused at stmt %d [%d..%d]\n", res.Stmt, span.Lo, span.Hi)
	}
	return 0, false
}

// breakCommand without arguments lists the statements a breakpoint can
// bind to; with arguments it toggles breakpoints on the named statements.
func breakCommand(dbg *driver.Debugger, set map[fir.StmtId]bool, args []string) {
	if len(args) == 0 {
		spans := dbg.Breakpoints()
		if len(spans) == 0 {
			fmt.Println("no breakable statements (bundle built without debug info)")
			return
		}
		for _, bp := range spans {
			marker := " "
			if set[bp.Stmt] {
				marker = "*"
			}
			fmt.Printf("%s stmt %d [%d..%d]\n", marker, bp.Stmt, bp.Span.Lo, bp.Span.Hi)
		}
		return
	}

	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Printf("break expects statement ids, got %q\n", arg)
			return
		}
		id := fir.StmtId(n)
		if set[id] {
			delete(set, id)
			fmt.Printf("cleared breakpoint on stmt %d\n", id)
		} else {
			set[id] = true
			fmt.Printf("set breakpoint on stmt %d\n", id)
		}
	}

	ids := make([]fir.StmtId, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	dbg.SetBreakpoints(ids)
}

func stackCommand(dbg *driver.Debugger) {
	for i, frame := range dbg.StackFrames() {
		name := frame.Name
		if frame.Functor != "" {
			name = frame.Functor + " " + name
		}
		fmt.Printf("#%d %s [%d..%d]\n", i, name, frame.Span.Span.Lo, frame.Span.Span.Hi)
	}
}

func localsCommand(dbg *driver.Debugger, args []string) {
	frames := dbg.StackFrames()
	frameId := len(frames) - 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= len(frames) {
			fmt.Printf("locals expects a frame index between 0 and %d\n", len(frames)-1)
			return
		}
		frameId = n
	}
	vars := dbg.Locals(frameId)
	if len(vars) == 0 {
		fmt.Printf("no locals in frame %d\n", frameId)
		return
	}
	for _, v := range vars {
		fmt.Printf("%s = %s\n", v.Name, v.Value)
	}
}

func printCommand(dbg *driver.Debugger, args []string) {
	if len(args) != 1 {
		fmt.Println("print expects a variable name")
		return
	}
	v, ok := dbg.Lookup(args[0])
	if !ok {
		fmt.Printf("no variable named %q in scope\n", args[0])
		return
	}
	fmt.Println(v.Value)
}
