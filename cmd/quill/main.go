package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"quill/interpreter-go/pkg/driver"
	"quill/interpreter-go/pkg/interpreter"
)

const cliToolVersion = "quill-cli 0.0.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	remaining, err := parseLogFlag(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(remaining) == 0 {
		printUsage()
		return 1
	}

	switch remaining[0] {
	case "--help", "-h":
		printUsage()
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runEntry(remaining[1:])
	case "debug":
		return runDebug(remaining[1:])
	case "deps":
		return runDeps(remaining[1:])
	default:
		return runEntry(remaining)
	}
}

// parseLogFlag strips a leading --log flag from the argument list and
// installs a stderr logger at the requested level. Without the flag the
// evaluator and driver loggers stay disabled.
func parseLogFlag(args []string) ([]string, error) {
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i:]...)
			break
		}
		var value string
		switch {
		case arg == "--log":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--log expects a value")
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, "--log="):
			value = strings.TrimPrefix(arg, "--log=")
		default:
			remaining = append(remaining, arg)
			continue
		}
		level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return nil, fmt.Errorf("unknown --log value %q (expected trace, debug, info, warn, or error)", value)
		}
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
		driver.SetLogger(logger)
		interpreter.SetLogger(logger)
	}
	return remaining, nil
}
