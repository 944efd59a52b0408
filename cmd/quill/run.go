package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"quill/interpreter-go/pkg/driver"
	"quill/interpreter-go/pkg/runtime"
)

func runEntry(args []string) int {
	var target string
	shots := 0
	var seed *uint64

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--shots" || strings.HasPrefix(arg, "--shots="):
			value, ok := flagValue(args, &i, "--shots")
			if !ok {
				return 1
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "invalid --shots value %q\n", value)
				return 1
			}
			shots = n
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

	program, manifest, err := loadRunTarget(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if shots == 0 {
		shots = 1
		if manifest != nil && manifest.Shots > 0 {
			shots = manifest.Shots
		}
	}
	if seed == nil && manifest != nil {
		seed = manifest.Seed
	}

	results, err := driver.RunShots(context.Background(), program, driver.ShotOptions{
		Shots: shots,
		Seed:  seed,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, program.DescribeError(err))
		return 1
	}

	failed := 0
	for _, res := range results {
		if res.Output != "" {
			fmt.Fprint(os.Stdout, res.Output)
		}
		if res.Err != nil {
			failed++
			fmt.Fprintln(os.Stderr, program.DescribeError(res.Err))
			continue
		}
		if res.Value != nil && res.Value.Kind() != runtime.KindUnit {
			fmt.Fprintln(os.Stdout, res.Value)
		}
	}
	if failed > 0 {
		if len(results) > 1 {
			fmt.Fprintf(os.Stderr, "%d of %d shots failed\n", failed, len(results))
		}
		return 1
	}
	return 0
}

// flagValue extracts the value of a flag given either as --name=value or as
// --name value, advancing the index past a separate value argument.
func flagValue(args []string, i *int, name string) (string, bool) {
	arg := args[*i]
	if value, ok := strings.CutPrefix(arg, name+"="); ok {
		return value, true
	}
	if *i+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "%s expects a value\n", name)
		return "", false
	}
	*i++
	return args[*i], true
}

// loadRunTarget loads the program to run. An empty target means the project
// the working directory sits in, a directory target the project it holds,
// and a file target a bundle loaded on its own.
func loadRunTarget(target string) (*driver.Program, *driver.Manifest, error) {
	if target == "" {
		manifestPath, err := driver.FindManifest(".")
		if err != nil {
			if errors.Is(err, driver.ErrManifestNotFound) {
				return nil, nil, fmt.Errorf("quill run requires a bundle or project directory (%w)", err)
			}
			return nil, nil, err
		}
		return loadProjectAt(manifestPath)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		manifestPath, err := driver.FindManifest(target)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", target, err)
		}
		return loadProjectAt(manifestPath)
	}

	program, err := driver.Load(target)
	if err != nil {
		return nil, nil, err
	}
	return program, nil, nil
}

func loadProjectAt(manifestPath string) (*driver.Program, *driver.Manifest, error) {
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	var lock *driver.Lockfile
	if _, err := os.Stat(manifest.LockfilePath()); err == nil {
		lock, err = driver.LoadLockfile(manifest.LockfilePath())
		if err != nil {
			return nil, nil, err
		}
	}
	cacheHome, err := driver.CacheHome()
	if err != nil {
		return nil, nil, err
	}
	program, err := driver.LoadProject(manifest, lock, cacheHome)
	if err != nil {
		return nil, nil, err
	}
	return program, manifest, nil
}
