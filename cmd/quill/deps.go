package main

import (
	"fmt"
	"os"

	"quill/interpreter-go/pkg/driver"
)

func runDeps(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}
	switch args[0] {
	case "install":
		if len(args) > 1 {
			fmt.Fprintln(os.Stderr, "quill deps install takes no arguments")
			return 1
		}
		return installDeps(false, nil)
	case "update":
		return installDeps(true, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown deps command %q\n", args[0])
		printUsage()
		return 1
	}
}

// installDeps resolves the project's dependencies and reconciles the
// lockfile. An update drops the named lock entries first (all of them when
// none are named) so unpinned dependencies re-resolve to their latest
// matching versions.
func installDeps(update bool, names []string) int {
	manifestPath, err := driver.FindManifest(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cacheHome, err := driver.CacheHome()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	lock := driver.NewLockfile(manifest.Name, cliToolVersion)
	if _, err := os.Stat(manifest.LockfilePath()); err == nil {
		lock, err = driver.LoadLockfile(manifest.LockfilePath())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if update {
		dropLockedPackages(lock, names)
	}

	installer := newDependencyInstaller(manifest, cacheHome)
	changed, logs, err := installer.Install(lock)
	for _, line := range logs {
		fmt.Println(line)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !changed {
		fmt.Println("dependencies up to date")
		return 0
	}
	if err := driver.WriteLockfile(lock, manifest.LockfilePath()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("wrote %s\n", manifest.LockfilePath())
	return 0
}

// dropLockedPackages removes lock entries so the installer re-resolves
// them: the named packages, or every package when names is empty.
func dropLockedPackages(lock *driver.Lockfile, names []string) {
	if len(names) == 0 {
		lock.Prune(map[string]bool{})
		return
	}
	keep := make(map[string]bool, len(lock.Packages))
	for _, pkg := range lock.Packages {
		keep[pkg.Name] = true
	}
	for _, name := range names {
		if pkg := lock.Package(name); pkg != nil {
			delete(keep, pkg.Name)
		}
	}
	lock.Prune(keep)
}
