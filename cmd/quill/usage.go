package main

import (
	"fmt"
	"os"
)

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  quill [--log=<level>] run [bundle|project-dir] [--shots N] [--seed S]")
	fmt.Fprintln(os.Stderr, "  quill [--log=<level>] <bundle>")
	fmt.Fprintln(os.Stderr, "  quill [--log=<level>] debug <bundle> [--seed S]")
	fmt.Fprintln(os.Stderr, "  quill deps install")
	fmt.Fprintln(os.Stderr, "  quill deps update [dependency ...]")
	fmt.Fprintln(os.Stderr, "  quill version")
}
