package driver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifestBasic(t *testing.T) {
	path := writeManifest(t, `
name: quill-demo
entry: build/demo.fir.json
shots: 100
seed: 42
dependencies:
  gates:
    git: https://example.com/gates.git
    tag: v1.2.0
  pinned:
    git: https://example.com/pinned.git
    rev: abc123
  local:
    path: ../local
  floating:
    git: https://example.com/floating.git
`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}

	if got, want := manifest.Name, "quill_demo"; got != want {
		t.Fatalf("Name = %q, want %q", got, want)
	}
	if got := manifest.Entry; got != "build/demo.fir.json" {
		t.Fatalf("Entry = %q, want build/demo.fir.json", got)
	}
	if manifest.Shots != 100 {
		t.Fatalf("Shots = %d, want 100", manifest.Shots)
	}
	if manifest.Seed == nil || *manifest.Seed != 42 {
		t.Fatalf("Seed = %v, want 42", manifest.Seed)
	}

	gates := manifest.Dependencies["gates"]
	if gates == nil || gates.Git != "https://example.com/gates.git" || gates.Tag != "v1.2.0" {
		t.Fatalf("gates dependency not parsed: %#v", gates)
	}
	pinned := manifest.Dependencies["pinned"]
	if pinned == nil || pinned.Rev != "abc123" {
		t.Fatalf("pinned dependency not parsed: %#v", pinned)
	}
	local := manifest.Dependencies["local"]
	if local == nil || local.Path != "../local" {
		t.Fatalf("path dependency missing: %#v", local)
	}
	floating := manifest.Dependencies["floating"]
	if floating == nil || floating.Tag != "" || floating.Rev != "" {
		t.Fatalf("unpinned git dependency unexpected: %#v", floating)
	}

	if got := strings.Join(manifest.DependencyNames(), ","); got != "floating,gates,local,pinned" {
		t.Fatalf("DependencyNames unexpected: %s", got)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	path := writeManifest(t, `
name: minimal
`)
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest returned error: %v", err)
	}
	if manifest.Entry != "" || manifest.Shots != 0 || manifest.Seed != nil {
		t.Fatalf("defaults unexpected: %#v", manifest)
	}
	if len(manifest.Dependencies) != 0 {
		t.Fatalf("expected no dependencies, got %#v", manifest.Dependencies)
	}
	if _, err := manifest.EntryPath(); err == nil {
		t.Fatal("EntryPath without entry should fail")
	}
}

func TestLoadManifestValidation(t *testing.T) {
	path := writeManifest(t, `
name: ""
dependencies:
  util: {}
  both:
    git: https://example.com/both.git
    path: ../both
  orphan:
    tag: v1.0.0
  doublepin:
    git: https://example.com/doublepin.git
    tag: v1.0.0
    rev: abc123
`)

	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	msg := err.Error()
	wantFragments := []string{
		"name must be provided",
		"dependencies.util: must specify git or path",
		"dependencies.both: git and path are mutually exclusive",
		"dependencies.orphan: tag and rev require git",
		"dependencies.doublepin: tag and rev are mutually exclusive",
	}
	for _, fragment := range wantFragments {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("validation error missing fragment %q: %s", fragment, msg)
		}
	}
}

func TestLoadManifestRejectsUnknownFields(t *testing.T) {
	path := writeManifest(t, `
name: demo
colour: blue
`)
	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("expected strict decode error, got nil")
	}
	if !strings.Contains(err.Error(), "colour") {
		t.Fatalf("expected unknown-field error naming colour, got %v", err)
	}
}

func TestManifestEntryPath(t *testing.T) {
	path := writeManifest(t, `
name: demo
entry: out/demo.fir.json
`)
	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest error: %v", err)
	}
	entry, err := manifest.EntryPath()
	if err != nil {
		t.Fatalf("EntryPath returned error: %v", err)
	}
	if want := filepath.Join(manifest.Dir(), "out", "demo.fir.json"); entry != want {
		t.Fatalf("EntryPath = %q, want %q", entry, want)
	}
	if got := manifest.LockfilePath(); got != filepath.Join(manifest.Dir(), "project.lock") {
		t.Fatalf("LockfilePath = %q", got)
	}
}

func TestFindManifest(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := filepath.Join(root, "project.yml")
	if err := os.WriteFile(want, []byte("name: demo\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	got, err := FindManifest(nested)
	if err != nil {
		t.Fatalf("FindManifest returned error: %v", err)
	}
	if got != want {
		t.Fatalf("FindManifest = %q, want %q", got, want)
	}

	if _, err := FindManifest(t.TempDir()); !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := map[string]string{
		"quill-demo": "quill_demo",
		"Worker":     "Worker",
		"a.b/c":      "a_b_c",
		" padded ":   "padded",
	}
	for in, want := range cases {
		if got := sanitizeSegment(in); got != want {
			t.Fatalf("sanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}
