// Package driver turns compiled bundles into running programs. It covers
// the project manifest and lockfile, the loader that assembles a package
// store from bundle files, interactive evaluation sessions, the multi-shot
// runner, and the debugger.
package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quill/interpreter-go/pkg/fir"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/runtime"
)

// Program is a loaded program: a package store holding every package plus
// the id of the entry package, which owns the entry graph.
type Program struct {
	Store *fir.PackageStore
	Entry fir.PackageId
}

// NewProgram wraps an already populated store.
func NewProgram(store *fir.PackageStore, entry fir.PackageId) *Program {
	return &Program{Store: store, Entry: entry}
}

// Load reads the entry bundle and its dependency bundles into a fresh
// store. Dependencies occupy package ids 0..n-1 in the order given and the
// entry package comes last, which is the layout bundle cross-package
// references are compiled against.
func Load(entry string, deps ...string) (*Program, error) {
	store := fir.NewPackageStore()
	for i, dep := range deps {
		pkg, err := fir.LoadBundle(dep)
		if err != nil {
			return nil, fmt.Errorf("loader: dependency %s: %w", dep, err)
		}
		store.Insert(fir.PackageId(i), pkg)
	}
	entryPkg, err := fir.LoadBundle(entry)
	if err != nil {
		return nil, fmt.Errorf("loader: entry %s: %w", entry, err)
	}
	if len(entryPkg.EntryGraph) == 0 {
		return nil, fmt.Errorf("loader: %s has no entry point", entry)
	}
	id := fir.PackageId(len(deps))
	store.Insert(id, entryPkg)
	return &Program{Store: store, Entry: id}, nil
}

// LoadProject loads the manifest's entry bundle together with its resolved
// dependencies. When a lockfile is present its package set drives loading,
// so transitive dependencies fetched by `deps install` are included;
// otherwise only the manifest's path dependencies can be resolved.
// Dependencies load in sorted name order, entry last.
func LoadProject(m *Manifest, lock *Lockfile, cacheHome string) (*Program, error) {
	entry, err := m.EntryPath()
	if err != nil {
		return nil, err
	}

	var deps []string
	if lock != nil && len(lock.Packages) > 0 {
		for _, pkg := range lock.Packages {
			bundle, err := lockedBundle(pkg, cacheHome)
			if err != nil {
				return nil, err
			}
			deps = append(deps, bundle)
		}
	} else {
		for _, name := range m.DependencyNames() {
			dep := m.Dependencies[name]
			if dep.Path == "" {
				return nil, fmt.Errorf("loader: dependency %s is not installed (run `quill deps install`)", name)
			}
			bundle, err := pathBundle(m.Dir(), name, dep.Path)
			if err != nil {
				return nil, err
			}
			deps = append(deps, bundle)
		}
	}
	return Load(entry, deps...)
}

// lockedBundle resolves a locked package to its bundle file: path sources
// point at the dependency directory, git sources at the cache checkout.
func lockedBundle(pkg *LockedPackage, cacheHome string) (string, error) {
	if dir, ok := strings.CutPrefix(pkg.Source, "path:"); ok {
		return pathBundle("", pkg.Name, dir)
	}
	if cacheHome == "" {
		return "", fmt.Errorf("loader: dependency %s needs a cache directory", pkg.Name)
	}
	dir := CheckoutDir(cacheHome, pkg.Name, pkg.Version)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("loader: dependency %s@%s is not installed (run `quill deps install`): %w", pkg.Name, pkg.Version, err)
	}
	return bundleInDir(pkg.Name, dir)
}

// pathBundle resolves a path dependency: a file is taken as the bundle
// itself, a directory must contain a project whose manifest names one.
func pathBundle(base, name, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("loader: dependency %s: %w", name, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	return bundleInDir(name, path)
}

func bundleInDir(name, dir string) (string, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return "", fmt.Errorf("loader: dependency %s: %w", name, err)
	}
	bundle, err := m.EntryPath()
	if err != nil {
		return "", fmt.Errorf("loader: dependency %s: %w", name, err)
	}
	return bundle, nil
}

// CacheHome is where fetched dependencies live: $QUILL_HOME when set,
// otherwise ~/.quill.
func CacheHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("QUILL_HOME")); home != "" {
		return filepath.Abs(home)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("loader: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".quill"), nil
}

// CheckoutDir is the cache directory holding one fetched package version.
func CheckoutDir(cacheHome, name, version string) string {
	return filepath.Join(cacheHome, "pkg", "src", sanitizeSegment(name), VersionSegment(version))
}

// VersionSegment folds a version descriptor into a directory name, keeping
// the punctuation tags and commit hashes use.
func VersionSegment(version string) string {
	version = strings.TrimSpace(version)
	var b strings.Builder
	for _, r := range version {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "head"
	}
	return b.String()
}

// EntryGraph is the program's entry execution graph; empty when the entry
// package only declares items.
func (p *Program) EntryGraph() fir.ExecGraph {
	return p.Store.Get(p.Entry).EntryGraph
}

// TopStmts lists the entry package's top-level statements, the units of
// fragment evaluation.
func (p *Program) TopStmts() []fir.StmtId {
	return p.Store.Get(p.Entry).TopStmts
}

// Callable finds a global callable by declared name, searching the entry
// package first and then the remaining packages in id order.
func (p *Program) Callable(name string) (runtime.Value, bool) {
	if id, ok := p.findCallable(p.Entry, name); ok {
		return runtime.GlobalValue{Id: id}, true
	}
	for _, pkgId := range p.Store.Ids() {
		if pkgId == p.Entry {
			continue
		}
		if id, ok := p.findCallable(pkgId, name); ok {
			return runtime.GlobalValue{Id: id}, true
		}
	}
	return nil, false
}

func (p *Program) findCallable(pkgId fir.PackageId, name string) (fir.StoreItemId, bool) {
	pkg := p.Store.Get(pkgId)
	ids := make([]fir.LocalItemId, 0, len(pkg.Items))
	for id := range pkg.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, itemId := range ids {
		if kind, ok := pkg.Items[itemId].Kind.(fir.CallableItem); ok && kind.Decl.Name == name {
			return fir.StoreItemId{Package: pkgId, Item: itemId}, true
		}
	}
	return fir.StoreItemId{}, false
}

// CallableName resolves an item reference to its declared name for
// diagnostics, falling back to the raw reference.
func (p *Program) CallableName(id fir.StoreItemId) string {
	if item := p.Store.Get(id.Package).Items[id.Item]; item != nil {
		if kind, ok := item.Kind.(fir.CallableItem); ok {
			return kind.Decl.Name
		}
	}
	return id.String()
}

// DescribeError renders an error for display. Evaluation failures gain
// their call stack with resolved callable names, most recent call first.
func (p *Program) DescribeError(err error) string {
	var evalErr *interpreter.EvalError
	if !errors.As(err, &evalErr) || len(evalErr.Frames) == 0 {
		return err.Error()
	}
	var sb strings.Builder
	sb.WriteString(evalErr.Err.Error())
	for i := len(evalErr.Frames) - 1; i >= 0; i-- {
		frame := evalErr.Frames[i]
		name := p.CallableName(frame.Id)
		if functor := frame.Functor.String(); functor != "" {
			name = functor + " " + name
		}
		fmt.Fprintf(&sb, "\n  at %s (package %d, span %d..%d)", name, frame.Span.Package, frame.Span.Span.Lo, frame.Span.Span.Hi)
	}
	return sb.String()
}
