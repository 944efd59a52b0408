package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quill/interpreter-go/pkg/driver"
)

// dependencyInstaller resolves a manifest's dependency graph into lockfile
// entries and cache checkouts. Path dependencies stay where they are and
// are recorded in place; git dependencies are fetched into the cache.
type dependencyInstaller struct {
	manifest *driver.Manifest
	cacheDir string
	git      *gitFetcher
}

func newDependencyInstaller(manifest *driver.Manifest, cacheDir string) *dependencyInstaller {
	return &dependencyInstaller{
		manifest: manifest,
		cacheDir: cacheDir,
		git:      newGitFetcher(cacheDir),
	}
}

// Install resolves every declared dependency, transitives included, and
// reconciles the lockfile with the result. It reports whether the lockfile
// changed and a log of what each dependency resolved to.
func (in *dependencyInstaller) Install(lock *driver.Lockfile) (bool, []string, error) {
	res := &installResolution{
		lock:    lock,
		visited: map[string]bool{},
		keep:    map[string]bool{},
	}
	if err := in.installAll(res, in.manifest); err != nil {
		return false, res.logs, err
	}
	changed := res.changed
	if lock.Prune(res.keep) {
		changed = true
	}
	return changed, res.logs, nil
}

type installResolution struct {
	lock    *driver.Lockfile
	visited map[string]bool
	keep    map[string]bool
	logs    []string
	changed bool
}

func (r *installResolution) logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

// installAll resolves the dependencies one manifest declares. The project
// manifest seeds the recursion; dependencies that carry a manifest of their
// own recurse with it, so the lockfile covers the transitive closure.
func (in *dependencyInstaller) installAll(res *installResolution, m *driver.Manifest) error {
	for _, name := range m.DependencyNames() {
		if err := in.installOne(res, m, name, m.Dependencies[name]); err != nil {
			return fmt.Errorf("dependency %s: %w", name, err)
		}
	}
	return nil
}

func (in *dependencyInstaller) installOne(res *installResolution, owner *driver.Manifest, name string, dep *driver.Dependency) error {
	if res.visited[name] {
		return nil
	}
	res.visited[name] = true

	if dep.Path != "" {
		return in.installPath(res, owner, name, dep)
	}
	return in.installGit(res, name, dep)
}

// installPath records a path dependency in place. A directory must hold a
// project whose manifest supplies the version and transitive dependencies;
// a file is a bare bundle.
func (in *dependencyInstaller) installPath(res *installResolution, owner *driver.Manifest, name string, dep *driver.Dependency) error {
	path := dep.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(owner.Dir(), path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	pkg := &driver.LockedPackage{
		Name:    name,
		Version: "0.0.0",
		Source:  "path:" + path,
	}
	if info.IsDir() {
		m, err := driver.LoadManifest(filepath.Join(path, driver.ManifestFileName))
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		if m.Version != "" {
			pkg.Version = m.Version
		}
		if err := in.installAll(res, m); err != nil {
			return err
		}
		pkg.Dependencies = lockedDependencies(res.lock, m)
	}

	checksum, err := treeChecksum(path)
	if err != nil {
		return err
	}
	pkg.Checksum = checksum

	if res.lock.Upsert(pkg) {
		res.changed = true
		res.logf("%s: resolved path %s (version %s)", name, path, pkg.Version)
	} else {
		res.logf("%s: up to date (path %s)", name, path)
	}
	res.keep[pkg.Name] = true
	return nil
}

// installGit fetches a git dependency into the cache, reusing the existing
// checkout when the lockfile entry still satisfies the manifest's pin.
func (in *dependencyInstaller) installGit(res *installResolution, name string, dep *driver.Dependency) error {
	if existing := res.lock.Package(name); existing != nil && strings.HasPrefix(existing.Source, "git+") && matchesPin(existing, dep) {
		dir := driver.CheckoutDir(in.cacheDir, name, existing.Version)
		if _, err := os.Stat(dir); err == nil {
			res.logf("%s: using cached %s", name, existing.Version)
			res.keep[existing.Name] = true
			return in.recurseCheckout(res, existing, dir)
		}
	}

	pkg, dir, err := in.git.Fetch(name, dep)
	if err != nil {
		return err
	}
	if err := in.recurseCheckout(res, pkg, dir); err != nil {
		return err
	}
	if res.lock.Upsert(pkg) {
		res.changed = true
		res.logf("%s: fetched %s (version %s)", name, pkg.Source, pkg.Version)
	} else {
		res.logf("%s: up to date (%s)", name, pkg.Version)
	}
	res.keep[pkg.Name] = true
	return nil
}

// recurseCheckout follows the dependencies a fetched package declares.
// Checkouts without a manifest are bare bundles with nothing to follow.
func (in *dependencyInstaller) recurseCheckout(res *installResolution, pkg *driver.LockedPackage, dir string) error {
	manifestPath := filepath.Join(dir, driver.ManifestFileName)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil
	}
	m, err := driver.LoadManifest(manifestPath)
	if err != nil {
		return fmt.Errorf("read fetched manifest: %w", err)
	}
	if err := in.installAll(res, m); err != nil {
		return err
	}
	pkg.Dependencies = lockedDependencies(res.lock, m)
	return nil
}

// lockedDependencies lists a manifest's direct dependencies with the
// versions they resolved to, for the parent's lockfile entry.
func lockedDependencies(lock *driver.Lockfile, m *driver.Manifest) []driver.LockedDependency {
	names := m.DependencyNames()
	if len(names) == 0 {
		return nil
	}
	out := make([]driver.LockedDependency, 0, len(names))
	for _, name := range names {
		entry := driver.LockedDependency{Name: name}
		if locked := lock.Package(name); locked != nil {
			entry.Version = locked.Version
		}
		out = append(out, entry)
	}
	return out
}

// matchesPin reports whether a lock entry still satisfies the manifest's
// pin. Unpinned dependencies accept whatever the lockfile recorded, which
// is what keeps install runs stable until an update.
func matchesPin(pkg *driver.LockedPackage, dep *driver.Dependency) bool {
	switch {
	case dep.Rev != "":
		return strings.HasSuffix(pkg.Source, "@"+dep.Rev)
	case dep.Tag != "":
		return pkg.Version == dep.Tag
	default:
		return true
	}
}

// treeChecksum hashes a dependency's files so lockfiles notice content
// drift. Git metadata is excluded; a path to a single bundle hashes that
// file alone.
func treeChecksum(path string) (string, error) {
	h := sha256.New()
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		h.Write([]byte(filepath.Base(path)))
		h.Write(data)
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
