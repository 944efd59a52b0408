package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/mod/semver"

	"quill/interpreter-go/pkg/driver"
)

// gitFetcher clones git dependencies into the cache. Checkouts are keyed
// by name and version under <cache>/pkg/src, the layout the loader reads.
type gitFetcher struct {
	cacheDir string
}

func newGitFetcher(cacheDir string) *gitFetcher {
	if cacheDir == "" {
		return nil
	}
	return &gitFetcher{cacheDir: cacheDir}
}

// Fetch materializes one git dependency and returns its lockfile entry
// along with the checkout directory. A rev pin checks out that commit, a
// tag pin that tag, and an unpinned dependency the highest semver tag the
// repository carries.
func (g *gitFetcher) Fetch(name string, dep *driver.Dependency) (*driver.LockedPackage, string, error) {
	if g == nil {
		return nil, "", errors.New("git fetcher unavailable")
	}
	url := strings.TrimSpace(dep.Git)
	if url == "" {
		return nil, "", fmt.Errorf("git URL required")
	}

	// A rev pin names its checkout directory directly, so a cache hit
	// skips the clone.
	if rev := strings.TrimSpace(dep.Rev); rev != "" {
		dir := driver.CheckoutDir(g.cacheDir, name, rev)
		if _, err := os.Stat(dir); err == nil {
			pkg, err := lockedFromCheckout(name, rev, url, rev, dir)
			return pkg, dir, err
		}
	}

	version, commit, dir, err := g.clone(name, url, dep)
	if err != nil {
		return nil, "", err
	}
	pkg, err := lockedFromCheckout(name, version, url, commit, dir)
	return pkg, dir, err
}

func lockedFromCheckout(name, version, url, commit, dir string) (*driver.LockedPackage, error) {
	checksum, err := treeChecksum(dir)
	if err != nil {
		return nil, err
	}
	return &driver.LockedPackage{
		Name:     name,
		Version:  version,
		Source:   fmt.Sprintf("git+%s@%s", url, commit),
		Checksum: checksum,
	}, nil
}

// clone fetches the repository into a temporary directory next to the
// cache slot, resolves the pinned revision, and moves the checkout into
// place. An already populated slot wins over the fresh clone.
func (g *gitFetcher) clone(name, url string, dep *driver.Dependency) (version, commit, dir string, err error) {
	baseDir := filepath.Dir(driver.CheckoutDir(g.cacheDir, name, "head"))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", "", err
	}
	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", "", err
	}
	defer os.RemoveAll(tmpDir)

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return "", "", "", fmt.Errorf("git clone %s: %w", url, err)
	}

	version, revision, err := pinnedRevision(repo, dep)
	if err != nil {
		return "", "", "", err
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		return "", "", "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	targetDir := driver.CheckoutDir(g.cacheDir, name, version)
	if _, statErr := os.Stat(targetDir); statErr == nil {
		return version, hash.String(), targetDir, nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", "", "", fmt.Errorf("git checkout %s: %w", revision, err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		return "", "", "", err
	}
	return version, hash.String(), targetDir, nil
}

// pinnedRevision maps the dependency pin to a git revision plus the version
// label recorded in the lockfile.
func pinnedRevision(repo *git.Repository, dep *driver.Dependency) (string, plumbing.Revision, error) {
	if rev := strings.TrimSpace(dep.Rev); rev != "" {
		return rev, plumbing.Revision(rev), nil
	}
	if tag := strings.TrimSpace(dep.Tag); tag != "" {
		return tag, plumbing.Revision("refs/tags/" + tag), nil
	}
	tag, err := highestSemverTag(repo)
	if err != nil {
		return "", "", err
	}
	return tag, plumbing.Revision("refs/tags/" + tag), nil
}

// highestSemverTag scans the repository tags and returns the greatest
// semantic version. Tags with and without the leading v both count; tags
// that are not semantic versions are ignored.
func highestSemverTag(repo *git.Repository) (string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return "", err
	}
	var best, bestCanon string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		canon := name
		if !strings.HasPrefix(canon, "v") {
			canon = "v" + canon
		}
		if !semver.IsValid(canon) {
			return nil
		}
		if best == "" || semver.Compare(canon, bestCanon) > 0 {
			best, bestCanon = name, canon
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", errors.New("no semver tags (pin a tag or rev)")
	}
	return best, nil
}
