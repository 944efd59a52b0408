package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the project manifest file searched for upward from a
// working directory.
const ManifestFileName = "project.yml"

// LockfileFileName is the resolved-dependency file written next to the
// manifest.
const LockfileFileName = "project.lock"

// ErrManifestNotFound reports that no manifest exists in a directory or any
// of its ancestors.
var ErrManifestNotFound = errors.New("project.yml not found")

// Manifest models project.yml: the project name, the entry bundle to
// execute, run defaults, and the dependencies to fetch.
type Manifest struct {
	// Path is the absolute location the manifest was loaded from.
	Path string
	// Name is the project name with every non-identifier character folded
	// to an underscore.
	Name string
	// Version is the published project version, recorded in lockfiles when
	// the project is depended on.
	Version string
	// Entry is the entry bundle path, relative to the manifest directory
	// unless absolute. Empty for projects that only publish items.
	Entry string
	// Shots is the default shot count for runs; zero means unset.
	Shots int
	// Seed, when present, makes measurement and DrawRandom results
	// reproducible by default.
	Seed         *uint64
	Dependencies map[string]*Dependency
}

// Dependency is one requirement: a git source pinned by tag or rev, or a
// local path. A git dependency with neither pin resolves to the highest
// semver tag at install time.
type Dependency struct {
	Git  string
	Tag  string
	Rev  string
	Path string
}

// LoadManifest reads and validates a project.yml.
func LoadManifest(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw manifestDisk
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("manifest: parse %s: %w", abs, err)
	}
	return raw.toManifest(abs)
}

// FindManifest walks from dir upward to the filesystem root looking for a
// project.yml, returning its absolute path or ErrManifestNotFound.
func FindManifest(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(abs, ManifestFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrManifestNotFound
		}
		abs = parent
	}
}

// Dir is the directory containing the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// EntryPath resolves the entry bundle against the manifest directory.
func (m *Manifest) EntryPath() (string, error) {
	if m.Entry == "" {
		return "", fmt.Errorf("manifest: %s does not name an entry bundle", m.Path)
	}
	if filepath.IsAbs(m.Entry) {
		return filepath.Clean(m.Entry), nil
	}
	return filepath.Join(m.Dir(), m.Entry), nil
}

// LockfilePath is where the project's lockfile lives.
func (m *Manifest) LockfilePath() string {
	return filepath.Join(m.Dir(), LockfileFileName)
}

// DependencyNames lists the declared dependencies in sorted order.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type manifestDisk struct {
	Name         string                    `yaml:"name"`
	Version      string                    `yaml:"version"`
	Entry        string                    `yaml:"entry"`
	Shots        int                       `yaml:"shots"`
	Seed         *uint64                   `yaml:"seed"`
	Dependencies map[string]dependencyDisk `yaml:"dependencies"`
}

type dependencyDisk struct {
	Git  string `yaml:"git"`
	Tag  string `yaml:"tag"`
	Rev  string `yaml:"rev"`
	Path string `yaml:"path"`
}

func (d manifestDisk) toManifest(path string) (*Manifest, error) {
	m := &Manifest{
		Path:    path,
		Name:    sanitizeSegment(d.Name),
		Version: strings.TrimSpace(d.Version),
		Entry:   strings.TrimSpace(d.Entry),
		Shots:   d.Shots,
		Seed:    d.Seed,
	}

	var problems []string
	if m.Name == "" {
		problems = append(problems, "name must be provided")
	}
	if d.Shots < 0 {
		problems = append(problems, "shots must not be negative")
	}

	if len(d.Dependencies) > 0 {
		m.Dependencies = make(map[string]*Dependency, len(d.Dependencies))
		names := make([]string, 0, len(d.Dependencies))
		for name := range d.Dependencies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			raw := d.Dependencies[name]
			dep := &Dependency{
				Git:  strings.TrimSpace(raw.Git),
				Tag:  strings.TrimSpace(raw.Tag),
				Rev:  strings.TrimSpace(raw.Rev),
				Path: strings.TrimSpace(raw.Path),
			}
			switch {
			case dep.Git == "" && dep.Path == "":
				problems = append(problems, fmt.Sprintf("dependencies.%s: must specify git or path", name))
			case dep.Git != "" && dep.Path != "":
				problems = append(problems, fmt.Sprintf("dependencies.%s: git and path are mutually exclusive", name))
			case dep.Git == "" && (dep.Tag != "" || dep.Rev != ""):
				problems = append(problems, fmt.Sprintf("dependencies.%s: tag and rev require git", name))
			case dep.Tag != "" && dep.Rev != "":
				problems = append(problems, fmt.Sprintf("dependencies.%s: tag and rev are mutually exclusive", name))
			}
			m.Dependencies[name] = dep
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("manifest: invalid %s: %s", path, strings.Join(problems, "; "))
	}
	return m, nil
}

// sanitizeSegment folds a name to the identifier alphabet. Package and
// project names appear in lockfiles and cache paths, so anything outside
// [A-Za-z0-9_] becomes an underscore.
func sanitizeSegment(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
