package locate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
)

// Layout names the artifacts of an exercise relative to the project root.
type Layout struct {
	Notebook string `json:"notebook,omitempty" yaml:"notebook,omitempty"`
	Dataset  string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Modules  string `json:"modules,omitempty" yaml:"modules,omitempty"`
	Figures  string `json:"figures,omitempty" yaml:"figures,omitempty"`
}

func DefaultLayout() Layout {
	return Layout{
		Notebook: "src/assignment.ipynb",
		Dataset:  "data/bathymetry_subset.nc",
		Modules:  "modules",
		Figures:  "figures",
	}
}

// WithDefaults fills empty fields from DefaultLayout.
func (l Layout) WithDefaults() Layout {
	d := DefaultLayout()
	if l.Notebook == "" {
		l.Notebook = d.Notebook
	}
	if l.Dataset == "" {
		l.Dataset = d.Dataset
	}
	if l.Modules == "" {
		l.Modules = d.Modules
	}
	if l.Figures == "" {
		l.Figures = d.Figures
	}
	return l
}

// Locator resolves artifact paths. It probes the working directory first and
// its parent second, so the harness works from the project root and from a
// directory one level down (tests/, src/).
type Locator struct {
	WorkDir string
	Layout  Layout
}

func New(workDir string, layout Layout) *Locator {
	if workDir == "" {
		workDir = "."
	}
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	return &Locator{WorkDir: workDir, Layout: layout.WithDefaults()}
}

func (l *Locator) bases() []string {
	parent := filepath.Dir(l.WorkDir)
	if parent == l.WorkDir {
		return []string{l.WorkDir}
	}
	return []string{l.WorkDir, parent}
}

// Find returns the first existing regular file for rel. Absolute paths are
// checked as given.
func (l *Locator) Find(rel string) (string, bool) {
	return l.find(rel, false)
}

// FindDir is Find for directories.
func (l *Locator) FindDir(rel string) (string, bool) {
	return l.find(rel, true)
}

func (l *Locator) find(rel string, dir bool) (string, bool) {
	if rel == "" {
		return "", false
	}
	candidates := []string{rel}
	if !filepath.IsAbs(rel) {
		candidates = candidates[:0]
		for _, base := range l.bases() {
			candidates = append(candidates, filepath.Join(base, rel))
		}
	}
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() == dir {
			return p, true
		}
	}
	return "", false
}

// Root returns the base directory that holds the notebook or the dataset,
// falling back to the working directory.
func (l *Locator) Root() string {
	for _, base := range l.bases() {
		for _, rel := range []string{l.Layout.Notebook, l.Layout.Dataset} {
			if _, err := os.Stat(filepath.Join(base, rel)); err == nil {
				return base
			}
		}
	}
	return l.WorkDir
}

func (l *Locator) Notebook() (string, bool) { return l.Find(l.Layout.Notebook) }
func (l *Locator) Dataset() (string, bool)  { return l.Find(l.Layout.Dataset) }
func (l *Locator) Modules() (string, bool)  { return l.FindDir(l.Layout.Modules) }
func (l *Locator) Figures() (string, bool)  { return l.FindDir(l.Layout.Figures) }

// Glob expands pattern inside the figures directory. Matches are absolute
// and sorted.
func (l *Locator) Glob(pattern string) ([]string, error) {
	dir, ok := l.Figures()
	if !ok {
		return nil, nil
	}
	return GlobIn(dir, pattern)
}

func GlobIn(dir, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// Suggest returns up to limit file names in the figures directory closest to
// pattern by edit distance.
func (l *Locator) Suggest(pattern string, limit int) []string {
	dir, ok := l.Figures()
	if !ok {
		return nil
	}
	return SuggestIn(dir, pattern, limit)
}

func SuggestIn(dir, pattern string, limit int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil || limit <= 0 {
		return nil
	}
	target := strings.ToLower(strings.ReplaceAll(pattern, "*", ""))
	type scored struct {
		name string
		dist int
	}
	var all []scored
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		d := levenshtein.ComputeDistance(target, strings.ToLower(e.Name()))
		all = append(all, scored{name: e.Name(), dist: d})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].name < all[j].name
		}
		return all[i].dist < all[j].dist
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.name)
	}
	return out
}
