package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/mitchellh/hashstructure/v2"

	"bathygrade/internal/locate"
)

type inputFile struct {
	Rel   string
	Size  int64
	MTime int64
}

type inputSet struct {
	Suite string
	Only  []string
	Files []inputFile
}

// digestInputs hashes the name, size and modification time of every graded
// artifact together with the check selection.
func digestInputs(loc *locate.Locator, suiteID string, only []string) (string, error) {
	set := inputSet{Suite: suiteID, Only: slices.Sorted(slices.Values(only))}
	root := loc.Root()
	add := func(path string, info fs.FileInfo) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		set.Files = append(set.Files, inputFile{Rel: filepath.ToSlash(rel), Size: info.Size(), MTime: info.ModTime().UnixNano()})
	}

	for _, find := range []func() (string, bool){loc.Notebook, loc.Dataset} {
		p, ok := find()
		if !ok {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		add(p, info)
	}
	for _, find := range []func() (string, bool){loc.Modules, loc.Figures} {
		dir, ok := find()
		if !ok {
			continue
		}
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "__pycache__" {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			add(p, info)
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	h, err := hashstructure.Hash(set, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("inputs digest: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}

// watchDirs lists the directories whose changes can alter a static grade.
func watchDirs(loc *locate.Locator) []string {
	var dirs []string
	seen := map[string]bool{}
	addDir := func(d string) {
		if d == "" || seen[d] {
			return
		}
		if st, err := os.Stat(d); err != nil || !st.IsDir() {
			return
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	if p, ok := loc.Notebook(); ok {
		addDir(filepath.Dir(p))
	}
	if p, ok := loc.Dataset(); ok {
		addDir(filepath.Dir(p))
	}
	for _, find := range []func() (string, bool){loc.Modules, loc.Figures} {
		dir, ok := find()
		if !ok {
			continue
		}
		_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			addDir(p)
			return nil
		})
	}
	addDir(loc.Root())
	return dirs
}
