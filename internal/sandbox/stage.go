package sandbox

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Stage prepares the scratch directory: data/ and modules/ are copied in and
// an empty figures/ is created so relative paths in student code resolve.
// The returned cleanup removes directories Stage created itself.
func Stage(spec ExecSpec) (string, func(), error) {
	dir := spec.ScratchDir
	cleanup := func() {}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "bathygrade-exec-")
		if err != nil {
			return "", cleanup, err
		}
		dir = tmp
		cleanup = func() { _ = os.RemoveAll(tmp) }
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cleanup, err
	}

	for _, cp := range []struct{ src, name string }{
		{spec.DataDir, "data"},
		{spec.ModulesDir, "modules"},
	} {
		if cp.src == "" {
			continue
		}
		if _, err := os.Stat(cp.src); err != nil {
			continue
		}
		if err := copyPath(cp.src, filepath.Join(dir, cp.name)); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("copy %s: %w", cp.name, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "figures"), 0o755); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return dir, cleanup, nil
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && (d.Name() == "__pycache__" || d.Name() == ".ipynb_checkpoints") {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(0o644)
}
