package grading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

func (g *DefaultGrader) evalFileExists(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	paths := append([]string{}, check.Files...)
	if check.Path != "" || len(paths) == 0 {
		paths = append([]string{check.Path}, paths...)
	}
	var found []string
	for _, p := range paths {
		abs, rel, ok := s.findFile(p, "")
		if !ok {
			return notFound(rel, "file"), nil
		}
		found = append(found, abs)
	}
	return pass("file exists", "found "+joinLimited(found, 3)), nil
}

// evalDirExists checks that Path is a directory holding every entry of Files.
func (g *DefaultGrader) evalDirExists(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	rel := s.layoutPath(check.Path)
	dir, ok := s.loc.FindDir(rel)
	if !ok {
		return fail(KindMissingArtifact, "directory missing", filepath.Base(rel)+" directory not found"), nil
	}
	var missing []string
	for _, name := range check.Files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, name)
				continue
			}
			return evaluation{}, err
		}
		if info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fail(KindMissingArtifact, "directory incomplete",
			fmt.Sprintf("%s is missing %s", filepath.Base(rel), joinLimited(missing, 5))), nil
	}
	return pass("directory exists", fmt.Sprintf("%s holds %d expected files", dir, len(check.Files))), nil
}
