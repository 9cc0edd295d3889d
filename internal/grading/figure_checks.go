package grading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"bathygrade/internal/figure"
)

// figureMatches expands pattern in the figures directory.
func (s *session) figureMatches(pattern string) ([]string, *evaluation, error) {
	if _, ok := s.loc.Figures(); !ok {
		e := fail(KindMissingArtifact, "figures missing", filepath.Base(s.loc.Layout.Figures)+" directory not found")
		return nil, &e, nil
	}
	matches, err := s.loc.Glob(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("bad figure pattern %q: %w", pattern, err)
	}
	return matches, nil, nil
}

func (s *session) noMatch(pattern string) evaluation {
	msg := "no figure matches " + pattern
	if near := s.loc.Suggest(pattern, 3); len(near) > 0 {
		msg += " (closest: " + strings.Join(near, ", ") + ")"
	}
	return fail(KindMissingArtifact, "figure missing", msg)
}

// evalFiguresPresent requires a match for every pattern and rejects matches
// whose names contain a forbidden substring.
func (g *DefaultGrader) evalFiguresPresent(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	patterns := check.Patterns
	if len(patterns) == 0 && check.Pattern != "" {
		patterns = []string{check.Pattern}
	}
	if len(patterns) == 0 {
		return evaluation{}, fmt.Errorf("figures_present needs at least one pattern")
	}
	var named []string
	for _, pattern := range patterns {
		matches, decided, err := s.figureMatches(pattern)
		if err != nil || decided != nil {
			return deref(decided), err
		}
		if len(matches) == 0 {
			return s.noMatch(pattern), nil
		}
		for _, m := range matches {
			named = append(named, filepath.Base(m))
		}
	}
	var bad []string
	for _, name := range named {
		for _, word := range check.Forbid {
			if strings.Contains(name, word) {
				bad = append(bad, name)
				break
			}
		}
	}
	if len(bad) > 0 {
		return fail(KindAssertionMismatch, "figure not personalized",
			fmt.Sprintf("rename %s: names must not contain %s", joinLimited(bad, 3), strings.Join(check.Forbid, " or "))), nil
	}
	return pass("figures present", joinLimited(named, 5)), nil
}

// evalFigureImage inspects every figure matching Pattern. All limits are
// exclusive.
func (g *DefaultGrader) evalFigureImage(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	matches, decided, err := s.figureMatches(check.Pattern)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	if len(matches) == 0 {
		return s.noMatch(check.Pattern), nil
	}
	var failed, seen []string
	for _, m := range matches {
		info, err := figure.Inspect(m)
		if err != nil {
			return fail(KindMalformedData, "figure unreadable", fmt.Sprintf("%s: %v", filepath.Base(m), err)), nil
		}
		name := filepath.Base(info.Path)
		if problems := imageProblems(check, info); len(problems) > 0 {
			failed = append(failed, name+": "+strings.Join(problems, "; "))
			continue
		}
		seen = append(seen, fmt.Sprintf("%s: %dx%d, mean %.3f", name, info.Width, info.Height, info.Mean))
	}
	if len(failed) > 0 {
		return fail(KindAssertionMismatch, "figure below requirements", joinLimited(failed, 3)), nil
	}
	return pass("figure ok", joinLimited(seen, 3)), nil
}

func imageProblems(check CheckSpec, info figure.Info) []string {
	var problems []string
	if check.MinWidth > 0 && info.Width <= check.MinWidth {
		problems = append(problems, fmt.Sprintf("width %dpx, need more than %d", info.Width, check.MinWidth))
	}
	if check.MinHeight > 0 && info.Height <= check.MinHeight {
		problems = append(problems, fmt.Sprintf("height %dpx, need more than %d", info.Height, check.MinHeight))
	}
	if check.MinPixels > 0 && info.Pixels() <= check.MinPixels {
		problems = append(problems, fmt.Sprintf("%d pixels, need more than %d", info.Pixels(), check.MinPixels))
	}
	if check.MaxMean > 0 && info.Mean >= check.MaxMean {
		problems = append(problems, fmt.Sprintf("mean intensity %.3f, need below %.2f (figure looks blank)", info.Mean, check.MaxMean))
	}
	return problems
}

// evalFigureSizes bounds the byte size of every figure matching Pattern.
func (g *DefaultGrader) evalFigureSizes(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	matches, decided, err := s.figureMatches(check.Pattern)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	if len(matches) == 0 {
		return s.noMatch(check.Pattern), nil
	}
	var problems []string
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			return evaluation{}, err
		}
		size := uint64(st.Size())
		switch {
		case check.MinBytes > 0 && st.Size() <= check.MinBytes:
			problems = append(problems, fmt.Sprintf("%s is %s, need more than %s", filepath.Base(m), humanize.Bytes(size), humanize.Bytes(uint64(check.MinBytes))))
		case check.MaxBytes > 0 && st.Size() >= check.MaxBytes:
			problems = append(problems, fmt.Sprintf("%s is %s, need less than %s", filepath.Base(m), humanize.Bytes(size), humanize.Bytes(uint64(check.MaxBytes))))
		}
	}
	if len(problems) > 0 {
		return fail(KindAssertionMismatch, "figure size out of range", joinLimited(problems, 3)), nil
	}
	return pass("figure sizes ok", fmt.Sprintf("%d figures within size limits", len(matches))), nil
}

func deref(e *evaluation) evaluation {
	if e == nil {
		return evaluation{}
	}
	return *e
}
