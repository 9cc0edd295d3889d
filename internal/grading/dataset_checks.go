package grading

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"bathygrade/internal/dataset"
	"bathygrade/internal/probe"
)

var defaultDatasetNames = []string{dataset.LatName, dataset.LonName, dataset.DepthName}

// openGrid opens the dataset named by the check. A non-nil evaluation means
// the check is already decided.
func (g *DefaultGrader) openGrid(s *session, check CheckSpec) (*dataset.Grid, *evaluation) {
	path, rel, ok := s.findFile(check.Path, "dataset")
	if !ok {
		e := notFound(rel, "file")
		return nil, &e
	}
	grid, err := g.open(path)
	if err != nil {
		e := fail(KindMalformedData, "dataset unreadable", fmt.Sprintf("cannot read %s: %v", rel, err))
		return nil, &e
	}
	return grid, nil
}

func (g *DefaultGrader) evalDatasetSchema(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	grid, decided := g.openGrid(s, check)
	if decided != nil {
		return *decided, nil
	}
	defer grid.Close()

	var missing []string
	for _, name := range check.Coords {
		if !grid.HasCoord(name) {
			missing = append(missing, "coordinate "+name)
		}
	}
	for _, name := range check.Vars {
		if !grid.HasVar(name) {
			missing = append(missing, "variable "+name)
		}
	}
	if len(check.Coords) == 0 && len(check.Vars) == 0 {
		for _, name := range defaultDatasetNames {
			if !grid.Has(name) {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		return fail(KindMalformedData, "dataset incomplete", "dataset lacks "+strings.Join(missing, ", ")), nil
	}
	if check.MinAxis > 0 {
		if len(grid.Lat) <= check.MinAxis || len(grid.Lon) <= check.MinAxis {
			return fail(KindMalformedData, "grid too small",
				fmt.Sprintf("expected more than %d points per axis, got lat=%d lon=%d", check.MinAxis, len(grid.Lat), len(grid.Lon))), nil
		}
	}
	return pass("dataset schema ok", fmt.Sprintf("lat=%d lon=%d", len(grid.Lat), len(grid.Lon))), nil
}

// exprEnv exposes the grid summary to dataset_expr predicates.
func exprEnv(grid *dataset.Grid) map[string]any {
	st := grid.Stats()
	env := map[string]any{
		"min":       st.Min,
		"max":       st.Max,
		"count":     st.Count,
		"nan":       st.NaN,
		"lat_count": len(grid.Lat),
		"lon_count": len(grid.Lon),
		"lat_min":   0.0,
		"lat_max":   0.0,
		"lon_min":   0.0,
		"lon_max":   0.0,
	}
	if len(grid.Lat) > 0 {
		env["lat_min"], env["lat_max"] = minMax(grid.Lat)
	}
	if len(grid.Lon) > 0 {
		env["lon_min"], env["lon_max"] = minMax(grid.Lon)
	}
	return env
}

func minMax(v []float64) (float64, float64) {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

func (g *DefaultGrader) evalDatasetExpr(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	if strings.TrimSpace(check.Expr) == "" {
		return evaluation{}, fmt.Errorf("dataset_expr needs an expression")
	}
	grid, decided := g.openGrid(s, check)
	if decided != nil {
		return *decided, nil
	}
	defer grid.Close()

	env := exprEnv(grid)
	program, err := expr.Compile(check.Expr, expr.Env(env), expr.AsBool())
	if err != nil {
		return evaluation{}, fmt.Errorf("compile %q: %w", check.Expr, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return evaluation{}, fmt.Errorf("evaluate %q: %w", check.Expr, err)
	}
	observed := fmt.Sprintf("min=%.1f max=%.1f count=%d", env["min"], env["max"], env["count"])
	if ok, _ := out.(bool); ok {
		return pass("dataset predicate holds", observed), nil
	}
	return fail(KindMalformedData, "dataset predicate false",
		fmt.Sprintf("expected %s, observed %s", check.Expr, observed)), nil
}

func lookupLocations(check CheckSpec) []probe.Location {
	if len(check.Locations) > 0 {
		return check.Locations
	}
	if check.Preset == "edges" {
		return probe.EdgeLocations()
	}
	return probe.Locations()
}

// evalDatasetLookup runs the reference nearest-neighbour lookup. With Range
// set every depth must fall inside it; otherwise each location's tolerance
// applies.
func (g *DefaultGrader) evalDatasetLookup(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	grid, decided := g.openGrid(s, check)
	if decided != nil {
		return *decided, nil
	}
	defer grid.Close()

	locs := lookupLocations(check)
	var problems []string
	for _, loc := range locs {
		depth, _, _, err := grid.Nearest(loc.Lat, loc.Lon)
		if err != nil {
			return fail(KindMalformedData, "lookup failed", fmt.Sprintf("%s: %v", loc.Description, err)), nil
		}
		if check.Range != nil {
			if !check.Range.Contains(depth) {
				problems = append(problems, fmt.Sprintf("%s: %.1fm outside (%.0f, %.0f)", loc.Description, depth, check.Range.Above, check.Range.Below))
			}
			continue
		}
		if !loc.Within(depth) {
			problems = append(problems, fmt.Sprintf("%s: expected %.1f±%.0fm, got %.1fm", loc.Description, loc.Expected, loc.Tolerance, depth))
		}
	}
	if len(problems) > 0 {
		return fail(KindAssertionMismatch, "lookup mismatch", joinLimited(problems, 5)), nil
	}
	return pass("lookup matches", fmt.Sprintf("%d locations within tolerance", len(locs))), nil
}
