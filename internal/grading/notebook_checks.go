package grading

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"bathygrade/internal/notebook"
	"bathygrade/internal/probe"
)

var (
	defaultInfoMarkers  = []string{"Author:", "Your Information"}
	defaultPlaceholders = []string{
		"[YOUR NAME HERE]",
		"[TODAY'S DATE]",
		"[REPLACE WITH YOUR ACTUAL NAME]",
		"[REPLACE WITH TODAY'S DATE]",
		"[REPLACE WITH YOUR STUDENT ID]",
	}
)

type loadedNotebook struct {
	path string
	raw  []byte
	nb   *notebook.Notebook
}

// loadNotebook reads and decodes the notebook named by the check. A non-nil
// evaluation means the check is already decided.
func (s *session) loadNotebook(check CheckSpec) (*loadedNotebook, *evaluation, error) {
	path, rel, ok := s.findFile(check.Path, "notebook")
	if !ok {
		e := notFound(rel, "notebook")
		return nil, &e, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	nb, err := notebook.Parse(raw)
	if err != nil {
		e := fail(KindMalformedData, "notebook unreadable", fmt.Sprintf("%s: %v", rel, err))
		return nil, &e, nil
	}
	if decided, err := conformance(rel, nb, raw); err != nil || decided != nil {
		return nil, decided, err
	}
	return &loadedNotebook{path: path, raw: raw, nb: nb}, nil, nil
}

// conformance decides the check when the notebook is older than nbformat 4
// or breaks the nbformat v4 schema.
func conformance(rel string, nb *notebook.Notebook, raw []byte) (*evaluation, error) {
	if err := nb.RequireVersion(notebook.MinFormat); err != nil {
		e := fail(KindMalformedData, "notebook format unsupported", fmt.Sprintf("%s: %v", rel, err))
		return &e, nil
	}
	problems, err := notebook.ValidateBytes(raw)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		msg := fmt.Sprintf("%s: %s", rel, problems[0])
		if len(problems) > 1 {
			msg += fmt.Sprintf(" (+%d more)", len(problems)-1)
		}
		e := fail(KindMalformedData, "notebook invalid", msg)
		return &e, nil
	}
	return nil, nil
}

// text returns the searchable text for scope: the raw file, or the joined
// sources of code, markdown or all cells.
func (l *loadedNotebook) text(scope string) (string, error) {
	switch scope {
	case "", "raw":
		return string(l.raw), nil
	case "code":
		return l.nb.Source(notebook.CellCode), nil
	case "markdown":
		return l.nb.Source(notebook.CellMarkdown), nil
	case "all":
		return l.nb.Source(""), nil
	}
	return "", fmt.Errorf("unknown scope %q", scope)
}

func (g *DefaultGrader) evalNotebookContains(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	nb, decided, err := s.loadNotebook(check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	text, err := nb.text(check.Scope)
	if err != nil {
		return evaluation{}, err
	}
	var missing []string
	for _, want := range check.Contains {
		if !strings.Contains(text, want) {
			missing = append(missing, fmt.Sprintf("%q", want))
		}
	}
	if len(check.AnyOf) > 0 {
		found := false
		for _, want := range check.AnyOf {
			if strings.Contains(text, want) {
				found = true
				break
			}
		}
		if !found {
			quoted := make([]string, len(check.AnyOf))
			for i, w := range check.AnyOf {
				quoted[i] = fmt.Sprintf("%q", w)
			}
			missing = append(missing, "one of "+strings.Join(quoted, ", "))
		}
	}
	if len(missing) > 0 {
		return fail(KindAssertionMismatch, "text missing", "notebook does not contain "+joinLimited(missing, 4)), nil
	}
	return pass("text present", "ok"), nil
}

func (g *DefaultGrader) evalNotebookRegex(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	r, err := regexp.Compile(check.Pattern)
	if err != nil {
		return evaluation{}, err
	}
	nb, decided, err := s.loadNotebook(check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	text, err := nb.text(check.Scope)
	if err != nil {
		return evaluation{}, err
	}
	if r.MatchString(text) {
		return pass("pattern found", "ok"), nil
	}
	return fail(KindAssertionMismatch, "pattern not found", fmt.Sprintf("no match for /%s/ in notebook", check.Pattern)), nil
}

// evalNotebookNoMarker lists the cells (numbered among all cells) whose
// source still carries a marker. Cells are read straight from the JSON so a
// notebook that does not decode cleanly is still scanned.
func (g *DefaultGrader) evalNotebookNoMarker(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	path, rel, ok := s.findFile(check.Path, "notebook")
	if !ok {
		return notFound(rel, "notebook"), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return evaluation{}, err
	}
	cells, err := notebook.ScanCells(raw)
	if err != nil {
		return fail(KindMalformedData, "notebook unreadable", fmt.Sprintf("%s: %v", rel, err)), nil
	}
	markers := check.Markers
	if len(markers) == 0 {
		markers = []string{"NotImplementedError"}
	}
	cellType := check.CellType
	if cellType == "" {
		cellType = notebook.CellCode
	}
	var hits []string
	for _, c := range cells {
		if cellType != "any" && c.CellType != cellType {
			continue
		}
		for _, m := range markers {
			if strings.Contains(c.Source, m) {
				hits = append(hits, fmt.Sprintf("Cell %d", c.Number))
				break
			}
		}
	}
	if len(hits) > 0 {
		return fail(KindAssertionMismatch, "marker present",
			fmt.Sprintf("%s still present in cells: %s", strings.Join(markers, ", "), strings.Join(hits, ", "))), nil
	}
	return pass("no markers", "ok"), nil
}

// functionSection returns the lines after `def name` up to the next line
// starting a new def.
func functionSection(src, name string) (string, bool) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "def "+name) {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.HasPrefix(strings.TrimSpace(l), "def ") {
				break
			}
			body = append(body, l)
		}
		return strings.Join(body, "\n"), true
	}
	return "", false
}

func (g *DefaultGrader) evalFunctionBody(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	nb, decided, err := s.loadNotebook(check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	scope := check.Scope
	if scope == "" {
		scope = "code"
	}
	src, err := nb.text(scope)
	if err != nil {
		return evaluation{}, err
	}
	fn := check.Function
	if fn == "" {
		fn = probe.DefaultFunction
	}
	if !regexp.MustCompile(`def\s+` + regexp.QuoteMeta(fn) + `\s*\(`).MatchString(src) {
		return fail(KindMissingArtifact, "function missing", fn+" function not defined"), nil
	}
	body, _ := functionSection(src, fn)

	var problems []string
	for _, word := range check.Forbid {
		if strings.Contains(body, word) {
			problems = append(problems, "still contains "+word)
		}
	}
	for _, word := range check.Contains {
		if !strings.Contains(body, word) {
			problems = append(problems, "lacks "+word)
		}
	}
	if check.RequireDoc && !strings.Contains(body, `"""`) && !strings.Contains(body, "'''") && !strings.Contains(body, "#") {
		problems = append(problems, "has no docstring or comment")
	}
	if len(problems) > 0 {
		return fail(KindAssertionMismatch, "function incomplete", fn+" "+strings.Join(problems, "; ")), nil
	}
	return pass("function ok", fn+" is defined"), nil
}

// evalMarkdownPlaceholders finds the student information cell and rejects
// template placeholders left in it.
func (g *DefaultGrader) evalMarkdownPlaceholders(_ context.Context, s *session, check CheckSpec) (evaluation, error) {
	nb, decided, err := s.loadNotebook(check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	markers := check.Markers
	if len(markers) == 0 {
		markers = defaultInfoMarkers
	}
	placeholders := check.Placeholders
	if len(placeholders) == 0 {
		placeholders = defaultPlaceholders
	}
	var info *notebook.Indexed
	for _, c := range nb.nb.CellsOf(notebook.CellMarkdown) {
		if containsAny(c.Cell.Source.String(), markers) {
			info = &c
			break
		}
	}
	if info == nil {
		return fail(KindMissingArtifact, "info cell missing", "could not find student information cell"), nil
	}
	var left []string
	for _, p := range placeholders {
		if strings.Contains(info.Cell.Source.String(), p) {
			left = append(left, fmt.Sprintf("'%s'", p))
		}
	}
	if len(left) > 0 {
		return fail(KindAssertionMismatch, "student information incomplete",
			fmt.Sprintf("cell %d still contains %s", info.Number, strings.Join(left, ", "))), nil
	}
	return pass("student information complete", fmt.Sprintf("cell %d", info.Number)), nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
