// Package report renders grade results for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"bathygrade/internal/grading"
)

const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted --format values.
func Formats() []string { return []string{FormatText, FormatJSON, FormatMarkdown} }

type Options struct {
	// Color styles the text report. Off for pipes and files.
	Color bool
	// Render passes the markdown report through glamour.
	Render bool
	// Width wraps rendered markdown; 0 means 100 columns.
	Width int
	// Verbose adds check summaries and artifact previews.
	Verbose bool
}

// Write renders res in the named format.
func Write(w io.Writer, format string, res grading.Result, opts Options) error {
	switch format {
	case "", FormatText:
		return Text(w, res, opts)
	case FormatJSON:
		return JSON(w, res)
	case FormatMarkdown:
		return Markdown(w, res, opts)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

func JSON(w io.Writer, res grading.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

const (
	glyphPass = "✓"
	glyphFail = "✗"
	glyphSkip = "-"
)

type styles struct {
	title  lipgloss.Style
	dim    lipgloss.Style
	pass   lipgloss.Style
	fail   lipgloss.Style
	skip   lipgloss.Style
	id     lipgloss.Style
	banner lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, dim: plain, pass: plain, fail: plain, skip: plain, id: plain, banner: plain}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		pass:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		fail:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		skip:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		id:     lipgloss.NewStyle().Bold(true),
		banner: lipgloss.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (st styles) status(s grading.Status) (string, lipgloss.Style) {
	switch s {
	case grading.StatusPass:
		return glyphPass + " PASS", st.pass
	case grading.StatusFail:
		return glyphFail + " FAIL", st.fail
	default:
		return glyphSkip + " SKIP", st.skip
	}
}

// Text writes one line per check: status, id and diagnosis.
func Text(w io.Writer, res grading.Result, opts Options) error {
	st := newStyles(opts.Color)
	var b strings.Builder

	title := res.SuiteID
	if res.SuiteVersion != "" {
		title += " " + res.SuiteVersion
	}
	b.WriteString(st.title.Render(title))
	if res.Run.WorkDir != "" {
		b.WriteString(st.dim.Render("  " + res.Run.WorkDir))
	}
	b.WriteString("\n\n")

	width := 0
	for _, c := range res.Checks {
		width = max(width, len(c.ID))
	}
	for _, c := range res.Checks {
		label, style := st.status(c.Status)
		line := style.Render(label) + "  " + st.id.Render(pad(c.ID, width))
		if diag := diagnosis(c, opts.Verbose); diag != "" {
			line += "  " + diag
		}
		if !c.Required {
			line += st.dim.Render(" (optional)")
		}
		b.WriteString(line + "\n")
		if opts.Verbose {
			for _, a := range artifactsFor(res, c) {
				for _, l := range strings.Split(strings.TrimRight(a.TextPreview, "\n"), "\n") {
					b.WriteString(st.dim.Render("      | "+l) + "\n")
				}
			}
		}
	}

	b.WriteString("\n")
	verdict := st.pass.Inherit(st.banner).Render("PASSED")
	if !res.Passed {
		verdict = st.fail.Inherit(st.banner).Render("FAILED")
	}
	fmt.Fprintf(&b, "%s %d passed, %d failed, %d skipped  score %d/%d",
		verdict, res.Counts.Pass, res.Counts.Fail, res.Counts.Skip, res.Score.Earned, res.Score.Possible)
	if res.Counts.RequiredFailed > 0 {
		fmt.Fprintf(&b, "  (%d required failed)", res.Counts.RequiredFailed)
	}
	b.WriteString("\n")
	if opts.Verbose {
		if res.Engine.Engine != "" {
			b.WriteString(st.dim.Render(fmt.Sprintf("engine %s %s", res.Engine.Engine, res.Engine.Version)) + "\n")
		}
		b.WriteString(st.dim.Render(fmt.Sprintf("run %s  fingerprint %s  %dms", res.Run.RunID, res.Fingerprint, res.Run.DurationMS)) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// MarkdownSource builds the unrendered markdown report.
func MarkdownSource(res grading.Result, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Grade report: %s", res.SuiteID)
	if res.SuiteVersion != "" {
		fmt.Fprintf(&b, " %s", res.SuiteVersion)
	}
	b.WriteString("\n\n")
	verdict := "**PASSED**"
	if !res.Passed {
		verdict = "**FAILED**"
	}
	fmt.Fprintf(&b, "%s: %d passed, %d failed, %d skipped. Score %d/%d.\n\n",
		verdict, res.Counts.Pass, res.Counts.Fail, res.Counts.Skip, res.Score.Earned, res.Score.Possible)

	b.WriteString("| Status | Check | Diagnosis |\n|---|---|---|\n")
	for _, c := range res.Checks {
		id := "`" + c.ID + "`"
		if !c.Required {
			id += " (optional)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", strings.ToUpper(string(c.Status)), id, cell(diagnosis(c, verbose)))
	}

	if verbose && len(res.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n")
		for _, a := range res.Artifacts {
			title := a.Title
			if title == "" {
				title = a.Ref
			}
			fmt.Fprintf(&b, "\n### %s\n\n```\n%s\n```\n", title, strings.TrimRight(a.TextPreview, "\n"))
		}
	}
	if res.Run.RunID != "" {
		fmt.Fprintf(&b, "\n_run %s, fingerprint %s_\n", res.Run.RunID, res.Fingerprint)
	}
	return b.String()
}

// Markdown writes the markdown report, rendered with glamour when
// opts.Render is set.
func Markdown(w io.Writer, res grading.Result, opts Options) error {
	md := MarkdownSource(res, opts.Verbose)
	if !opts.Render {
		_, err := io.WriteString(w, md)
		return err
	}
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func diagnosis(c grading.CheckResult, verbose bool) string {
	msg := strings.TrimSpace(c.Message)
	sum := strings.TrimSpace(c.Summary)
	switch {
	case msg == "":
		return sum
	case verbose && sum != "" && sum != msg:
		return sum + ": " + msg
	default:
		return msg
	}
}

func artifactsFor(res grading.Result, c grading.CheckResult) []grading.Artifact {
	var out []grading.Artifact
	for _, ref := range c.Artifacts {
		for _, a := range res.Artifacts {
			if a.Ref == ref.Ref && a.TextPreview != "" {
				out = append(out, a)
			}
		}
	}
	return out
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", "<br>")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
