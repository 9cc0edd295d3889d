package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"

	OutputStream  = "stream"
	OutputError   = "error"
	OutputResult  = "execute_result"
	OutputDisplay = "display_data"
)

// Notebook is an nbformat v4 document.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type Cell struct {
	ID             string
	CellType       string
	Metadata       map[string]any
	Source         Text
	Outputs        []Output
	ExecutionCount *int
	Attachments    json.RawMessage
}

type Output struct {
	OutputType     string
	Name           string
	Text           Text
	Data           map[string]json.RawMessage
	Metadata       map[string]any
	ExecutionCount *int
	EName          string
	EValue         string
	Traceback      []string
}

// Text is an nbformat multiline string: either a JSON string or a list of
// line fragments that concatenate to one.
type Text string

func (t Text) String() string { return string(t) }

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("multiline string: %w", err)
	}
	*t = Text(strings.Join(parts, ""))
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(splitLines(string(t)))
}

func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

type rawCell struct {
	ID             string          `json:"id,omitempty"`
	CellType       string          `json:"cell_type"`
	Metadata       map[string]any  `json:"metadata"`
	Source         Text            `json:"source"`
	Outputs        []Output        `json:"outputs,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	var r rawCell
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*c = Cell(r)
	return nil
}

func (c Cell) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"cell_type": c.CellType,
		"metadata":  emptyIfNil(c.Metadata),
		"source":    c.Source,
	}
	if c.ID != "" {
		m["id"] = c.ID
	}
	if len(c.Attachments) > 0 {
		m["attachments"] = c.Attachments
	}
	if c.CellType == CellCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []Output{}
		}
		m["outputs"] = outputs
		m["execution_count"] = c.ExecutionCount
	}
	return json.Marshal(m)
}

type rawOutput struct {
	OutputType     string                     `json:"output_type"`
	Name           string                     `json:"name,omitempty"`
	Text           Text                       `json:"text,omitempty"`
	Data           map[string]json.RawMessage `json:"data,omitempty"`
	Metadata       map[string]any             `json:"metadata,omitempty"`
	ExecutionCount *int                       `json:"execution_count,omitempty"`
	EName          string                     `json:"ename,omitempty"`
	EValue         string                     `json:"evalue,omitempty"`
	Traceback      []string                   `json:"traceback,omitempty"`
}

func (o *Output) UnmarshalJSON(b []byte) error {
	var r rawOutput
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*o = Output(r)
	return nil
}

func (o Output) MarshalJSON() ([]byte, error) {
	m := map[string]any{"output_type": o.OutputType}
	switch o.OutputType {
	case OutputStream:
		m["name"] = o.Name
		m["text"] = o.Text
	case OutputError:
		m["ename"] = o.EName
		m["evalue"] = o.EValue
		tb := o.Traceback
		if tb == nil {
			tb = []string{}
		}
		m["traceback"] = tb
	case OutputResult, OutputDisplay:
		data := o.Data
		if data == nil {
			data = map[string]json.RawMessage{}
		}
		m["data"] = data
		m["metadata"] = emptyIfNil(o.Metadata)
		if o.OutputType == OutputResult {
			m["execution_count"] = o.ExecutionCount
		}
	}
	return json.Marshal(m)
}

// PlainText returns the human readable text of an output: stream text,
// text/plain data, or the error traceback without ANSI escapes.
func (o Output) PlainText() string {
	switch o.OutputType {
	case OutputStream:
		return string(o.Text)
	case OutputError:
		return StripANSI(strings.Join(o.Traceback, "\n"))
	default:
		raw, ok := o.Data["text/plain"]
		if !ok {
			return ""
		}
		var t Text
		if err := json.Unmarshal(raw, &t); err != nil {
			return ""
		}
		return string(t)
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func StripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

func Parse(b []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, fmt.Errorf("parse notebook: %w", err)
	}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}
	return &nb, nil
}

func Load(path string) (*Notebook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	nb, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nb, nil
}

func (nb *Notebook) Bytes() ([]byte, error) {
	return json.MarshalIndent(nb, "", " ")
}

func (nb *Notebook) Write(path string) error {
	b, err := nb.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func (nb *Notebook) Clone() (*Notebook, error) {
	b, err := json.Marshal(nb)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Indexed pairs a cell with its 1-based position among all cells.
type Indexed struct {
	Number int
	Cell   Cell
}

func (nb *Notebook) CellsOf(cellType string) []Indexed {
	var out []Indexed
	for i, c := range nb.Cells {
		if cellType == "" || c.CellType == cellType {
			out = append(out, Indexed{Number: i + 1, Cell: c})
		}
	}
	return out
}

func (nb *Notebook) CodeCells() []Indexed { return nb.CellsOf(CellCode) }

// Source joins the sources of all cells of cellType ("" for every cell),
// one cell per block.
func (nb *Notebook) Source(cellType string) string {
	var b strings.Builder
	for _, ic := range nb.CellsOf(cellType) {
		b.WriteString(string(ic.Cell.Source))
		if !strings.HasSuffix(string(ic.Cell.Source), "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// AppendCode adds a code cell at the end and returns its 0-based index.
func (nb *Notebook) AppendCode(source string) int {
	c := Cell{CellType: CellCode, Metadata: map[string]any{}, Source: Text(source)}
	if nb.NBFormat > 4 || (nb.NBFormat == 4 && nb.NBFormatMinor >= 5) {
		c.ID = newCellID()
	}
	nb.Cells = append(nb.Cells, c)
	return len(nb.Cells) - 1
}

// FirstError returns the index of the first code cell with an error output.
func (nb *Notebook) FirstError() (int, Output, bool) {
	for i, c := range nb.Cells {
		for _, o := range c.Outputs {
			if o.OutputType == OutputError {
				return i, o, true
			}
		}
	}
	return -1, Output{}, false
}

// CellText concatenates the plain text outputs of cell i.
func (nb *Notebook) CellText(i int) string {
	if i < 0 || i >= len(nb.Cells) {
		return ""
	}
	var b strings.Builder
	for _, o := range nb.Cells[i].Outputs {
		b.WriteString(o.PlainText())
	}
	return b.String()
}

func newCellID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
