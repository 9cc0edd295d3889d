package notebook

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": ["# Exercise 2\n", "Author: Anna"]},
  {"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [],
   "source": ["import numpy as np\n", "x = 1"]},
  {"cell_type": "code", "execution_count": 3, "metadata": {},
   "outputs": [
    {"output_type": "stream", "name": "stdout", "text": ["hello\n"]},
    {"output_type": "execute_result", "execution_count": 3, "metadata": {}, "data": {"text/plain": ["42"]}},
    {"output_type": "error", "ename": "ValueError", "evalue": "bad", "traceback": ["\u001b[0;31mValueError\u001b[0m: bad"]}
   ],
   "source": "raise ValueError('bad')"}
 ],
 "metadata": {"kernelspec": {"name": "python3"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestParseJoinsMultilineSources(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	require.Len(t, nb.Cells, 3)
	assert.Equal(t, "# Exercise 2\nAuthor: Anna", nb.Cells[0].Source.String())
	assert.Equal(t, "import numpy as np\nx = 1", nb.Cells[1].Source.String())

	code := nb.CodeCells()
	require.Len(t, code, 2)
	assert.Equal(t, 2, code[0].Number)
	assert.Equal(t, 3, code[1].Number)
	assert.Contains(t, nb.Source(CellCode), "raise ValueError")
	assert.NotContains(t, nb.Source(CellCode), "Author:")
}

func TestOutputsPlainText(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	assert.Equal(t, "hello\n42ValueError: bad", nb.CellText(2))

	idx, out, ok := nb.FirstError()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "ValueError", out.EName)
}

func TestMarshalKeepsRequiredCodeCellFields(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	idx := nb.AppendCode("print('probe')\n")
	assert.Equal(t, 3, idx)
	assert.NotEmpty(t, nb.Cells[idx].ID)

	b, err := nb.Bytes()
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))
	cells := generic["cells"].([]any)
	last := cells[3].(map[string]any)
	assert.Contains(t, last, "outputs")
	assert.Contains(t, last, "execution_count")
	assert.Nil(t, last["execution_count"])
	assert.Equal(t, []any{"print('probe')\n"}, last["source"])

	problems, err := ValidateBytes(b)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nb.ipynb")
	require.NoError(t, nb.Write(path))

	again, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(nb.Source(""), again.Source("")); diff != "" {
		t.Fatalf("source changed after round trip (-want +got):\n%s", diff)
	}
	assert.Equal(t, nb.CellText(2), again.CellText(2))
}

func TestCloneIsIndependent(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)
	c, err := nb.Clone()
	require.NoError(t, err)
	c.AppendCode("x")
	assert.Len(t, nb.Cells, 3)
	assert.Len(t, c.Cells, 4)
}

func TestValidateReportsSchemaProblems(t *testing.T) {
	problems, err := ValidateBytes([]byte(`{"cells": [{"cell_type": "code", "metadata": {}, "source": "x"}], "metadata": {}, "nbformat": 4, "nbformat_minor": 4}`))
	require.NoError(t, err)
	require.NotEmpty(t, problems)

	problems, err = ValidateBytes([]byte(`{"cells": []`))
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.True(t, strings.HasPrefix(problems[0].Message, "invalid JSON"))
}

func TestRequireVersion(t *testing.T) {
	nb := &Notebook{NBFormat: 4, NBFormatMinor: 2}
	require.NoError(t, nb.RequireVersion(">= 4.0"))
	require.Error(t, nb.RequireVersion(">= 4.5"))
	require.Error(t, nb.RequireVersion("not a constraint"))
}

func TestScanCells(t *testing.T) {
	cells, err := ScanCells([]byte(sampleNotebook))
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, RawCell{Number: 1, CellType: "markdown", Source: "# Exercise 2\nAuthor: Anna"}, cells[0])
	assert.Equal(t, "raise ValueError('bad')", cells[2].Source)

	_, err = ScanCells([]byte("{"))
	require.Error(t, err)
	_, err = ScanCells([]byte(`{"cells": 3}`))
	require.Error(t, err)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "Error: x", StripANSI("\x1b[0;31mError\x1b[0m: x"))
}
