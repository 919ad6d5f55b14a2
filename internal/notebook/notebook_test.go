package notebook

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const executedNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": ["# Counting\n", "Print some numbers."]},
  {"cell_type": "code", "execution_count": 1, "metadata": {}, "outputs": [
    {"name": "stdout", "output_type": "stream", "text": ["0\n", "1\n"]}
  ], "source": "for i in range(2):\n    print(i)"},
  {"cell_type": "code", "execution_count": 2, "metadata": {"tags": []}, "outputs": [], "source": ["x = 1"]}
 ],
 "metadata": {"kernelspec": {"name": "python3"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestParse(t *testing.T) {
	nb, err := Parse([]byte(executedNotebook))
	require.NoError(t, err)

	require.Len(t, nb.Cells, 3)
	require.Equal(t, Source("# Counting\nPrint some numbers."), nb.Cells[0].Source)
	require.Equal(t, Source("for i in range(2):\n    print(i)"), nb.Cells[1].Source)
	require.Len(t, nb.Cells[1].Outputs, 1)
	require.Equal(t, 2, *nb.Cells[2].ExecutionCount)
	require.True(t, nb.HasOutputs())
}

func TestParse_RejectsOldFormat(t *testing.T) {
	_, err := Parse([]byte(`{"cells": [], "metadata": {}, "nbformat": 3, "nbformat_minor": 0}`))
	require.Error(t, err)

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestMarshal_CodeCellsKeepRequiredFields(t *testing.T) {
	nb, err := Parse([]byte(executedNotebook))
	require.NoError(t, err)
	nb.ClearOutputs()
	require.False(t, nb.HasOutputs())

	data, err := nb.Marshal()
	require.NoError(t, err)

	var raw struct {
		Cells []map[string]json.RawMessage `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	require.NotContains(t, raw.Cells[0], "outputs")
	require.NotContains(t, raw.Cells[0], "execution_count")
	require.JSONEq(t, `[]`, string(raw.Cells[1]["outputs"]))
	require.JSONEq(t, `null`, string(raw.Cells[1]["execution_count"]))
	require.JSONEq(t, `["for i in range(2):\n", "    print(i)"]`, string(raw.Cells[1]["source"]))
	require.JSONEq(t, `{"tags": []}`, string(raw.Cells[2]["metadata"]))

	again, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, nb.Cells[1].Source, again.Cells[1].Source)
}

func TestRestoreOutputs_SameSources(t *testing.T) {
	orig, err := Parse([]byte(executedNotebook))
	require.NoError(t, err)

	regenerated := orig.Clone()
	regenerated.ClearOutputs()
	// Markdown changes do not matter
	regenerated.Cells[0].Source = "# Counting numbers"

	require.True(t, regenerated.RestoreOutputs(orig))
	for i := range orig.Cells {
		if orig.Cells[i].CellType != CellCode {
			continue
		}
		if diff := cmp.Diff(orig.Cells[i].Outputs, regenerated.Cells[i].Outputs); diff != "" {
			t.Errorf("outputs of cell %d differ (-want +got):\n%s", i, diff)
		}
		require.Equal(t, *orig.Cells[i].ExecutionCount, *regenerated.Cells[i].ExecutionCount)
	}
}

func TestRestoreOutputs_ChangedSource(t *testing.T) {
	orig, err := Parse([]byte(executedNotebook))
	require.NoError(t, err)

	regenerated := orig.Clone()
	regenerated.Cells[2].Source = "x = 2"

	require.False(t, regenerated.RestoreOutputs(orig))
	require.False(t, regenerated.HasOutputs())
	require.Nil(t, regenerated.Cells[1].ExecutionCount)
	// The original is untouched
	require.True(t, orig.HasOutputs())
}

func TestRestoreOutputs_ExtraCell(t *testing.T) {
	orig, err := Parse([]byte(executedNotebook))
	require.NoError(t, err)

	regenerated := orig.Clone()
	regenerated.Cells = append(regenerated.Cells, Cell{CellType: CellCode, Source: "print(x)"})

	require.False(t, regenerated.RestoreOutputs(orig))
	require.False(t, regenerated.HasOutputs())
}

func TestWithoutOutputs(t *testing.T) {
	out, err := WithoutOutputs([]byte(executedNotebook))
	require.NoError(t, err)
	require.NotContains(t, out, "stdout")
	require.Contains(t, out, "print(i)")
}
