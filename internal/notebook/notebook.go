// Package notebook reads and writes Jupyter notebooks (nbformat 4) and runs them until they execute cleanly.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

type Notebook struct {
	Cells         []Cell          `json:"cells"`
	Metadata      json.RawMessage `json:"metadata"`
	NBFormat      int             `json:"nbformat"`
	NBFormatMinor int             `json:"nbformat_minor"`
}

// Cell keeps outputs as raw JSON; their structure is never inspected beyond error tracebacks.
type Cell struct {
	CellType       string
	ID             string
	Metadata       json.RawMessage
	Source         Source
	Attachments    json.RawMessage
	Outputs        []json.RawMessage
	ExecutionCount *int
}

type cellJSON struct {
	CellType       string             `json:"cell_type"`
	ID             string             `json:"id,omitempty"`
	Metadata       json.RawMessage    `json:"metadata"`
	Source         Source             `json:"source"`
	Attachments    json.RawMessage    `json:"attachments,omitempty"`
	Outputs        *[]json.RawMessage `json:"outputs,omitempty"`
	ExecutionCount *int               `json:"execution_count"`
}

// codeCellJSON always emits execution_count, which nbformat requires on code cells even when null.
type codeCellJSON struct {
	CellType       string            `json:"cell_type"`
	ID             string            `json:"id,omitempty"`
	Metadata       json.RawMessage   `json:"metadata"`
	Source         Source            `json:"source"`
	Outputs        []json.RawMessage `json:"outputs"`
	ExecutionCount *int              `json:"execution_count"`
}

type textCellJSON struct {
	CellType    string          `json:"cell_type"`
	ID          string          `json:"id,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	Source      Source          `json:"source"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw cellJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Cell{
		CellType:       raw.CellType,
		ID:             raw.ID,
		Metadata:       raw.Metadata,
		Source:         raw.Source,
		Attachments:    raw.Attachments,
		ExecutionCount: raw.ExecutionCount,
	}
	if raw.Outputs != nil {
		c.Outputs = *raw.Outputs
	}
	return nil
}

func (c Cell) MarshalJSON() ([]byte, error) {
	metadata := c.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	if c.CellType == CellCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []json.RawMessage{}
		}
		return json.Marshal(codeCellJSON{
			CellType:       c.CellType,
			ID:             c.ID,
			Metadata:       metadata,
			Source:         c.Source,
			Outputs:        outputs,
			ExecutionCount: c.ExecutionCount,
		})
	}
	return json.Marshal(textCellJSON{
		CellType:    c.CellType,
		ID:          c.ID,
		Metadata:    metadata,
		Source:      c.Source,
		Attachments: c.Attachments,
	})
}

// Source is cell text. nbformat allows it to be stored as one string or as a list of lines.
type Source string

func (s *Source) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Source(str)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("cell source is neither a string nor a list of strings: %w", err)
	}
	*s = Source(strings.Join(lines, ""))
	return nil
}

// MarshalJSON writes the list-of-lines form Jupyter itself writes.
func (s Source) MarshalJSON() ([]byte, error) {
	lines := []string{}
	for line := range strings.Lines(string(s)) {
		lines = append(lines, line)
	}
	return json.Marshal(lines)
}

// Parse decodes a notebook. Anything that is not nbformat 4 is rejected.
func Parse(data []byte) (*Notebook, error) {
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("failed to parse notebook: %w", err)
	}
	if nb.NBFormat != 4 {
		return nil, fmt.Errorf("unsupported notebook format %d, want 4", nb.NBFormat)
	}
	return &nb, nil
}

// Marshal encodes the notebook with one space indentation, like Jupyter.
func (nb *Notebook) Marshal() ([]byte, error) {
	out := *nb
	if len(out.Metadata) == 0 {
		out.Metadata = json.RawMessage("{}")
	}
	if out.Cells == nil {
		out.Cells = []Cell{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode notebook: %w", err)
	}
	return buf.Bytes(), nil
}

func (nb *Notebook) Clone() *Notebook {
	out := *nb
	out.Cells = make([]Cell, len(nb.Cells))
	for i, c := range nb.Cells {
		c.Outputs = slices.Clone(c.Outputs)
		if c.ExecutionCount != nil {
			n := *c.ExecutionCount
			c.ExecutionCount = &n
		}
		out.Cells[i] = c
	}
	return &out
}

// ClearOutputs removes outputs and execution counts from every code cell.
func (nb *Notebook) ClearOutputs() {
	for i := range nb.Cells {
		if nb.Cells[i].CellType == CellCode {
			nb.Cells[i].Outputs = nil
			nb.Cells[i].ExecutionCount = nil
		}
	}
}

// HasOutputs reports whether any code cell has output.
func (nb *Notebook) HasOutputs() bool {
	for _, c := range nb.Cells {
		if c.CellType == CellCode && len(c.Outputs) > 0 {
			return true
		}
	}
	return false
}

func (nb *Notebook) codeCells() []*Cell {
	var cells []*Cell
	for i := range nb.Cells {
		if nb.Cells[i].CellType == CellCode {
			cells = append(cells, &nb.Cells[i])
		}
	}
	return cells
}

// RestoreOutputs copies outputs and execution counts from orig when both notebooks have exactly the same code cell
// sources in the same order, and reports whether it did. Otherwise all outputs are cleared, so the notebook has to be
// executed again.
func (nb *Notebook) RestoreOutputs(orig *Notebook) bool {
	mine, theirs := nb.codeCells(), orig.codeCells()
	same := len(mine) == len(theirs)
	for i := 0; same && i < len(mine); i++ {
		same = mine[i].Source == theirs[i].Source
	}
	if !same {
		nb.ClearOutputs()
		return false
	}
	for i, c := range mine {
		c.Outputs = slices.Clone(theirs[i].Outputs)
		c.ExecutionCount = nil
		if theirs[i].ExecutionCount != nil {
			n := *theirs[i].ExecutionCount
			c.ExecutionCount = &n
		}
	}
	return true
}

// WithoutOutputs parses data and returns it re-encoded without outputs, as handed to the model.
func WithoutOutputs(data []byte) (string, error) {
	nb, err := Parse(data)
	if err != nil {
		return "", err
	}
	nb.ClearOutputs()
	out, err := nb.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
