package ai

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
}).ParseFS(promptFS, "prompts/*.tmpl"))

// RenderPrompt executes the named prompt template, e.g. "plan.tmpl", with data.
func RenderPrompt(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// PlanData feeds plan.tmpl.
type PlanData struct {
	Discussion string
	Files      []string
}

// FileData feeds file.tmpl. Kind is the lower-case file suffix without the dot.
type FileData struct {
	Discussion string
	Filename   string
	Kind       string
	Existing   string
	Modify     bool
	// Images that may be placed on slides
	Images []string
	Author string
}

// RepairData feeds notebook_repair.tmpl.
type RepairData struct {
	Filename string
	Notebook string
	Error    string
}

// PaintData feeds paint.tmpl.
type PaintData struct {
	Discussion string
	Filename   string
}

// SummaryData feeds pr_summary.tmpl and comment_summary.tmpl.
type SummaryData struct {
	Discussion string
	Changes    string
	Diff       string
	Links      string
}

// CommentData feeds comment.tmpl.
type CommentData struct {
	AgentName  string
	Discussion string
}
