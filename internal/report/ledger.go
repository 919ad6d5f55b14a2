package report

import (
	"fmt"
	"strings"
)

// Entry is one committed path and the message of its last commit.
type Entry struct {
	Path    string
	Message string
}

// Ledger records what was committed during a run, in order of first commit.
type Ledger struct {
	entries []Entry
	index   map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{index: map[string]int{}}
}

// Add records a commit. A path committed again keeps its position and takes the newer message.
func (l *Ledger) Add(path, message string) {
	if i, ok := l.index[path]; ok {
		l.entries[i].Message = message
		return
	}
	l.index[path] = len(l.entries)
	l.entries = append(l.entries, Entry{Path: path, Message: message})
}

func (l *Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Contains(path string) bool {
	_, ok := l.index[path]
	return ok
}

// String lists the entries as a markdown list.
func (l *Ledger) String() string {
	var sb strings.Builder
	for _, e := range l.entries {
		fmt.Fprintf(&sb, "* %s: %s\n", e.Path, e.Message)
	}
	return sb.String()
}

// ErrorRecord is an action that failed without stopping the run.
type ErrorRecord struct {
	Action    string
	Message   string
	Traceback string
}

// Markdown renders the record as a collapsed block.
func (e ErrorRecord) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<details>\n<summary>Error during %s: %s</summary>\n\n", e.Action, firstLine(e.Message))
	detail := e.Traceback
	if detail == "" {
		detail = e.Message
	}
	fmt.Fprintf(&sb, "```\n%s\n```\n</details>\n", strings.TrimRight(detail, "\n"))
	return sb.String()
}

// ErrorsMarkdown renders all records under a heading, or "" if there are none.
func ErrorsMarkdown(records []ErrorRecord) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nThe following errors occurred:\n\n")
	for _, r := range records {
		sb.WriteString(r.Markdown())
	}
	return sb.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
