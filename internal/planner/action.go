// Package planner asks the model which file operations solve an issue and turns its reply into a normalized plan.
package planner

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

type Kind string

const (
	Create   Kind = "create"
	Modify   Kind = "modify"
	Download Kind = "download"
	Rename   Kind = "rename"
	Copy     Kind = "copy"
	Delete   Kind = "delete"
	Paint    Kind = "paint"
)

// Action is one planned file operation. Which fields are set depends on Kind:
// create, modify, delete and paint use Filename; download uses SourceURL and TargetFilename; rename and copy use
// OldFilename and NewFilename.
type Action struct {
	Kind           Kind   `json:"action"`
	Filename       string `json:"filename,omitempty"`
	SourceURL      string `json:"source_url,omitempty"`
	TargetFilename string `json:"target_filename,omitempty"`
	OldFilename    string `json:"old_filename,omitempty"`
	NewFilename    string `json:"new_filename,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case Download:
		return fmt.Sprintf("download %s to %s", a.SourceURL, a.TargetFilename)
	case Rename, Copy:
		return fmt.Sprintf("%s %s to %s", a.Kind, a.OldFilename, a.NewFilename)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Filename)
	}
}

// Paths returns every repository path the action reads or writes.
func (a Action) Paths() []string {
	switch a.Kind {
	case Download:
		return []string{a.TargetFilename}
	case Rename, Copy:
		return []string{a.OldFilename, a.NewFilename}
	default:
		return []string{a.Filename}
	}
}

// Validate checks that the fields the kind needs are present.
func (a Action) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%s action without %s", a.Kind, field)
	}
	switch a.Kind {
	case Create, Modify, Delete, Paint:
		if a.Filename == "" {
			return missing("filename")
		}
	case Download:
		if a.SourceURL == "" {
			return missing("source_url")
		}
		if a.TargetFilename == "" {
			return missing("target_filename")
		}
	case Rename, Copy:
		if a.OldFilename == "" {
			return missing("old_filename")
		}
		if a.NewFilename == "" {
			return missing("new_filename")
		}
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}

var paintSuffixes = []string{".png", ".jpg", ".jpeg"}

// Normalize makes paths repository-relative and routes images to the kind that can produce them: SVG is text and gets
// written like any other file, raster images have to be painted.
func (a Action) Normalize() Action {
	a.Kind = Kind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
	a.Filename = cleanPath(a.Filename)
	a.TargetFilename = cleanPath(a.TargetFilename)
	a.OldFilename = cleanPath(a.OldFilename)
	a.NewFilename = cleanPath(a.NewFilename)
	a.SourceURL = strings.TrimSpace(a.SourceURL)

	ext := strings.ToLower(path.Ext(a.Filename))
	switch {
	case a.Kind == Paint && ext == ".svg":
		a.Kind = Create
	case (a.Kind == Create || a.Kind == Modify) && slices.Contains(paintSuffixes, ext):
		a.Kind = Paint
	}
	return a
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimLeft(p, "/")
}

// SortDownloadsFirst moves downloads in front of every other action. The order within both groups is kept, so later
// actions can rely on downloaded files being present.
func SortDownloadsFirst(actions []Action) {
	slices.SortStableFunc(actions, func(a, b Action) int {
		switch {
		case a.Kind == Download && b.Kind != Download:
			return -1
		case a.Kind != Download && b.Kind == Download:
			return 1
		default:
			return 0
		}
	})
}
