// Package ignore decides which repository paths the agent may read or write.
package ignore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the per-branch file listing additional patterns, one per line.
const FileName = ".gitbobignore"

var ErrIgnored = errors.New("path is ignored")

// Provider config directories can hold CI definitions and secrets. They are never touched, whatever the branch says.
var protectedFragments = []string{".github", ".gitlab"}

// FileReader reads a file from a branch.
type FileReader interface {
	GetFile(ctx context.Context, repo, branch, path string) ([]byte, error)
}

type Policy struct {
	files FileReader
}

func New(files FileReader) *Policy {
	return &Policy{files: files}
}

// IsIgnored reports whether p may not be touched on the given branch.
func (p *Policy) IsIgnored(ctx context.Context, repo, branch, filename string) bool {
	filename = strings.TrimPrefix(filename, "/")
	for _, f := range protectedFragments {
		if strings.Contains(filename, f) {
			return true
		}
	}

	patterns, err := p.patterns(ctx, repo, branch)
	if err != nil {
		// Missing or unreadable ignore file means nothing extra is ignored
		clog.FromContext(ctx).With("branch", branch).Debugf("no %s: %v", FileName, err)
		return false
	}
	return Match(patterns, filename)
}

// Check returns an error wrapping ErrIgnored if filename is ignored.
func (p *Policy) Check(ctx context.Context, repo, branch, filename string) error {
	if p.IsIgnored(ctx, repo, branch, filename) {
		return fmt.Errorf("%w: %s is protected or listed in %s", ErrIgnored, filename, FileName)
	}
	return nil
}

func (p *Policy) patterns(ctx context.Context, repo, branch string) ([]string, error) {
	data, err := p.files.GetFile(ctx, repo, branch, FileName)
	if err != nil {
		return nil, err
	}
	var patterns []string
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// Match reports whether filename matches any of the patterns, either with gitignore semantics or as a plain glob
// against the whole path.
func Match(patterns []string, filename string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, filename); ok {
			return true
		}
	}

	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, pattern := range patterns {
		ps = append(ps, gitignore.ParsePattern(pattern, nil))
	}
	return gitignore.NewMatcher(ps).Match(strings.Split(filename, "/"), false)
}
