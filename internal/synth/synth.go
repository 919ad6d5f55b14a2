// Package synth generates the content of created and modified files with the model and converts it into the file
// type that was asked for.
package synth

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/docconv"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/textutil"
)

const DefaultMaxAttempts = 7

// Files is the part of a provider client the synthesizer needs.
type Files interface {
	GetFile(ctx context.Context, repo, branch, path string) ([]byte, error)
	WriteFile(ctx context.Context, repo, branch, path string, content []byte, message string) (string, error)
	ListFiles(ctx context.Context, repo, branch string) ([]string, error)
}

// Documents converts office formats from and to markdown.
type Documents interface {
	DocxToMarkdown(ctx context.Context, docx []byte) (string, error)
	NormalizeDocx(ctx context.Context, markdown string) ([]byte, error)
	SlidesToPptx(ctx context.Context, slides []docconv.Slide, images map[string][]byte) ([]byte, error)
}

// NotebookRunner executes a notebook until it runs and commits it.
type NotebookRunner interface {
	Run(ctx context.Context, target notebook.Target, data []byte) ([]notebook.Commit, error)
}

// IgnoreChecker rejects paths that must not be written.
type IgnoreChecker interface {
	Check(ctx context.Context, repo, branch, filename string) error
}

type Synthesizer struct {
	Files       Files
	Models      ai.Models
	Documents   Documents
	Notebooks   NotebookRunner
	Ignore      IgnoreChecker
	Redactor    *textutil.Redactor
	MaxAttempts int
}

// Request describes one file to create or modify.
type Request struct {
	Repo       string
	Branch     string
	Filename   string
	Discussion string
	Modify     bool
	// Author is put on the title slide of presentations
	Author string
}

// job carries the state of one request through a format.
type job struct {
	Request
	kind     string
	original []byte // Current content, nil for new files
}

// artifact is what a format produced from the model's reply.
type artifact struct {
	data []byte
	// execute is set for notebooks that have to be run before they are committed
	execute bool
}

// format adapts one file type to text the model can read and write.
type format interface {
	// existing renders the current file for the prompt. It returns "" when the file cannot be shown as text.
	existing(ctx context.Context, s *Synthesizer, j *job) (string, error)
	// render turns the generated text into the file content.
	render(ctx context.Context, s *Synthesizer, j *job, content string) (artifact, error)
}

var formats = map[string]format{
	"ipynb": notebookFormat{},
	"docx":  docxFormat{},
	"mp3":   speechFormat{},
	"pptx":  slidesFormat{},
	"svg":   svgFormat{},
}

func formatFor(kind string) format {
	if f, ok := formats[kind]; ok {
		return f
	}
	return textFormat{}
}

// kindOf returns the lower-case suffix of filename without the dot.
func kindOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}

// Synthesize generates the file and commits it. A notebook is executed and may produce further commits; all of them are
// returned, also alongside an error.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) ([]notebook.Commit, error) {
	log := clog.FromContext(ctx).With("file", req.Filename)

	if s.Ignore != nil {
		if err := s.Ignore.Check(ctx, req.Repo, req.Branch, req.Filename); err != nil {
			return nil, err
		}
	}

	j := &job{Request: req, kind: kindOf(req.Filename)}
	if req.Modify {
		data, err := s.Files.GetFile(ctx, req.Repo, req.Branch, req.Filename)
		switch {
		case errors.Is(err, gitops.ErrFileNotFound):
			log.Info("file to modify does not exist, creating it")
			j.Modify = false
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", req.Filename, err)
		default:
			j.original = data
		}
	}

	f := formatFor(j.kind)
	existing := ""
	if j.original != nil {
		var err error
		existing, err = f.existing(ctx, s, j)
		if err != nil {
			return nil, err
		}
	}

	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, message, err := s.generate(ctx, f, j, existing)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Warnf("attempt %d of %d to generate file failed: %v", attempt, maxAttempts, err)
			lastErr = err
			continue
		}
		return s.commit(ctx, j, out, message)
	}
	return nil, fmt.Errorf("failed to generate %s after %d attempts: %w", req.Filename, maxAttempts, lastErr)
}

// generate runs one prompt and post-processes the reply. Nothing is written.
func (s *Synthesizer) generate(ctx context.Context, f format, j *job, existing string) (artifact, string, error) {
	data := ai.FileData{
		Discussion: j.Discussion,
		Filename:   j.Filename,
		Kind:       j.kind,
		Existing:   existing,
		Modify:     j.Modify && existing != "",
		Author:     j.Author,
	}
	if j.kind == "pptx" {
		images, err := s.images(ctx, j)
		if err != nil {
			return artifact{}, "", err
		}
		data.Images = images
	}

	prompt, err := ai.RenderPrompt("file.tmpl", data)
	if err != nil {
		return artifact{}, "", err
	}
	reply, err := s.Models.LLM.Prompt(ctx, prompt)
	if err != nil {
		return artifact{}, "", fmt.Errorf("failed to prompt for file content: %w", err)
	}

	content, summary := textutil.SplitContentAndSummary(reply)
	if strings.TrimSpace(content) == "" {
		return artifact{}, "", errors.New("model returned no content")
	}
	content = s.Redactor.Redact(content)

	out, err := f.render(ctx, s, j, content)
	if err != nil {
		return artifact{}, "", err
	}
	return out, commitMessage(j, summary), nil
}

func commitMessage(j *job, summary string) string {
	if summary != "" {
		return summary
	}
	if j.Modify {
		return "Modify " + j.Filename
	}
	return "Create " + j.Filename
}

func (s *Synthesizer) commit(ctx context.Context, j *job, out artifact, message string) ([]notebook.Commit, error) {
	if out.execute {
		return s.Notebooks.Run(ctx, notebook.Target{
			Repo:    j.Repo,
			Branch:  j.Branch,
			Path:    j.Filename,
			Message: message,
		}, out.data)
	}
	if _, err := s.Files.WriteFile(ctx, j.Repo, j.Branch, j.Filename, out.data, message); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", j.Filename, err)
	}
	return []notebook.Commit{{Path: j.Filename, Message: message}}, nil
}

// images lists the pictures on the branch that slides may show.
func (s *Synthesizer) images(ctx context.Context, j *job) ([]string, error) {
	files, err := s.Files.ListFiles(ctx, j.Repo, j.Branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	var images []string
	for _, f := range files {
		if textutil.IsImagePath(f) && !strings.HasSuffix(strings.ToLower(f), ".svg") {
			images = append(images, f)
		}
	}
	return images, nil
}
