// Package docconv converts office documents to and from markdown with pandoc, so the model only ever reads and
// writes text.
package docconv

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
)

// defaultReference is the reference document presentations are rendered with unless another template is configured.
//
//go:embed reference.pptx
var defaultReference []byte

// Pandoc shells out to a pandoc binary. Every conversion works in its own temporary directory.
type Pandoc struct {
	binary   string
	template string // Reference document for pptx output; the bundled one if empty
	run      func(ctx context.Context, dir string, name string, args ...string) error
}

func New(binary, pptxTemplate string) *Pandoc {
	if binary == "" {
		binary = "pandoc"
	}
	return &Pandoc{binary: binary, template: pptxTemplate, run: run}
}

func run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// convert writes input to a temporary file, runs pandoc on it and returns the output file. extra files are written
// next to the input first, e.g. images a presentation refers to.
func (p *Pandoc) convert(ctx context.Context, input []byte, from, to, inName, outName string, extra map[string][]byte, args ...string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "git-bob-pandoc-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	for name, data := range extra {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(filepath.Join(dir, inName), input, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write pandoc input: %w", err)
	}

	args = append([]string{"-f", from, "-t", to, "-o", outName, inName}, args...)
	clog.FromContext(ctx).With("from", from).With("to", to).Debug("Running pandoc")
	if err := p.run(ctx, dir, p.binary, args...); err != nil {
		return nil, fmt.Errorf("pandoc conversion from %s to %s failed: %w", from, to, err)
	}
	out, err := os.ReadFile(filepath.Join(dir, outName))
	if err != nil {
		return nil, fmt.Errorf("pandoc produced no output: %w", err)
	}
	return out, nil
}

func (p *Pandoc) DocxToMarkdown(ctx context.Context, docx []byte) (string, error) {
	out, err := p.convert(ctx, docx, "docx", "markdown", "in.docx", "out.md", nil)
	return string(out), err
}

func (p *Pandoc) MarkdownToDocx(ctx context.Context, markdown string) ([]byte, error) {
	return p.convert(ctx, []byte(markdown), "markdown", "docx", "in.md", "out.docx", nil)
}

// NormalizeDocx round-trips markdown through docx twice. The second pass irons out constructs that the first
// conversion renders in ways word processors display poorly.
func (p *Pandoc) NormalizeDocx(ctx context.Context, markdown string) ([]byte, error) {
	docx, err := p.MarkdownToDocx(ctx, markdown)
	if err != nil {
		return nil, err
	}
	md, err := p.DocxToMarkdown(ctx, docx)
	if err != nil {
		return nil, err
	}
	return p.MarkdownToDocx(ctx, md)
}

// SlidesToPptx renders slides with the configured reference template, or the bundled one. images maps every image path the slides refer
// to onto its content.
func (p *Pandoc) SlidesToPptx(ctx context.Context, slides []Slide, images map[string][]byte) ([]byte, error) {
	extra := map[string][]byte{}
	for name, data := range images {
		extra[name] = data
	}
	tmpl := defaultReference
	if p.template != "" {
		var err error
		if tmpl, err = os.ReadFile(p.template); err != nil {
			return nil, fmt.Errorf("failed to read presentation template: %w", err)
		}
	}
	extra["template.pptx"] = tmpl
	args := []string{"--reference-doc=template.pptx"}
	md := SlidesMarkdown(slides, images)
	return p.convert(ctx, []byte(md), "markdown", "pptx", "slides.md", "out.pptx", extra, args...)
}
