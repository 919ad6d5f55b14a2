package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gitbob/git-bob/internal/docconv"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/textutil"
)

// textFormat covers source code and every other plain text file.
type textFormat struct{}

func (textFormat) existing(_ context.Context, _ *Synthesizer, j *job) (string, error) {
	if !utf8.Valid(j.original) {
		// Binary content cannot be shown; the file is written from scratch
		return "", nil
	}
	return string(j.original), nil
}

func (textFormat) render(_ context.Context, _ *Synthesizer, _ *job, content string) (artifact, error) {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return artifact{data: []byte(content)}, nil
}

// notebookFormat hides outputs from the model and puts them back if no code changed. Otherwise the notebook is run.
type notebookFormat struct{}

func (notebookFormat) existing(_ context.Context, _ *Synthesizer, j *job) (string, error) {
	out, err := notebook.WithoutOutputs(j.original)
	if err != nil {
		// An unreadable notebook is regenerated from scratch
		return "", nil
	}
	return out, nil
}

func (notebookFormat) render(_ context.Context, _ *Synthesizer, j *job, content string) (artifact, error) {
	nb, err := notebook.Parse([]byte(content))
	if err != nil {
		return artifact{}, err
	}

	restored := false
	if j.original != nil {
		if orig, err := notebook.Parse(j.original); err == nil {
			restored = nb.RestoreOutputs(orig)
		}
	}
	if !restored {
		nb.ClearOutputs()
	}

	data, err := nb.Marshal()
	if err != nil {
		return artifact{}, err
	}
	return artifact{data: data, execute: !restored}, nil
}

// docxFormat lets the model write markdown.
type docxFormat struct{}

func (docxFormat) existing(ctx context.Context, s *Synthesizer, j *job) (string, error) {
	md, err := s.Documents.DocxToMarkdown(ctx, j.original)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s to markdown: %w", j.Filename, err)
	}
	return md, nil
}

func (docxFormat) render(ctx context.Context, s *Synthesizer, _ *job, content string) (artifact, error) {
	data, err := s.Documents.NormalizeDocx(ctx, content)
	if err != nil {
		return artifact{}, err
	}
	return artifact{data: data}, nil
}

// speechFormat lets the model write a script that is read out by text to speech.
type speechFormat struct{}

func (speechFormat) existing(context.Context, *Synthesizer, *job) (string, error) {
	return "", nil
}

func (speechFormat) render(ctx context.Context, s *Synthesizer, _ *job, content string) (artifact, error) {
	data, err := s.Models.Synthesize(ctx, content)
	if err != nil {
		return artifact{}, err
	}
	return artifact{data: data}, nil
}

// slidesFormat lets the model write slides as JSON, which are rendered with the presentation template.
type slidesFormat struct{}

func (slidesFormat) existing(context.Context, *Synthesizer, *job) (string, error) {
	return "", nil
}

func (slidesFormat) render(ctx context.Context, s *Synthesizer, j *job, content string) (artifact, error) {
	var slides []docconv.Slide
	if err := textutil.TextToJSON(content, &slides); err != nil {
		return artifact{}, err
	}
	if len(slides) == 0 {
		return artifact{}, errors.New("model returned no slides")
	}

	images := map[string][]byte{}
	for _, slide := range slides {
		for _, c := range slide.Content {
			c = strings.TrimSpace(c)
			if !textutil.IsImagePath(c) {
				continue
			}
			if _, ok := images[c]; ok {
				continue
			}
			data, err := s.Files.GetFile(ctx, j.Repo, j.Branch, c)
			if err != nil {
				// Shown as text instead
				continue
			}
			images[c] = data
		}
	}

	data, err := s.Documents.SlidesToPptx(ctx, slides, images)
	if err != nil {
		return artifact{}, err
	}
	return artifact{data: data}, nil
}

// svgFormat checks that the picture is a complete SVG document.
type svgFormat struct{}

func (svgFormat) existing(ctx context.Context, s *Synthesizer, j *job) (string, error) {
	return textFormat{}.existing(ctx, s, j)
}

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

func (svgFormat) render(_ context.Context, _ *Synthesizer, _ *job, content string) (artifact, error) {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "<svg") || !strings.Contains(content, "</svg>") {
		return artifact{}, errors.New("model did not return an svg element")
	}
	if !strings.HasPrefix(content, "<?xml") {
		content = xmlDeclaration + "\n" + content
	}
	return artifact{data: []byte(content + "\n")}, nil
}
