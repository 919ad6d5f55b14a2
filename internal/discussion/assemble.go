// Package discussion expands an issue thread into a self-contained context for the model by inlining the issues,
// files and images it refers to.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/textutil"
	"github.com/gitbob/git-bob/internal/workspace"
)

// Source is the part of a provider client the assembler reads from.
type Source interface {
	Host() string
	Fetch(ctx context.Context, url string) ([]byte, error)
	GetFile(ctx context.Context, repo, branch, path string) ([]byte, error)
	GetConversation(ctx context.Context, repo string, issue gitops.Issue) (string, error)
	GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error)
}

// Vision describes images.
type Vision interface {
	DescribeImage(ctx context.Context, prompt string, image ai.Image) (string, error)
}

// Documents converts word processor files to markdown.
type Documents interface {
	DocxToMarkdown(ctx context.Context, docx []byte) (string, error)
}

type Assembler struct {
	Source    Source
	Vision    Vision
	Documents Documents
	// Local is scanned for files named in the discussion. May be nil.
	Local *workspace.Dir
}

var errBinary = errors.New("file is not text")

// Assemble returns text with a section appended for every artifact it refers to. Artifacts that cannot be read are
// skipped.
func (a *Assembler) Assemble(ctx context.Context, text string) string {
	log := clog.FromContext(ctx)

	var sb strings.Builder
	sb.WriteString(textutil.ModifyDiscussion(text))

	for _, raw := range ExtractURLs(text) {
		link := Classify(a.Source.Host(), raw)
		if link.Kind == KindUnknown {
			if IsProtected(raw) {
				log.With("url", raw).Warn("not reading provider configuration")
			}
			continue
		}
		heading, content, err := a.inline(ctx, link)
		if err != nil {
			log.With("url", raw).With("kind", link.Kind.String()).Warnf("failed to inline: %v", err)
			continue
		}
		appendSection(&sb, heading, raw, content)
	}

	if a.Local != nil {
		for _, p := range localPaths(text) {
			if IsProtected(p) || !a.Local.FileExists(p) {
				continue
			}
			content, err := a.local(ctx, p)
			if err != nil {
				log.With("path", p).Warnf("failed to inline local file: %v", err)
				continue
			}
			appendSection(&sb, "File", p, content)
		}
	}
	return sb.String()
}

func appendSection(sb *strings.Builder, heading, key, content string) {
	// The leading newline lets a heading on the first line be demoted too
	content = strings.TrimPrefix(textutil.ModifyDiscussion("\n"+content), "\n")
	fmt.Fprintf(sb, "\n\n### %s %s content\n\n%s\n", heading, key, strings.TrimRight(content, "\n"))
}

func (a *Assembler) inline(ctx context.Context, link Link) (string, string, error) {
	switch link.Kind {
	case KindIssue, KindPullRequest:
		issue := gitops.Issue{Number: link.Ref.Number, PullRequest: link.Kind == KindPullRequest}
		conversation, err := a.Source.GetConversation(ctx, link.Ref.Repo, issue)
		if err != nil {
			return "", "", err
		}
		if link.Kind == KindPullRequest {
			diff, err := a.Source.GetDiffOfPullRequest(ctx, link.Ref.Repo, link.Ref.Number)
			if err != nil {
				return "", "", err
			}
			conversation += "\n\nChanges:\n```diff\n" + strings.TrimRight(diff, "\n") + "\n```"
		}
		return "Discussion", conversation, nil

	case KindFile:
		data, err := a.Source.GetFile(ctx, link.Ref.Repo, link.Ref.Branch, link.Ref.Path)
		if err != nil {
			return "", "", err
		}
		content, err := a.decode(ctx, link.Ref.Path, data)
		return "File", content, err

	case KindImage:
		image, err := a.image(ctx, link)
		if err != nil {
			return "", "", err
		}
		description, err := a.describe(ctx, link.URL, image)
		return "File", description, err

	case KindData:
		data, err := a.Source.Fetch(ctx, link.URL)
		if err != nil {
			return "", "", err
		}
		content, err := a.decode(ctx, link.URL, data)
		return "File", content, err
	}
	return "", "", fmt.Errorf("cannot inline %s links", link.Kind)
}

func (a *Assembler) image(ctx context.Context, link Link) (ai.Image, error) {
	if strings.HasPrefix(link.URL, "data:") {
		return ai.ParseDataURL(link.URL)
	}
	var (
		data []byte
		err  error
	)
	if link.Ref.Kind == gitops.RefFile {
		data, err = a.Source.GetFile(ctx, link.Ref.Repo, link.Ref.Branch, link.Ref.Path)
	} else {
		data, err = a.Source.Fetch(ctx, link.URL)
	}
	if err != nil {
		return ai.Image{}, err
	}
	return ai.ImageFromBytes(data), nil
}

func (a *Assembler) describe(ctx context.Context, name string, image ai.Image) (string, error) {
	if a.Vision == nil {
		return "", fmt.Errorf("image description: %w", ai.ErrUnsupported)
	}
	if strings.HasPrefix(name, "data:") {
		name = ""
	}
	prompt, err := ai.RenderPrompt("describe_image.tmpl", name)
	if err != nil {
		return "", err
	}
	return a.Vision.DescribeImage(ctx, prompt, image)
}

func (a *Assembler) local(ctx context.Context, p string) (string, error) {
	data, err := a.Local.Read(p)
	if err != nil {
		return "", err
	}
	if textutil.IsImagePath(p) {
		return a.describe(ctx, p, ai.ImageFromBytes(data))
	}
	return a.decode(ctx, p, data)
}

// decode turns file content into text by the file's suffix.
func (a *Assembler) decode(ctx context.Context, name string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".ipynb":
		return notebook.WithoutOutputs(data)
	case ".docx":
		if a.Documents == nil {
			return "", fmt.Errorf("word documents: %w", ai.ErrUnsupported)
		}
		return a.Documents.DocxToMarkdown(ctx, data)
	}
	if !utf8.Valid(data) {
		return "", errBinary
	}
	return string(data), nil
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// localPaths returns the whitespace separated tokens of text that look like relative file paths.
func localPaths(text string) []string {
	var paths []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, "`'\"()[],;:!?")
		tok = strings.TrimSuffix(tok, ".")
		if tok == "" || strings.Contains(tok, "://") || strings.HasPrefix(tok, "/") || strings.HasPrefix(tok, "data:") {
			continue
		}
		if path.Ext(tok) == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		paths = append(paths, tok)
	}
	return paths
}
