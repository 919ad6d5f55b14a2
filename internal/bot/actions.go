package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/planner"
	"github.com/gitbob/git-bob/internal/report"
	"github.com/gitbob/git-bob/internal/synth"
	"github.com/gitbob/git-bob/internal/telemetry"
)

// run is the state of one SolveIssue call while actions execute.
type run struct {
	Request
	discussion string
	branch     string
	requester  string
	ledger     *report.Ledger
	errors     []report.ErrorRecord
}

// actionHandler carries out one action on the working branch and returns the commits it made.
type actionHandler func(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error)

func newHandlers() map[planner.Kind]actionHandler {
	return map[planner.Kind]actionHandler{
		planner.Create:   synthesize,
		planner.Modify:   synthesize,
		planner.Download: download,
		planner.Rename:   rename,
		planner.Copy:     copyFile,
		planner.Delete:   deleteFile,
		planner.Paint:    paint,
	}
}

// execute runs the actions in order, downloads first. A failing action is recorded and the next one runs.
func (b *Bot) execute(ctx context.Context, r *run, actions []planner.Action) {
	planner.SortDownloadsFirst(actions)
	for _, a := range actions {
		commits, err := b.dispatch(ctx, r, a)
		for _, c := range commits {
			r.ledger.Add(c.Path, c.Message)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			clog.FromContext(ctx).With("action", a.String()).Warnf("action failed: %v", err)
			r.errors = append(r.errors, errorRecord(a, err))
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, r *run, a planner.Action) (commits []notebook.Commit, err error) {
	ctx, span := b.telemetry.Start(ctx, "action."+string(a.Kind), attribute.String("action", a.String()))
	defer func() { telemetry.End(span, err) }()

	handler, ok := b.handlers[a.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", a.Kind)
	}
	for _, p := range a.Paths() {
		if err := b.ignore.Check(ctx, r.Repo, r.branch, p); err != nil {
			return nil, err
		}
	}
	clog.FromContext(ctx).With("action", a.String()).Info("executing action")
	return handler(ctx, b, r, a)
}

func synthesize(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	return b.synth.Synthesize(ctx, synth.Request{
		Repo:       r.Repo,
		Branch:     r.branch,
		Filename:   a.Filename,
		Discussion: r.discussion,
		Modify:     a.Kind == planner.Modify,
		Author:     r.requester,
	})
}

func download(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	message := "Download " + a.TargetFilename
	url := gitops.RawDownloadURL(a.SourceURL)
	if _, err := b.git.DownloadToRepository(ctx, r.Repo, r.branch, url, a.TargetFilename, message); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", a.SourceURL, err)
	}
	return []notebook.Commit{{Path: a.TargetFilename, Message: message}}, nil
}

func rename(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	message := fmt.Sprintf("Rename %s to %s", a.OldFilename, a.NewFilename)
	if _, err := b.git.RenameFile(ctx, r.Repo, r.branch, a.OldFilename, a.NewFilename, message); err != nil {
		return nil, fmt.Errorf("failed to rename %s: %w", a.OldFilename, err)
	}
	return []notebook.Commit{{Path: a.NewFilename, Message: message}}, nil
}

func copyFile(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	message := fmt.Sprintf("Copy %s to %s", a.OldFilename, a.NewFilename)
	if _, err := b.git.CopyFile(ctx, r.Repo, r.branch, a.OldFilename, a.NewFilename, message); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", a.OldFilename, err)
	}
	return []notebook.Commit{{Path: a.NewFilename, Message: message}}, nil
}

func deleteFile(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	message := "Delete " + a.Filename
	if _, err := b.git.DeleteFile(ctx, r.Repo, r.branch, a.Filename, message); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", a.Filename, err)
	}
	return []notebook.Commit{{Path: a.Filename, Message: message}}, nil
}

// paint has the model describe the picture, then renders the description with the image generator.
func paint(ctx context.Context, b *Bot, r *run, a planner.Action) ([]notebook.Commit, error) {
	prompt, err := ai.RenderPrompt("paint.tmpl", ai.PaintData{Discussion: r.discussion, Filename: a.Filename})
	if err != nil {
		return nil, err
	}
	description, err := b.models.LLM.Prompt(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to prompt for an image description: %w", err)
	}
	image, err := b.models.Generate(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("failed to paint %s: %w", a.Filename, err)
	}
	message := "Paint " + a.Filename
	if _, err := b.git.WriteFile(ctx, r.Repo, r.branch, a.Filename, image, message); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", a.Filename, err)
	}
	return []notebook.Commit{{Path: a.Filename, Message: message}}, nil
}
