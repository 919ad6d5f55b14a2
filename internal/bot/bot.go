// Package bot solves issues: it reads the discussion, plans file operations, carries them out on a working branch and
// reports back on the issue.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/discussion"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/ignore"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/planner"
	"github.com/gitbob/git-bob/internal/report"
	"github.com/gitbob/git-bob/internal/synth"
	"github.com/gitbob/git-bob/internal/telemetry"
	"github.com/gitbob/git-bob/internal/textutil"
	"github.com/gitbob/git-bob/internal/workspace"
)

// Bot works on one issue per call. It holds no state between calls.
type Bot struct {
	git       gitops.Client
	models    ai.Models
	assembler *discussion.Assembler
	planner   *planner.Planner
	synth     *synth.Synthesizer
	reporter  *report.Reporter
	ignore    *ignore.Policy
	telemetry *telemetry.Provider
	remark    textutil.Remark
	redactor  *textutil.Redactor
	handlers  map[planner.Kind]actionHandler
}

// Options are the collaborators a Bot needs besides the provider and the models.
type Options struct {
	Remark    textutil.Remark
	Redactor  *textutil.Redactor
	Telemetry *telemetry.Provider
	Documents synth.Documents
	Notebooks synth.NotebookRunner
	// Local is scanned for files mentioned in discussions. May be nil.
	Local       *workspace.Dir
	MaxAttempts int
}

func New(git gitops.Client, models ai.Models, opts Options) *Bot {
	policy := ignore.New(git)
	b := &Bot{
		git:    git,
		models: models,
		assembler: &discussion.Assembler{
			Source:    git,
			Vision:    models,
			Documents: opts.Documents,
			Local:     opts.Local,
		},
		planner: planner.New(models.LLM),
		synth: &synth.Synthesizer{
			Files:       git,
			Models:      models,
			Documents:   opts.Documents,
			Notebooks:   opts.Notebooks,
			Ignore:      policy,
			Redactor:    opts.Redactor,
			MaxAttempts: opts.MaxAttempts,
		},
		reporter: &report.Reporter{
			Git:      git,
			LLM:      models.LLM,
			Remark:   opts.Remark,
			Redactor: opts.Redactor,
		},
		ignore:    policy,
		telemetry: opts.Telemetry,
		remark:    opts.Remark,
		redactor:  opts.Redactor,
	}
	b.handlers = newHandlers()
	return b
}

// Request names the issue to work on. BaseBranch is the branch to continue on; empty means a new working branch is
// created from the default branch.
type Request struct {
	Repo       string
	Issue      gitops.Issue
	BaseBranch string
}

// SolveIssue runs the whole pipeline for one issue. Failures of single actions end up in the report; an error is
// returned only when no report could be made.
func (b *Bot) SolveIssue(ctx context.Context, req Request) (err error) {
	ctx, span := b.telemetry.Start(ctx, "solve_issue",
		attribute.String("repository", req.Repo),
		attribute.Int("issue", req.Issue.Number),
		attribute.String("run.id", telemetry.NewRunID()),
	)
	defer func() { telemetry.End(span, err) }()
	log := clog.FromContext(ctx).With("repo", req.Repo).With("issue", req.Issue.String())
	ctx = clog.WithLogger(ctx, log)

	requester, ok, err := b.start(ctx, req)
	if err != nil || !ok {
		return err
	}

	defaultBranch, err := b.git.GetDefaultBranchName(ctx, req.Repo)
	if err != nil {
		return fmt.Errorf("failed to get default branch: %w", err)
	}
	base := req.BaseBranch
	if base == "" && req.Issue.PullRequest {
		if base, err = b.git.GetPullRequestBranch(ctx, req.Repo, req.Issue.Number); err != nil {
			return fmt.Errorf("failed to get pull request branch: %w", err)
		}
	}
	if base == "" {
		base = defaultBranch
	}

	text, err := b.conversation(ctx, req)
	if err != nil {
		return err
	}

	files, err := b.git.ListFiles(ctx, req.Repo, base)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	actions, err := b.planner.Plan(ctx, text, files)
	if err != nil {
		// Nothing was changed yet; tell the user and stop
		if cerr := b.comment(ctx, req, fmt.Sprintf("I could not work out how to solve this issue:\n\n```\n%v\n```", err)); cerr != nil {
			log.Warnf("failed to comment: %v", cerr)
		}
		return fmt.Errorf("failed to plan: %w", err)
	}

	work := base
	if base == defaultBranch {
		if work, err = b.git.CreateBranch(ctx, req.Repo, defaultBranch); err != nil {
			return fmt.Errorf("failed to create working branch: %w", err)
		}
		log.With("branch", work).Info("created working branch")
	}

	r := &run{
		Request:    req,
		discussion: text,
		branch:     work,
		requester:  requester,
		ledger:     report.NewLedger(),
	}
	b.execute(ctx, r, actions)

	_, err = b.reporter.Report(ctx, report.Run{
		Repo:       req.Repo,
		Issue:      req.Issue,
		Discussion: text,
		BaseBranch: base,
		WorkBranch: work,
		Ledger:     r.ledger,
		Errors:     r.errors,
	})
	return err
}

// CommentOnIssue answers the discussion with a comment and changes nothing else.
func (b *Bot) CommentOnIssue(ctx context.Context, req Request) (err error) {
	ctx, span := b.telemetry.Start(ctx, "comment_on_issue",
		attribute.String("repository", req.Repo),
		attribute.Int("issue", req.Issue.Number),
	)
	defer func() { telemetry.End(span, err) }()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("repo", req.Repo).With("issue", req.Issue.String()))

	if _, ok, err := b.start(ctx, req); err != nil || !ok {
		return err
	}
	text, err := b.conversation(ctx, req)
	if err != nil {
		return err
	}

	prompt, err := ai.RenderPrompt("comment.tmpl", ai.CommentData{AgentName: b.remark.AgentName, Discussion: text})
	if err != nil {
		return err
	}
	reply, err := b.models.LLM.Prompt(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to prompt for a comment: %w", err)
	}
	contributors, err := b.git.GetContributors(ctx, req.Repo)
	if err != nil {
		clog.FromContext(ctx).Warnf("failed to list contributors: %v", err)
	}
	return b.comment(ctx, req, textutil.CleanOutput(reply, contributors))
}

// start acknowledges the request and reports whether to go on. The agent never answers its own comments, which would
// otherwise trigger it again. The author of the triggering comment is returned.
func (b *Bot) start(ctx context.Context, req Request) (string, bool, error) {
	log := clog.FromContext(ctx)

	recent, err := b.git.GetMostRecentComment(ctx, req.Repo, req.Issue)
	if err != nil {
		return "", false, fmt.Errorf("failed to get most recent comment: %w", err)
	}
	if b.remark.Signed(recent.Body) {
		log.Info("most recent comment was written by the agent, nothing to do")
		return "", false, nil
	}

	if err := b.git.AddReaction(ctx, req.Repo, req.Issue, gitops.ReactionEyes); err != nil {
		log.Warnf("failed to add reaction: %v", err)
	}
	return recent.Author, true, nil
}

func (b *Bot) conversation(ctx context.Context, req Request) (string, error) {
	conversation, err := b.git.GetConversation(ctx, req.Repo, req.Issue)
	if err != nil {
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}
	return b.assembler.Assemble(ctx, conversation), nil
}

func (b *Bot) comment(ctx context.Context, req Request, body string) error {
	if err := b.git.AddComment(ctx, req.Repo, req.Issue, b.remark.Sign(b.redactor, body)); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", req.Issue, err)
	}
	return nil
}

// errorRecord turns a failed action into a report entry.
func errorRecord(a planner.Action, err error) report.ErrorRecord {
	record := report.ErrorRecord{Action: a.String(), Message: err.Error()}
	var execErr *notebook.ExecutionError
	if errors.As(err, &execErr) {
		record.Traceback = execErr.Output
	}
	return record
}
