// Package report summarizes the changes of a run as a pull request or as a comment on the issue.
package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/waigani/diffparser"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/textutil"
)

// Client is the part of a provider client the reporter needs.
type Client interface {
	Host() string
	GetDiffOfBranches(ctx context.Context, repo, base, head string) (string, error)
	GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error)
	SendPullRequest(ctx context.Context, repo, source, target, title, body string) (string, error)
	AddComment(ctx context.Context, repo string, issue gitops.Issue, body string) error
	GetContributors(ctx context.Context, repo string) ([]string, error)
	BlobURL(repo, branch, path string) string
	RawURL(repo, branch, path string) string
}

type Reporter struct {
	Git      Client
	LLM      ai.LLM
	Remark   textutil.Remark
	Redactor *textutil.Redactor
}

// Run is everything that happened on the working branch.
type Run struct {
	Repo       string
	Issue      gitops.Issue
	Discussion string
	BaseBranch string
	WorkBranch string
	Ledger     *Ledger
	Errors     []ErrorRecord
}

// Outcome tells where the report went.
type Outcome struct {
	PullRequestURL string
	Commented      bool
}

// maxDiffLen bounds the diff shown to the model.
const maxDiffLen = 20000

// Report opens a pull request from the working branch, or comments on the issue when the work continued on the base
// branch itself. When the pull request cannot be created, the report is posted as a comment instead.
func (r *Reporter) Report(ctx context.Context, run Run) (Outcome, error) {
	if run.Ledger == nil {
		run.Ledger = NewLedger()
	}
	if run.WorkBranch == run.BaseBranch {
		return r.reportContinuation(ctx, run)
	}
	return r.reportPullRequest(ctx, run)
}

func (r *Reporter) reportPullRequest(ctx context.Context, run Run) (Outcome, error) {
	log := clog.FromContext(ctx).With("branch", run.WorkBranch)

	if run.Ledger.Len() == 0 {
		log.Info("nothing was committed, commenting instead of opening a pull request")
		body := "I could not make the requested changes." + ErrorsMarkdown(run.Errors)
		return Outcome{Commented: true}, r.comment(ctx, run, body)
	}

	diff, err := r.Git.GetDiffOfBranches(ctx, run.Repo, run.BaseBranch, run.WorkBranch)
	if err != nil {
		log.Warnf("failed to get diff: %v", err)
	}
	files := changedFiles(ctx, run.Ledger, diff)

	prompt, err := ai.RenderPrompt("pr_summary.tmpl", ai.SummaryData{
		Discussion: run.Discussion,
		Changes:    run.Ledger.String(),
		Diff:       truncate(diff, maxDiffLen),
		Links:      r.links(run, files),
	})
	if err != nil {
		return Outcome{}, err
	}
	reply, err := r.LLM.Prompt(ctx, prompt)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to prompt for pull request summary: %w", err)
	}
	description, title := textutil.SplitContentAndSummary(r.clean(ctx, run, reply))
	title = cleanTitle(title)
	if title == "" {
		title = fmt.Sprintf("Changes for #%d", run.Issue.Number)
	}

	body := textutil.PromoteImageLinks(description) + r.previews(run, files) + ErrorsMarkdown(run.Errors)
	fullBody := r.Redactor.Redact(body) + r.Remark.String() + fmt.Sprintf("\n\ncloses #%d", run.Issue.Number)

	url, err := r.Git.SendPullRequest(ctx, run.Repo, run.WorkBranch, run.BaseBranch, r.Redactor.Redact(title), fullBody)
	var providerErr *gitops.ProviderError
	switch {
	case err == nil:
		log.With("url", url).Info("opened pull request")
		return Outcome{PullRequestURL: url}, nil
	case errors.As(err, &providerErr), errors.Is(err, gitops.ErrNoCommits):
		log.Warnf("failed to open pull request, commenting instead: %v", err)
		fallback := fmt.Sprintf("I made changes on branch `%s` but could not open a pull request:\n\n```\n%s\n```\n\n## %s\n\n%s",
			run.WorkBranch, err, title, body)
		return Outcome{Commented: true}, r.comment(ctx, run, fallback)
	default:
		return Outcome{}, fmt.Errorf("failed to open pull request: %w", err)
	}
}

func (r *Reporter) reportContinuation(ctx context.Context, run Run) (Outcome, error) {
	var diff string
	if run.Issue.PullRequest {
		var err error
		diff, err = r.Git.GetDiffOfPullRequest(ctx, run.Repo, run.Issue.Number)
		if err != nil {
			clog.FromContext(ctx).Warnf("failed to get pull request diff: %v", err)
		}
	}

	summary := "I could not make the requested changes."
	if run.Ledger.Len() > 0 {
		prompt, err := ai.RenderPrompt("comment_summary.tmpl", ai.SummaryData{
			Discussion: run.Discussion,
			Changes:    run.Ledger.String(),
			Diff:       truncate(diff, maxDiffLen),
		})
		if err != nil {
			return Outcome{}, err
		}
		reply, err := r.LLM.Prompt(ctx, prompt)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to prompt for modification summary: %w", err)
		}
		summary = textutil.PromoteImageLinks(r.clean(ctx, run, reply))
	}
	return Outcome{Commented: true}, r.comment(ctx, run, summary+ErrorsMarkdown(run.Errors))
}

func (r *Reporter) comment(ctx context.Context, run Run, body string) error {
	if err := r.Git.AddComment(ctx, run.Repo, run.Issue, r.Remark.Sign(r.Redactor, body)); err != nil {
		return fmt.Errorf("failed to comment on %s: %w", run.Issue, err)
	}
	return nil
}

// clean strips formatting noise and mentions of people who are not contributors.
func (r *Reporter) clean(ctx context.Context, run Run, text string) string {
	contributors, err := r.Git.GetContributors(ctx, run.Repo)
	if err != nil {
		clog.FromContext(ctx).Warnf("failed to list contributors: %v", err)
	}
	return textutil.CleanOutput(text, contributors)
}

// changedFile is a path that differs between base and working branch.
type changedFile struct {
	path    string
	deleted bool
}

// changedFiles lists the ledger's paths first, then anything else the diff touches, e.g. from earlier runs.
func changedFiles(ctx context.Context, ledger *Ledger, diff string) []changedFile {
	var files []changedFile
	seen := map[string]int{}
	for _, e := range ledger.Entries() {
		seen[e.Path] = len(files)
		files = append(files, changedFile{path: e.Path})
	}
	if strings.TrimSpace(diff) == "" {
		return files
	}

	parsed, err := diffparser.Parse(diff)
	if err != nil {
		clog.FromContext(ctx).Warnf("failed to parse diff: %v", err)
		return files
	}
	for _, f := range parsed.Files {
		name := f.NewName
		deleted := f.Mode == diffparser.DELETED
		if deleted || name == "" {
			name = f.OrigName
		}
		if name == "" {
			continue
		}
		if i, ok := seen[name]; ok {
			files[i].deleted = deleted
			continue
		}
		seen[name] = len(files)
		files = append(files, changedFile{path: name, deleted: deleted})
	}
	return files
}

// links renders one markdown link per changed file for the model to explain.
func (r *Reporter) links(run Run, files []changedFile) string {
	var sb strings.Builder
	for _, f := range files {
		if f.deleted {
			fmt.Fprintf(&sb, "* %s (deleted)\n", f.path)
			continue
		}
		fmt.Fprintf(&sb, "* [%s](%s)", f.path, r.Git.BlobURL(run.Repo, run.WorkBranch, f.path))
		if path.Ext(f.path) == ".ipynb" && r.Git.Host() == "github.com" {
			fmt.Fprintf(&sb, " ([rendered](https://nbviewer.org/github/%s/blob/%s/%s))", run.Repo, run.WorkBranch, f.path)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// previews shows every changed image inline.
func (r *Reporter) previews(run Run, files []changedFile) string {
	var sb strings.Builder
	for _, f := range files {
		if f.deleted || !textutil.IsImagePath(f.path) {
			continue
		}
		fmt.Fprintf(&sb, "\n\n![%s](%s)", path.Base(f.path), r.Git.RawURL(run.Repo, run.WorkBranch, f.path))
	}
	return sb.String()
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.TrimLeft(title, "#* ")
	title = strings.TrimRight(title, "* ")
	for _, prefix := range []string{"Title:", "title:", "TITLE:"} {
		title = strings.TrimSpace(strings.TrimPrefix(title, prefix))
	}
	return strings.Trim(title, "\"`")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[diff truncated]"
}
