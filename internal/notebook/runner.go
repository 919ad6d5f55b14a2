package notebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/envguard"
	"github.com/gitbob/git-bob/internal/telemetry"
	"github.com/gitbob/git-bob/internal/textutil"
	"github.com/gitbob/git-bob/internal/workspace"
)

const (
	DefaultMaxAttempts = 7
	// ErrorSuffix marks commits of notebooks that failed to execute.
	ErrorSuffix = " (containing error)"
	// Keep the tail of long tracebacks; the failing cell is at the end.
	maxErrorLen = 4000
)

// Committer writes one file to a branch.
type Committer interface {
	WriteFile(ctx context.Context, repo, branch, path string, content []byte, message string) (string, error)
}

// BranchReader reads the files of a branch.
type BranchReader interface {
	ListFiles(ctx context.Context, repo, branch string) ([]string, error)
	GetFile(ctx context.Context, repo, branch, path string) ([]byte, error)
}

// IgnoreChecker rejects paths that must not be written.
type IgnoreChecker interface {
	Check(ctx context.Context, repo, branch, filename string) error
}

// Commit is one file the runner wrote to the branch.
type Commit struct {
	Path    string
	Message string
}

// Runner executes notebooks in a local mirror of the branch and asks the LLM to repair them until they run.
type Runner struct {
	Exec        Executor
	LLM         ai.LLM
	Dir         *workspace.Dir
	Guard       *envguard.Guard
	Git         Committer
	Files       BranchReader  // Defaults to Git if it can read branches
	Ignore      IgnoreChecker // May be nil
	Redactor    *textutil.Redactor
	Telemetry   *telemetry.Provider
	MaxAttempts int
}

// Target names the notebook being run.
type Target struct {
	Repo    string
	Branch  string
	Path    string
	Message string
}

// Run executes the notebook up to MaxAttempts times. Before each attempt the branch files the notebook needs are copied
// into Dir: files missing locally and files its code mentions by path. Every failed attempt is committed with
// ErrorSuffix appended to its message and the files it produced are deleted locally before the repair. After a
// successful run the executed notebook and every file it produced are committed. The returned commits are valid also when err is not nil.
func (r *Runner) Run(ctx context.Context, target Target, data []byte) ([]Commit, error) {
	log := clog.FromContext(ctx).With("notebook", target.Path)

	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var commits []Commit
	message := target.Message
	for attempt := 1; ; attempt++ {
		if err := r.sync(ctx, target, data); err != nil {
			return commits, fmt.Errorf("failed to copy branch files for %s: %w", target.Path, err)
		}
		executed, changed, execErr := r.attempt(ctx, target, attempt, data)
		if errors.Is(execErr, context.Canceled) {
			return commits, execErr
		}
		if execErr == nil {
			c, err := r.commitSuccess(ctx, target, message, executed, changed)
			return append(commits, c...), err
		}

		log.Warnf("attempt %d of %d failed: %v", attempt, maxAttempts, firstLine(execErr.Error()))
		if executed == nil {
			executed = data
		}
		if err := r.commit(ctx, target, target.Path, executed, message+ErrorSuffix); err != nil {
			return commits, err
		}
		commits = append(commits, Commit{Path: target.Path, Message: message + ErrorSuffix})

		for _, p := range changed {
			if err := r.Dir.Delete(p); err != nil {
				return commits, fmt.Errorf("failed to clean up %s after failed execution: %w", p, err)
			}
		}

		if attempt >= maxAttempts {
			return commits, fmt.Errorf("notebook %s still fails after %d attempts: %w", target.Path, attempt, execErr)
		}

		repaired, summary, err := r.repair(ctx, target, executed, execErr)
		if err != nil {
			// Run the same notebook again; the next failure gets another repair request
			log.Warnf("failed to repair notebook: %v", err)
			continue
		}
		data = repaired
		if summary != "" {
			message = summary
		}
	}
}

func (r *Runner) branchReader() BranchReader {
	if r.Files != nil {
		return r.Files
	}
	files, _ := r.Git.(BranchReader)
	return files
}

// sync mirrors the branch into Dir so the notebook sees what earlier actions committed. Files already present are
// only refreshed when the notebook refers to them, since the local copy may be a checkout of another branch.
func (r *Runner) sync(ctx context.Context, target Target, data []byte) error {
	files := r.branchReader()
	if files == nil {
		return nil
	}
	paths, err := files.ListFiles(ctx, target.Repo, target.Branch)
	if err != nil {
		return err
	}
	code := codeText(data)
	dir := path.Dir(target.Path)

	var copied int
	for _, p := range paths {
		if p == target.Path {
			continue
		}
		if r.Dir.FileExists(p) && !mentions(code, dir, p) {
			continue
		}
		if r.Ignore != nil && r.Ignore.Check(ctx, target.Repo, target.Branch, p) != nil {
			continue
		}
		content, err := files.GetFile(ctx, target.Repo, target.Branch, p)
		if err != nil {
			return err
		}
		if local, err := r.Dir.Read(p); err == nil && bytes.Equal(local, content) {
			continue
		}
		if err := r.Dir.Write(p, content); err != nil {
			return err
		}
		copied++
	}
	if copied > 0 {
		clog.FromContext(ctx).With("notebook", target.Path).Debugf("copied %d branch files into %s", copied, r.Dir.Root())
	}
	return nil
}

// codeText joins the sources of the code cells, or returns data as is if it is not a notebook.
func codeText(data []byte) string {
	nb, err := Parse(data)
	if err != nil {
		return string(data)
	}
	var sb strings.Builder
	for _, c := range nb.codeCells() {
		sb.WriteString(string(c.Source))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// mentions reports whether code refers to p, either by its repository path or relative to the notebook's directory.
func mentions(code, dir, p string) bool {
	if strings.Contains(code, p) {
		return true
	}
	if dir == "." {
		return false
	}
	rel, ok := strings.CutPrefix(p, dir+"/")
	return ok && strings.Contains(code, rel)
}

// attempt writes the notebook, runs it with sensitive variables removed and reports the files the run produced.
func (r *Runner) attempt(ctx context.Context, target Target, attempt int, data []byte) (executed []byte, changed []string, err error) {
	ctx, span := r.Telemetry.Start(ctx, "notebook.execute",
		attribute.String("notebook.path", target.Path),
		attribute.Int("notebook.attempt", attempt),
	)
	defer func() { telemetry.End(span, err) }()

	if err := r.Dir.Write(target.Path, data); err != nil {
		return nil, nil, err
	}
	before, err := r.Dir.Snapshot()
	if err != nil {
		return nil, nil, err
	}

	execErr := r.Guard.Run(func() error {
		return r.Exec.Execute(ctx, r.Dir.Root(), target.Path)
	})

	changed, err = r.Dir.ChangedSince(before)
	if err != nil {
		return nil, nil, err
	}
	changed = slices.DeleteFunc(changed, func(p string) bool { return p == target.Path })

	executed, err = r.Dir.Read(target.Path)
	if err != nil {
		executed = nil
	}
	return executed, changed, execErr
}

func (r *Runner) commitSuccess(ctx context.Context, target Target, message string, executed []byte, changed []string) ([]Commit, error) {
	log := clog.FromContext(ctx)

	if err := r.commit(ctx, target, target.Path, executed, message); err != nil {
		return nil, err
	}
	commits := []Commit{{Path: target.Path, Message: message}}

	for _, p := range changed {
		if r.Ignore != nil {
			if err := r.Ignore.Check(ctx, target.Repo, target.Branch, p); err != nil {
				log.Warnf("not committing %s: %v", p, err)
				continue
			}
		}
		content, err := r.Dir.Read(p)
		if err != nil {
			return commits, err
		}
		msg := "Adding " + p
		if err := r.commit(ctx, target, p, content, msg); err != nil {
			return commits, err
		}
		commits = append(commits, Commit{Path: p, Message: msg})
	}
	return commits, nil
}

func (r *Runner) commit(ctx context.Context, target Target, p string, content []byte, message string) error {
	if isText(p) {
		content = []byte(r.Redactor.Redact(string(content)))
	}
	if _, err := r.Git.WriteFile(ctx, target.Repo, target.Branch, p, content, message); err != nil {
		return fmt.Errorf("failed to commit %s: %w", p, err)
	}
	return nil
}

func (r *Runner) repair(ctx context.Context, target Target, executed []byte, execErr error) ([]byte, string, error) {
	source, err := WithoutOutputs(executed)
	if err != nil {
		return nil, "", err
	}
	prompt, err := ai.RenderPrompt("notebook_repair.tmpl", ai.RepairData{
		Filename: target.Path,
		Notebook: source,
		Error:    tail(errorText(execErr), maxErrorLen),
	})
	if err != nil {
		return nil, "", err
	}
	reply, err := r.LLM.Prompt(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to prompt for notebook repair: %w", err)
	}

	content, summary := textutil.SplitContentAndSummary(reply)
	nb, err := Parse([]byte(content))
	if err != nil {
		return nil, "", fmt.Errorf("repaired notebook is invalid: %w", err)
	}
	nb.ClearOutputs()
	repaired, err := nb.Marshal()
	if err != nil {
		return nil, "", err
	}
	return repaired, summary, nil
}

func errorText(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.Output != "" {
		return execErr.Output
	}
	return err.Error()
}

var textSuffixes = []string{".ipynb", ".py", ".csv", ".tsv", ".txt", ".md", ".json", ".html", ".svg", ".yml", ".yaml"}

func isText(p string) bool {
	return slices.Contains(textSuffixes, strings.ToLower(path.Ext(p)))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
