package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/ai/aitest"
	"github.com/gitbob/git-bob/internal/envguard"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/gitops/fake"
	"github.com/gitbob/git-bob/internal/ignore"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/textutil"
	"github.com/gitbob/git-bob/internal/workspace"
)

const (
	planPrompt    = "a list of possible actions"
	summaryPrompt = "for the description of a pull request"
	banner        = "This message was generated by [git-bob]"
)

// committingRunner writes the notebook as it is and reports a single commit.
type committingRunner struct {
	git     *fake.Client
	targets []notebook.Target
}

func (r *committingRunner) Run(ctx context.Context, target notebook.Target, data []byte) ([]notebook.Commit, error) {
	r.targets = append(r.targets, target)
	if _, err := r.git.WriteFile(ctx, target.Repo, target.Branch, target.Path, data, target.Message); err != nil {
		return nil, err
	}
	return []notebook.Commit{{Path: target.Path, Message: target.Message}}, nil
}

type fixture struct {
	git    *fake.Client
	llm    *aitest.LLM
	runner *committingRunner
	remark textutil.Remark
	bot    *Bot
}

func newFixture(turns ...gitops.Comment) *fixture {
	git := fake.New()
	git.Title = "for-loops"
	git.Turns[gitops.Issue{Number: 1}] = turns
	llm := aitest.NewLLM()
	remark := textutil.Remark{AgentName: "git-bob", Version: "0.1.0", Model: "test:model"}
	runner := &committingRunner{git: git}
	models := ai.Models{Name: "test:model", LLM: llm, ImageGen: aitest.Bytes("\x89PNG fake")}
	return &fixture{
		git:    git,
		llm:    llm,
		runner: runner,
		remark: remark,
		bot:    New(git, models, Options{Remark: remark, Notebooks: runner, MaxAttempts: 2}),
	}
}

func (f *fixture) solve(t *testing.T) {
	t.Helper()
	err := f.bot.SolveIssue(context.Background(), Request{Repo: "o/r", Issue: gitops.Issue{Number: 1}})
	require.NoError(t, err)
}

func TestSolveIssue_CreatesPythonFile(t *testing.T) {
	f := newFixture(gitops.Comment{
		Author: "alice",
		Body:   "implement python code in a new 'for_loop.py' that demonstrates a for-loop that outputs numbers between 0 and 10.",
	})
	f.llm.On(planPrompt, `[{"action": "create", "filename": "for_loop.py"}]`)
	f.llm.On(`Create the file "for_loop.py"`, "<FILE>\nfor i in range(11):\n    print(i)\n</FILE>\nAdd for-loop demo")
	f.llm.On(summaryPrompt, "I added a for-loop demo.\n\n* [for_loop.py](x) prints 0 to 10\n\nAdd for-loop example")

	f.solve(t)

	require.Equal(t, []string{gitops.ReactionEyes}, f.git.Reactions[gitops.Issue{Number: 1}])
	require.Len(t, f.git.PullRequests, 1)
	pr := f.git.PullRequests[0]
	require.Equal(t, "main", pr.Target)
	require.NotEqual(t, "main", pr.Source)
	require.Equal(t, "Add for-loop example", pr.Title)
	require.True(t, strings.HasSuffix(pr.Body, "closes #1"), pr.Body)

	content, ok := f.git.File(pr.Source, "for_loop.py")
	require.True(t, ok)
	require.Equal(t, "for i in range(11):\n    print(i)\n", content)
	_, onMain := f.git.File("main", "for_loop.py")
	require.False(t, onMain)

	require.Len(t, f.llm.PromptsContaining(summaryPrompt), 1)
	require.Contains(t, f.llm.PromptsContaining(summaryPrompt)[0], "* for_loop.py: Add for-loop demo")
}

func TestSolveIssue_DownloadsBeforeNotebook(t *testing.T) {
	f := newFixture(gitops.Comment{
		Author: "alice",
		Body:   "Analyse https://data.example.org/data.csv in a notebook.",
	})
	f.git.Downloads["https://data.example.org/data.csv"] = []byte("a,b\n1,2\n")
	f.llm.On(planPrompt, `[
		{"action": "create", "filename": "analysis.ipynb"},
		{"action": "download", "source_url": "https://data.example.org/data.csv", "target_filename": "data.csv"}
	]`)
	f.llm.On(`Create the file "analysis.ipynb"`, "<FILE>\n"+notebookJSON+"\n</FILE>\nAnalyse the data")
	f.llm.On(summaryPrompt, "Downloaded and analysed the data.\n\nAnalyse data.csv")

	f.solve(t)

	var paths []string
	for _, c := range f.git.Commits {
		paths = append(paths, c.Paths...)
	}
	require.Equal(t, []string{"data.csv", "analysis.ipynb"}, paths)
	require.Equal(t, "Download data.csv", f.git.Commits[0].Message)

	require.Len(t, f.runner.targets, 1)
	require.Equal(t, "Analyse the data", f.runner.targets[0].Message)
	require.Len(t, f.git.PullRequests, 1)
}

// statExecutor records whether a file was present in the working directory when a notebook ran.
type statExecutor struct {
	path    string
	present []bool
}

func (e *statExecutor) Execute(_ context.Context, dir, _ string) error {
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(e.path)))
	e.present = append(e.present, err == nil)
	return nil
}

// withNotebookRunner replaces the fixture's runner with a real one executing in a temporary directory.
func (f *fixture) withNotebookRunner(t *testing.T, exec notebook.Executor) *workspace.Dir {
	t.Helper()
	dir, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	runner := &notebook.Runner{
		Exec:        exec,
		LLM:         f.llm,
		Dir:         dir,
		Guard:       envguard.New(nil),
		Git:         f.git,
		Ignore:      ignore.New(f.git),
		MaxAttempts: 2,
	}
	models := ai.Models{Name: "test:model", LLM: f.llm}
	f.bot = New(f.git, models, Options{Remark: f.remark, Notebooks: runner, Local: dir, MaxAttempts: 2})
	return dir
}

func TestSolveIssue_NotebookSeesDownloadedFile(t *testing.T) {
	f := newFixture(gitops.Comment{
		Author: "alice",
		Body:   "Analyse https://data.example.org/data.csv in a notebook.",
	})
	exec := &statExecutor{path: "data.csv"}
	dir := f.withNotebookRunner(t, exec)
	f.git.Downloads["https://data.example.org/data.csv"] = []byte("a,b\n1,2\n")
	f.llm.On(planPrompt, `[
		{"action": "download", "source_url": "https://data.example.org/data.csv", "target_filename": "data.csv"},
		{"action": "create", "filename": "analysis.ipynb"}
	]`)
	f.llm.On(`Create the file "analysis.ipynb"`, "<FILE>\n"+notebookJSON+"\n</FILE>\nAnalyse the data")
	f.llm.On(summaryPrompt, "Downloaded and analysed the data.\n\nAnalyse data.csv")

	f.solve(t)

	require.Equal(t, []bool{true}, exec.present)
	local, err := dir.Read("data.csv")
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(local))

	var messages []string
	for _, c := range f.git.Commits {
		messages = append(messages, c.Message)
	}
	require.Equal(t, []string{"Download data.csv", "Analyse the data"}, messages)
}

func TestSolveIssue_NotebookSeesRenamedFile(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "Rename raw.csv to data.csv and analyse it in a notebook."})
	exec := &statExecutor{path: "data.csv"}
	dir := f.withNotebookRunner(t, exec)
	f.git.SetFile("main", "raw.csv", "a,b\n1,2\n")
	require.NoError(t, dir.Write("raw.csv", []byte("a,b\n1,2\n")))
	f.llm.On(planPrompt, `[
		{"action": "rename", "old_filename": "raw.csv", "new_filename": "data.csv"},
		{"action": "create", "filename": "analysis.ipynb"}
	]`)
	f.llm.On(`Create the file "analysis.ipynb"`, "<FILE>\n"+notebookJSON+"\n</FILE>\nAnalyse the data")
	f.llm.On(summaryPrompt, "Renamed and analysed the data.\n\nAnalyse data.csv")

	f.solve(t)

	require.Equal(t, []bool{true}, exec.present)
	for _, c := range f.git.Commits {
		require.NotContains(t, c.Message, notebook.ErrorSuffix)
	}
}

func TestSolveIssue_IgnoredFileIsReported(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "Update secrets/key.txt please."})
	f.git.SetFile("main", ".gitbobignore", "secrets/*\n")
	f.git.SetFile("main", "secrets/key.txt", "old")
	f.llm.On(planPrompt, `[{"action": "modify", "filename": "secrets/key.txt"}]`)

	f.solve(t)

	require.Empty(t, f.git.Commits)
	require.Empty(t, f.git.PullRequests)
	require.Empty(t, f.llm.PromptsContaining("Modify the file"))

	comments := f.git.Comments(gitops.Issue{Number: 1})
	require.Len(t, comments, 1)
	body := comments[0].Body
	require.Contains(t, body, "I could not make the requested changes.")
	require.Equal(t, 1, strings.Count(body, "<details>"))
	require.Contains(t, body, ".gitbobignore")
	require.Contains(t, body, banner)
}

func TestSolveIssue_ActionFailureDoesNotStopTheRun(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "Rename a.txt and add b.txt"})
	f.llm.On(planPrompt, `[
		{"action": "rename", "old_filename": "missing.txt", "new_filename": "a.txt"},
		{"action": "create", "filename": "b.txt"}
	]`)
	f.llm.On(`Create the file "b.txt"`, "<FILE>\nhello\n</FILE>\nAdd b.txt")
	f.llm.On(summaryPrompt, "Added b.txt.\n\nAdd b.txt")

	f.solve(t)

	require.Len(t, f.git.Commits, 1)
	require.Len(t, f.git.PullRequests, 1)
	body := f.git.PullRequests[0].Body
	require.Contains(t, body, "The following errors occurred:")
	require.Contains(t, body, "Error during rename")
}

func TestSolveIssue_FileOperations(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "Tidy up"})
	f.git.SetFile("main", "old.txt", "old")
	f.git.SetFile("main", "keep.txt", "keep")
	f.git.SetFile("main", "junk.txt", "junk")
	f.llm.On(planPrompt, `[
		{"action": "rename", "old_filename": "old.txt", "new_filename": "new.txt"},
		{"action": "copy", "old_filename": "keep.txt", "new_filename": "copy.txt"},
		{"action": "delete", "filename": "/junk.txt"},
		{"action": "paint", "filename": "logo.png"}
	]`)
	f.llm.On("Write a prompt for an image generator", "A friendly robot")
	f.llm.On(summaryPrompt, "Tidied up.\n\nTidy up the repository")

	f.solve(t)

	branch := f.git.PullRequests[0].Source
	got := map[string]bool{}
	for _, p := range []string{"old.txt", "new.txt", "keep.txt", "copy.txt", "junk.txt", "logo.png"} {
		_, got[p] = f.git.File(branch, p)
	}
	assert.Equal(t, map[string]bool{
		"old.txt": false, "new.txt": true, "keep.txt": true, "copy.txt": true, "junk.txt": false, "logo.png": true,
	}, got)

	logo, _ := f.git.File(branch, "logo.png")
	require.Equal(t, "\x89PNG fake", logo)
	require.Len(t, f.git.Commits, 4)
	require.Equal(t, "Paint logo.png", f.git.Commits[3].Message)
}

func TestSolveIssue_SkipsOwnComment(t *testing.T) {
	f := newFixture(
		gitops.Comment{Author: "alice", Body: "Please add a readme"},
	)
	f.git.Turns[gitops.Issue{Number: 1}] = append(f.git.Turns[gitops.Issue{Number: 1}],
		gitops.Comment{Author: "git-bob", Body: f.remark.Sign(nil, "Done.")})

	f.solve(t)

	require.Empty(t, f.llm.Prompts)
	require.Empty(t, f.git.Reactions[gitops.Issue{Number: 1}])
	require.Len(t, f.git.Comments(gitops.Issue{Number: 1}), 1)
}

func TestSolveIssue_PlanFailureIsCommented(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "Do something"})
	f.llm.Fail(planPrompt, errors.New("model overloaded"))

	err := f.bot.SolveIssue(context.Background(), Request{Repo: "o/r", Issue: gitops.Issue{Number: 1}})
	require.ErrorContains(t, err, "model overloaded")

	require.Len(t, f.git.Branches, 1)
	comments := f.git.Comments(gitops.Issue{Number: 1})
	require.Len(t, comments, 1)
	require.Contains(t, comments[0].Body, "model overloaded")
	require.Contains(t, comments[0].Body, banner)
}

func TestSolveIssue_ContinuesOnPullRequestBranch(t *testing.T) {
	f := newFixture()
	pr := gitops.Issue{Number: 5, PullRequest: true}
	branch, err := f.git.CreateBranch(context.Background(), "o/r", "")
	require.NoError(t, err)
	f.git.PRBranches[5] = branch
	f.git.Turns[pr] = []gitops.Comment{{Author: "alice", Body: "Also add notes.md"}}
	f.llm.On(planPrompt, `[{"action": "create", "filename": "notes.md"}]`)
	f.llm.On(`Create the file "notes.md"`, "<FILE>\n# Notes\n</FILE>\nAdd notes")
	f.llm.On("Summarize the modifications", "I added notes.md.")

	err = f.bot.SolveIssue(context.Background(), Request{Repo: "o/r", Issue: pr})
	require.NoError(t, err)

	require.Empty(t, f.git.PullRequests)
	notes, ok := f.git.File(branch, "notes.md")
	require.True(t, ok)
	require.Equal(t, "# Notes\n", notes)
	comments := f.git.Comments(pr)
	require.Len(t, comments, 1)
	require.Contains(t, comments[0].Body, "I added notes.md.")
}

func TestCommentOnIssue(t *testing.T) {
	f := newFixture(gitops.Comment{Author: "alice", Body: "@git-bob what does @mallory think?"})
	f.git.Contributors = []string{"alice"}
	f.llm.On("Respond to the most recent comment", "Ask @alice, not @mallory.")

	err := f.bot.CommentOnIssue(context.Background(), Request{Repo: "o/r", Issue: gitops.Issue{Number: 1}})
	require.NoError(t, err)

	comments := f.git.Comments(gitops.Issue{Number: 1})
	require.Len(t, comments, 1)
	require.True(t, strings.HasPrefix(comments[0].Body, "Ask @alice, not mallory."), comments[0].Body)
	require.Contains(t, comments[0].Body, banner)
	require.Empty(t, f.git.Commits)
}

const notebookJSON = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": "Load the data"},
  {"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": "import pandas as pd\ndf = pd.read_csv('data.csv')"}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`
