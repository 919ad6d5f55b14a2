package discussion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitbob/git-bob/internal/ai/aitest"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/gitops/fake"
	"github.com/gitbob/git-bob/internal/workspace"
)

func newAssembler(git *fake.Client) *Assembler {
	return &Assembler{Source: git, Vision: aitest.Vision("A bar chart with three bars.")}
}

func TestAssemble_File(t *testing.T) {
	git := fake.New()
	git.SetFile("main", "README.md", "# Project\nHello world.\n")
	url := "https://git.example.com/o/r/blob/main/README.md"

	out := newAssembler(git).Assemble(context.Background(), "Please improve "+url+" a bit.")

	require.True(t, strings.HasPrefix(out, "Please improve "+url+" a bit."))
	require.Contains(t, out, "### File "+url+" content\n\n")
	// Headings inside inlined files are demoted
	require.Contains(t, out, "### Project\nHello world.")
}

func TestAssemble_IssueAndPullRequest(t *testing.T) {
	git := fake.New()
	git.Title = "Other issue"
	git.Turns[gitops.Issue{Number: 7}] = []gitops.Comment{{Author: "alice", Body: "The other thing is broken."}}
	git.Turns[gitops.Issue{Number: 8, PullRequest: true}] = []gitops.Comment{{Author: "bob", Body: "Fixes it."}}
	git.PRBranches[8] = "fix"
	git.SetFile("fix", "fix.py", "print('fixed')\n")

	out := newAssembler(git).Assemble(context.Background(),
		"Like in https://git.example.com/o/r/issues/7 and https://git.example.com/o/r/pull/8")

	require.Contains(t, out, "### Discussion https://git.example.com/o/r/issues/7 content\n\nIssue title: Other issue")
	require.Contains(t, out, "The other thing is broken.")
	require.Contains(t, out, "### Discussion https://git.example.com/o/r/pull/8 content")
	require.Contains(t, out, "+++ b/fix.py")
}

func TestAssemble_Image(t *testing.T) {
	git := fake.New()
	git.Downloads["https://example.com/chart.png"] = []byte("\x89PNG\r\n\x1a\n")

	out := newAssembler(git).Assemble(context.Background(), "Redraw ![chart](https://example.com/chart.png)")

	require.Contains(t, out, "### File https://example.com/chart.png content\n\nA bar chart with three bars.")
}

func TestAssemble_SkipsFailuresAndProtectedPaths(t *testing.T) {
	git := fake.New()
	git.SetFile("main", ".github/workflows/ci.yml", "secret: 1")

	text := "See https://example.com/missing.csv and https://git.example.com/o/r/blob/main/.github/workflows/ci.yml"
	out := newAssembler(git).Assemble(context.Background(), text)

	require.Equal(t, text, out)
}

func TestAssemble_NotebookOutputsAreErased(t *testing.T) {
	git := fake.New()
	git.SetFile("main", "nb.ipynb", `{"cells": [{"cell_type": "code", "execution_count": 1, "metadata": {},
"outputs": [{"output_type": "stream", "name": "stdout", "text": ["LEAKED OUTPUT"]}], "source": "print(1)"}],
"metadata": {}, "nbformat": 4, "nbformat_minor": 5}`)

	out := newAssembler(git).Assemble(context.Background(), "https://git.example.com/o/r/blob/main/nb.ipynb")

	require.Contains(t, out, "print(1)")
	require.NotContains(t, out, "LEAKED OUTPUT")
}

func TestAssemble_LocalFiles(t *testing.T) {
	dir, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dir.Write("data/input.csv", []byte("a,b\n1,2\n")))

	a := newAssembler(fake.New())
	a.Local = dir
	out := a.Assemble(context.Background(), "Analyze data/input.csv and missing.csv please")

	require.Contains(t, out, "### File data/input.csv content\n\na,b\n1,2\n")
	require.NotContains(t, out, "### File missing.csv")
}

func TestAssemble_DropsBanners(t *testing.T) {
	out := newAssembler(fake.New()).Assemble(context.Background(),
		"Issue title: x\n\n# Heading\nDone.<sup>This message was generated by git-bob</sup>")

	require.Equal(t, "Issue title: x\n\n### Heading\nDone.", out)
}
