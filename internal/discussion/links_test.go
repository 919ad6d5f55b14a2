package discussion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitbob/git-bob/internal/gitops"
)

func TestExtractURLs(t *testing.T) {
	text := `See https://github.com/o/r/issues/3, and (https://github.com/o/r/blob/main/README.md).
Also "https://example.com/data.csv" and [https://github.com/o/r/pull/4](https://github.com/o/r/pull/4)
Again https://github.com/o/r/issues/3`

	require.Equal(t, []string{
		"https://github.com/o/r/issues/3",
		"https://github.com/o/r/blob/main/README.md",
		"https://example.com/data.csv",
		"https://github.com/o/r/pull/4",
	}, ExtractURLs(text))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
		ref  gitops.Ref
	}{
		{"https://github.com/o/r/issues/3", KindIssue, gitops.Ref{Kind: gitops.RefIssue, Repo: "o/r", Number: 3}},
		{"https://github.com/o/r/pull/4", KindPullRequest, gitops.Ref{Kind: gitops.RefPullRequest, Repo: "o/r", Number: 4}},
		{"https://github.com/o/r/blob/main/docs/a.md", KindFile, gitops.Ref{Kind: gitops.RefFile, Repo: "o/r", Branch: "main", Path: "docs/a.md"}},
		{"https://github.com/o/r/blob/main/plot.png", KindImage, gitops.Ref{Kind: gitops.RefFile, Repo: "o/r", Branch: "main", Path: "plot.png"}},
		{"https://github.com/user-attachments/assets/0b1c-2d3e", KindImage, gitops.Ref{}},
		{"https://example.com/pictures/cat.JPG", KindImage, gitops.Ref{}},
		{"https://example.com/data.csv", KindData, gitops.Ref{}},
		{"https://example.com/about", KindUnknown, gitops.Ref{}},
		{"https://github.com/o/r/blob/main/.github/workflows/ci.yml", KindUnknown, gitops.Ref{}},
		{"https://github.com/o/r/blob/main/.gitlab-ci.yml", KindUnknown, gitops.Ref{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			link := Classify("github.com", tt.raw)
			require.Equal(t, tt.kind, link.Kind, link.Kind.String())
			require.Equal(t, tt.ref, link.Ref)
		})
	}
}

func TestLocalPaths(t *testing.T) {
	got := localPaths("Please look at `data/input.csv` and notes.txt. Also https://example.com/x.csv or /etc/passwd.txt, e.g. stuff")
	require.Equal(t, []string{"data/input.csv", "notes.txt", "e.g"}, got)
}
