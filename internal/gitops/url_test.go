package gitops

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		host string
		url  string
		want Ref
		ok   bool
	}{
		{"github.com", "https://github.com/o/r/issues/12", Ref{Kind: RefIssue, Repo: "o/r", Number: 12}, true},
		{"github.com", "https://github.com/o/r/pull/3#discussion", Ref{Kind: RefPullRequest, Repo: "o/r", Number: 3}, true},
		{"github.com", "https://github.com/o/r/blob/main/docs/README.md", Ref{Kind: RefFile, Repo: "o/r", Branch: "main", Path: "docs/README.md"}, true},
		{"github.com", "https://raw.githubusercontent.com/o/r/main/data.csv", Ref{Kind: RefFile, Repo: "o/r", Branch: "main", Path: "data.csv"}, true},
		{"gitlab.com", "https://gitlab.com/g/sub/p/-/issues/7", Ref{Kind: RefIssue, Repo: "g/sub/p", Number: 7}, true},
		{"gitlab.com", "https://gitlab.com/g/p/-/merge_requests/9", Ref{Kind: RefPullRequest, Repo: "g/p", Number: 9}, true},
		{"gitlab.com", "https://gitlab.com/g/p/-/blob/dev/a/b.py", Ref{Kind: RefFile, Repo: "g/p", Branch: "dev", Path: "a/b.py"}, true},
		{"github.com", "https://example.com/o/r/issues/1", Ref{}, false},
		{"github.com", "https://github.com/o/r", Ref{}, false},
		{"github.com", "https://github.com/o/r/issues/abc", Ref{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, ok := ParseURL(tt.host, tt.url)
			if ok != tt.ok {
				t.Fatalf("ParseURL() ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseURL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRawDownloadURL(t *testing.T) {
	got := RawDownloadURL("https://github.com/o/r/blob/main/data.csv")
	if got != "https://github.com/o/r/raw/main/data.csv" {
		t.Errorf("RawDownloadURL() = %q", got)
	}
}
