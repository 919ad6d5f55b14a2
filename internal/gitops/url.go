package gitops

import (
	"net/url"
	"strconv"
	"strings"
)

type RefKind int

const (
	RefUnknown RefKind = iota
	RefIssue
	RefPullRequest
	RefFile
)

// Ref is what a URL on the provider's host points at.
type Ref struct {
	Kind   RefKind
	Repo   string
	Number int    // Issues and pull requests
	Branch string // Files
	Path   string // Files
}

// ParseURL classifies a URL on host. Both GitHub style paths (owner/repo/blob/branch/path) and GitLab style paths
// (group/project/-/blob/branch/path) are understood. Branch names containing "/" are not supported.
func ParseURL(host, raw string) (Ref, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Ref{}, false
	}

	if u.Host == "raw.githubusercontent.com" && host == "github.com" {
		parts := splitPath(u.Path)
		if len(parts) < 4 {
			return Ref{}, false
		}
		return Ref{Kind: RefFile, Repo: parts[0] + "/" + parts[1], Branch: parts[2], Path: strings.Join(parts[3:], "/")}, true
	}
	if u.Host != host {
		return Ref{}, false
	}

	parts := splitPath(u.Path)
	repoEnd, verbIdx := -1, -1
	for i, p := range parts {
		if p == "-" {
			repoEnd, verbIdx = i, i+1
			break
		}
	}
	if repoEnd == -1 {
		// GitHub: owner/repo/verb/...
		if len(parts) < 3 {
			return Ref{}, false
		}
		repoEnd, verbIdx = 2, 2
	}
	if repoEnd < 2 || verbIdx >= len(parts) {
		return Ref{}, false
	}

	repo := strings.Join(parts[:repoEnd], "/")
	verb, args := parts[verbIdx], parts[verbIdx+1:]
	switch verb {
	case "issues":
		if n, ok := number(args); ok {
			return Ref{Kind: RefIssue, Repo: repo, Number: n}, true
		}
	case "pull", "pulls", "merge_requests":
		if n, ok := number(args); ok {
			return Ref{Kind: RefPullRequest, Repo: repo, Number: n}, true
		}
	case "blob", "raw":
		if len(args) >= 2 {
			return Ref{Kind: RefFile, Repo: repo, Branch: args[0], Path: strings.Join(args[1:], "/")}, true
		}
	}
	return Ref{}, false
}

// RawDownloadURL rewrites a "/blob/" page URL into the matching raw download URL. Other URLs are returned unchanged.
func RawDownloadURL(raw string) string {
	return strings.Replace(raw, "/blob/", "/raw/", 1)
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func number(args []string) (int, bool) {
	if len(args) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	return n, err == nil
}
