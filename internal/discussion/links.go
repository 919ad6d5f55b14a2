package discussion

import (
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/textutil"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindIssue
	KindPullRequest
	KindFile
	KindImage
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindIssue:
		return "issue"
	case KindPullRequest:
		return "pull_request"
	case KindFile:
		return "file"
	case KindImage:
		return "image"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Link is a classified URL found in a discussion.
type Link struct {
	URL  string
	Kind Kind
	Ref  gitops.Ref // Set for issues, pull requests and files on the provider's host
}

var urlPattern = regexp.MustCompile(`(?:https?://|data:image/)\S+`)

// ExtractURLs returns the distinct URLs in text in order of appearance. Markdown and quoting punctuation around them
// is dropped.
func ExtractURLs(text string) []string {
	var urls []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, `)'".,;>`)
		if i := strings.Index(u, "]("); i >= 0 {
			// [https://a](https://a) yields both halves
			u = u[:i]
			u = strings.TrimRight(u, `)'".,;>]`)
		}
		if !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}
	return urls
}

// IsProtected reports whether a path or URL points into provider configuration, which is never read.
func IsProtected(p string) bool {
	return strings.Contains(p, ".github/") || strings.HasSuffix(p, ".github") ||
		strings.Contains(p, ".gitlab/") || strings.HasSuffix(p, ".gitlab") ||
		strings.Contains(p, ".gitlab-ci.yml")
}

var dataSuffixes = []string{
	".csv", ".tsv", ".txt", ".json", ".md", ".py", ".ipynb", ".docx", ".xml", ".yml", ".yaml", ".toml", ".tex",
	".html", ".r", ".java", ".js", ".go",
}

// Classify decides how a URL is inlined. Links into provider configuration are always unknown.
func Classify(host, raw string) Link {
	link := Link{URL: raw}
	if IsProtected(raw) {
		return link
	}
	if strings.HasPrefix(raw, "data:image/") {
		link.Kind = KindImage
		return link
	}

	if ref, ok := gitops.ParseURL(host, raw); ok {
		link.Ref = ref
		switch ref.Kind {
		case gitops.RefIssue:
			link.Kind = KindIssue
		case gitops.RefPullRequest:
			link.Kind = KindPullRequest
		case gitops.RefFile:
			link.Kind = KindFile
			if textutil.IsImagePath(ref.Path) {
				link.Kind = KindImage
			}
		}
		return link
	}

	u, err := url.Parse(raw)
	if err != nil {
		return link
	}
	// Uploads to GitHub comments have no file suffix
	if u.Host == host && strings.HasPrefix(u.Path, "/user-attachments/assets/") {
		link.Kind = KindImage
		return link
	}
	switch {
	case textutil.IsImagePath(u.Path):
		link.Kind = KindImage
	case slices.Contains(dataSuffixes, strings.ToLower(path.Ext(u.Path))):
		link.Kind = KindData
	case u.Host == host && strings.HasPrefix(u.Path, "/user-attachments/files/"):
		link.Kind = KindData
	}
	return link
}
