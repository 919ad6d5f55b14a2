// Package fake provides an in-memory gitops.Client for tests.
package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gitbob/git-bob/internal/gitops"
)

type Commit struct {
	ID      string
	Branch  string
	Message string
	Paths   []string
}

type PullRequest struct {
	Source, Target string
	Title, Body    string
}

// Client keeps every branch of a single repository in memory. The repo argument of each method is ignored.
type Client struct {
	mu sync.Mutex

	DefaultBranch string
	Branches      map[string]map[string][]byte
	Commits       []Commit
	Title         string
	Turns         map[gitops.Issue][]gitops.Comment
	Reactions     map[gitops.Issue][]string
	PullRequests  []PullRequest
	PRBranches    map[int]string
	Issues        []string
	Contributors  []string
	Downloads     map[string][]byte // URL -> content

	// Set to make the corresponding call fail
	PullRequestErr error

	branchSeq int
}

func New() *Client {
	return &Client{
		DefaultBranch: "main",
		Branches:      map[string]map[string][]byte{"main": {}},
		Turns:         map[gitops.Issue][]gitops.Comment{},
		Reactions:     map[gitops.Issue][]string{},
		PRBranches:    map[int]string{},
		Downloads:     map[string][]byte{},
	}
}

// SetFile puts a file on a branch without making a commit.
func (c *Client) SetFile(branch, path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Branches[branch] == nil {
		c.Branches[branch] = map[string][]byte{}
	}
	c.Branches[branch][path] = []byte(content)
}

// File returns a file's content, or "" and false.
func (c *Client) File(branch, path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Branches[branch][path]
	return string(data), ok
}

// Comments returns every comment posted on an issue after the opening post.
func (c *Client) Comments(issue gitops.Issue) []gitops.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := c.Turns[issue]
	if len(turns) <= 1 {
		return nil
	}
	return slices.Clone(turns[1:])
}

func (c *Client) Provider() string { return "fake" }
func (c *Client) Host() string     { return "git.example.com" }

func (c *Client) GetDefaultBranchName(context.Context, string) (string, error) {
	return c.DefaultBranch, nil
}

func (c *Client) CreateBranch(_ context.Context, _ string, parent string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parent == "" {
		parent = c.DefaultBranch
	}
	files, ok := c.Branches[parent]
	if !ok {
		return "", fmt.Errorf("no branch %s", parent)
	}
	c.branchSeq++
	name := fmt.Sprintf("git-bob-mod-%d", c.branchSeq)
	c.Branches[name] = maps.Clone(files)
	return name, nil
}

func (c *Client) FileExists(_ context.Context, _, branch, path string) (bool, error) {
	_, ok := c.File(branch, path)
	return ok, nil
}

func (c *Client) GetFile(_ context.Context, _, branch, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Branches[branch][path]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", path, branch, gitops.ErrFileNotFound)
	}
	return slices.Clone(data), nil
}

func (c *Client) commit(branch, message string, write map[string][]byte, remove []string) (string, error) {
	files, ok := c.Branches[branch]
	if !ok {
		return "", fmt.Errorf("no branch %s", branch)
	}
	var paths []string
	for p, data := range write {
		files[p] = slices.Clone(data)
		paths = append(paths, p)
	}
	for _, p := range remove {
		if _, ok := files[p]; !ok {
			return "", fmt.Errorf("%s: %w", p, gitops.ErrFileNotFound)
		}
		delete(files, p)
		paths = append(paths, p)
	}
	slices.Sort(paths)
	id := fmt.Sprintf("c%d", len(c.Commits)+1)
	c.Commits = append(c.Commits, Commit{ID: id, Branch: branch, Message: message, Paths: paths})
	return id, nil
}

func (c *Client) WriteFile(_ context.Context, _, branch, path string, content []byte, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(branch, message, map[string][]byte{path: content}, nil)
}

func (c *Client) RenameFile(_ context.Context, _, branch, oldPath, newPath, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Branches[branch][oldPath]
	if !ok {
		return "", fmt.Errorf("%s: %w", oldPath, gitops.ErrFileNotFound)
	}
	return c.commit(branch, message, map[string][]byte{newPath: data}, []string{oldPath})
}

func (c *Client) CopyFile(_ context.Context, _, branch, oldPath, newPath, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Branches[branch][oldPath]
	if !ok {
		return "", fmt.Errorf("%s: %w", oldPath, gitops.ErrFileNotFound)
	}
	return c.commit(branch, message, map[string][]byte{newPath: data}, nil)
}

func (c *Client) DeleteFile(_ context.Context, _, branch, path, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(branch, message, nil, []string{path})
}

func (c *Client) Fetch(_ context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Downloads[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: 404 Not Found", url)
	}
	return slices.Clone(data), nil
}

func (c *Client) DownloadToRepository(ctx context.Context, repo, branch, url, path, message string) (string, error) {
	data, err := c.Fetch(ctx, gitops.RawDownloadURL(url))
	if err != nil {
		return "", err
	}
	return c.WriteFile(ctx, repo, branch, path, data, message)
}

func (c *Client) ListFiles(_ context.Context, _, branch string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	files, ok := c.Branches[branch]
	if !ok {
		return nil, fmt.Errorf("no branch %s", branch)
	}
	return slices.Sorted(maps.Keys(files)), nil
}

func (c *Client) ResolveIssue(_ context.Context, _ string, number int) (gitops.Issue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, isPR := c.PRBranches[number]
	return gitops.Issue{Number: number, PullRequest: isPR}, nil
}

func (c *Client) GetConversation(_ context.Context, _ string, issue gitops.Issue) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gitops.FormatConversation(c.Title, c.Turns[issue]), nil
}

func (c *Client) GetMostRecentComment(_ context.Context, _ string, issue gitops.Issue) (gitops.Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := c.Turns[issue]
	if len(turns) == 0 {
		return gitops.Comment{}, fmt.Errorf("issue %s not found", issue)
	}
	return turns[len(turns)-1], nil
}

func (c *Client) AddComment(_ context.Context, _ string, issue gitops.Issue, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Turns[issue] = append(c.Turns[issue], gitops.Comment{Author: "git-bob", Body: body})
	return nil
}

func (c *Client) AddReaction(_ context.Context, _ string, issue gitops.Issue, reaction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reactions[issue] = append(c.Reactions[issue], reaction)
	return nil
}

// GetDiffOfBranches lists changed paths in a minimal unified diff header form.
func (c *Client) GetDiffOfBranches(_ context.Context, _, base, head string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return diff(c.Branches[base], c.Branches[head]), nil
}

func (c *Client) GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error) {
	branch, err := c.GetPullRequestBranch(ctx, repo, number)
	if err != nil {
		return "", err
	}
	return c.GetDiffOfBranches(ctx, repo, c.DefaultBranch, branch)
}

func (c *Client) GetPullRequestBranch(_ context.Context, _ string, number int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	branch, ok := c.PRBranches[number]
	if !ok {
		return "", fmt.Errorf("pull request %d not found", number)
	}
	return branch, nil
}

func (c *Client) SendPullRequest(_ context.Context, _, source, target, title, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PullRequestErr != nil {
		return "", &gitops.ProviderError{Provider: "fake", Operation: "create pull request", Err: c.PullRequestErr}
	}
	c.PullRequests = append(c.PullRequests, PullRequest{Source: source, Target: target, Title: title, Body: body})
	return fmt.Sprintf("https://git.example.com/o/r/pull/%d", len(c.PullRequests)), nil
}

func (c *Client) CreateIssue(_ context.Context, _, title, body string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Issues = append(c.Issues, title+"\n"+body)
	return len(c.Issues), nil
}

func (c *Client) GetContributors(context.Context, string) ([]string, error) {
	return c.Contributors, nil
}

func (c *Client) BlobURL(repo, branch, path string) string {
	return fmt.Sprintf("https://git.example.com/%s/blob/%s/%s", repo, branch, path)
}

func (c *Client) RawURL(repo, branch, path string) string {
	return fmt.Sprintf("https://git.example.com/%s/raw/%s/%s", repo, branch, path)
}

func diff(base, head map[string][]byte) string {
	var sb strings.Builder
	paths := slices.Sorted(maps.Keys(head))
	for _, p := range paths {
		old, existed := base[p]
		switch {
		case !existed:
			fmt.Fprintf(&sb, "diff --git a/%s b/%s\nnew file mode 100644\n--- /dev/null\n+++ b/%s\n@@ -0,0 +1,1 @@\n+%s\n", p, p, p, firstLine(head[p]))
		case string(old) != string(head[p]):
			fmt.Fprintf(&sb, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n@@ -1,1 +1,1 @@\n-%s\n+%s\n", p, p, p, p, firstLine(old), firstLine(head[p]))
		}
	}
	for _, p := range slices.Sorted(maps.Keys(base)) {
		if _, ok := head[p]; !ok {
			fmt.Fprintf(&sb, "diff --git a/%s b/%s\ndeleted file mode 100644\n--- a/%s\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-%s\n", p, p, p, firstLine(base[p]))
		}
	}
	return sb.String()
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(string(b), "\n")
	return line
}

var _ gitops.Client = (*Client)(nil)
