// Package githubops implements gitops.Client on the GitHub REST API. Commits are made with the low-level git data API
// (blobs, trees, commits, refs), so nothing is cloned and every change appears on the remote immediately.
package githubops

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v72/github"
	"golang.org/x/oauth2"

	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/transport"
)

const provider = "github"

type Client struct {
	gh     *github.Client
	http   *http.Client // Authenticated, for downloads from the provider
	host   string
	now    func() time.Time
	suffix func() string
}

// New creates a client authenticated with token. An empty serverURL means github.com; anything else is treated as a
// GitHub Enterprise server.
func New(ctx context.Context, token string, serverURL string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: transport.WithRateLimiting(nil)},
	}
	gh := github.NewClient(httpClient)
	host := "github.com"
	if serverURL != "" && !strings.Contains(serverURL, "github.com") {
		var err error
		gh, err = gh.WithEnterpriseURLs(serverURL, serverURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure enterprise URLs: %w", err)
		}
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
		}
		host = u.Host
	}
	return newClient(gh, httpClient, host), nil
}

func newClient(gh *github.Client, httpClient *http.Client, host string) *Client {
	return &Client{gh: gh, http: httpClient, host: host, now: time.Now, suffix: gitops.RandomSuffix}
}

func (c *Client) Provider() string { return provider }
func (c *Client) Host() string     { return c.host }

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository name %q, want owner/name", repo)
	}
	return owner, name, nil
}

func wrap(op string, err error) error {
	return &gitops.ProviderError{Provider: provider, Operation: op, Err: err}
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func (c *Client) GetDefaultBranchName(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	r, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", wrap("get repository", err)
	}
	return r.GetDefaultBranch(), nil
}

// CreateBranch creates a new branch from parent. An existing branch with the generated name is an error, never reused.
func (c *Client) CreateBranch(ctx context.Context, repo string, parent string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	if parent == "" {
		parent, err = c.GetDefaultBranchName(ctx, repo)
		if err != nil {
			return "", err
		}
	}
	newBranch := gitops.NewBranchName(c.now(), c.suffix())

	_, resp, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+newBranch)
	if err == nil {
		return "", fmt.Errorf("branch %s already exists", newBranch)
	} else if !isNotFound(resp) {
		return "", fmt.Errorf("unexpected error while checking if branch exists: %w", wrap("get ref", err))
	}

	baseRef, _, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+parent)
	if err != nil {
		return "", fmt.Errorf("failed to get base branch reference: %w", wrap("get ref", err))
	}

	newRef := &github.Reference{
		Ref:    github.Ptr("refs/heads/" + newBranch),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	}
	if _, _, err = c.gh.Git.CreateRef(ctx, owner, name, newRef); err != nil {
		return "", fmt.Errorf("failed to create branch: %w", wrap("create ref", err))
	}

	clog.FromContext(ctx).With("branch", newBranch).Infof("Created branch from %s", parent)
	return newBranch, nil
}

func (c *Client) FileExists(ctx context.Context, repo, branch, p string) (bool, error) {
	_, err := c.GetFile(ctx, repo, branch, p)
	if errors.Is(err, gitops.ErrFileNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetFile(ctx context.Context, repo, branch, p string) ([]byte, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	opts := &github.RepositoryContentGetOptions{Ref: branch}
	fileContent, dirContent, resp, err := c.gh.Repositories.GetContents(ctx, owner, name, p, opts)
	if err != nil {
		if isNotFound(resp) {
			return nil, fmt.Errorf("%s: %w", p, gitops.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to get file contents: %w", wrap("get contents", err))
	}
	if fileContent == nil {
		if dirContent != nil {
			return nil, fmt.Errorf("%s is a directory: %w", p, gitops.ErrFileNotFound)
		}
		return nil, fmt.Errorf("file content nil")
	}

	// The contents API leaves content empty for files over 1MB
	if fileContent.GetEncoding() == "none" || (fileContent.Content == nil && fileContent.GetSize() > 0) {
		rc, _, err := c.gh.Repositories.DownloadContents(ctx, owner, name, p, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", wrap("download contents", err))
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return []byte(content), nil
}

func (c *Client) WriteFile(ctx context.Context, repo, branch, p string, content []byte, message string) (string, error) {
	return c.commitChanges(ctx, repo, branch, changelist{modified: map[string][]byte{p: content}}, message)
}

func (c *Client) RenameFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error) {
	content, err := c.GetFile(ctx, repo, branch, oldPath)
	if err != nil {
		return "", err
	}
	return c.commitChanges(ctx, repo, branch, changelist{
		modified: map[string][]byte{newPath: content},
		deleted:  []string{oldPath},
	}, message)
}

func (c *Client) CopyFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error) {
	content, err := c.GetFile(ctx, repo, branch, oldPath)
	if err != nil {
		return "", err
	}
	return c.WriteFile(ctx, repo, branch, newPath, content, message)
}

func (c *Client) DeleteFile(ctx context.Context, repo, branch, p, message string) (string, error) {
	return c.commitChanges(ctx, repo, branch, changelist{deleted: []string{p}}, message)
}

// Fetch downloads url. Files in repositories on this host are read through the API so private repositories work.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ref, ok := gitops.ParseURL(c.host, rawURL); ok && ref.Kind == gitops.RefFile {
		return c.GetFile(ctx, ref.Repo, ref.Branch, ref.Path)
	}

	client := http.DefaultClient
	if u, err := url.Parse(rawURL); err == nil && (u.Host == c.host || strings.HasSuffix(u.Host, "githubusercontent.com")) {
		client = c.http
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gitops.RawDownloadURL(rawURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: %s", rawURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) DownloadToRepository(ctx context.Context, repo, branch, rawURL, p, message string) (string, error) {
	data, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return c.WriteFile(ctx, repo, branch, p, data, message)
}

func (c *Client) ListFiles(ctx context.Context, repo, branch string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	tree, _, err := c.gh.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", wrap("get tree", err))
	}
	if tree.GetTruncated() {
		clog.FromContext(ctx).With("branch", branch).Warn("File list truncated by GitHub")
	}
	var files []string
	for _, e := range tree.Entries {
		if e.GetType() == "blob" {
			files = append(files, e.GetPath())
		}
	}
	return files, nil
}

func (c *Client) BlobURL(repo, branch, p string) string {
	return fmt.Sprintf("https://%s/%s/blob/%s/%s", c.host, repo, branch, escapePath(p))
}

func (c *Client) RawURL(repo, branch, p string) string {
	return fmt.Sprintf("https://%s/%s/raw/%s/%s", c.host, repo, branch, escapePath(p))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// changelist is one commit's worth of changes.
type changelist struct {
	modified map[string][]byte
	deleted  []string
}

func (cl changelist) isEmpty() bool {
	return len(cl.modified) == 0 && len(cl.deleted) == 0
}

// commitChanges commits the given changelist to the specified branch
func (c *Client) commitChanges(ctx context.Context, repo, branch string, changes changelist, message string) (string, error) {
	if changes.isEmpty() {
		return "", fmt.Errorf("changelist is empty")
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}

	branchRef, _, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("failed to get branch reference: %w", wrap("get ref", err))
	}

	currentCommit, _, err := c.gh.Git.GetCommit(ctx, owner, name, branchRef.Object.GetSHA())
	if err != nil {
		return "", fmt.Errorf("failed to get current commit: %w", wrap("get commit", err))
	}

	var entries []*github.TreeEntry
	for p, content := range changes.modified {
		// base64 so binary files (images, audio, docx) survive
		blob, _, err := c.gh.Git.CreateBlob(ctx, owner, name, &github.Blob{
			Content:  github.Ptr(base64.StdEncoding.EncodeToString(content)),
			Encoding: github.Ptr("base64"),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create blob for %s: %w", p, wrap("create blob", err))
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.Ptr(p),
			Mode: github.Ptr("100644"),
			Type: github.Ptr("blob"),
			SHA:  blob.SHA,
		})
	}
	for _, p := range changes.deleted {
		// nil SHA deletes the path
		entries = append(entries, &github.TreeEntry{
			Path: github.Ptr(p),
			Mode: github.Ptr("100644"),
			Type: github.Ptr("blob"),
		})
	}

	newTree, _, err := c.gh.Git.CreateTree(ctx, owner, name, currentCommit.Tree.GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("failed to create tree: %w", wrap("create tree", err))
	}

	newCommit, _, err := c.gh.Git.CreateCommit(ctx, owner, name, &github.Commit{
		Message: github.Ptr(message),
		Tree:    newTree,
		Parents: []*github.Commit{currentCommit},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", wrap("create commit", err))
	}

	_, _, err = c.gh.Git.UpdateRef(ctx, owner, name, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + branch),
		Object: &github.GitObject{SHA: newCommit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("failed to update branch reference: %w", wrap("update ref", err))
	}

	clog.FromContext(ctx).With("branch", branch).With("commit", newCommit.GetSHA()).Infof("Committed %q", message)
	return newCommit.GetSHA(), nil
}

var _ gitops.Client = (*Client)(nil)
