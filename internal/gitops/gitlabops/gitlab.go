// Package gitlabops implements gitops.Client on the GitLab REST API.
package gitlabops

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
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/transport"
)

const provider = "gitlab"

type Client struct {
	gl     *gitlab.Client
	http   *http.Client
	base   *url.URL
	token  string
	now    func() time.Time
	suffix func() string
}

// New creates a client for the GitLab instance at serverURL, e.g. "https://gitlab.com".
func New(token string, serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "https://gitlab.com"
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	httpClient := transport.NewClient()
	gl, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(strings.TrimSuffix(serverURL, "/")+"/api/v4"),
		gitlab.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return &Client{gl: gl, http: httpClient, base: base, token: token, now: time.Now, suffix: gitops.RandomSuffix}, nil
}

func (c *Client) Provider() string { return provider }
func (c *Client) Host() string     { return c.base.Host }

func wrap(op string, err error) error {
	return &gitops.ProviderError{Provider: provider, Operation: op, Err: err}
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func (c *Client) GetDefaultBranchName(ctx context.Context, repo string) (string, error) {
	project, _, err := c.gl.Projects.GetProject(repo, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", wrap("get project", err)
	}
	return project.DefaultBranch, nil
}

func (c *Client) CreateBranch(ctx context.Context, repo string, parent string) (string, error) {
	if parent == "" {
		var err error
		parent, err = c.GetDefaultBranchName(ctx, repo)
		if err != nil {
			return "", err
		}
	}
	name := gitops.NewBranchName(c.now(), c.suffix())
	_, _, err := c.gl.Branches.CreateBranch(repo, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(name),
		Ref:    gitlab.Ptr(parent),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create branch: %w", wrap("create branch", err))
	}
	clog.FromContext(ctx).With("branch", name).Infof("Created branch from %s", parent)
	return name, nil
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
	data, resp, err := c.gl.RepositoryFiles.GetRawFile(repo, p, &gitlab.GetRawFileOptions{Ref: gitlab.Ptr(branch)}, gitlab.WithContext(ctx))
	if err != nil {
		if isNotFound(resp) {
			return nil, fmt.Errorf("%s: %w", p, gitops.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to get file contents: %w", wrap("get raw file", err))
	}
	return data, nil
}

func (c *Client) commit(ctx context.Context, repo, branch, message string, actions ...*gitlab.CommitActionOptions) (string, error) {
	commit, _, err := c.gl.Commits.CreateCommit(repo, &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(branch),
		CommitMessage: gitlab.Ptr(message),
		Actions:       actions,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create commit: %w", wrap("create commit", err))
	}
	clog.FromContext(ctx).With("branch", branch).With("commit", commit.ID).Infof("Committed %q", message)
	return commit.ID, nil
}

func contentAction(action gitlab.FileActionValue, p string, content []byte) *gitlab.CommitActionOptions {
	return &gitlab.CommitActionOptions{
		Action:   gitlab.Ptr(action),
		FilePath: gitlab.Ptr(p),
		Content:  gitlab.Ptr(base64.StdEncoding.EncodeToString(content)),
		Encoding: gitlab.Ptr("base64"),
	}
}

func (c *Client) WriteFile(ctx context.Context, repo, branch, p string, content []byte, message string) (string, error) {
	exists, err := c.FileExists(ctx, repo, branch, p)
	if err != nil {
		return "", err
	}
	action := gitlab.FileCreate
	if exists {
		action = gitlab.FileUpdate
	}
	return c.commit(ctx, repo, branch, message, contentAction(action, p, content))
}

func (c *Client) RenameFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error) {
	return c.commit(ctx, repo, branch, message, &gitlab.CommitActionOptions{
		Action:       gitlab.Ptr(gitlab.FileMove),
		FilePath:     gitlab.Ptr(newPath),
		PreviousPath: gitlab.Ptr(oldPath),
	})
}

func (c *Client) CopyFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error) {
	content, err := c.GetFile(ctx, repo, branch, oldPath)
	if err != nil {
		return "", err
	}
	return c.WriteFile(ctx, repo, branch, newPath, content, message)
}

func (c *Client) DeleteFile(ctx context.Context, repo, branch, p, message string) (string, error) {
	return c.commit(ctx, repo, branch, message, &gitlab.CommitActionOptions{
		Action:   gitlab.Ptr(gitlab.FileDelete),
		FilePath: gitlab.Ptr(p),
	})
}

// Fetch downloads url. Files in projects on this instance are read through the API so private projects work.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ref, ok := gitops.ParseURL(c.Host(), rawURL); ok && ref.Kind == gitops.RefFile {
		return c.GetFile(ctx, ref.Repo, ref.Branch, ref.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gitops.RawDownloadURL(rawURL), nil)
	if err != nil {
		return nil, err
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host == c.Host() {
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}
	resp, err := c.http.Do(req)
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
	opts := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100, Page: 1},
		Ref:         gitlab.Ptr(branch),
		Recursive:   gitlab.Ptr(true),
	}
	var files []string
	for {
		nodes, resp, err := c.gl.Repositories.ListTree(repo, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", wrap("list tree", err))
		}
		for _, n := range nodes {
			if n.Type == "blob" {
				files = append(files, n.Path)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func (c *Client) BlobURL(repo, branch, p string) string {
	return fmt.Sprintf("%s://%s/%s/-/blob/%s/%s", c.base.Scheme, c.base.Host, repo, branch, p)
}

func (c *Client) RawURL(repo, branch, p string) string {
	return fmt.Sprintf("%s://%s/%s/-/raw/%s/%s", c.base.Scheme, c.base.Host, repo, branch, p)
}

var _ gitops.Client = (*Client)(nil)
