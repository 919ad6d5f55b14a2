// Package gitops is the provider-agnostic surface over a hosted git service. Every repository mutation the agent
// makes goes through a Client, so the pipeline never clones.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrNoCommits    = errors.New("no commits between branches")
)

// ProviderError is returned by Client implementations when the hosting service rejects a request.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Issue identifies an issue or pull request. GitLab numbers issues and merge requests separately, so the kind is part
// of the identity.
type Issue struct {
	Number      int
	PullRequest bool
}

func (i Issue) String() string {
	if i.PullRequest {
		return fmt.Sprintf("!%d", i.Number)
	}
	return fmt.Sprintf("#%d", i.Number)
}

type Comment struct {
	Author string
	Body   string
}

// ReactionEyes is added to an issue when the agent starts working on it.
const ReactionEyes = "eyes"

// Client is implemented once per hosting provider. Repositories are named by their full path, e.g. "owner/name".
// Methods that change a branch return the id of the commit they made.
type Client interface {
	// Provider returns "github" or "gitlab".
	Provider() string
	// Host returns the host name the repositories live on, e.g. "github.com".
	Host() string

	GetDefaultBranchName(ctx context.Context, repo string) (string, error)
	// CreateBranch creates a uniquely named branch from parent, or from the default branch if parent is empty.
	CreateBranch(ctx context.Context, repo string, parent string) (string, error)

	FileExists(ctx context.Context, repo, branch, path string) (bool, error)
	// GetFile returns ErrFileNotFound if there is no such file on the branch.
	GetFile(ctx context.Context, repo, branch, path string) ([]byte, error)
	WriteFile(ctx context.Context, repo, branch, path string, content []byte, message string) (string, error)
	RenameFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error)
	CopyFile(ctx context.Context, repo, branch, oldPath, newPath, message string) (string, error)
	DeleteFile(ctx context.Context, repo, branch, path, message string) (string, error)
	// Fetch downloads a URL, authenticating if it points at this provider.
	Fetch(ctx context.Context, url string) ([]byte, error)
	DownloadToRepository(ctx context.Context, repo, branch, url, path, message string) (string, error)
	ListFiles(ctx context.Context, repo, branch string) ([]string, error)

	// ResolveIssue finds out whether number is an issue or a pull request.
	ResolveIssue(ctx context.Context, repo string, number int) (Issue, error)
	GetConversation(ctx context.Context, repo string, issue Issue) (string, error)
	// GetMostRecentComment returns the last comment, or the opening post if nobody has commented yet.
	GetMostRecentComment(ctx context.Context, repo string, issue Issue) (Comment, error)
	AddComment(ctx context.Context, repo string, issue Issue, body string) error
	AddReaction(ctx context.Context, repo string, issue Issue, reaction string) error

	GetDiffOfBranches(ctx context.Context, repo, base, head string) (string, error)
	GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error)
	// GetPullRequestBranch returns the source branch of a pull request.
	GetPullRequestBranch(ctx context.Context, repo string, number int) (string, error)
	// SendPullRequest returns the URL of the new pull request.
	SendPullRequest(ctx context.Context, repo, source, target, title, body string) (string, error)
	CreateIssue(ctx context.Context, repo, title, body string) (int, error)
	GetContributors(ctx context.Context, repo string) ([]string, error)

	BlobURL(repo, branch, path string) string
	RawURL(repo, branch, path string) string
}

// NewBranchName returns the name used for a working branch created at t. The suffix keeps runs started within the same
// second apart; an empty suffix is left out.
func NewBranchName(t time.Time, suffix string) string {
	name := "git-bob-mod-" + t.UTC().Format("20060102-150405")
	if suffix != "" {
		name += "-" + suffix
	}
	return name
}

// RandomSuffix returns a short random branch name suffix.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// FileContents reads several files from one branch. Files that do not exist are left out.
func FileContents(ctx context.Context, c Client, repo, branch string, paths []string) (map[string][]byte, error) {
	contents := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := c.GetFile(ctx, repo, branch, p)
		if errors.Is(err, ErrFileNotFound) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		contents[p] = data
	}
	return contents, nil
}

// FormatConversation renders an issue thread the way it is handed to the model. The first turn is the opening post.
func FormatConversation(title string, turns []Comment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue title: %s\n\n", title)
	for i, t := range turns {
		if i == 0 {
			fmt.Fprintf(&sb, "Issue description by %s:\n%s\n", t.Author, t.Body)
			continue
		}
		fmt.Fprintf(&sb, "\n---\n\nComment by %s:\n%s\n", t.Author, t.Body)
	}
	return sb.String()
}
