package gitlabops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/gitbob/git-bob/internal/gitops"
)

// ResolveIssue treats number as an issue. Merge requests have their own numbering on GitLab, so callers that mean a
// merge request construct the gitops.Issue themselves.
func (c *Client) ResolveIssue(ctx context.Context, repo string, number int) (gitops.Issue, error) {
	if _, _, err := c.gl.Issues.GetIssue(repo, number, gitlab.WithContext(ctx)); err != nil {
		return gitops.Issue{}, fmt.Errorf("failed to get issue %d: %w", number, wrap("get issue", err))
	}
	return gitops.Issue{Number: number}, nil
}

func (c *Client) turns(ctx context.Context, repo string, issue gitops.Issue) (string, []gitops.Comment, error) {
	var title string
	var turns []gitops.Comment
	if issue.PullRequest {
		mr, _, err := c.gl.MergeRequests.GetMergeRequest(repo, issue.Number, nil, gitlab.WithContext(ctx))
		if err != nil {
			return "", nil, fmt.Errorf("failed to get merge request %d: %w", issue.Number, wrap("get merge request", err))
		}
		title = mr.Title
		turns = append(turns, gitops.Comment{Author: mr.Author.Username, Body: mr.Description})
	} else {
		is, _, err := c.gl.Issues.GetIssue(repo, issue.Number, gitlab.WithContext(ctx))
		if err != nil {
			return "", nil, fmt.Errorf("failed to get issue %d: %w", issue.Number, wrap("get issue", err))
		}
		title = is.Title
		turns = append(turns, gitops.Comment{Author: is.Author.Username, Body: is.Description})
	}

	listOptions := gitlab.ListOptions{PerPage: 100, Page: 1}
	for {
		var notes []*gitlab.Note
		var resp *gitlab.Response
		var err error
		if issue.PullRequest {
			notes, resp, err = c.gl.Notes.ListMergeRequestNotes(repo, issue.Number, &gitlab.ListMergeRequestNotesOptions{
				ListOptions: listOptions,
				OrderBy:     gitlab.Ptr("created_at"),
				Sort:        gitlab.Ptr("asc"),
			}, gitlab.WithContext(ctx))
		} else {
			notes, resp, err = c.gl.Notes.ListIssueNotes(repo, issue.Number, &gitlab.ListIssueNotesOptions{
				ListOptions: listOptions,
				OrderBy:     gitlab.Ptr("created_at"),
				Sort:        gitlab.Ptr("asc"),
			}, gitlab.WithContext(ctx))
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to list notes: %w", wrap("list notes", err))
		}
		for _, n := range notes {
			// System notes record label changes, pushes and the like
			if n.System {
				continue
			}
			turns = append(turns, gitops.Comment{Author: n.Author.Username, Body: n.Body})
		}
		if resp.NextPage == 0 {
			break
		}
		listOptions.Page = resp.NextPage
	}
	return title, turns, nil
}

func (c *Client) GetConversation(ctx context.Context, repo string, issue gitops.Issue) (string, error) {
	title, turns, err := c.turns(ctx, repo, issue)
	if err != nil {
		return "", err
	}
	return gitops.FormatConversation(title, turns), nil
}

func (c *Client) GetMostRecentComment(ctx context.Context, repo string, issue gitops.Issue) (gitops.Comment, error) {
	_, turns, err := c.turns(ctx, repo, issue)
	if err != nil {
		return gitops.Comment{}, err
	}
	return turns[len(turns)-1], nil
}

func (c *Client) AddComment(ctx context.Context, repo string, issue gitops.Issue, body string) error {
	var err error
	if issue.PullRequest {
		_, _, err = c.gl.Notes.CreateMergeRequestNote(repo, issue.Number, &gitlab.CreateMergeRequestNoteOptions{
			Body: gitlab.Ptr(body),
		}, gitlab.WithContext(ctx))
	} else {
		_, _, err = c.gl.Notes.CreateIssueNote(repo, issue.Number, &gitlab.CreateIssueNoteOptions{
			Body: gitlab.Ptr(body),
		}, gitlab.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", wrap("create note", err))
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, repo string, issue gitops.Issue, reaction string) error {
	opts := &gitlab.CreateAwardEmojiOptions{Name: reaction}
	var err error
	if issue.PullRequest {
		_, _, err = c.gl.AwardEmoji.CreateMergeRequestAwardEmoji(repo, issue.Number, opts, gitlab.WithContext(ctx))
	} else {
		_, _, err = c.gl.AwardEmoji.CreateIssueAwardEmoji(repo, issue.Number, opts, gitlab.WithContext(ctx))
	}
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", wrap("award emoji", err))
	}
	return nil
}

// GetDiffOfBranches renders GitLab's per-file diffs as one unified diff.
func (c *Client) GetDiffOfBranches(ctx context.Context, repo, base, head string) (string, error) {
	cmp, _, err := c.gl.Repositories.Compare(repo, &gitlab.CompareOptions{
		From: gitlab.Ptr(base),
		To:   gitlab.Ptr(head),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to compare %s...%s: %w", base, head, wrap("compare", err))
	}

	var sb strings.Builder
	for _, d := range cmp.Diffs {
		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", d.OldPath, d.NewPath)
		switch {
		case d.NewFile:
			fmt.Fprintf(&sb, "new file mode 100644\n--- /dev/null\n+++ b/%s\n", d.NewPath)
		case d.DeletedFile:
			fmt.Fprintf(&sb, "deleted file mode 100644\n--- a/%s\n+++ /dev/null\n", d.OldPath)
		default:
			fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", d.OldPath, d.NewPath)
		}
		sb.WriteString(d.Diff)
		if !strings.HasSuffix(d.Diff, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func (c *Client) mergeRequest(ctx context.Context, repo string, number int) (*gitlab.MergeRequest, error) {
	mr, _, err := c.gl.MergeRequests.GetMergeRequest(repo, number, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get merge request %d: %w", number, wrap("get merge request", err))
	}
	return mr, nil
}

func (c *Client) GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error) {
	mr, err := c.mergeRequest(ctx, repo, number)
	if err != nil {
		return "", err
	}
	return c.GetDiffOfBranches(ctx, repo, mr.TargetBranch, mr.SourceBranch)
}

func (c *Client) GetPullRequestBranch(ctx context.Context, repo string, number int) (string, error) {
	mr, err := c.mergeRequest(ctx, repo, number)
	if err != nil {
		return "", err
	}
	return mr.SourceBranch, nil
}

func (c *Client) SendPullRequest(ctx context.Context, repo, source, target, title, body string) (string, error) {
	mr, _, err := c.gl.MergeRequests.CreateMergeRequest(repo, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(body),
		SourceBranch: gitlab.Ptr(source),
		TargetBranch: gitlab.Ptr(target),
	}, gitlab.WithContext(ctx))
	if err != nil {
		var glErr *gitlab.ErrorResponse
		if errors.As(err, &glErr) && strings.Contains(glErr.Message, "No commits") {
			return "", fmt.Errorf("failed to create merge request: %w", wrap("create merge request", gitops.ErrNoCommits))
		}
		return "", fmt.Errorf("failed to create merge request: %w", wrap("create merge request", err))
	}
	return mr.WebURL, nil
}

func (c *Client) CreateIssue(ctx context.Context, repo, title, body string) (int, error) {
	issue, _, err := c.gl.Issues.CreateIssue(repo, &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(title),
		Description: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to create issue: %w", wrap("create issue", err))
	}
	return issue.IID, nil
}

func (c *Client) GetContributors(ctx context.Context, repo string) ([]string, error) {
	opts := &gitlab.ListProjectMembersOptions{ListOptions: gitlab.ListOptions{PerPage: 100, Page: 1}}
	var names []string
	for {
		members, resp, err := c.gl.ProjectMembers.ListAllProjectMembers(repo, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", wrap("list project members", err))
		}
		for _, m := range members {
			names = append(names, m.Username)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}
