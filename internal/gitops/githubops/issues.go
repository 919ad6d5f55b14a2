package githubops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v72/github"

	"github.com/gitbob/git-bob/internal/gitops"
)

func (c *Client) ResolveIssue(ctx context.Context, repo string, number int) (gitops.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return gitops.Issue{}, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return gitops.Issue{}, fmt.Errorf("failed to get issue %d: %w", number, wrap("get issue", err))
	}
	return gitops.Issue{Number: number, PullRequest: issue.IsPullRequest()}, nil
}

// turns returns the opening post followed by every comment, oldest first.
func (c *Client) turns(ctx context.Context, repo string, number int) (string, []gitops.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", nil, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get issue %d: %w", number, wrap("get issue", err))
	}
	turns := []gitops.Comment{{Author: issue.GetUser().GetLogin(), Body: issue.GetBody()}}

	opts := &github.IssueListCommentsOptions{
		Sort:        github.Ptr("created"),
		Direction:   github.Ptr("asc"),
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return "", nil, fmt.Errorf("failed to list comments: %w", wrap("list comments", err))
		}
		for _, comment := range comments {
			turns = append(turns, gitops.Comment{Author: comment.GetUser().GetLogin(), Body: comment.GetBody()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return issue.GetTitle(), turns, nil
}

func (c *Client) GetConversation(ctx context.Context, repo string, issue gitops.Issue) (string, error) {
	title, turns, err := c.turns(ctx, repo, issue.Number)
	if err != nil {
		return "", err
	}
	return gitops.FormatConversation(title, turns), nil
}

func (c *Client) GetMostRecentComment(ctx context.Context, repo string, issue gitops.Issue) (gitops.Comment, error) {
	_, turns, err := c.turns(ctx, repo, issue.Number)
	if err != nil {
		return gitops.Comment{}, err
	}
	return turns[len(turns)-1], nil
}

func (c *Client) AddComment(ctx context.Context, repo string, issue gitops.Issue, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.CreateComment(ctx, owner, name, issue.Number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return fmt.Errorf("failed to post comment: %w", wrap("create comment", err))
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, repo string, issue gitops.Issue, reaction string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	if _, _, err := c.gh.Reactions.CreateIssueReaction(ctx, owner, name, issue.Number, reaction); err != nil {
		return fmt.Errorf("failed to add reaction: %w", wrap("create reaction", err))
	}
	return nil
}

func (c *Client) GetDiffOfBranches(ctx context.Context, repo, base, head string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	diff, _, err := c.gh.Repositories.CompareCommitsRaw(ctx, owner, name, base, head, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("failed to compare %s...%s: %w", base, head, wrap("compare commits", err))
	}
	return diff, nil
}

func (c *Client) GetDiffOfPullRequest(ctx context.Context, repo string, number int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	diff, _, err := c.gh.PullRequests.GetRaw(ctx, owner, name, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("failed to get diff of pull request %d: %w", number, wrap("get pull request", err))
	}
	return diff, nil
}

func (c *Client) GetPullRequestBranch(ctx context.Context, repo string, number int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return "", fmt.Errorf("failed to get pull request %d: %w", number, wrap("get pull request", err))
	}
	return pr.GetHead().GetRef(), nil
}

func (c *Client) SendPullRequest(ctx context.Context, repo, source, target, title, body string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(source),
		Base:  github.Ptr(target),
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) {
			for _, e := range ghErr.Errors {
				if e.Code == "custom" && strings.Contains(e.Message, "No commits between") {
					return "", fmt.Errorf("failed to create pull request: %w", wrap("create pull request", gitops.ErrNoCommits))
				}
			}
		}
		return "", fmt.Errorf("failed to create pull request: %w", wrap("create pull request", err))
	}
	return pr.GetHTMLURL(), nil
}

func (c *Client) CreateIssue(ctx context.Context, repo, title, body string) (int, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, err
	}
	issue, _, err := c.gh.Issues.Create(ctx, owner, name, &github.IssueRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create issue: %w", wrap("create issue", err))
	}
	return issue.GetNumber(), nil
}

func (c *Client) GetContributors(ctx context.Context, repo string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var logins []string
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		contributors, resp, err := c.gh.Repositories.ListContributors(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list contributors: %w", wrap("list contributors", err))
		}
		for _, contributor := range contributors {
			logins = append(logins, contributor.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return logins, nil
}
