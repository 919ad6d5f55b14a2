package cmd

import (
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/gitbob/git-bob/internal/bot"
)

var solveOpts struct {
	branch       string
	mergeRequest bool
}

var solveCmd = &cobra.Command{
	Use:   "solve-issue <repository> <issue>",
	Short: "Solve an issue and open a pull request",
	Long: `Reads the discussion on the issue, plans and commits the changes to a working branch and opens a pull
request. With --branch, or when the number names a pull request, the work continues on that branch and the result
is posted as a comment.`,
	Args: cobra.ExactArgs(2),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&solveOpts.branch, "branch", "", "Branch to continue working on instead of creating one")
	solveCmd.Flags().BoolVar(&solveOpts.mergeRequest, "merge-request", false, "The number is a pull or merge request")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	repo := args[0]
	number, err := parseIssueNumber(args[1])
	if err != nil {
		return err
	}

	b, git, shutdown, err := setup(ctx, cfg, transcriptKey(repo, number))
	if err != nil {
		return err
	}
	defer shutdown()

	issue, err := resolveIssue(ctx, git, repo, number, solveOpts.mergeRequest)
	if err != nil {
		return err
	}
	clog.FromContext(ctx).With("repo", repo).Infof("solving %s", issue)
	return b.SolveIssue(ctx, bot.Request{Repo: repo, Issue: issue, BaseBranch: solveOpts.branch})
}
