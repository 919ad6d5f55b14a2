package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitbob/git-bob/internal/bot"
)

var commentOpts struct {
	mergeRequest bool
}

var commentCmd = &cobra.Command{
	Use:   "comment-on-issue <repository> <issue>",
	Short: "Reply to the discussion on an issue",
	Args:  cobra.ExactArgs(2),
	RunE:  runComment,
}

func init() {
	commentCmd.Flags().BoolVar(&commentOpts.mergeRequest, "merge-request", false, "The number is a pull or merge request")
	rootCmd.AddCommand(commentCmd)
}

func runComment(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	number, err := parseIssueNumber(args[1])
	if err != nil {
		return err
	}

	b, git, shutdown, err := setup(ctx, cfg, transcriptKey(args[0], number))
	if err != nil {
		return err
	}
	defer shutdown()

	issue, err := resolveIssue(ctx, git, args[0], number, commentOpts.mergeRequest)
	if err != nil {
		return err
	}
	return b.CommentOnIssue(ctx, bot.Request{Repo: args[0], Issue: issue})
}
