package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"tenon/pkg/api"
)

var submitCmd = &cobra.Command{
	Use:   "submit [task_id]",
	Short: "Submit your answer for the current task",
	Long: `Record your submission for the current task. Design, handoff and
documentation tasks require --text. Code and debug tasks run the workspace
test suite and capture the diff automatically; --text is optional for them.

Each task accepts exactly one submission.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Invalid task id: %v\n", err)
			return
		}
		client, ok := newClient(cmd, true)
		if !ok {
			return
		}

		text, _ := cmd.Flags().GetString("text")
		branch, _ := cmd.Flags().GetString("branch")

		resp, err := client.Submit(taskID, api.SubmitRequest{ContentText: text, Branch: branch})
		if err != nil {
			cmd.Printf("Submission failed: %v\n", err)
			return
		}

		cmd.Printf("%s✓ Submission recorded%s (id %d)\n", colorGreen, colorReset, resp.Submission.SubmissionID)
		if resp.Submission.TestsPassed != nil && resp.Submission.TestsFailed != nil {
			cmd.Printf("%sTests:%s %d passed, %d failed\n", colorDim, colorReset,
				*resp.Submission.TestsPassed, *resp.Submission.TestsFailed)
		}
		if resp.Submission.DiffSummary != nil {
			cmd.Printf("%sDiff:%s  %d files changed, %d commits\n", colorDim, colorReset,
				len(resp.Submission.DiffSummary.Files), resp.Submission.DiffSummary.TotalCommits)
		}
		cmd.Printf("%sProgress:%s %d/%d tasks complete\n", colorDim, colorReset,
			resp.Progress.Completed, resp.Progress.Total)
		if resp.Progress.IsComplete {
			cmd.Printf("\n%sThat was the last task. Simulation complete, nice work.%s\n", colorBold, colorReset)
		}
	},
}

func init() {
	submitCmd.Flags().String("text", "", "Text content of the submission")
	submitCmd.Flags().String("branch", "", "Branch to test and diff (code/debug tasks)")
	rootCmd.AddCommand(submitCmd)
}
