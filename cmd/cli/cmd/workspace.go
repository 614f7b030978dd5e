package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage the GitHub workspace for a code or debug task",
}

var workspaceInitCmd = &cobra.Command{
	Use:   "init [task_id]",
	Short: "Initialize (or reuse) the workspace repository for a task",
	Long: `Generate the task's workspace repository from its template and print the
codespace link. Initializing an already provisioned task returns the existing
workspace, so this is safe to rerun.`,
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

		githubUser, _ := cmd.Flags().GetString("github-user")
		view, err := client.InitWorkspace(taskID, githubUser)
		if err != nil {
			cmd.Printf("Workspace init failed: %v\n", err)
			return
		}

		cmd.Printf("%s✓ Workspace ready%s\n", colorGreen, colorReset)
		cmd.Printf("%sRepository:%s  %s\n", colorDim, colorReset, view.RepoURL)
		cmd.Printf("%sBranch:%s      %s\n", colorDim, colorReset, view.DefaultBranch)
		cmd.Printf("%sCodespace:%s   %s\n", colorDim, colorReset, view.CodespaceURL)
	},
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status [task_id]",
	Short: "Show workspace state and the last test run",
	Args:  cobra.ExactArgs(1),
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

		view, err := client.WorkspaceStatus(taskID)
		if err != nil {
			cmd.Printf("Failed to fetch workspace: %v\n", err)
			return
		}

		cmd.Printf("%sWorkspace%s %s\n", colorBold, colorReset, view.RepoFullName)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sCodespace:%s   %s\n", colorDim, colorReset, view.CodespaceURL)
		if view.LatestCommitSHA != nil {
			cmd.Printf("%sLast commit:%s %s\n", colorDim, colorReset, *view.LatestCommitSHA)
		}
		if view.LastWorkflowRunID != nil {
			conclusion := "-"
			if view.LastWorkflowConclusion != nil {
				conclusion = *view.LastWorkflowConclusion
			}
			cmd.Printf("%sLast run:%s    %d (%s)\n", colorDim, colorReset, *view.LastWorkflowRunID, conclusion)
		}
	},
}

func init() {
	workspaceInitCmd.Flags().String("github-user", "", "GitHub username to invite as a collaborator")
	workspaceCmd.AddCommand(workspaceInitCmd)
	workspaceCmd.AddCommand(workspaceStatusCmd)
	rootCmd.AddCommand(workspaceCmd)
}
