package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"tenon/pkg/api"
)

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Run and inspect workspace test suites",
}

var testsRunCmd = &cobra.Command{
	Use:   "run [task_id]",
	Short: "Run the task's test suite in CI",
	Long: `Dispatch the workspace test workflow and wait for it to finish. If the run
outlives the server's wait budget the command prints the run id; use
'tenonctl tests result' to keep polling it.`,
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

		branch, _ := cmd.Flags().GetString("branch")
		result, err := client.RunTests(taskID, api.RunTestsRequest{Branch: branch})
		if err != nil {
			cmd.Printf("Test run failed: %v\n", err)
			return
		}
		printRunResult(cmd, result)
	},
}

var testsResultCmd = &cobra.Command{
	Use:   "result [task_id] [run_id]",
	Short: "Fetch the state of an earlier test run",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		taskID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Invalid task id: %v\n", err)
			return
		}
		runID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			cmd.Printf("Invalid run id: %v\n", err)
			return
		}
		client, ok := newClient(cmd, true)
		if !ok {
			return
		}

		result, err := client.FetchRunResult(taskID, runID)
		if err != nil {
			cmd.Printf("Failed to fetch run: %v\n", err)
			return
		}
		printRunResult(cmd, result)
	},
}

func printRunResult(cmd *cobra.Command, result *api.RunResult) {
	cmd.Printf("%s %sTest Run%s\n", runStatusIcon(result.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sStatus:%s   %s\n", colorDim, colorReset, colorizeRunStatus(result.Status))
	if result.RunID != 0 {
		cmd.Printf("%sRun ID:%s   %d\n", colorDim, colorReset, result.RunID)
	}
	if result.Passed != nil && result.Failed != nil {
		cmd.Printf("%sTests:%s    %s%d passed%s, %s%d failed%s\n", colorDim, colorReset,
			colorGreen, *result.Passed, colorReset, colorRed, *result.Failed, colorReset)
	}
	if result.Stdout != "" {
		cmd.Printf("\n%sstdout%s\n%s\n", colorDim, colorReset, result.Stdout)
	}
	if result.Stderr != "" {
		cmd.Printf("\n%sstderr%s\n%s%s%s\n", colorDim, colorReset, colorRed, result.Stderr, colorReset)
	}
	if result.HTMLURL != "" {
		cmd.Printf("\n%sDetails:%s  %s\n", colorDim, colorReset, result.HTMLURL)
	}
	if result.PollAfterMs > 0 {
		cmd.Printf("\nRun still in flight; poll again in %dms with 'tenonctl tests result'.\n", result.PollAfterMs)
	}
	for _, d := range result.Diagnostics {
		cmd.Printf("%snote: %s%s\n", colorYellow, d, colorReset)
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func runStatusIcon(status string) string {
	switch status {
	case "passed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "timeout":
		return colorRed + "⏱" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "queued":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeRunStatus(status string) string {
	switch status {
	case "passed":
		return colorGreen + status + colorReset
	case "failed", "timeout":
		return colorRed + status + colorReset
	case "running":
		return colorYellow + status + colorReset
	case "queued":
		return colorCyan + status + colorReset
	default:
		return status
	}
}

func init() {
	testsRunCmd.Flags().String("branch", "", "Branch to run against (default: workspace default branch)")
	testsCmd.AddCommand(testsRunCmd)
	testsCmd.AddCommand(testsResultCmd)
	rootCmd.AddCommand(testsCmd)
}
