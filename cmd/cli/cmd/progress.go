package cmd

import (
	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show simulation progress and the current task",
	Long:  `List every task in the simulation in day order, mark which are submitted, and point at the task you should work on next.`,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd, true)
		if !ok {
			return
		}

		resp, err := client.Progress()
		if err != nil {
			cmd.Printf("Failed to fetch progress: %v\n", err)
			return
		}

		cmd.Printf("%sSimulation progress%s  %d/%d complete (session %s)\n",
			colorBold, colorReset, resp.Progress.Completed, resp.Progress.Total, resp.SessionStatus)
		cmd.Println("──────────────────────────────")

		for _, t := range resp.Tasks {
			marker := colorDim + "◯" + colorReset
			if t.Submitted {
				marker = colorGreen + "✓" + colorReset
			} else if resp.CurrentTaskID != nil && t.ID == *resp.CurrentTaskID {
				marker = colorYellow + "▶" + colorReset
			}
			title := t.Title
			if title == "" {
				title = t.Type
			}
			cmd.Printf("%s day %d  [%d] %s %s(%s)%s\n", marker, t.DayIndex, t.ID, title, colorDim, t.Type, colorReset)
		}

		if resp.Progress.IsComplete {
			cmd.Printf("\n%sAll tasks submitted. Simulation complete.%s\n", colorGreen, colorReset)
		} else if resp.CurrentTaskID != nil {
			cmd.Printf("\nNext up: task %d\n", *resp.CurrentTaskID)
		}
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
