package cmd

import (
	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim [invite_token]",
	Short: "Claim an invite token and start the simulation",
	Long: `Exchange a recruiter invite token for an active candidate session.
The first claim starts the simulation clock; claiming again is a no-op and
returns the existing session.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd, false)
		if !ok {
			return
		}

		resp, err := client.Claim(args[0])
		if err != nil {
			cmd.Printf("Claim failed: %v\n", err)
			return
		}

		cmd.Printf("%sSession active%s (id %d, status %s)\n", colorBold, colorReset, resp.SessionID, resp.Status)
		cmd.Printf("Progress: %d/%d tasks complete\n", resp.Progress.Completed, resp.Progress.Total)
		cmd.Println()
		cmd.Println("Export your session token to authenticate further commands:")
		cmd.Printf("  export TENON_SESSION=<your invite token>\n")
	},
}

func init() {
	rootCmd.AddCommand(claimCmd)
}
