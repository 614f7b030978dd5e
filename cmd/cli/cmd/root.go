package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tenonctl",
	Short: "Tenonctl is a command line tool for working through a tenon simulation",
	Long: `tenonctl is the command-line interface for the Tenon work simulation platform.

Tenon gives candidates a sequence of day-scoped tasks. Design, handoff and
documentation tasks are answered with text; code and debug tasks get a real
GitHub repository generated from a template, where tests run in CI and
results flow back into the submission.

Common workflows:

  Claim an invite and start the simulation:
    tenonctl claim <invite-token>

  See your progress and current task:
    tenonctl progress

  Initialize the workspace for a code task:
    tenonctl workspace init <task-id> --github-user my-login

  Run the task's test suite:
    tenonctl tests run <task-id>

  Check an in-flight run:
    tenonctl tests result <task-id> <run-id>

  Submit your current task:
    tenonctl submit <task-id> --text "my design answer"

Configuration:
  Set the API endpoint and session token via environment variables or a config file:
    TENON_API_URL    API endpoint (default: http://localhost:7171)
    TENON_SESSION    Candidate session token from 'tenonctl claim'`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".tenonctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".tenonctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TENON_VARNAME"
	viper.SetEnvPrefix("TENON")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tenonctl.yaml)")

	rootCmd.PersistentFlags().String("api-url", "http://localhost:7171", "Tenon Controller URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))

	rootCmd.PersistentFlags().StringP("session", "s", "", "Candidate session token")
	viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))
}

// newClient builds an API client from the resolved configuration. Commands
// that need an authenticated session pass requireSession.
func newClient(cmd *cobra.Command, requireSession bool) (*PortalClient, bool) {
	url := viper.GetString("api_url")
	session := viper.GetString("session")

	if requireSession && session == "" {
		cmd.Println("Session token not found. Claim an invite first, then set it using the --session flag or the TENON_SESSION environment variable")
		return nil, false
	}
	return NewPortalClient(url, session), true
}
