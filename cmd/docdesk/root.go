package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "docdesk",
	Short: "Client for the docdesk document review backend",
	Long: `docdesk uploads documents to the review backend, starts indexing,
classification and analysis, and tracks their progress live.

It covers:
  - Sign-in and user administration
  - Book upload, download, assignment and feedback
  - Live progress for indexing, classification and analysis
  - Review outcomes and agent management
  - A local dashboard (docdesk serve)`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docdesk/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docdesk home directory (default: ~/.docdesk)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "text", "output format: text, yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
