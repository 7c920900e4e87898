package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "jobwatch",
	Short: "Watch company career pages for new job openings",
	Long: `jobwatch keeps a watchlist of company career pages and checks them
for current openings that match your keywords.

Start the server with "jobwatch start", then manage sites with
"jobwatch sites" or the terminal UI with "jobwatch ui".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(sitesCmd, scanCmd, resultCmd)
	rootCmd.AddCommand(importCmd, uiCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
