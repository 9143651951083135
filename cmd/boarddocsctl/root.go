package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "boarddocsctl",
	Short: "CLI for the board documentation server",
	Long: `boarddocsctl talks to a running boarddocs server.

It lists an account's boards, fetches or queues generated documents, shows
notifications and generation jobs, and re-registers webhooks. import-mongo
works directly against the databases and does not need a server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "Server URL (env BOARDDOCS_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(boardsCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(webhooksCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(importMongoCmd)
}

func defaultServer() string {
	if s := os.Getenv("BOARDDOCS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func structured() bool {
	return outputFmt == "json" || outputFmt == "yaml"
}
