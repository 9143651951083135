package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health and readiness",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := newClient()

	var health healthResponse
	if err := client.getJSON("/healthz", nil, &health); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	ready := map[string]any{}
	if err := client.getJSON("/readyz", nil, &ready); err != nil {
		// The server may still be starting.
		ready = map[string]any{"status": "not_ready", "error": err.Error()}
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), map[string]any{
			"health":    health,
			"readiness": ready,
		})
	}

	readyStatus, _ := ready["status"].(string)
	printTable(cmd.OutOrStdout(), []string{"Check", "Status"}, [][]string{
		{"Liveness", health.Status},
		{"Uptime", health.Uptime},
		{"Readiness", readyStatus},
	})
	return nil
}
