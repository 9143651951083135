package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Manage board webhooks",
}

var webhooksRegisterCmd = &cobra.Command{
	Use:   "register <user-id>",
	Short: "Register missing webhooks for every board of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runWebhooksRegister,
}

func init() {
	webhooksCmd.AddCommand(webhooksRegisterCmd)
}

func runWebhooksRegister(cmd *cobra.Command, args []string) error {
	var resp webhookRegisterResponse
	if err := newClient().postJSON("/trello/webhook/register", url.Values{"user_id": {args[0]}}, nil, &resp); err != nil {
		return fmt.Errorf("failed to register webhooks: %w", err)
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), resp)
	}

	rows := make([][]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		msg := r.Error
		if r.MappingError != "" {
			msg = "not mapped: " + r.MappingError
		}
		rows = append(rows, []string{r.BoardID, truncate(r.BoardName, 40), r.Status, truncate(msg, 50)})
	}
	printTable(cmd.OutOrStdout(), []string{"Board", "Name", "Status", "Error"}, rows)
	return nil
}
