package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var boardsCmd = &cobra.Command{
	Use:   "boards <user-id>",
	Short: "List a user's boards with their documented headings",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoards,
}

func runBoards(cmd *cobra.Command, args []string) error {
	var resp boardsResponse
	if err := newClient().getJSON("/trello/boards_with_headings", url.Values{"user_id": {args[0]}}, &resp); err != nil {
		return fmt.Errorf("failed to list boards: %w", err)
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), resp)
	}

	rows := make([][]string, 0, len(resp.Boards))
	for _, b := range resp.Boards {
		rows = append(rows, []string{
			b.ID,
			truncate(b.Name, 40),
			yesNo(b.HasGeneratedDoc),
			truncate(strings.Join(b.PreviousHeadings, ", "), 60),
		})
	}
	printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Doc", "Headings"}, rows)
	return nil
}
