package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var notificationsLimit int

var notificationsCmd = &cobra.Command{
	Use:     "notifications <user-id>",
	Aliases: []string{"notes"},
	Short:   "Show recent board activity for a user",
	Args:    cobra.ExactArgs(1),
	RunE:    runNotifications,
}

func init() {
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "Maximum notifications to show (server caps at 100)")
}

func runNotifications(cmd *cobra.Command, args []string) error {
	var q url.Values
	if notificationsLimit > 0 {
		q = url.Values{"limit": {strconv.Itoa(notificationsLimit)}}
	}

	var resp notificationsResponse
	if err := newClient().getJSON("/notifications/"+url.PathEscape(args[0]), q, &resp); err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), resp)
	}

	rows := make([][]string, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		board := n.BoardName
		if board == "" {
			board = n.BoardID
		}
		rows = append(rows, []string{n.Timestamp, truncate(board, 30), n.EventType, truncate(n.CardName, 40), n.ActorName})
	}
	printTable(cmd.OutOrStdout(), []string{"Time", "Board", "Event", "Card", "By"}, rows)
	return nil
}
