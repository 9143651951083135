package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	jobsUser     string
	jobsBoard    string
	jobsState    string
	jobsPageSize int
	jobsPage     string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect document generation jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generation jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one generation job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsUser, "user", "", "Filter by user ID")
	jobsListCmd.Flags().StringVar(&jobsBoard, "board", "", "Filter by board ID")
	jobsListCmd.Flags().StringVar(&jobsState, "state", "", "Filter by state (queued, running, succeeded, failed)")
	jobsListCmd.Flags().IntVar(&jobsPageSize, "page-size", 20, "Jobs per page")
	jobsListCmd.Flags().StringVar(&jobsPage, "page-token", "", "Continue from a previous page")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	setIf(q, "user_id", jobsUser)
	setIf(q, "board_id", jobsBoard)
	setIf(q, "state", jobsState)
	setIf(q, "pageToken", jobsPage)
	if jobsPageSize > 0 {
		q.Set("pageSize", strconv.Itoa(jobsPageSize))
	}

	var resp jobsResponse
	if err := newClient().getJSON("/api/jobs/v1/generation", q, &resp); err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), resp)
	}

	rows := make([][]string, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		rows = append(rows, jobRow(j))
	}
	printTable(cmd.OutOrStdout(), jobHeaders, rows)
	if resp.NextPageToken != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d total, next page: --page-token %s\n", resp.TotalSize, resp.NextPageToken)
	}
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	var j job
	if err := newClient().getJSON("/api/jobs/v1/generation/"+url.PathEscape(args[0]), nil, &j); err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	if structured() {
		return printOutput(cmd.OutOrStdout(), j)
	}
	printTable(cmd.OutOrStdout(), jobHeaders, [][]string{jobRow(j)})
	if j.LastError != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nlast error: %s\n", j.LastError)
	}
	return nil
}

var jobHeaders = []string{"ID", "User", "Board", "Template", "Trigger", "State", "Attempts", "Requested"}

func jobRow(j job) []string {
	return []string{j.ID, j.UserID, j.BoardID, j.Template, j.Trigger, j.State, strconv.Itoa(j.AttemptCount), j.RequestedAt}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
