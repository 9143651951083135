package main

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"
)

var (
	docTemplate string
	docQueue    bool
)

var docCmd = &cobra.Command{
	Use:   "doc <user-id> <board-id>",
	Short: "Fetch the generated document for a board",
	Long: `Fetch the generated document for a board, generating it on first use.

With --queue the request is handed to the worker pool instead and the job ID
is printed; follow it with "jobs get".`,
	Args: cobra.ExactArgs(2),
	RunE: runDoc,
}

func init() {
	docCmd.Flags().StringVarP(&docTemplate, "template", "t", "default", "Template name")
	docCmd.Flags().BoolVar(&docQueue, "queue", false, "Queue generation instead of waiting for it")
}

func runDoc(cmd *cobra.Command, args []string) error {
	client := newClient()
	out := cmd.OutOrStdout()

	if docQueue {
		var resp runResponse
		body := map[string]string{"user_id": args[0], "project_id": args[1], "template_name": docTemplate}
		if err := client.postJSON("/workflow/run", nil, body, &resp); err != nil {
			return fmt.Errorf("failed to queue generation: %w", err)
		}
		if structured() {
			return printOutput(out, resp)
		}
		printTable(out, []string{"Job", "State"}, [][]string{{resp.JobID, resp.State}})
		return nil
	}

	var resp docResponse
	q := url.Values{"user_id": {args[0]}, "project_id": {args[1]}, "template_name": {docTemplate}}
	if err := client.getJSON("/workflow/generated", q, &resp); err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if structured() {
		return printOutput(out, resp)
	}

	// Table mode prints the markdown itself followed by a diagram summary.
	fmt.Fprintf(out, "# %s (%s)\n\n%s\n", resp.BoardName, resp.TemplateName, resp.GeneratedDocs)
	if len(resp.GeneratedDiagrams) == 0 {
		return nil
	}
	headings := make([]string, 0, len(resp.GeneratedDiagrams))
	for h := range resp.GeneratedDiagrams {
		headings = append(headings, h)
	}
	sort.Strings(headings)
	rows := make([][]string, 0, len(headings))
	for _, h := range headings {
		d := resp.GeneratedDiagrams[h]
		rows = append(rows, []string{h, yesNo(d.Image != ""), truncate(d.Diagram, 50)})
	}
	fmt.Fprintln(out)
	printTable(out, []string{"Diagram", "Image", "Source"}, rows)
	return nil
}
