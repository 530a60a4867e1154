package cli

import (
	"fmt"
	"time"

	"github.com/benedict2310/sitedrop/internal/client"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

func newActivityCmd() *cobra.Command {
	var outputMode string
	var siteID string
	var operation string
	var limit int
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show your recent account and site activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			if limit < 0 {
				return usageError(fmt.Errorf("--limit must be non-negative"))
			}
			q := client.ActivityQuery{DeploymentID: siteID, Operation: operation, Limit: limit}
			if since > 0 {
				ts := time.Now().Add(-since)
				q.Since = &ts
			}

			resp, err := api.Activity(cmd.Context(), q)
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, resp)
			}
			if len(resp.Entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity found.")
				return nil
			}
			rows := make([][]string, 0, len(resp.Entries))
			for _, e := range resp.Entries {
				rows = append(rows, []string{
					e.Timestamp.UTC().Format(time.RFC3339),
					e.Operation,
					output.OrNone(e.DeploymentID),
					output.Truncate(output.OrNoneString(e.ResourceSummary), 60),
				})
			}
			if err := output.WriteTable(cmd.OutOrStdout(), []string{"TIMESTAMP", "OPERATION", "SITE", "SUMMARY"}, rows); err != nil {
				return err
			}
			if resp.Total > len(resp.Entries) {
				fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d entries (use --limit)\n", len(resp.Entries), resp.Total)
			}
			return nil
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().StringVar(&siteID, "site", "", "Only entries for this site id")
	cmd.Flags().StringVar(&operation, "operation", "", "Only entries for this operation (register, login, deploy, update_site, delete_site, visit)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().DurationVar(&since, "since", 0, "Only entries newer than this duration (e.g. 24h)")
	return cmd
}
