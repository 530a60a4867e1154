package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/benedict2310/sitedrop/internal/diff"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

func newSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sites",
		Aliases: []string{"site"},
		Short:   "Manage your deployed sites",
	}
	markRequiresTransport(cmd)

	cmd.AddCommand(newSitesListCmd())
	cmd.AddCommand(newSitesGetCmd())
	cmd.AddCommand(newSitesUpdateCmd())
	cmd.AddCommand(newSitesDiffCmd())
	cmd.AddCommand(newSitesDeleteCmd())
	cmd.AddCommand(newSitesVisitCmd())
	return cmd
}

func newSitesListCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your sites, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			resp, err := api.ListSites(cmd.Context())
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, resp)
			}
			if len(resp.Sites) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sites found.")
				return nil
			}
			rows := make([][]string, 0, len(resp.Sites))
			for _, s := range resp.Sites {
				rows = append(rows, []string{
					s.ID,
					output.Truncate(s.Name, 32),
					string(s.Status),
					strconv.FormatInt(s.VisitorCount, 10),
					formatMillis(s.LastModified),
					publicURL(rt.ResolvedContext.Server, s.URL),
				})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"ID", "NAME", "STATUS", "VISITORS", "LAST_MODIFIED", "URL"}, rows)
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

func newSitesGetCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one of your sites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			resp, err := api.GetSite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, resp)
			}
			d := resp.Deployment
			rows := [][]string{
				{"id", d.ID},
				{"name", d.Name},
				{"subdomain", d.Subdomain},
				{"status", string(d.Status)},
				{"visitors", strconv.FormatInt(d.VisitorCount, 10)},
				{"created", formatMillis(d.CreatedAt)},
				{"last_modified", formatMillis(d.LastModified)},
				{"url", publicURL(rt.ResolvedContext.Server, resp.URL)},
			}
			if d.HasFiles() {
				for _, f := range d.Files {
					rows = append(rows, []string{"file", fmt.Sprintf("%s (%s, %d bytes)", f.Name, f.Type, len(f.Content))})
				}
			} else {
				rows = append(rows, []string{"file", fmt.Sprintf("legacy html (%d bytes)", len(d.HTML))})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

func newSitesUpdateCmd() *cobra.Command {
	var name string
	var outputMode string

	cmd := &cobra.Command{
		Use:   "update <id> <dir> | update <id> <file>...",
		Short: "Replace the content of one of your sites, keeping its subdomain",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			req, skipped, err := loadDeployRequest(args[1:], name, "")
			if err != nil {
				return usageError(err)
			}
			// The subdomain is fixed at creation.
			req.Subdomain = ""
			if !cmd.Flags().Changed("name") {
				req.Name = ""
			}

			resp, err := api.UpdateSite(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, resp)
			}
			writeDeployResult(cmd.OutOrStdout(), "Updated", rt.ResolvedContext.Server, resp, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Rename the site")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

// newSitesDiffCmd previews what `sites update` would change.
func newSitesDiffCmd() *cobra.Command {
	var outputMode string
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "diff <id> <dir> | diff <id> <file>...",
		Short: "Compare local files with a deployed site",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			req, _, err := loadDeployRequest(args[1:], "", "")
			if err != nil {
				return usageError(err)
			}
			resp, err := api.GetSite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			result, err := diff.Compute(req.Files, diff.FilesOf(resp.Deployment))
			if err != nil {
				return err
			}

			if format != output.FormatTable {
				report := diff.Report{SiteID: resp.Deployment.ID, Subdomain: resp.Deployment.Subdomain, Result: result}
				if err := output.WriteStructured(cmd.OutOrStdout(), format, report); err != nil {
					return err
				}
			} else if err := diff.WriteTable(cmd.OutOrStdout(), result, diff.DisplayOptions{Color: diff.AutoColor(cmd.OutOrStdout())}); err != nil {
				return err
			}
			if exitCode && result.HasChanges() {
				return exitCodeError(exitFailure, errSiteDiffers)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 when there are changes")
	return cmd
}

var errSiteDiffers = errors.New("local files differ from the deployed site")

func newSitesDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete one of your sites and free its subdomain",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete site %s? This cannot be undone. [y/N]: ", id)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
				default:
					return exitCodeError(exitFailure, fmt.Errorf("delete aborted"))
				}
			}
			if err := api.DeleteSite(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted site %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// newSitesVisitCmd fetches a site the way a visitor does. It needs no
// session and counts a visit.
func newSitesVisitCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "visit <subdomain>",
		Short: "Fetch a public site record by subdomain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			d, err := api.PublicSite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, d)
			}
			files := len(d.Files)
			if !d.HasFiles() {
				files = 1
			}
			rows := [][]string{
				{"name", d.Name},
				{"subdomain", d.Subdomain},
				{"status", string(d.Status)},
				{"visitors", strconv.FormatInt(d.VisitorCount, 10)},
				{"files", itoa(files)},
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}
