package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benedict2310/sitedrop/internal/client"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/benedict2310/sitedrop/pkg/loader"
	"github.com/benedict2310/sitedrop/pkg/validator"
	"github.com/spf13/cobra"
)

// loadDeployRequest builds a request from one site directory or a list of
// files. Flag values win over the directory manifest.
func loadDeployRequest(args []string, name, subdomain string) (client.DeployRequest, []string, error) {
	req := client.DeployRequest{
		Name:      strings.TrimSpace(name),
		Subdomain: strings.TrimSpace(subdomain),
	}
	if len(args) == 0 {
		return req, nil, fmt.Errorf("a site directory or at least one file is required")
	}

	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			site, err := loader.LoadSite(args[0])
			if err != nil {
				return req, nil, err
			}
			if req.Name == "" {
				req.Name = site.Manifest.Name
			}
			if req.Subdomain == "" {
				req.Subdomain = site.Manifest.Subdomain
			}
			req.Files = site.Files
			return req, site.Skipped, nil
		}
	}

	files, err := loader.LoadFiles(args)
	if err != nil {
		return req, nil, err
	}
	req.Files = files
	return req, nil, nil
}

func writeDeployResult(w io.Writer, verb, server string, resp client.DeploymentResponse, skipped []string) {
	d := resp.Deployment
	fmt.Fprintf(w, "%s %s (%s)\n", verb, d.Name, d.ID)
	fmt.Fprintf(w, "URL: %s\n", publicURL(server, resp.URL))
	for _, path := range skipped {
		fmt.Fprintf(w, "skipped %s: only html, css and js files are deployed\n", path)
	}
	if len(resp.Warnings) > 0 {
		fmt.Fprintf(w, "%d warning(s):\n%s\n", len(resp.Warnings), validator.FormatWarnings(resp.Warnings))
	}
}

func newDeployCmd() *cobra.Command {
	var name string
	var subdomain string
	var outputMode string

	cmd := &cobra.Command{
		Use:   "deploy <dir> | deploy <file>...",
		Short: "Deploy a site directory or a set of files as a new site",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			req, skipped, err := loadDeployRequest(args, name, subdomain)
			if err != nil {
				return usageError(err)
			}
			if req.Name == "" {
				return usageError(fmt.Errorf("--name is required when deploying individual files"))
			}

			resp, err := api.Deploy(cmd.Context(), req)
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, resp)
			}
			writeDeployResult(cmd.OutOrStdout(), "Deployed", rt.ResolvedContext.Server, resp, skipped)
			return nil
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVar(&name, "name", "", "Site name (default: manifest name or directory name)")
	cmd.Flags().StringVar(&subdomain, "subdomain", "", "Requested subdomain (default: generated from the name)")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}
