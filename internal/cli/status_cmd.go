package cli

import (
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

type statusReport struct {
	Context string `json:"context" yaml:"context"`
	Server  string `json:"server" yaml:"server"`
	Status  string `json:"status" yaml:"status"`
	Store   string `json:"store,omitempty" yaml:"store,omitempty"`
	Version string `json:"version" yaml:"version"`
	Session string `json:"session" yaml:"session"`
}

func newStatusCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server health and version for the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}

			health, err := api.Health(cmd.Context())
			if err != nil {
				return err
			}
			version, err := api.Version(cmd.Context())
			if err != nil {
				return err
			}
			report := statusReport{
				Context: rt.ResolvedContext.Name,
				Server:  rt.ResolvedContext.Server,
				Status:  health.Status,
				Store:   health.Store,
				Version: version.Version,
				Session: "none",
			}
			if rt.ResolvedContext.Token != "" {
				report.Session = rt.ResolvedContext.Email
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, report)
			}

			rows := [][]string{
				{"context", report.Context},
				{"server", report.Server},
				{"status", report.Status},
				{"store", report.Store},
				{"version", report.Version},
				{"session", report.Session},
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}

	markRequiresTransport(cmd)
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}
