package cli

import (
	"github.com/benedict2310/sitedrop/internal/transport"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the sitedrop root command tree.
func NewRootCmd(version string) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:          "sitedrop",
		Short:        "Deploy static HTML, CSS and JS sites to a sitedrop server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.prepare(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeRuntime(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file path (default ~/.sitedrop/config.yaml, or $SITEDROP_CONFIG)")
	pf.StringVar(&flags.context, "context", "", "Context to use instead of current-context")
	pf.StringVar(&flags.server, "server", "", "Server URL overriding the context's server")
	pf.DurationVar(&flags.timeout, "timeout", transport.DefaultTimeout, "Per-request timeout")

	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newDeployCmd())
	cmd.AddCommand(newSitesCmd())
	cmd.AddCommand(newActivityCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newLintCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newContextCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}
