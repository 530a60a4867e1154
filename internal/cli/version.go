package cli

import (
	"fmt"
	"runtime"

	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func newVersionCmd(version string) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print sitedrop version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return usageError(err)
			}
			if f == output.FormatTable {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return output.WriteStructured(cmd.OutOrStdout(), f, versionInfo{
				Version:  version,
				Go:       runtime.Version(),
				Platform: runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table|json|yaml")
	return cmd
}
