package cli

import (
	"errors"
	"fmt"

	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/benedict2310/sitedrop/pkg/loader"
	"github.com/benedict2310/sitedrop/pkg/validator"
	"github.com/spf13/cobra"
)

var errLintWarnings = errors.New("lint reported warnings")

func newLintCmd() *cobra.Command {
	var outputMode string
	var strict bool

	cmd := &cobra.Command{
		Use:   "lint <dir>",
		Short: "Report broken stylesheet, script and page references in a local site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return usageError(err)
			}
			site, err := loader.LoadSite(args[0])
			if err != nil {
				return usageError(err)
			}
			warnings := validator.LintFiles(site.Files)

			if format != output.FormatTable {
				if warnings == nil {
					warnings = []validator.Warning{}
				}
				if err := output.WriteStructured(cmd.OutOrStdout(), format, warnings); err != nil {
					return err
				}
			} else if len(warnings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No problems found.")
			} else {
				rows := make([][]string, 0, len(warnings))
				for _, w := range warnings {
					rows = append(rows, []string{w.File, w.Rule, w.Message})
				}
				if err := output.WriteTable(cmd.OutOrStdout(), []string{"FILE", "RULE", "MESSAGE"}, rows); err != nil {
					return err
				}
			}

			if strict && len(warnings) > 0 {
				return exitCodeError(exitFailure, errLintWarnings)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when there are warnings")
	return cmd
}
