package cli

import (
	"fmt"

	"github.com/benedict2310/sitedrop/internal/config"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

const redactedToken = "REDACTED"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and switch CLI configuration",
	}
	markRequiresConfig(cmd)

	cmd.AddCommand(
		newConfigViewCmd(),
		newConfigPathCmd(),
		newConfigCurrentContextCmd(),
		newConfigUseContextCmd(),
	)
	return cmd
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg config.Config) config.Config {
	contexts := make([]config.Context, 0, len(cfg.Contexts))
	for _, c := range cfg.Contexts {
		if c.Token != "" {
			c.Token = redactedToken
		}
		contexts = append(contexts, c)
	}
	cfg.Contexts = contexts
	return cfg
}

func newConfigViewCmd() *cobra.Command {
	var showTokens bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the loaded config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			cfg := rt.Config
			if !showTokens {
				cfg = redacted(cfg)
			}
			return output.WriteStructured(cmd.OutOrStdout(), output.FormatYAML, &cfg)
		},
	}
	cmd.Flags().BoolVar(&showTokens, "show-tokens", false, "Print session tokens instead of redacting them")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rt.ConfigPath)
			return nil
		},
	}
	markOptionalConfig(cmd)
	return cmd
}

func newConfigCurrentContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Print the active context name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			info, err := config.ResolveContext(rt.Config, rt.ContextOverride)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.Name)
			return nil
		},
	}
}

func newConfigUseContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch current-context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			// Resolve explicitly so an unknown name lists what exists.
			info, err := config.ResolveContext(rt.Config, args[0])
			if err != nil {
				return err
			}
			if rt.Config.CurrentContext == info.Name {
				fmt.Fprintf(cmd.OutOrStdout(), "Already using context %q\n", info.Name)
				return nil
			}
			rt.Config.CurrentContext = info.Name
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", info.Name)
			return nil
		},
	}
}
