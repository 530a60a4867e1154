package cli

import (
	"fmt"
	"strings"

	"github.com/benedict2310/sitedrop/internal/config"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage named servers and their sessions",
	}

	cmd.AddCommand(newContextSetCmd())
	cmd.AddCommand(newContextListCmd())
	cmd.AddCommand(newContextDeleteCmd())
	return cmd
}

func newContextSetCmd() *cobra.Command {
	var server string
	var token string
	var use bool

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or update a context entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("context name is required")
			}
			entry := config.Context{Name: name}
			existing := false
			for _, c := range rt.Config.Contexts {
				if strings.TrimSpace(c.Name) == name {
					entry = c
					existing = true
					break
				}
			}

			changed := false
			if cmd.Flags().Changed("server") {
				if err := config.ValidateServerURL(server); err != nil {
					return err
				}
				if strings.TrimRight(strings.TrimSpace(server), "/") != strings.TrimRight(entry.Server, "/") {
					// A session is only valid for the server that issued it.
					entry.Email, entry.Token = "", ""
				}
				entry.Server = strings.TrimSpace(server)
				changed = true
			}
			if cmd.Flags().Changed("token") {
				entry.Token = strings.TrimSpace(token)
				changed = true
			}
			if !existing && entry.Server == "" {
				return fmt.Errorf("--server is required for a new context")
			}
			if !changed && !use {
				return fmt.Errorf("at least one context field must be set")
			}

			rt.Config.SetContext(entry)
			if use || strings.TrimSpace(rt.Config.CurrentContext) == "" {
				rt.Config.CurrentContext = name
			}
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			verb := "Updated"
			if !existing {
				verb = "Created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s context %q\n", verb, name)
			return nil
		},
	}
	markOptionalConfig(cmd)
	cmd.Flags().StringVar(&server, "server", "", "Server URL (http:// or https://)")
	cmd.Flags().StringVar(&token, "token", "", "Session token (normally stored by sitedrop login)")
	cmd.Flags().BoolVar(&use, "use", false, "Also make this the current context")
	return cmd
}

func newContextListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List contexts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			if len(rt.Config.Contexts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured (run sitedrop context set <name> --server <url>).")
				return nil
			}
			current := strings.TrimSpace(rt.Config.CurrentContext)
			rows := make([][]string, 0, len(rt.Config.Contexts))
			for _, c := range rt.Config.Contexts {
				marker := ""
				if strings.TrimSpace(c.Name) == current {
					marker = "*"
				}
				session := "<none>"
				if strings.TrimSpace(c.Token) != "" {
					session = c.Email
					if session == "" {
						session = "token"
					}
				}
				rows = append(rows, []string{marker, c.Name, c.Server, session})
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"CURRENT", "NAME", "SERVER", "SESSION"}, rows)
		},
	}
	markOptionalConfig(cmd)
	return cmd
}

func newContextDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a context and its stored session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if _, err := config.ResolveContext(rt.Config, name); err != nil {
				return err
			}
			rt.Config.RemoveContext(name)
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted context %q\n", name)
			return nil
		},
	}
	markRequiresConfig(cmd)
	return cmd
}
