package cli

import (
	"fmt"
	"strings"

	"github.com/benedict2310/sitedrop/internal/client"
	"github.com/benedict2310/sitedrop/internal/config"
	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/spf13/cobra"
)

const defaultContextName = "default"

type sessionFlags struct {
	email         string
	passwordStdin bool
	contextName   string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "Account email")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().StringVar(&f.contextName, "save-as", "", "Context name to store the session under (default: the resolved context, or \"default\")")
	_ = cmd.MarkFlagRequired("email")
}

func newRegisterCmd() *cobra.Command {
	flags := &sessionFlags{}
	var name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store its session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), flags.passwordStdin)
			if err != nil {
				return err
			}
			session, err := api.Register(cmd.Context(), flags.email, name, password)
			if err != nil {
				return err
			}
			ctxName, err := storeSession(rt, flags.contextName, session)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s and logged in (context %q)\n", session.User.Email, ctxName)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the email's local part)")
	markRequiresTransport(cmd)
	return cmd
}

func newLoginCmd() *cobra.Command {
	flags := &sessionFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := runtimeAndClientFromCommand(cmd)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), flags.passwordStdin)
			if err != nil {
				return err
			}
			session, err := api.Login(cmd.Context(), flags.email, password)
			if err != nil {
				return err
			}
			ctxName, err := storeSession(rt, flags.contextName, session)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (context %q, expires %s)\n", session.User.Email, ctxName, session.ExpiresAt.UTC().Format("2006-01-02"))
			return nil
		},
	}
	flags.register(cmd)
	markRequiresTransport(cmd)
	return cmd
}

// storeSession saves the token into the named context, creating it from the
// resolved server when needed, and makes it current.
func storeSession(rt *commandRuntime, name string, session client.Session) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = rt.ResolvedContext.Name
	}
	if name == "" {
		name = defaultContextName
	}
	rt.Config.SetContext(config.Context{
		Name:   name,
		Server: rt.ResolvedContext.Server,
		Email:  session.User.Email,
		Token:  session.Token,
	})
	rt.Config.CurrentContext = name
	if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
		return "", err
	}
	return name, nil
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session of the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFromCommand(cmd)
			if err != nil {
				return err
			}
			ctx, err := config.ResolveContext(rt.Config, rt.ContextOverride)
			if err != nil {
				return err
			}
			if ctx.Token == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Context %q has no session\n", ctx.Name)
				return nil
			}
			if err := rt.Config.SetSession(ctx.Name, "", ""); err != nil {
				return err
			}
			if err := config.Save(rt.ConfigPath, rt.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of context %q\n", ctx.Name)
			return nil
		},
	}
	markRequiresConfig(cmd)
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, err := authenticatedClientFromCommand(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return err
			}
			user, err := api.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteStructured(cmd.OutOrStdout(), format, user)
			}
			rows := [][]string{
				{"context", rt.ResolvedContext.Name},
				{"server", rt.ResolvedContext.Server},
				{"id", user.ID},
				{"email", user.Email},
				{"name", output.OrNoneString(user.Name)},
				{"created", formatMillis(user.CreatedAt)},
			}
			return output.WriteTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, rows)
		},
	}
	markRequiresTransport(cmd)
	cmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}
