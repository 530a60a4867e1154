package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benedict2310/sitedrop/internal/config"
	"github.com/benedict2310/sitedrop/internal/transport"
	"github.com/spf13/cobra"
)

const (
	annotationConfig    = "sitedrop.dev/config"
	annotationTransport = "sitedrop.dev/transport"

	configRequired = "required"
	configOptional = "optional"
)

// commandRuntime carries what PersistentPreRunE resolved for one invocation.
type commandRuntime struct {
	ConfigPath      string
	Config          config.Config
	ContextOverride string
	ServerOverride  string
	ResolvedContext config.ContextInfo
	Transport       transport.Transport
}

type runtimeKey struct{}

type rootFlags struct {
	configPath string
	context    string
	server     string
	timeout    time.Duration
}

// buildTransportForContext is swapped out by tests.
var buildTransportForContext = func(info config.ContextInfo, cfg transport.HTTPConfig) (transport.Transport, error) {
	return transport.NewHTTPTransportFromContext(info, cfg)
}

// markRequiresConfig makes the config file mandatory for cmd and its children.
func markRequiresConfig(cmd *cobra.Command) {
	setAnnotation(cmd, annotationConfig, configRequired)
}

// markOptionalConfig loads the config file when present; commands that create
// it use this.
func markOptionalConfig(cmd *cobra.Command) {
	setAnnotation(cmd, annotationConfig, configOptional)
}

// markRequiresTransport resolves a context and opens a transport to its server.
func markRequiresTransport(cmd *cobra.Command) {
	setAnnotation(cmd, annotationTransport, "true")
	if lookupAnnotation(cmd, annotationConfig) == "" {
		setAnnotation(cmd, annotationConfig, configOptional)
	}
}

func setAnnotation(cmd *cobra.Command, key, value string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[key] = value
}

// lookupAnnotation walks up from cmd so a mark on a parent covers subcommands.
func lookupAnnotation(cmd *cobra.Command, key string) string {
	for c := cmd; c != nil; c = c.Parent() {
		if v, ok := c.Annotations[key]; ok {
			return v
		}
	}
	return ""
}

func (f *rootFlags) prepare(cmd *cobra.Command) error {
	mode := lookupAnnotation(cmd, annotationConfig)
	if mode == "" {
		return nil
	}

	rt := &commandRuntime{
		ContextOverride: strings.TrimSpace(f.context),
		ServerOverride:  strings.TrimSpace(f.server),
	}
	var err error
	if mode == configRequired {
		rt.Config, rt.ConfigPath, err = config.Load(f.configPath)
	} else {
		rt.Config, rt.ConfigPath, err = config.LoadOptional(f.configPath)
	}
	if err != nil {
		return err
	}

	if lookupAnnotation(cmd, annotationTransport) == "true" {
		info, err := resolveTarget(rt)
		if err != nil {
			return err
		}
		rt.ResolvedContext = info
		tr, err := buildTransportForContext(info, transport.HTTPConfig{Timeout: f.timeout})
		if err != nil {
			return err
		}
		rt.Transport = tr
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, runtimeKey{}, rt))
	return nil
}

// resolveTarget picks the context a remote command talks to. --server alone
// is enough for commands that need no session.
func resolveTarget(rt *commandRuntime) (config.ContextInfo, error) {
	info, err := config.ResolveContext(rt.Config, rt.ContextOverride)
	if err != nil {
		if rt.ServerOverride == "" || rt.ContextOverride != "" {
			return config.ContextInfo{}, fmt.Errorf("%w (or pass --server)", err)
		}
		info = config.ContextInfo{}
	}
	if rt.ServerOverride != "" {
		if err := config.ValidateServerURL(rt.ServerOverride); err != nil {
			return config.ContextInfo{}, err
		}
		info.Server = strings.TrimRight(rt.ServerOverride, "/")
	}
	return info, nil
}

func runtimeFromCommand(cmd *cobra.Command) (*commandRuntime, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, fmt.Errorf("internal: command runtime is not initialized")
	}
	rt, ok := ctx.Value(runtimeKey{}).(*commandRuntime)
	if !ok || rt == nil {
		return nil, fmt.Errorf("internal: command runtime is not initialized")
	}
	return rt, nil
}

func closeRuntime(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	rt, ok := ctx.Value(runtimeKey{}).(*commandRuntime)
	if !ok || rt == nil || rt.Transport == nil {
		return nil
	}
	return rt.Transport.Close()
}
