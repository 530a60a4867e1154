package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	// EnvContext selects a context when --context is not given.
	EnvContext = "SITEDROP_CONTEXT"
	// EnvToken replaces the stored session token, for CI jobs that never
	// run sitedrop login.
	EnvToken = "SITEDROP_TOKEN"
)

// ResolveContext picks the context named explicitName, then $SITEDROP_CONTEXT,
// then current-context.
func ResolveContext(cfg Config, explicitName string) (ContextInfo, error) {
	name := strings.TrimSpace(explicitName)
	if name == "" {
		name = strings.TrimSpace(os.Getenv(EnvContext))
	}
	if name == "" {
		name = strings.TrimSpace(cfg.CurrentContext)
	}
	if name == "" {
		return ContextInfo{}, fmt.Errorf("no context selected: set current-context or pass --context")
	}

	for _, ctx := range cfg.Contexts {
		if strings.TrimSpace(ctx.Name) != name {
			continue
		}
		info := ContextInfo{
			Name:   name,
			Server: strings.TrimRight(strings.TrimSpace(ctx.Server), "/"),
			Email:  strings.TrimSpace(ctx.Email),
			Token:  strings.TrimSpace(ctx.Token),
		}
		if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
			info.Token = tok
		}
		return info, nil
	}

	available := availableContextNames(cfg.Contexts)
	if len(available) == 0 {
		return ContextInfo{}, fmt.Errorf("context %q not found: config has no contexts", name)
	}
	return ContextInfo{}, fmt.Errorf("context %q not found; available contexts: %s", name, strings.Join(available, ", "))
}

func availableContextNames(contexts []Context) []string {
	names := make([]string, 0, len(contexts))
	for _, ctx := range contexts {
		if name := strings.TrimSpace(ctx.Name); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
