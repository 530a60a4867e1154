package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	EnvConfigPath     = "SITEDROP_CONFIG"
	DefaultAPIVersion = "sitedrop.dev/v1"
)

// Config is the sitedrop CLI configuration file structure.
type Config struct {
	APIVersion     string    `yaml:"apiVersion,omitempty"`
	CurrentContext string    `yaml:"current-context"`
	Contexts       []Context `yaml:"contexts"`
}

// Context defines one named server plus the session stored for it.
type Context struct {
	Name   string `yaml:"name"`
	Server string `yaml:"server"`
	Email  string `yaml:"email,omitempty"`
	Token  string `yaml:"token,omitempty"`
}

// ContextInfo is the resolved context used by command and client layers.
type ContextInfo struct {
	Name   string
	Server string
	Email  string
	Token  string
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
}

// Validate checks config invariants that must hold for the file to be usable.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Contexts))
	for i, ctx := range c.Contexts {
		name := strings.TrimSpace(ctx.Name)
		if name == "" {
			return fmt.Errorf("contexts[%d].name is required", i)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("duplicate context name %q", name)
		}
		seen[name] = struct{}{}

		if err := ValidateServerURL(ctx.Server); err != nil {
			return fmt.Errorf("context %q: %w", name, err)
		}
	}
	return nil
}

// ValidateServerURL requires an absolute http or https URL.
func ValidateServerURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("server is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse server url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("server url %q has no host", raw)
	}
	return nil
}

// SetContext inserts or replaces the context with the same name.
func (c *Config) SetContext(ctx Context) {
	ctx.Name = strings.TrimSpace(ctx.Name)
	ctx.Server = strings.TrimRight(strings.TrimSpace(ctx.Server), "/")
	for i := range c.Contexts {
		if strings.TrimSpace(c.Contexts[i].Name) == ctx.Name {
			c.Contexts[i] = ctx
			return
		}
	}
	c.Contexts = append(c.Contexts, ctx)
}

// RemoveContext deletes the named context and clears current-context when it
// pointed there. It reports whether anything was removed.
func (c *Config) RemoveContext(name string) bool {
	name = strings.TrimSpace(name)
	for i := range c.Contexts {
		if strings.TrimSpace(c.Contexts[i].Name) != name {
			continue
		}
		c.Contexts = append(c.Contexts[:i], c.Contexts[i+1:]...)
		if strings.TrimSpace(c.CurrentContext) == name {
			c.CurrentContext = ""
		}
		return true
	}
	return false
}

// SetSession stores or clears (empty token) the session of a context.
func (c *Config) SetSession(name, email, token string) error {
	name = strings.TrimSpace(name)
	for i := range c.Contexts {
		if strings.TrimSpace(c.Contexts[i].Name) == name {
			c.Contexts[i].Email = strings.TrimSpace(email)
			c.Contexts[i].Token = strings.TrimSpace(token)
			return nil
		}
	}
	return fmt.Errorf("context %q not found", name)
}
