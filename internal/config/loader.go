package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".sitedrop"
	configFileName = "config.yaml"
	fileHeader     = "# sitedrop client configuration. Holds session tokens; keep it private.\n"
)

// DefaultPath is ~/.sitedrop/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}
	if strings.TrimSpace(home) == "" {
		return "", errors.New("resolve user home directory: empty path")
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// ResolvePath picks the explicit path, then $SITEDROP_CONFIG, then DefaultPath.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if p := strings.TrimSpace(candidate); p != "" {
			return p, nil
		}
	}
	return DefaultPath()
}

// Load reads the config at the resolved path. A missing file is an error.
func Load(explicitPath string) (Config, string, error) {
	return load(explicitPath, false)
}

// LoadOptional treats a missing file as an empty config, for commands that
// create it (login, context set).
func LoadOptional(explicitPath string) (Config, string, error) {
	return load(explicitPath, true)
}

func load(explicitPath string, optional bool) (Config, string, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Config{}, "", err
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg = Config{}
			cfg.normalize()
			return cfg, path, nil
		}
		return Config{}, path, err
	}
	return cfg, path, nil
}

// LoadFromPath reads and validates one config file. Unknown keys are rejected
// so a typo does not silently drop a setting.
func LoadFromPath(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file not found at %s (create it or set %s): %w", path, EnvConfigPath, err)
		}
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save validates cfg and atomically replaces the file at path. The file is
// always written 0600.
func Save(path string, cfg Config) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is required")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config file %s: %w", path, err)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("marshal config file %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshal config file %s: %w", path, err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config in %s: %w", dir, err)
	}
	name := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(name)
		}
	}()

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write temp config %s: %w", name, werr)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		return fmt.Errorf("chmod temp config %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("replace config file %s: %w", path, err)
	}
	committed = true
	return nil
}
