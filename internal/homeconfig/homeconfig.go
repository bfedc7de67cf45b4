// Package homeconfig loads and saves the user-level pesde configuration:
// the default index URL, the scripts repository URL, per-index auth
// tokens, and the last-update-check cache. Load searches a priority list of
// candidate paths for a single per-user TOML file, decodes it, then fills
// in defaults as a separate stage.
package homeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	dirName         = "pesde"
	fileName        = "config.toml"
	updateCacheFile = "last_update_check.yaml"
)

// Config is the user-level pesde configuration.
type Config struct {
	DefaultIndex string            `toml:"default_index"`
	ScriptsRepo  string            `toml:"scripts_repo"`
	Tokens       map[string]string `toml:"tokens,omitempty"`

	// ConfigDir is the directory config.toml was loaded from (or would be
	// written to); not itself persisted.
	ConfigDir string `toml:"-"`
}

// UpdateCheck is the small YAML side file recording when pesde last
// checked the scripts repo for a newer release.
type UpdateCheck struct {
	CheckedAt time.Time `yaml:"checked_at"`
	Version   string    `yaml:"version"`
}

func defaultScriptsRepo() string {
	return "https://github.com/pesde-pm/scripts"
}

func defaultIndex() string {
	return "https://github.com/pesde-pm/index"
}

// defaults fills in zero-valued fields.
func (c *Config) defaults() {
	if c.DefaultIndex == "" {
		c.DefaultIndex = defaultIndex()
	}
	if c.ScriptsRepo == "" {
		c.ScriptsRepo = defaultScriptsRepo()
	}
	if c.Tokens == nil {
		c.Tokens = map[string]string{}
	}
}

// Load reads the home config from explicitPath if given, otherwise
// searches the standard candidate locations (XDG_CONFIG_HOME, ~/.config,
// then a final ~/.pesde fallback). A missing file at every candidate is
// not an error: Load returns a defaulted Config as if an empty file was
// found, since pesde must run with no prior configuration at all.
func Load(explicitPath string) (*Config, error) {
	path, found, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading home config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing home config: %w", err)
		}
		cfg.ConfigDir = filepath.Dir(path)
	} else {
		cfg.ConfigDir = filepath.Dir(path)
	}

	cfg.defaults()
	return cfg, nil
}

// findConfigFile returns the path to use, and whether a file already
// exists there. When explicitPath is empty, it walks a priority order:
// XDG_CONFIG_HOME first, then ~/.config, then a hardcoded final fallback
// (~/.pesde, since pesde is a per-user tool with no system-wide directory).
func findConfigFile(explicitPath string) (string, bool, error) {
	if explicitPath != "" {
		_, err := os.Stat(explicitPath)
		if err == nil {
			return explicitPath, true, nil
		}
		if os.IsNotExist(err) {
			return explicitPath, false, nil
		}
		return "", false, err
	}

	var candidates []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, dirName, fileName))
	}
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", dirName, fileName))
		candidates = append(candidates, filepath.Join(home, ".pesde", fileName))
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	if homeErr == nil {
		return filepath.Join(home, ".pesde", fileName), false, nil
	}
	if len(candidates) > 0 {
		return candidates[0], false, nil
	}
	return "", false, fmt.Errorf("resolving home directory: %w", homeErr)
}

// Save writes cfg back to its ConfigDir/config.toml, creating the
// directory if needed.
func Save(cfg *Config) error {
	if cfg.ConfigDir == "" {
		return fmt.Errorf("config has no directory to save to")
	}
	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(cfg.ConfigDir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating home config: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding home config: %w", err)
	}
	return nil
}

// Redacted returns a copy of cfg with every token value replaced, for
// `pesde config show`-style output.
func (c *Config) Redacted() *Config {
	redacted := *c
	redacted.Tokens = make(map[string]string, len(c.Tokens))
	for index := range c.Tokens {
		redacted.Tokens[index] = "********"
	}
	return &redacted
}

// LoadUpdateCheck reads the last-update-check cache from cfg's directory.
// A missing file is not an error — it just means no check has happened
// yet — and results in a zero-valued UpdateCheck.
func LoadUpdateCheck(cfg *Config) (*UpdateCheck, error) {
	path := filepath.Join(cfg.ConfigDir, updateCacheFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &UpdateCheck{}, nil
		}
		return nil, fmt.Errorf("reading update check cache: %w", err)
	}

	var check UpdateCheck
	if err := yaml.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("parsing update check cache: %w", err)
	}
	return &check, nil
}

// SaveUpdateCheck records that a check against latestVersion happened at
// checkedAt, in cfg's directory.
func SaveUpdateCheck(cfg *Config, checkedAt time.Time, latestVersion string) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	check := UpdateCheck{CheckedAt: checkedAt, Version: latestVersion}
	data, err := yaml.Marshal(&check)
	if err != nil {
		return fmt.Errorf("marshalling update check cache: %w", err)
	}

	path := filepath.Join(cfg.ConfigDir, updateCacheFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing update check cache: %w", err)
	}
	return nil
}
