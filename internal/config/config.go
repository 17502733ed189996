// Package config handles loading and validating the remedian.toml
// configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration.
type Config struct {
	// Packs are extra indicator pack files or directories loaded on top of
	// the embedded default pack.
	Packs []string `toml:"packs"`
	// UseDefaultPack controls whether the embedded pack loads at all.
	UseDefaultPack bool `toml:"use_default_pack"`

	Scopes   ScopesConfig   `toml:"scopes"`
	Provider ProviderConfig `toml:"provider"`
	Report   ReportConfig   `toml:"report"`
	Policy   PolicyConfig   `toml:"policy"`
}

// ScopesConfig controls per-user scope discovery.
type ScopesConfig struct {
	// UserRoot is where user home directories are listed from.
	UserRoot string `toml:"user_root"`
	// Denylist names shared/service home directories that never map to a
	// personal account. Merged with the built-in denylist.
	Denylist []string `toml:"denylist"`
}

// ProviderConfig bounds evidence provider calls.
type ProviderConfig struct {
	// TimeoutSeconds caps each provider query. Log queries can block for
	// multiple seconds; a timeout degrades to an unknown verdict.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Dir string `toml:"dir"`
}

// PolicyConfig configures the remediation policy guard.
type PolicyConfig struct {
	// Protected are process/path patterns destructive actions must not touch,
	// on top of the built-in system-critical list.
	Protected []string `toml:"protected"`
	// DefaultAllow disables the critical-target guard entirely.
	DefaultAllow bool `toml:"default_allow"`
}

// Defaults returns the configuration used when no config file exists.
func Defaults() *Config {
	return &Config{
		UseDefaultPack: true,
		Scopes: ScopesConfig{
			UserRoot: "/Users",
		},
		Provider: ProviderConfig{
			TimeoutSeconds: 30,
		},
		Report: ReportConfig{
			Dir: "reports",
		},
	}
}

// Load reads a remedian.toml file and returns a validated Config.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// Environment variable override for scripted runs
	if dir := os.Getenv("REMEDIAN_REPORT_DIR"); dir != "" {
		cfg.Report.Dir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be positive, got %d", c.Provider.TimeoutSeconds)
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
	if c.Scopes.UserRoot == "" {
		c.Scopes.UserRoot = "/Users"
	}
	if !c.UseDefaultPack && len(c.Packs) == 0 {
		return fmt.Errorf("use_default_pack = false requires at least one entry in packs")
	}
	return nil
}

// ProviderTimeout returns the per-query timeout as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}
