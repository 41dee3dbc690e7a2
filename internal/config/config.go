package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"appleroulette/internal/classify"
	"appleroulette/internal/discovery"
	"appleroulette/internal/halt"
	"appleroulette/internal/oui"
	"appleroulette/internal/probe"
)

const DefaultPanicAfter = 20

type Config struct {
	Vendor     string        `yaml:"vendor"`
	PanicAfter int           `yaml:"panic_after"`
	Workers    int           `yaml:"workers"`
	Scan       ScanConfig    `yaml:"scan"`
	Probe      ProbeConfig   `yaml:"probe"`
	OUI        OUIConfig     `yaml:"oui"`
	Halt       HaltConfig    `yaml:"halt"`
	Report     ReportConfig  `yaml:"report"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

type ScanConfig struct {
	Interface    string        `yaml:"interface"`
	StartupDelay time.Duration `yaml:"startup_delay"`
	Pacing       time.Duration `yaml:"pacing"`
	Grace        time.Duration `yaml:"grace"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxHosts     int           `yaml:"max_hosts"`
}

type ProbeConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type OUIConfig struct {
	Path    string        `yaml:"path"`
	URL     string        `yaml:"url"`
	MaxAge  time.Duration `yaml:"max_age"`
	Offline bool          `yaml:"offline"`
}

type HaltConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	DryRun  bool     `yaml:"dry_run"`
}

type ReportConfig struct {
	HTMLDir string `yaml:"html_dir"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{PanicAfter: DefaultPanicAfter}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields Default().
func Load(path string) (*Config, error) {
	cfg := &Config{PanicAfter: DefaultPanicAfter}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Vendor == "" {
		c.Vendor = classify.DefaultVendor
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Scan.StartupDelay == 0 {
		c.Scan.StartupDelay = discovery.DefaultStartupDelay
	}
	if c.Scan.Pacing == 0 {
		c.Scan.Pacing = discovery.DefaultPacing
	}
	if c.Scan.Grace == 0 {
		c.Scan.Grace = discovery.DefaultGrace
	}
	if c.Scan.ReadTimeout == 0 {
		c.Scan.ReadTimeout = discovery.DefaultReadTimeout
	}
	if c.Probe.Port == 0 {
		c.Probe.Port = probe.SyncPort
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = probe.DefaultTimeout
	}
	if c.OUI.Path == "" {
		c.OUI.Path = oui.DefaultPath
	}
	if c.OUI.URL == "" {
		c.OUI.URL = oui.DefaultURL
	}
	if c.OUI.MaxAge == 0 {
		c.OUI.MaxAge = oui.DefaultMaxAge
	}
	if c.Halt.Command == "" {
		c.Halt.Command = halt.DefaultCommand
	}
}

// Validate rejects values the run cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.PanicAfter < 0 {
		errs = append(errs, fmt.Errorf("panic_after must not be negative, got %d", c.PanicAfter))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Scan.MaxHosts < 0 {
		errs = append(errs, fmt.Errorf("scan.max_hosts must not be negative, got %d", c.Scan.MaxHosts))
	}
	for name, d := range map[string]time.Duration{
		"scan.startup_delay": c.Scan.StartupDelay,
		"scan.pacing":        c.Scan.Pacing,
		"scan.grace":         c.Scan.Grace,
		"scan.read_timeout":  c.Scan.ReadTimeout,
		"probe.timeout":      c.Probe.Timeout,
		"oui.max_age":        c.OUI.MaxAge,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.Probe.Port < 1 || c.Probe.Port > 65535 {
		errs = append(errs, fmt.Errorf("probe.port out of range: %d", c.Probe.Port))
	}
	return errors.Join(errs...)
}
