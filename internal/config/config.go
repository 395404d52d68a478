// Package config loads and validates the deployment pool configuration.
// Limits and pricing are parsed into their three declaration scopes once at
// load time, so routing decisions never re-parse loosely-typed maps.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/modelmux/modelmux/pkg/provider"
)

// Config represents the complete router configuration.
type Config struct {
	Ledger      LedgerConfig  `yaml:"ledger"`
	Router      RouterConfig  `yaml:"router"`
	Logging     LoggingConfig `yaml:"logging"`
	PricingFile string        `yaml:"pricing_file"`
	ModelGroups []ModelGroup  `yaml:"model_groups"`
}

// LedgerConfig selects and configures the usage counter backend.
type LedgerConfig struct {
	Backend   string `yaml:"backend"` // memory, redis
	RedisAddr string `yaml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RouterConfig contains routing settings.
type RouterConfig struct {
	CooldownPeriod time.Duration `yaml:"cooldown_period"`
	LedgerTimeout  time.Duration `yaml:"ledger_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ModelGroup declares the deployments backing one logical model name.
type ModelGroup struct {
	Name        string                 `yaml:"name"`
	Deployments []*provider.Deployment `yaml:"deployments"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Backend:   "memory",
			KeyPrefix: "modelmux:usage",
		},
		Router: RouterConfig{
			CooldownPeriod: 60 * time.Second,
			LedgerTimeout:  2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and normalizes the deployment pool:
// deployments without an ID get one assigned, aliases default to the group
// name, and negative limits or costs are rejected outright.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "redis" && c.Ledger.RedisAddr == "" {
		return fmt.Errorf("ledger backend redis requires redis_addr")
	}

	seen := make(map[string]string)
	for gi := range c.ModelGroups {
		group := &c.ModelGroups[gi]
		if group.Name == "" {
			return fmt.Errorf("model group %d has no name", gi)
		}
		for _, d := range group.Deployments {
			if d.ModelName == "" {
				return fmt.Errorf("model group %q: deployment without model", group.Name)
			}
			if d.ID == "" {
				d.ID = uuid.NewString()
			}
			if prev, dup := seen[d.ID]; dup {
				return fmt.Errorf("duplicate deployment id %q (groups %q and %q)", d.ID, prev, group.Name)
			}
			seen[d.ID] = group.Name
			if d.ModelAlias == "" {
				d.ModelAlias = group.Name
			}
			if err := validateOverrides(group.Name, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateOverrides(group string, d *provider.Deployment) error {
	scopes := []*provider.ParamOverrides{&d.ParamOverrides}
	if d.ProviderParams != nil {
		scopes = append(scopes, d.ProviderParams)
	}
	if d.ModelInfo != nil {
		scopes = append(scopes, &d.ModelInfo.ParamOverrides)
	}
	for _, s := range scopes {
		for _, limit := range []*int64{s.RPM, s.RPH, s.RPD, s.TPM, s.TPH, s.TPD} {
			if limit != nil && *limit < 0 {
				return fmt.Errorf("model group %q deployment %q: negative rate limit", group, d.ID)
			}
		}
		for _, cost := range []*float64{s.InputCostPerToken, s.OutputCostPerToken} {
			if cost != nil && *cost < 0 {
				return fmt.Errorf("model group %q deployment %q: negative cost", group, d.ID)
			}
		}
	}
	return nil
}

// Deployments flattens the pool across all model groups.
func (c *Config) Deployments() []*provider.Deployment {
	var all []*provider.Deployment
	for _, group := range c.ModelGroups {
		all = append(all, group.Deployments...)
	}
	return all
}
