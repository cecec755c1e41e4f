// Package config resolves the command line settings from flags, CLRHOST_*
// environment variables and an optional config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lesnuages/clrhost/clr"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "CLRHOST"

// Config holds the resolved settings.
type Config struct {
	Runtime        string `mapstructure:"runtime"`
	Domain         string `mapstructure:"domain"`
	Output         bool   `mapstructure:"output"`
	Exit           bool   `mapstructure:"exit"`
	BestEffortExit bool   `mapstructure:"best_effort_exit"`
	HostStore      bool   `mapstructure:"host_store"`
	Verbose        bool   `mapstructure:"verbose"`
	JSONLogs       bool   `mapstructure:"json_logs"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Runtime: "default",
		Output:  true,
	}
}

// flagNames maps config keys to the flag that sets them.
var flagNames = map[string]string{
	"runtime":          "runtime",
	"domain":           "domain",
	"output":           "output",
	"exit":             "exit",
	"best_effort_exit": "best-effort-exit",
	"host_store":       "host-store",
	"verbose":          "verbose",
	"json_logs":        "json-logs",
}

// Load resolves the configuration. path names an optional config file in
// any format viper reads (YAML, TOML, JSON); an empty path skips it. Flags
// from fs that exist for a key are bound to it and win when set.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("runtime", defaults.Runtime)
	v.SetDefault("domain", defaults.Domain)
	v.SetDefault("output", defaults.Output)
	v.SetDefault("exit", defaults.Exit)
	v.SetDefault("best_effort_exit", defaults.BestEffortExit)
	v.SetDefault("host_store", defaults.HostStore)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("json_logs", defaults.JSONLogs)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for key, name := range flagNames {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	if _, err := clr.ParseRuntimeVersion(c.Runtime); err != nil {
		errs = append(errs, err)
	}
	if strings.ContainsAny(c.Domain, "\x00\r\n") {
		errs = append(errs, fmt.Errorf("domain name %q contains control characters", c.Domain))
	}
	return errors.Join(errs...)
}

// RuntimeVersion returns the parsed runtime setting.
func (c *Config) RuntimeVersion() clr.RuntimeVersion {
	v, _ := clr.ParseRuntimeVersion(c.Runtime)
	return v
}
