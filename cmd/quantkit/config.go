package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the quantkit configuration file (~/.config/quantkit/config.yaml).
// All optional numeric fields are pointers so we can distinguish "not set" from
// zero values.
type Config struct {
	// Import defaults
	TargetScheme string `yaml:"target_scheme"`
	Parallelism  *int64 `yaml:"parallelism"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quantkit", "config.yaml")
}

// applyImportConfig applies config file defaults to import command variables
// when the corresponding CLI flag was not explicitly set.
func applyImportConfig(c *cli.Command, cfg Config, target *string, parallel *int64) {
	if cfg.TargetScheme != "" && !c.IsSet("target") {
		*target = cfg.TargetScheme
	}
	if cfg.Parallelism != nil && !c.IsSet("parallel") {
		*parallel = *cfg.Parallelism
	}
	applyLoggingConfig(c, cfg)
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	applyLoggingConfig(c, cfg)
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
