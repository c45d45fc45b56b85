package config

import (
	"strings"
	"time"
)

const (
	defaultLogLevel        = "INFO"
	defaultListenAddress   = ":8000"
	defaultShutdownTimeout = 30 * time.Second
	defaultRootDir         = "./filesystems"
)

// ApplyDefaults fills in default values for any unset configuration fields.
// Viper handles this for values loaded through it; this covers Config values
// constructed directly in code and normalizes the log level casing.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListenAddress
	}

	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Storage.RootDir == "" {
		cfg.Storage.RootDir = defaultRootDir
	}
}
