package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures everything configurable about the emulator process.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DATAPOND_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the HTTP listener settings
	Server ServerConfig `mapstructure:"server"`

	// Storage controls the emulated storage backend
	Storage StorageConfig `mapstructure:"storage"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to, e.g. ":8000"
	Listen string `mapstructure:"listen" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StorageConfig controls the emulated storage backend.
type StorageConfig struct {
	// RootDir is the local directory containers are emulated under
	RootDir string `mapstructure:"root_dir" validate:"required"`

	// FailureChance is the probability in [0, 1] that a request is
	// rejected with ServerBusy, for exercising client retry logic
	FailureChance float64 `mapstructure:"failure_chance" validate:"gte=0,lte=1"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string searches the working
//     directory for datapond.yaml)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings. Every key gets a default so automatic environment lookup can
// resolve it without a config file present.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DATAPOND_ prefix and underscores.
	// Example: DATAPOND_STORAGE_ROOT_DIR=/tmp/filesystems
	v.SetEnvPrefix("DATAPOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("server.listen", defaultListenAddress)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("storage.root_dir", defaultRootDir)
	v.SetDefault("storage.failure_chance", 0.0)

	if configPath != "" {
		// An explicitly requested file must exist and parse.
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("datapond")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if one is available. Not
// finding a file during the working-directory search is fine; the defaults
// carry the config.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}
