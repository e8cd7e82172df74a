// Package config loads dce2watch's configuration from CLI flags, environment
// variables, and a YAML file, in that order of precedence, with defaults
// filling in whatever none of those three supply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/flowguard/dce2smb/internal/bytesize"
)

// Config is dce2watch's complete configuration.
//
// Configuration sources, highest precedence first:
//  1. CLI flags (bound by cmd/dce2watch via BindPFlag)
//  2. Environment variables (DCE2WATCH_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Policy selects which server's reassembly quirks to honor: "windows"
	// (default) or "samba".
	Policy string `mapstructure:"policy" yaml:"policy" validate:"required,oneof=windows samba"`

	// Capture configures where SMB1 traffic is read from.
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`

	// Metrics configures the Prometheus exposition endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CaptureConfig selects a packet source: exactly one of File or Interface.
type CaptureConfig struct {
	// File is a classic pcap file to replay (pcapng is not supported).
	// Mutually exclusive with Interface.
	File string `mapstructure:"file" yaml:"file"`

	// Interface is a live network interface to capture from. Mutually
	// exclusive with File.
	Interface string `mapstructure:"interface" yaml:"interface"`

	// Snaplen bounds the number of bytes captured per packet on a live
	// interface; ignored when replaying a file.
	Snaplen bytesize.ByteSize `mapstructure:"snaplen" yaml:"snaplen"`

	// Promiscuous puts a live interface into promiscuous mode.
	Promiscuous bool `mapstructure:"promiscuous" yaml:"promiscuous"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics server on or off.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddr is the address the metrics HTTP server listens on, e.g.
	// ":9090" or "127.0.0.1:9090".
	BindAddr string `mapstructure:"bind_addr" yaml:"bind_addr" validate:"required"`

	// Path is the HTTP path metrics are served on.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls log output behavior, mirrored onto internal/logger.Config.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// Load loads configuration from the given file path (empty string searches
// the default location), environment variables, and defaults, applying
// viper's standard precedence (explicit Set/flags > env > file > defaults).
//
// flagBinder, if non-nil, is called with the viper instance before the
// config file is read so the caller (cmd/dce2watch) can bind cobra flags at
// the top of the precedence chain via v.BindPFlag.
func Load(configPath string, flagBinder func(v *viper.Viper)) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if flagBinder != nil {
		flagBinder(v)
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal regardless of whether a file was found: viper still tracks
	// anything flagBinder bound or AutomaticEnv picked up, and mapstructure
	// decodes onto cfg's existing values rather than zeroing them, so
	// defaults survive for every key the file/flags/env left unset.
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}

	return nil
}

// setupViper wires environment-variable and config-file discovery.
func setupViper(v *viper.Viper, configPath string) {
	// DCE2WATCH_METRICS_BIND_ADDR, DCE2WATCH_LOGGING_LEVEL, and so on.
	v.SetEnvPrefix("DCE2WATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if present. A missing file is
// not an error — defaults (plus flags/env) carry the configuration instead.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the custom mapstructure decode hooks this
// config needs beyond viper's defaults.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook lets capture.snaplen be written as "64KiB" as well as
// a plain integer.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook is kept for any future duration-valued field (none yet,
// but every other layered config in this codebase's lineage carries one and
// the hook is free to compose).
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dce2watch, falling back to
// ~/.config/dce2watch, or "." if the home directory cannot be determined.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dce2watch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dce2watch")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
