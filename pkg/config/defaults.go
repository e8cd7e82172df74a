package config

import (
	"strings"

	"github.com/flowguard/dce2smb/internal/bytesize"
)

// defaultSnaplen comfortably covers a full SMB1 TRANSACTION PDU (max 64KiB
// per [MS-CIFS]) without truncating it mid-capture.
const defaultSnaplen = 64 * bytesize.KiB

// GetDefaultConfig returns a Config populated entirely with defaults — the
// configuration used when no file, flags, or environment variables are
// present.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any zero-valued field of cfg with its default. It is
// called after a config file/env/flags have been unmarshaled, so only
// fields the user left unset are touched.
func ApplyDefaults(cfg *Config) {
	applyPolicyDefaults(cfg)
	applyCaptureDefaults(&cfg.Capture)
	applyMetricsDefaults(&cfg.Metrics)
	applyLoggingDefaults(&cfg.Logging)
}

func applyPolicyDefaults(cfg *Config) {
	if cfg.Policy == "" {
		cfg.Policy = "windows"
	}
}

func applyCaptureDefaults(cfg *CaptureConfig) {
	if cfg.Snaplen == 0 {
		cfg.Snaplen = defaultSnaplen
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize to uppercase for consistent internal representation, the
	// way internal/logger.Level.String() renders it.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}
