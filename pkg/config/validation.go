package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/flowguard/dce2smb/internal/policy"
)

var validate = validator.New()

// Validate checks cfg against its struct tags (which already restrict
// Policy to "windows" or "samba"), then against policy.ParseTarget and the
// capture source rule that struct tags can't express readably.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if _, ok := policy.ParseTarget(strings.ToLower(cfg.Policy)); !ok {
		return fmt.Errorf("policy: unrecognized target %q (want \"windows\" or \"samba\")", cfg.Policy)
	}

	if err := validateCapture(cfg.Capture); err != nil {
		return err
	}

	return nil
}

// validateCapture enforces that exactly one packet source is configured.
// go-playground/validator's struct tags can express "one of two fields
// required" with excluded_with, but the resulting message is unreadable
// for a two-way exclusive choice, so this is hand-written.
func validateCapture(cfg CaptureConfig) error {
	hasFile := cfg.File != ""
	hasIface := cfg.Interface != ""

	switch {
	case hasFile && hasIface:
		return fmt.Errorf("capture: file and interface are mutually exclusive, set only one")
	case !hasFile && !hasIface:
		return fmt.Errorf("capture: one of file or interface is required")
	}
	return nil
}
