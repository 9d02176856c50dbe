package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig performs cross-field validation on the complete configuration.
func validateConfig(cfg *Config) []string {
	var errs []string

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log format: invalid value %q (must be json or text)", cfg.LogFormat))
	}

	if cfg.TwentyI.Credentials == "" && cfg.TwentyI.GeneralKey == "" {
		errs = append(errs, "twentyi: credentials file or general key is required")
	}
	if cfg.TwentyI.Timeout < 0 {
		errs = append(errs, "twentyi.timeout: must not be negative")
	}

	p := cfg.Propagation
	if p.Delay < 0 {
		errs = append(errs, "propagation.delay: must not be negative")
	}
	if p.Timeout <= 0 {
		errs = append(errs, "propagation.timeout: must be positive")
	}
	if p.Interval <= 0 {
		errs = append(errs, "propagation.interval: must be positive")
	} else if p.Timeout > 0 && p.Interval > p.Timeout {
		errs = append(errs, fmt.Sprintf("propagation.interval: %s exceeds timeout %s", p.Interval, p.Timeout))
	}

	if cfg.ACME.CADirURL != "" && !strings.HasPrefix(cfg.ACME.CADirURL, "https://") {
		errs = append(errs, fmt.Sprintf("acme.ca_dir_url: %q must be an https URL", cfg.ACME.CADirURL))
	}

	return errs
}
