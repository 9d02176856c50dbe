package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile retrieves a value from either a direct environment variable
// or a file path specified by the file key (Docker secrets pattern).
//
// If both are set, the file takes precedence. The file contents are trimmed
// of leading/trailing whitespace.
func getEnvOrFile(directKey, fileKey string) (string, error) {
	if filePath := os.Getenv(fileKey); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("%s: %w", fileKey, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(directKey), nil
}

// parseBool parses a boolean string.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// parseDuration accepts Go duration syntax ("90s", "2m") or a bare number
// of seconds ("10").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use format like 10, 60s, 5m)", s)
	}
	return d, nil
}

// splitList splits a comma or whitespace separated list, dropping empty items.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// applyEnv overrides cfg with any DNS20I_* variables that are set.
func applyEnv(cfg *Config) []string {
	var errs []string

	str := func(key string, dst *string) {
		if v := getEnv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getEnv(EnvPrefix + key); v != "" {
			b, err := parseBool(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key+": "+err.Error())
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getEnv(EnvPrefix + key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key+": "+err.Error())
				return
			}
			*dst = d
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	str("CREDENTIALS", &cfg.TwentyI.Credentials)
	key, err := getEnvOrFile(EnvPrefix+"GENERAL_KEY", EnvPrefix+"GENERAL_KEY_FILE")
	if err != nil {
		errs = append(errs, err.Error())
	} else if key != "" {
		cfg.TwentyI.GeneralKey = key
	}
	str("ENDPOINT", &cfg.TwentyI.Endpoint)
	duration("TIMEOUT", &cfg.TwentyI.Timeout)

	boolean("PROPAGATION_WAIT", &cfg.Propagation.Wait)
	duration("PROPAGATION_DELAY", &cfg.Propagation.Delay)
	duration("PROPAGATION_TIMEOUT", &cfg.Propagation.Timeout)
	duration("PROPAGATION_INTERVAL", &cfg.Propagation.Interval)
	if v := getEnv(EnvPrefix + "NAMESERVERS"); v != "" {
		cfg.Propagation.Nameservers = splitList(v)
	}

	str("ACME_EMAIL", &cfg.ACME.Email)
	str("ACME_CA_DIR_URL", &cfg.ACME.CADirURL)
	boolean("ACME_STAGING", &cfg.ACME.Staging)
	str("ACME_ACCOUNT_KEY", &cfg.ACME.AccountKey)
	str("ACME_CERT_DIR", &cfg.ACME.CertDir)

	str("METRICS_TEXTFILE", &cfg.MetricsTextfile)

	return errs
}
