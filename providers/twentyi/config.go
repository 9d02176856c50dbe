package twentyi

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults for the 20i authenticator.
const (
	// DefaultPropagationTimeout bounds how long an ACME client waits for the
	// TXT record to become visible.
	DefaultPropagationTimeout = 2 * time.Minute

	// DefaultPollingInterval is how often propagation is re-checked.
	DefaultPollingInterval = 5 * time.Second
)

// Config holds 20i-specific configuration.
type Config struct {
	CredentialsFile    string        // Path to the credentials JSON file
	GeneralKey         string        // Used instead of CredentialsFile when set
	Endpoint           string        // API base URL (defaults to DefaultAPIEndpoint)
	Timeout            time.Duration // HTTP timeout (defaults to httputil.DefaultTimeout)
	PropagationTimeout time.Duration // Reported to ACME clients via Timeout()
	PollingInterval    time.Duration // Reported to ACME clients via Timeout()
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.CredentialsFile == "" && c.GeneralKey == "" {
		errs = append(errs, "credentials file or general key is required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("endpoint %q must be an absolute http(s) URL", c.Endpoint))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must be non-negative")
	}
	if c.PropagationTimeout < 0 {
		errs = append(errs, "propagation timeout must be non-negative")
	}
	if c.PollingInterval < 0 {
		errs = append(errs, "polling interval must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("20i config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) propagationTimeout() time.Duration {
	if c.PropagationTimeout > 0 {
		return c.PropagationTimeout
	}
	return DefaultPropagationTimeout
}

func (c *Config) pollingInterval() time.Duration {
	if c.PollingInterval > 0 {
		return c.PollingInterval
	}
	return DefaultPollingInterval
}
