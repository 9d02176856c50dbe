// Package config handles loading and validation of dns20i configuration
// from an optional YAML or TOML file and DNS20I_* environment variables.
package config

import (
	"time"

	"gitlab.bluewillows.net/root/dns20i/internal/acme"
	"gitlab.bluewillows.net/root/dns20i/internal/propagation"
	"gitlab.bluewillows.net/root/dns20i/providers/twentyi"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DNS20I_"

// Configuration defaults.
const (
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultPropagationWait    = false
	DefaultPropagationDelay   = 10 * time.Second
	DefaultPropagationTimeout = propagation.DefaultTimeout
	DefaultPropagationPoll    = propagation.DefaultInterval
	DefaultAccountKey         = "/var/lib/dns20i/account.pem"
	DefaultCertDir            = "/var/lib/dns20i/certs"
)

// Config holds the complete runtime configuration.
type Config struct {
	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	TwentyI     TwentyIConfig
	Propagation PropagationConfig
	ACME        ACMEConfig

	// MetricsTextfile, when set, receives the metrics in node_exporter
	// textfile format when the process exits.
	MetricsTextfile string
}

// TwentyIConfig holds 20i API settings.
type TwentyIConfig struct {
	Credentials string // Path to the credentials JSON file
	GeneralKey  string // Overrides Credentials when set
	Endpoint    string
	Timeout     time.Duration
}

// PropagationConfig controls how long to wait for TXT records to be served.
type PropagationConfig struct {
	Wait        bool          // Poll nameservers after publishing a record
	Delay       time.Duration // Fixed sleep before polling
	Timeout     time.Duration
	Interval    time.Duration
	Nameservers []string // Defaults to resolv.conf
}

// ACMEConfig holds settings for the obtain command.
type ACMEConfig struct {
	Email      string
	CADirURL   string
	Staging    bool
	AccountKey string
	CertDir    string
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Propagation: PropagationConfig{
			Wait:     DefaultPropagationWait,
			Delay:    DefaultPropagationDelay,
			Timeout:  DefaultPropagationTimeout,
			Interval: DefaultPropagationPoll,
		},
		ACME: ACMEConfig{
			AccountKey: DefaultAccountKey,
			CertDir:    DefaultCertDir,
		},
	}
}

// Load builds the configuration. Values come from defaults, then the file
// at path (or DNS20I_CONFIG when path is empty), then DNS20I_* variables.
// Every problem found is reported in a single *ValidationError.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	var errs []string

	if path == "" {
		path = getEnv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			errs = append(errs, "config file: "+err.Error())
		} else {
			errs = append(errs, fileCfg.apply(cfg)...)
		}
	}

	errs = append(errs, applyEnv(cfg)...)
	errs = append(errs, validateConfig(cfg)...)

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return cfg, nil
}

// TwentyIProviderConfig returns the settings for twentyi.New.
func (c *Config) TwentyIProviderConfig() *twentyi.Config {
	return &twentyi.Config{
		CredentialsFile:    c.TwentyI.Credentials,
		GeneralKey:         c.TwentyI.GeneralKey,
		Endpoint:           c.TwentyI.Endpoint,
		Timeout:            c.TwentyI.Timeout,
		PropagationTimeout: c.Propagation.Timeout,
		PollingInterval:    c.Propagation.Interval,
	}
}

// PropagationOptions returns the options for propagation.New.
func (c *Config) PropagationOptions() []propagation.Option {
	opts := []propagation.Option{
		propagation.WithDelay(c.Propagation.Delay),
		propagation.WithTimeout(c.Propagation.Timeout),
		propagation.WithInterval(c.Propagation.Interval),
	}
	if len(c.Propagation.Nameservers) > 0 {
		opts = append(opts, propagation.WithNameservers(c.Propagation.Nameservers...))
	}
	return opts
}

// ACMEObtainerConfig returns the settings for acme.NewObtainer.
func (c *Config) ACMEObtainerConfig() acme.Config {
	return acme.Config{
		Email:          c.ACME.Email,
		CADirURL:       c.ACME.CADirURL,
		Staging:        c.ACME.Staging,
		AccountKeyFile: c.ACME.AccountKey,
		CertDir:        c.ACME.CertDir,
		Nameservers:    c.Propagation.Nameservers,
	}
}
