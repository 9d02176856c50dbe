package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the configuration file structure. The same layout
// is accepted as YAML (.yaml, .yml) or TOML (.toml).
type FileConfig struct {
	Logging     *FileLoggingConfig     `yaml:"logging,omitempty" toml:"logging"`
	TwentyI     *FileTwentyIConfig     `yaml:"twentyi,omitempty" toml:"twentyi"`
	Propagation *FilePropagationConfig `yaml:"propagation,omitempty" toml:"propagation"`
	ACME        *FileACMEConfig        `yaml:"acme,omitempty" toml:"acme"`
	Metrics     *FileMetricsConfig     `yaml:"metrics,omitempty" toml:"metrics"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
}

// FileTwentyIConfig holds 20i API settings.
type FileTwentyIConfig struct {
	Credentials string `yaml:"credentials,omitempty" toml:"credentials"`
	GeneralKey  string `yaml:"general_key,omitempty" toml:"general_key"`
	Endpoint    string `yaml:"endpoint,omitempty" toml:"endpoint"`
	Timeout     string `yaml:"timeout,omitempty" toml:"timeout"` // Go duration or seconds
}

// FilePropagationConfig holds propagation settings.
type FilePropagationConfig struct {
	Wait        *bool    `yaml:"wait,omitempty" toml:"wait"` // Pointer to distinguish unset from false
	Delay       string   `yaml:"delay,omitempty" toml:"delay"`
	Timeout     string   `yaml:"timeout,omitempty" toml:"timeout"`
	Interval    string   `yaml:"interval,omitempty" toml:"interval"`
	Nameservers []string `yaml:"nameservers,omitempty" toml:"nameservers"`
}

// FileACMEConfig holds settings for the obtain command.
type FileACMEConfig struct {
	Email      string `yaml:"email,omitempty" toml:"email"`
	CADirURL   string `yaml:"ca_dir_url,omitempty" toml:"ca_dir_url"`
	Staging    *bool  `yaml:"staging,omitempty" toml:"staging"`
	AccountKey string `yaml:"account_key,omitempty" toml:"account_key"`
	CertDir    string `yaml:"cert_dir,omitempty" toml:"cert_dir"`
}

// FileMetricsConfig holds metrics output settings.
type FileMetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" toml:"textfile"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 3 {
			defaultValue = groups[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// interpolateEnvVars interpolates environment variables in every string field.
func (c *FileConfig) interpolateEnvVars() {
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
	}

	if t := c.TwentyI; t != nil {
		t.Credentials = InterpolateEnvVars(t.Credentials)
		t.GeneralKey = InterpolateEnvVars(t.GeneralKey)
		t.Endpoint = InterpolateEnvVars(t.Endpoint)
		t.Timeout = InterpolateEnvVars(t.Timeout)
	}

	if p := c.Propagation; p != nil {
		p.Delay = InterpolateEnvVars(p.Delay)
		p.Timeout = InterpolateEnvVars(p.Timeout)
		p.Interval = InterpolateEnvVars(p.Interval)
		for i := range p.Nameservers {
			p.Nameservers[i] = InterpolateEnvVars(p.Nameservers[i])
		}
	}

	if a := c.ACME; a != nil {
		a.Email = InterpolateEnvVars(a.Email)
		a.CADirURL = InterpolateEnvVars(a.CADirURL)
		a.AccountKey = InterpolateEnvVars(a.AccountKey)
		a.CertDir = InterpolateEnvVars(a.CertDir)
	}

	if c.Metrics != nil {
		c.Metrics.Textfile = InterpolateEnvVars(c.Metrics.Textfile)
	}
}

// LoadFile reads and parses a configuration file, choosing the format from
// its extension. Environment variables in ${VAR} format are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml or .toml)", ext)
	}

	cfg.interpolateEnvVars()

	return &cfg, nil
}

// apply copies every value set in the file onto cfg.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string

	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := parseDuration(value)
		if err != nil {
			errs = append(errs, field+": "+err.Error())
			return
		}
		*dst = d
	}
	str := func(value string, dst *string) {
		if value != "" {
			*dst = value
		}
	}

	if l := c.Logging; l != nil {
		str(l.Level, &cfg.LogLevel)
		str(l.Format, &cfg.LogFormat)
	}

	if t := c.TwentyI; t != nil {
		str(t.Credentials, &cfg.TwentyI.Credentials)
		str(t.GeneralKey, &cfg.TwentyI.GeneralKey)
		str(t.Endpoint, &cfg.TwentyI.Endpoint)
		duration("twentyi.timeout", t.Timeout, &cfg.TwentyI.Timeout)
	}

	if p := c.Propagation; p != nil {
		if p.Wait != nil {
			cfg.Propagation.Wait = *p.Wait
		}
		duration("propagation.delay", p.Delay, &cfg.Propagation.Delay)
		duration("propagation.timeout", p.Timeout, &cfg.Propagation.Timeout)
		duration("propagation.interval", p.Interval, &cfg.Propagation.Interval)
		if len(p.Nameservers) > 0 {
			cfg.Propagation.Nameservers = p.Nameservers
		}
	}

	if a := c.ACME; a != nil {
		str(a.Email, &cfg.ACME.Email)
		str(a.CADirURL, &cfg.ACME.CADirURL)
		if a.Staging != nil {
			cfg.ACME.Staging = *a.Staging
		}
		str(a.AccountKey, &cfg.ACME.AccountKey)
		str(a.CertDir, &cfg.ACME.CertDir)
	}

	if c.Metrics != nil {
		str(c.Metrics.Textfile, &cfg.MetricsTextfile)
	}

	return errs
}
