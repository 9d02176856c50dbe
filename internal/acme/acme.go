// Package acme obtains certificates through lego using a DNS-01 provider.
package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

// Config holds ACME account and output settings.
type Config struct {
	Email          string
	CADirURL       string   // Overrides Staging when set
	Staging        bool     // Use the Let's Encrypt staging directory
	AccountKeyFile string   // PEM-encoded EC account key, created if missing
	CertDir        string   // Where <domain>.crt and <domain>.key are written
	Nameservers    []string // Recursive nameservers lego uses for its own checks
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	var errs []string

	if c.Email == "" {
		errs = append(errs, "email is required")
	}
	if c.AccountKeyFile == "" {
		errs = append(errs, "account key file is required")
	}
	if c.CertDir == "" {
		errs = append(errs, "certificate directory is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("acme config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DirectoryURL returns the ACME directory to talk to.
func (c *Config) DirectoryURL() string {
	switch {
	case c.CADirURL != "":
		return c.CADirURL
	case c.Staging:
		return lego.LEDirectoryStaging
	default:
		return lego.LEDirectoryProduction
	}
}

// User implements lego's registration.User.
type User struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *User) GetEmail() string {
	return u.Email
}

func (u *User) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *User) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// Obtainer requests certificates, answering DNS-01 challenges through a
// lego challenge.Provider.
type Obtainer struct {
	config   Config
	provider challenge.Provider
	logger   *slog.Logger
}

// Option is a functional option for configuring the Obtainer.
type Option func(*Obtainer)

// WithLogger sets a custom logger for the obtainer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Obtainer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewObtainer creates an Obtainer answering challenges with p.
func NewObtainer(config Config, p challenge.Provider, opts ...Option) (*Obtainer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("dns-01 provider is required")
	}

	o := &Obtainer{
		config:   config,
		provider: p,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Obtain registers the account, requests one certificate covering domains
// and writes it under the configured certificate directory.
func (o *Obtainer) Obtain(domains []string) (*certificate.Resource, error) {
	if len(domains) == 0 {
		return nil, errors.New("no domains specified")
	}

	key, created, err := LoadOrCreateAccountKey(o.config.AccountKeyFile)
	if err != nil {
		return nil, err
	}
	if created {
		o.logger.Info("generated ACME account key", slog.String("path", o.config.AccountKeyFile))
	}

	user := &User{Email: o.config.Email, key: key}

	legoConfig := lego.NewConfig(user)
	legoConfig.CADirURL = o.config.DirectoryURL()
	legoConfig.Certificate.KeyType = certcrypto.EC256

	o.logger.Info("using ACME directory", slog.String("url", legoConfig.CADirURL))

	client, err := lego.NewClient(legoConfig)
	if err != nil {
		return nil, fmt.Errorf("creating ACME client: %w", err)
	}

	var dnsOpts []dns01.ChallengeOption
	if len(o.config.Nameservers) > 0 {
		dnsOpts = append(dnsOpts, dns01.AddRecursiveNameservers(o.config.Nameservers))
	}
	if err := client.Challenge.SetDNS01Provider(o.provider, dnsOpts...); err != nil {
		return nil, fmt.Errorf("setting DNS-01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("registering ACME account: %w", err)
	}
	user.Registration = reg

	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("obtaining certificate: %w", err)
	}

	if err := SaveCertificate(o.config.CertDir, res); err != nil {
		return nil, err
	}

	o.logger.Info("certificate obtained",
		slog.String("domain", res.Domain),
		slog.String("domains", strings.Join(domains, ",")),
		slog.String("cert_dir", o.config.CertDir),
	)

	return res, nil
}

// LoadOrCreateAccountKey reads the EC account key at path, generating and
// saving a P-256 key (mode 0600) when the file does not exist.
func LoadOrCreateAccountKey(path string) (key *ecdsa.PrivateKey, created bool, err error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, false, fmt.Errorf("account key %s: no PEM data", path)
		}
		parsed, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, false, fmt.Errorf("account key %s: %w", path, err)
		}
		return parsed, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("reading account key: %w", err)
	}

	key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("generating account key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling account key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("creating account key directory: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		return nil, false, fmt.Errorf("saving account key: %w", err)
	}

	return key, true, nil
}

// SaveCertificate writes res as <dir>/<domain>.crt and <dir>/<domain>.key.
// Wildcard domains are stored with "_" in place of "*".
func SaveCertificate(dir string, res *certificate.Resource) error {
	if res == nil || res.Domain == "" {
		return errors.New("certificate resource has no domain")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating certificate directory: %w", err)
	}

	base := filepath.Join(dir, fileName(res.Domain))
	if err := os.WriteFile(base+".crt", res.Certificate, 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.WriteFile(base+".key", res.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	return nil
}

func fileName(domain string) string {
	return strings.ReplaceAll(domain, "*", "_")
}
