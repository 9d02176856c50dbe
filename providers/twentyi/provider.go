package twentyi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// Description is returned by MoreInfo.
const Description = "This plugin configures a DNS TXT record to respond to a dns-01 challenge " +
	"using the 20i Reseller REST API."

// Provider implements provider.Authenticator for 20i.
//
// Resolved zones are cached per domain for the lifetime of the Provider and
// never refreshed: zones added or removed at 20i meanwhile go unnoticed.
type Provider struct {
	resolver *ZoneResolver
	records  *RecordReconciler
	logger   *slog.Logger

	propagationTimeout time.Duration
	pollingInterval    time.Duration

	mu    sync.Mutex
	zones map[string]string      // domain -> zone
	locks map[string]*sync.Mutex // domain -> serializes Perform/Cleanup
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPropagation overrides the timeout and interval reported to ACME clients.
func WithPropagation(timeout, interval time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.propagationTimeout = timeout
		}
		if interval > 0 {
			p.pollingInterval = interval
		}
	}
}

// New creates a 20i provider from config, loading credentials from disk.
func New(config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := newProvider(opts)

	creds := &Credentials{GeneralKey: strings.TrimSpace(config.GeneralKey)}
	if creds.GeneralKey == "" {
		var err error
		creds, err = LoadCredentials(config.CredentialsFile, p.logger)
		if err != nil {
			return nil, err
		}
	}

	clientOpts := []ClientOption{
		WithLogger(p.logger),
		WithAPIEndpoint(config.Endpoint),
	}
	if config.Timeout > 0 {
		clientOpts = append(clientOpts, WithTimeout(config.Timeout))
	}
	client := NewClient(creds.TokenSource(), clientOpts...)

	p.resolver = NewZoneResolver(client, p.logger)
	p.records = NewRecordReconciler(client, p.logger)

	// Explicit options win over config.
	p.propagationTimeout = config.propagationTimeout()
	p.pollingInterval = config.pollingInterval()
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// NewWithAPI creates a provider on top of an existing API implementation.
func NewWithAPI(api API, opts ...ProviderOption) *Provider {
	p := newProvider(opts)
	p.resolver = NewZoneResolver(api, p.logger)
	p.records = NewRecordReconciler(api, p.logger)
	return p
}

func newProvider(opts []ProviderOption) *Provider {
	p := &Provider{
		logger:             slog.Default(),
		propagationTimeout: DefaultPropagationTimeout,
		pollingInterval:    DefaultPollingInterval,
		zones:              make(map[string]string),
		locks:              make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns "20i".
func (p *Provider) Name() string {
	return ProviderName
}

// MoreInfo implements provider.Authenticator.
func (p *Provider) MoreInfo() string {
	return Description
}

// Timeout returns the propagation timeout and polling interval.
func (p *Provider) Timeout() (timeout, interval time.Duration) {
	return p.propagationTimeout, p.pollingInterval
}

// Perform implements provider.Authenticator.
func (p *Provider) Perform(ctx context.Context, domain, validationName, validationValue string) error {
	unlock := p.lockDomain(domain)
	defer unlock()

	zone, recordName, err := p.locate(ctx, domain, validationName)
	if err != nil {
		return err
	}

	if err := p.records.AddTXTRecord(ctx, zone, recordName, validationValue); err != nil {
		return fmt.Errorf("performing challenge for %s: %w", domain, err)
	}

	p.logger.Info("challenge record published",
		slog.String("domain", domain),
		slog.String("zone", zone),
		slog.String("record", wireHost(recordName)),
	)

	return nil
}

// Cleanup implements provider.Authenticator.
func (p *Provider) Cleanup(ctx context.Context, domain, validationName, validationValue string) error {
	unlock := p.lockDomain(domain)
	defer unlock()

	zone, recordName, err := p.locate(ctx, domain, validationName)
	if err != nil {
		return err
	}

	if err := p.records.DelTXTRecord(ctx, zone, recordName, validationValue); err != nil {
		return fmt.Errorf("cleaning up challenge for %s: %w", domain, err)
	}

	p.logger.Info("challenge record removed",
		slog.String("domain", domain),
		slog.String("zone", zone),
		slog.String("record", wireHost(recordName)),
	)

	return nil
}

// locate resolves the zone for domain and splits validationName against it.
func (p *Provider) locate(ctx context.Context, domain, validationName string) (zone, recordName string, err error) {
	zone, err = p.ZoneFor(ctx, domain)
	if err != nil {
		return "", "", fmt.Errorf("resolving zone for %s: %w", domain, err)
	}

	recordName, err = SplitRecordName(validationName, zone)
	if err != nil {
		return "", "", fmt.Errorf("splitting validation name for %s: %w", domain, err)
	}

	return zone, recordName, nil
}

// ZoneFor returns the hosted zone owning domain, resolving it on first use.
// Failures are not cached.
func (p *Provider) ZoneFor(ctx context.Context, domain string) (string, error) {
	p.mu.Lock()
	zone, ok := p.zones[domain]
	p.mu.Unlock()
	if ok {
		metrics.ZoneLookupsTotal.WithLabelValues(metrics.ZoneCached).Inc()
		return zone, nil
	}

	zone, err := p.resolver.ResolveZone(ctx, domain)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.zones[domain] = zone
	p.mu.Unlock()

	return zone, nil
}

// lockDomain serializes operations on a single domain so that concurrent
// add and delete passes cannot break each other's record-count checks.
func (p *Provider) lockDomain(domain string) func() {
	p.mu.Lock()
	l, ok := p.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		p.locks[domain] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Ensure Provider implements provider.Authenticator at compile time.
var _ provider.Authenticator = (*Provider)(nil)
