// Package propagation waits for challenge TXT records to become visible in DNS.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
)

// Defaults for the propagation checker.
const (
	DefaultResolvConf = "/etc/resolv.conf"
	DefaultTimeout    = 2 * time.Minute
	DefaultInterval   = 5 * time.Second
	DefaultDNSTimeout = 5 * time.Second
)

// ErrTimeout is returned when the record is still not visible on every
// nameserver once the timeout has elapsed.
var ErrTimeout = errors.New("timed out waiting for TXT record propagation")

// Checker polls a set of nameservers for a TXT record.
type Checker struct {
	nameservers []string
	resolvConf  string
	delay       time.Duration
	timeout     time.Duration
	interval    time.Duration
	client      *dns.Client
	logger      *slog.Logger
}

// Option is a functional option for configuring the Checker.
type Option func(*Checker)

// WithLogger sets a custom logger for the checker.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNameservers sets the servers to query. Entries without a port use 53.
func WithNameservers(servers ...string) Option {
	return func(c *Checker) {
		c.nameservers = append(c.nameservers, servers...)
	}
}

// WithResolvConf sets the resolv.conf used when no nameservers are given.
func WithResolvConf(path string) Option {
	return func(c *Checker) {
		if path != "" {
			c.resolvConf = path
		}
	}
}

// WithDelay sets a fixed sleep before the first query.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithTimeout bounds the whole wait, delay excluded.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInterval sets the time between polling rounds.
func WithInterval(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.interval = d
		}
	}
}

// New creates a Checker. Without explicit nameservers the system resolvers
// from resolv.conf are used.
func New(opts ...Option) (*Checker, error) {
	c := &Checker{
		resolvConf: DefaultResolvConf,
		timeout:    DefaultTimeout,
		interval:   DefaultInterval,
		client:     &dns.Client{Net: "udp", Timeout: DefaultDNSTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if len(c.nameservers) == 0 {
		conf, err := dns.ClientConfigFromFile(c.resolvConf)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c.resolvConf, err)
		}
		for _, s := range conf.Servers {
			c.nameservers = append(c.nameservers, net.JoinHostPort(s, conf.Port))
		}
		if len(c.nameservers) == 0 {
			return nil, fmt.Errorf("no nameservers in %s", c.resolvConf)
		}
	}

	for i, s := range c.nameservers {
		c.nameservers[i] = withPort(s)
	}

	c.logger.Debug("propagation checker initialized",
		slog.String("nameservers", strings.Join(c.nameservers, ",")),
		slog.Duration("timeout", c.timeout),
		slog.Duration("interval", c.interval),
	)

	return c, nil
}

// Nameservers returns the servers being queried.
func (c *Checker) Nameservers() []string {
	return slices.Clone(c.nameservers)
}

// Wait blocks until every nameserver answers fqdn with a TXT record equal to
// value, the timeout elapses (ErrTimeout) or ctx is done.
func (c *Checker) Wait(ctx context.Context, fqdn, value string) error {
	start := time.Now()
	defer func() {
		metrics.PropagationWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	if c.delay > 0 {
		c.logger.Debug("sleeping before propagation check", slog.Duration("delay", c.delay))
		if err := sleep(ctx, c.delay); err != nil {
			return err
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		pending := c.pending(waitCtx, fqdn, value)
		if len(pending) == 0 {
			c.logger.Info("TXT record visible on all nameservers",
				slog.String("fqdn", fqdn),
				slog.Duration("elapsed", time.Since(start)),
			)
			return nil
		}

		c.logger.Debug("TXT record not yet visible",
			slog.String("fqdn", fqdn),
			slog.String("pending", strings.Join(pending, ",")),
		)

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s not visible on %s after %s",
				ErrTimeout, fqdn, strings.Join(pending, ", "), c.timeout)
		case <-ticker.C:
		}
	}
}

// pending returns the nameservers that do not yet serve value at fqdn.
func (c *Checker) pending(ctx context.Context, fqdn, value string) []string {
	var pending []string
	for _, server := range c.nameservers {
		values, err := c.Lookup(ctx, server, fqdn)
		if err != nil {
			c.logger.Debug("TXT lookup failed",
				slog.String("server", server),
				slog.String("fqdn", fqdn),
				slog.String("error", err.Error()),
			)
			pending = append(pending, server)
			continue
		}
		if !slices.Contains(values, value) {
			pending = append(pending, server)
		}
	}
	return pending
}

// Lookup returns the TXT values server holds for fqdn. A name that does not
// exist yields no values and no error.
func (c *Checker) Lookup(ctx context.Context, server, fqdn string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := c.client.ExchangeContext(ctx, msg, server)
	if err == nil && resp.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: c.client.Timeout}
		resp, _, err = tcp.ExchangeContext(ctx, msg, server)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", server, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("querying %s: server returned %s", server, dns.RcodeToString[resp.Rcode])
	}

	var values []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

func withPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), "53")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
