package twentyi

import (
	"context"
	"time"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"

	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// DNSProvider adapts an Authenticator to lego's DNS-01 challenge.Provider.
type DNSProvider struct {
	//nolint:containedctx // lego's interface carries no context
	ctx      context.Context
	auth     provider.Authenticator
	timeout  time.Duration
	interval time.Duration
}

// NewDNSProvider wraps p for use with a lego client. ctx bounds every
// provider call lego triggers.
func NewDNSProvider(ctx context.Context, p *Provider) *DNSProvider {
	timeout, interval := p.Timeout()
	return &DNSProvider{
		ctx:      ctx,
		auth:     p,
		timeout:  timeout,
		interval: interval,
	}
}

// Present publishes the challenge TXT record for domain.
func (d *DNSProvider) Present(domain, _, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return d.auth.Perform(d.ctx, dns01.UnFqdn(domain), dns01.UnFqdn(info.FQDN), info.Value)
}

// CleanUp removes the challenge TXT record for domain.
func (d *DNSProvider) CleanUp(domain, _, keyAuth string) error {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return d.auth.Cleanup(d.ctx, dns01.UnFqdn(domain), dns01.UnFqdn(info.FQDN), info.Value)
}

// Timeout returns how long lego should wait for propagation and how often to check.
func (d *DNSProvider) Timeout() (timeout, interval time.Duration) {
	return d.timeout, d.interval
}

// Ensure DNSProvider satisfies lego's interfaces at compile time.
var (
	_ challenge.Provider        = (*DNSProvider)(nil)
	_ challenge.ProviderTimeout = (*DNSProvider)(nil)
)
