package twentyi

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// probeLabel is prepended to the domain to build the first probe candidate.
const probeLabel = "_acme_challenge"

// ZoneResolver finds the hosted zone that owns a domain.
type ZoneResolver struct {
	api    API
	logger *slog.Logger
}

// NewZoneResolver creates a resolver probing zones through api.
func NewZoneResolver(api API, logger *slog.Logger) *ZoneResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoneResolver{api: api, logger: logger}
}

// CandidateZones lists the names probed for domain, most specific first.
// Example: "app.example.com" ->
// ["_acme_challenge.app.example.com", "app.example.com", "example.com", "com"]
func CandidateZones(domain string) []string {
	name := strings.TrimRight(probeLabel+"."+domain, ".")
	labels := strings.Split(name, ".")

	candidates := make([]string, 0, len(labels))
	for i := range labels {
		candidates = append(candidates, strings.Join(labels[i:], "."))
	}
	return candidates
}

// ResolveZone returns the longest candidate of domain that 20i confirms as a
// hosted zone.
//
// Not-found class responses move on to the next candidate. Anything else
// (bad credentials, rate limiting, server errors, network failures) stops the
// probe with a *provider.ProviderError so an outage is never reported as a
// missing zone.
func (r *ZoneResolver) ResolveZone(ctx context.Context, domain string) (string, error) {
	candidates := CandidateZones(domain)

	for _, candidate := range candidates {
		err := r.api.Get(ctx, domainPath(candidate), nil)
		if err == nil {
			metrics.ZoneLookupsTotal.WithLabelValues(metrics.ZoneFound).Inc()
			r.logger.Debug("found zone",
				slog.String("domain", domain),
				slog.String("zone", candidate),
			)
			return candidate, nil
		}

		if !IsNotFoundClass(err) {
			metrics.ZoneLookupsTotal.WithLabelValues(metrics.ZoneError).Inc()
			return "", provider.WrapError(ProviderName, "looking up zone "+candidate, err)
		}

		r.logger.Debug("candidate is not a hosted zone",
			slog.String("domain", domain),
			slog.String("candidate", candidate),
			slog.String("error", err.Error()),
		)
	}

	metrics.ZoneLookupsTotal.WithLabelValues(metrics.ZoneNotFound).Inc()
	return "", &provider.ZoneNotFoundError{Domain: domain, Candidates: candidates}
}

// domainPath is GET /domain/{zone}.
func domainPath(zone string) string {
	return "/domain/" + url.PathEscape(zone)
}

// dnsPath is GET/POST /domain/{zone}/dns.
func dnsPath(zone string) string {
	return domainPath(zone) + "/dns"
}
