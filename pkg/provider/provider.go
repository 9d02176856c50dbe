// Package provider defines the contract between an ACME issuance workflow and
// a DNS-01 challenge authenticator.
package provider

import "context"

// RecordType represents the type of DNS record.
type RecordType string

// RecordTypeTXT is the only record type a DNS-01 authenticator manages.
const RecordTypeTXT RecordType = "TXT"

// ChallengeLabel is the leftmost label of an ACME DNS-01 validation name.
const ChallengeLabel = "_acme-challenge"

// Record is a DNS record as reported by the provider.
type Record struct {
	Host  string // Fully-qualified host, no trailing dot
	Type  RecordType
	Value string // TXT content
	Ref   string // Raw JSON of the provider identifier, only used for deletion
}

// Authenticator fulfils DNS-01 challenges for a domain.
type Authenticator interface {
	// Perform publishes validationValue as a TXT record at validationName.
	Perform(ctx context.Context, domain, validationName, validationValue string) error

	// Cleanup removes the TXT record published by Perform.
	Cleanup(ctx context.Context, domain, validationName, validationValue string) error

	// MoreInfo describes the authenticator for help output.
	MoreInfo() string
}

// ValidationName returns the DNS-01 validation name for a domain.
// Example: "app.example.com" -> "_acme-challenge.app.example.com"
func ValidationName(domain string) string {
	return ChallengeLabel + "." + domain
}

// RecordMatches returns true if r is a TXT record at host carrying value.
func RecordMatches(r Record, host, value string) bool {
	return r.Type == RecordTypeTXT &&
		r.Host == host &&
		r.Value == value
}
