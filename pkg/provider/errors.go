package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds for challenge operations. Typed errors below unwrap to one of
// these so callers can branch with errors.Is without matching strings.
var (
	// ErrZoneNotFound indicates no hosted zone owns the requested domain.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrNotASuffix indicates a record name does not belong to the resolved zone.
	ErrNotASuffix = errors.New("name is not within zone")

	// ErrConflict indicates a record already exists at the target host.
	ErrConflict = errors.New("record already exists")

	// ErrReconciliation indicates the number of matching records was not exactly one.
	ErrReconciliation = errors.New("unexpected number of matching records")

	// ErrUnauthorized indicates authentication failed.
	ErrUnauthorized = errors.New("unauthorized")
)

// ZoneNotFoundError is returned when no candidate suffix of a domain is
// hosted by the provider.
type ZoneNotFoundError struct {
	Domain     string
	Candidates []string
}

func (e *ZoneNotFoundError) Error() string {
	return fmt.Sprintf("no hosted zone found for %s (tried %s)", e.Domain, strings.Join(e.Candidates, ", "))
}

func (e *ZoneNotFoundError) Unwrap() error {
	return ErrZoneNotFound
}

// NotASuffixError is returned when splitting a name against a zone it does not end with.
type NotASuffixError struct {
	Name string
	Zone string
}

func (e *NotASuffixError) Error() string {
	return fmt.Sprintf("record name %q is not within zone %q", e.Name, e.Zone)
}

func (e *NotASuffixError) Unwrap() error {
	return ErrNotASuffix
}

// ConflictError is returned when a challenge record is already present.
type ConflictError struct {
	Zone string
	Host string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("found an existing record at %s in zone %s", e.Host, e.Zone)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ReconciliationError is returned when deletion finds zero or several
// records matching host and content.
type ReconciliationError struct {
	Zone  string
	Host  string
	Found int
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("expected 1 TXT record at %s in zone %s to delete, found %d", e.Host, e.Zone, e.Found)
}

func (e *ReconciliationError) Unwrap() error {
	return ErrReconciliation
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required configuration field.
func ErrConfigMissing(field string) error {
	return &ConfigError{
		Field:   field,
		Message: "required but not set",
	}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ProviderError wraps a transport or API failure with provider context.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Err:       err,
	}
}

// IsZoneNotFound returns true if no hosted zone matched.
func IsZoneNotFound(err error) bool {
	return errors.Is(err, ErrZoneNotFound)
}

// IsNotASuffix returns true if a name was split against the wrong zone.
func IsNotASuffix(err error) bool {
	return errors.Is(err, ErrNotASuffix)
}

// IsConflict returns true if the error indicates a record already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsReconciliation returns true if deletion did not find exactly one match.
func IsReconciliation(err error) bool {
	return errors.Is(err, ErrReconciliation)
}

// IsUnauthorized returns true if the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsProviderError returns true if the error came from the provider transport.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
