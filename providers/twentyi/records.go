package twentyi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// apiRecord is a DNS record as returned by GET /domain/{zone}/dns.
type apiRecord struct {
	Host string          `json:"host"`
	Type string          `json:"type"`
	Txt  string          `json:"txt"`
	Ref  json.RawMessage `json:"ref"`
}

// dnsRecordsResponse wraps the record listing.
type dnsRecordsResponse struct {
	Records []apiRecord `json:"records"`
}

// txtRecordRequest is a single TXT record in a creation request.
type txtRecordRequest struct {
	Host string `json:"host"`
	Txt  string `json:"txt"`
}

// addRecordsRequest is the body of POST /domain/{zone}/dns creating records,
// keyed by record type: {"new": {"TXT": [...]}}.
type addRecordsRequest struct {
	New map[provider.RecordType][]txtRecordRequest `json:"new"`
}

// deleteRecordsRequest is the body of POST /domain/{zone}/dns deleting records by ref.
type deleteRecordsRequest struct {
	Delete []json.RawMessage `json:"delete"`
}

// Record operation names used in logs, metrics and wrapped errors.
const (
	opAdd    = "add"
	opDelete = "delete"
)

// RecordReconciler creates and deletes challenge TXT records after checking
// the provider's current state. Records are re-fetched on every call.
type RecordReconciler struct {
	api    API
	logger *slog.Logger
}

// NewRecordReconciler creates a reconciler talking to api.
func NewRecordReconciler(api API, logger *slog.Logger) *RecordReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordReconciler{api: api, logger: logger}
}

// Records returns every record in zone.
func (r *RecordReconciler) Records(ctx context.Context, zone string) ([]provider.Record, error) {
	var resp dnsRecordsResponse
	if err := r.api.Get(ctx, dnsPath(zone), &resp); err != nil {
		return nil, provider.WrapError(ProviderName, "listing records in "+zone, err)
	}

	records := make([]provider.Record, 0, len(resp.Records))
	for _, rec := range resp.Records {
		records = append(records, provider.Record{
			Host:  rec.Host,
			Type:  provider.RecordType(rec.Type),
			Value: rec.Txt,
			Ref:   string(rec.Ref),
		})
	}

	r.logger.Debug("listed records",
		slog.String("zone", zone),
		slog.Int("count", len(records)),
	)

	return records, nil
}

// AddTXTRecord creates a TXT record named recordName (relative to zone,
// "" for the apex) holding content. Any existing record at that host, of any
// type or content, is a *provider.ConflictError and nothing is written.
func (r *RecordReconciler) AddTXTRecord(ctx context.Context, zone, recordName, content string) error {
	records, err := r.Records(ctx, zone)
	if err != nil {
		metrics.RecordOperationsTotal.WithLabelValues(opAdd, metrics.ResultError).Inc()
		return err
	}

	host := JoinRecordName(recordName, zone)
	for _, rec := range records {
		if rec.Host == host {
			metrics.RecordOperationsTotal.WithLabelValues(opAdd, metrics.ResultConflict).Inc()
			return &provider.ConflictError{Zone: zone, Host: host}
		}
	}

	body := addRecordsRequest{
		New: map[provider.RecordType][]txtRecordRequest{
			provider.RecordTypeTXT: {{Host: wireHost(recordName), Txt: content}},
		},
	}
	if err := r.api.Post(ctx, dnsPath(zone), body, nil); err != nil {
		metrics.RecordOperationsTotal.WithLabelValues(opAdd, metrics.ResultError).Inc()
		return provider.WrapError(ProviderName, "adding TXT record "+host, err)
	}

	metrics.RecordOperationsTotal.WithLabelValues(opAdd, metrics.ResultSuccess).Inc()
	r.logger.Info("created TXT record",
		slog.String("zone", zone),
		slog.String("host", host),
	)

	return nil
}

// DelTXTRecord deletes the one TXT record at recordName whose content equals
// content. Zero or several matches are a *provider.ReconciliationError and
// nothing is deleted.
func (r *RecordReconciler) DelTXTRecord(ctx context.Context, zone, recordName, content string) error {
	records, err := r.Records(ctx, zone)
	if err != nil {
		metrics.RecordOperationsTotal.WithLabelValues(opDelete, metrics.ResultError).Inc()
		return err
	}

	host := JoinRecordName(recordName, zone)
	var matches []provider.Record
	for _, rec := range records {
		if provider.RecordMatches(rec, host, content) {
			matches = append(matches, rec)
		}
	}

	if len(matches) != 1 {
		metrics.RecordOperationsTotal.WithLabelValues(opDelete, metrics.ResultMismatch).Inc()
		return &provider.ReconciliationError{Zone: zone, Host: host, Found: len(matches)}
	}

	ref := matches[0].Ref
	if ref == "" || ref == "null" {
		metrics.RecordOperationsTotal.WithLabelValues(opDelete, metrics.ResultError).Inc()
		return provider.WrapError(ProviderName, "deleting TXT record "+host, errors.New("record has no ref"))
	}

	body := deleteRecordsRequest{Delete: []json.RawMessage{json.RawMessage(ref)}}
	if err := r.api.Post(ctx, dnsPath(zone), body, nil); err != nil {
		metrics.RecordOperationsTotal.WithLabelValues(opDelete, metrics.ResultError).Inc()
		return provider.WrapError(ProviderName, "deleting TXT record "+host, err)
	}

	metrics.RecordOperationsTotal.WithLabelValues(opDelete, metrics.ResultSuccess).Inc()
	r.logger.Info("deleted TXT record",
		slog.String("zone", zone),
		slog.String("host", host),
		slog.String("ref", ref),
	)

	return nil
}
