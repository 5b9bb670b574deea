package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/skuledger/skuledger/internal/model"
)

const (
	defaultBaseURL = "https://api.airtable.com/v0"
	requestTimeout = 20 * time.Second
	batchSize      = 10
	maxInflight    = 4
	exportTimeout  = time.Minute
)

// SettingsSource yields the current app settings. The sink re-reads them on
// every export, so enabling or re-keying Airtable from the admin surface
// takes effect without a restart.
type SettingsSource interface {
	Get(ctx context.Context) (*model.Settings, error)
}

// StockSnapshot is one row of the stock-table export.
type StockSnapshot struct {
	SKU    string
	OnHand int
}

// EventRow is one appended row of the events-table export.
type EventRow struct {
	SiteID    string
	OrderID   string
	SKU       string
	Delta     int
	EventType string
	NewOnHand int
}

// Sink mirrors stock levels and applied events into Airtable. It is not a
// source of truth: every write is best-effort, failures are logged and never
// surface to the intake path. The sink stays idle until an API key and base
// ID are configured.
type Sink struct {
	settings SettingsSource
	client   *http.Client
	sem      *semaphore.Weighted
	baseURL  string
}

// NewSink creates a sink reading its Airtable coordinates from settings.
func NewSink(settings SettingsSource) *Sink {
	return &Sink{
		settings: settings,
		client:   &http.Client{Timeout: requestTimeout},
		sem:      semaphore.NewWeighted(maxInflight),
		baseURL:  defaultBaseURL,
	}
}

// ExportAsync queues an export of the given rows and returns immediately.
func (s *Sink) ExportAsync(snapshots []StockSnapshot, events []EventRow) {
	if len(snapshots) == 0 && len(events) == 0 {
		return
	}
	go s.export(snapshots, events)
}

func (s *Sink) export(snapshots []StockSnapshot, events []EventRow) {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	// The semaphore caps concurrent exports; a burst beyond the cap waits
	// here, in its own goroutine, never in a request handler.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Warn().Err(err).Msg("analytics export abandoned, too many in flight")
		return
	}
	defer s.sem.Release(1)

	settings, err := s.settings.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("analytics export skipped, could not load settings")
		return
	}
	if settings.AirtableAPIKey == "" || settings.AirtableBaseID == "" {
		return
	}

	s.upsertSnapshots(ctx, settings, snapshots)
	s.appendEvents(ctx, settings, events)
}

// upsertSnapshots merges stock rows on the SKU field, at most ten records per
// request (the Airtable batch limit).
func (s *Sink) upsertSnapshots(ctx context.Context, settings *model.Settings, snapshots []StockSnapshot) {
	if len(snapshots) == 0 || settings.AirtableStockTable == "" {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	records := make([]airtableRecord, 0, len(snapshots))
	for _, snap := range snapshots {
		records = append(records, airtableRecord{Fields: map[string]any{
			"SKU":        snap.SKU,
			"On Hand":    snap.OnHand,
			"Updated At": now,
		}})
	}

	tableURL := s.tableURL(settings.AirtableBaseID, settings.AirtableStockTable)
	for _, batch := range inBatches(records) {
		payload := upsertPayload{
			PerformUpsert: upsertSpec{FieldsToMergeOn: []string{"SKU"}},
			Records:       batch,
		}
		if err := s.send(ctx, http.MethodPatch, tableURL, settings.AirtableAPIKey, payload); err != nil {
			log.Error().Err(err).Str("table", settings.AirtableStockTable).Msg("airtable stock upsert failed")
		}
	}
}

// appendEvents creates event rows; the events table has no merge key.
func (s *Sink) appendEvents(ctx context.Context, settings *model.Settings, events []EventRow) {
	if len(events) == 0 || settings.AirtableEventsTable == "" {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	records := make([]airtableRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, airtableRecord{Fields: map[string]any{
			"Site":          ev.SiteID,
			"Order ID":      ev.OrderID,
			"SKU":           ev.SKU,
			"Delta":         ev.Delta,
			"Event Type":    ev.EventType,
			"On Hand After": ev.NewOnHand,
			"Timestamp":     now,
		}})
	}

	tableURL := s.tableURL(settings.AirtableBaseID, settings.AirtableEventsTable)
	for _, batch := range inBatches(records) {
		if err := s.send(ctx, http.MethodPost, tableURL, settings.AirtableAPIKey, createPayload{Records: batch}); err != nil {
			log.Error().Err(err).Str("table", settings.AirtableEventsTable).Msg("airtable event write failed")
		}
	}
}

type airtableRecord struct {
	Fields map[string]any `json:"fields"`
}

type upsertSpec struct {
	FieldsToMergeOn []string `json:"fieldsToMergeOn"`
}

type upsertPayload struct {
	PerformUpsert upsertSpec       `json:"performUpsert"`
	Records       []airtableRecord `json:"records"`
}

type createPayload struct {
	Records []airtableRecord `json:"records"`
}

func (s *Sink) tableURL(baseID, table string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, baseID, url.PathEscape(table))
}

func inBatches(records []airtableRecord) [][]airtableRecord {
	var batches [][]airtableRecord
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

func (s *Sink) send(ctx context.Context, method, tableURL, apiKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, tableURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("%s %s: status %d: %s", method, tableURL, resp.StatusCode, respBody)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
