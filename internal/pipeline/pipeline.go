// Package pipeline orchestrates one poll cycle: fetch relay messages once,
// then for each station run the raw sync (relay to raw table) followed by
// the clean sync (raw tail to clean table). The pipeline holds no state
// between cycles; the store is the only durable record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
	"github.com/viu-hydromet/wx-ingest/internal/observability"
	"github.com/viu-hydromet/wx-ingest/internal/station"
)

// Tier labels for logs and metrics.
const (
	TierRaw   = "raw"
	TierClean = "clean"
)

// MessageFetcher pulls up to count undelivered messages from the
// satellite relay.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, count int) ([]domain.RawMessage, error)
}

// Store reads table tails and appends output rows.
type Store interface {
	// ReadTail returns the most recent limit rows of a table, newest first.
	ReadTail(ctx context.Context, table string, columns []string, limit int) (domain.StoreTail, error)
	// AppendRows appends rows in order as one atomic unit; absent fields
	// are written as SQL NULL.
	AppendRows(ctx context.Context, table string, columns []string, rows []domain.OutputRow) error
}

// RowPublisher forwards clean rows to downstream consumers. Publishing is
// best effort; the relational store stays the source of truth.
type RowPublisher interface {
	PublishRows(ctx context.Context, stationID string, rows []domain.OutputRow) error
}

// Pipeline runs the per-cycle sync for a fixed set of stations.
type Pipeline struct {
	fetcher   MessageFetcher
	store     Store
	publisher RowPublisher // nil disables publishing
	stations  []station.Station
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	fetchCount int
	tailLimit  int
	ready      atomic.Bool
}

// New creates a Pipeline. Pass a nil publisher to disable Kafka output.
func New(fetcher MessageFetcher, store Store, publisher RowPublisher, stations []station.Station,
	logger *slog.Logger, metrics *observability.Metrics, fetchCount, tailLimit int) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		store:      store,
		publisher:  publisher,
		stations:   stations,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		fetchCount: fetchCount,
		tailLimit:  tailLimit,
	}
}

// SetClock swaps the time source so tests can freeze cycle timing.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	if c == nil {
		p.clock = clockwork.NewRealClock()
		return
	}
	p.clock = c
}

// CheckReadiness returns nil once at least one full cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no poll cycle has completed yet")
	}
	return nil
}

// RunCycle executes one poll cycle. A fetch failure aborts the whole
// cycle; a station+tier failure is logged and counted but leaves the
// remaining stations unaffected. Each station is processed sequentially:
// its raw sync completes (or confirms no new data) before its clean sync
// reads the raw tail.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	start := p.clock.Now()

	msgs, err := p.fetcher.FetchMessages(ctx, p.fetchCount)
	if err != nil {
		for _, st := range p.stations {
			p.metrics.SyncErrors.WithLabelValues(st.ID, TierRaw, "fetch").Inc()
		}
		return fmt.Errorf("fetch messages: %w", err)
	}
	p.metrics.MessagesFetched.Add(float64(len(msgs)))

	// The relay returns newest first; restore arrival order so the
	// stable sort breaks timestamp ties by original arrival.
	ordered := make([]domain.RawMessage, len(msgs))
	for i, m := range msgs {
		ordered[len(msgs)-1-i] = m
	}

	for _, st := range p.stations {
		if err := p.syncRaw(ctx, st, ordered); err != nil {
			p.logger.Error("raw sync failed", "station", st.ID, "error", err)
		} else if err := p.syncClean(ctx, st); err != nil {
			p.logger.Error("clean sync failed", "station", st.ID, "error", err)
		}
	}

	p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	return nil
}

// syncRaw decodes the cycle's messages for one station and appends the
// genuinely new records to the raw table. Undecodable messages and
// sub-readings are dropped individually; the rest of the batch proceeds.
func (p *Pipeline) syncRaw(ctx context.Context, st station.Station, msgs []domain.RawMessage) error {
	var records []domain.Record
	for _, msg := range msgs {
		recs, err := domain.Decode(msg, st.ID, st.Layout)
		if err != nil {
			p.logger.Warn("dropping undecodable message",
				"station", st.ID, "message_id", msg.ID, "error", err)
			p.metrics.DecodeErrors.WithLabelValues(st.ID).Inc()
		}
		records = append(records, recs...)
	}
	p.metrics.RecordsDecoded.WithLabelValues(st.ID).Add(float64(len(records)))

	batch := domain.Prepare(records, st.Exclusions)
	_, err := p.syncTier(ctx, st, TierRaw, batch, st.RawSpec(), st.RawTable)
	return err
}

// syncClean treats the raw table's tail as the incoming batch and appends
// whatever the clean table is missing, then publishes the new rows when a
// publisher is configured.
func (p *Pipeline) syncClean(ctx context.Context, st station.Station) error {
	rawTail, err := p.store.ReadTail(ctx, st.RawTable, st.RawColumns, p.tailLimit)
	if err != nil {
		p.metrics.SyncErrors.WithLabelValues(st.ID, TierClean, "store").Inc()
		return fmt.Errorf("read raw tail: %w", err)
	}

	rows, err := p.syncTier(ctx, st, TierClean, rawTail.Ascending(), st.CleanSpec, st.CleanTable)
	if err != nil || len(rows) == 0 || p.publisher == nil {
		return err
	}

	if err := p.publisher.PublishRows(ctx, st.ID, rows); err != nil {
		// Best effort: the store write already succeeded.
		p.logger.Warn("publish clean rows failed", "station", st.ID, "error", err)
		return nil
	}
	p.metrics.RowsPublished.Add(float64(len(rows)))
	return nil
}

// syncTier reconciles a prepared batch against one tier table and appends
// the derived suffix. Returns the appended rows, if any.
func (p *Pipeline) syncTier(ctx context.Context, st station.Station, tier string,
	batch []domain.Record, spec []domain.ColumnSpec, table string) ([]domain.OutputRow, error) {
	columns := domain.Columns(spec)

	tail, err := p.store.ReadTail(ctx, table, columns, p.tailLimit)
	if err != nil {
		p.metrics.SyncErrors.WithLabelValues(st.ID, tier, "store").Inc()
		return nil, fmt.Errorf("read tail of %s: %w", table, err)
	}

	fresh, err := domain.Reconcile(batch, tail)
	if err != nil {
		p.metrics.SyncErrors.WithLabelValues(st.ID, tier, "reconcile").Inc()
		return nil, fmt.Errorf("reconcile %s: %w", table, err)
	}
	if len(fresh) == 0 {
		p.logger.Info("no new data", "station", st.ID, "tier", tier)
		return nil, nil
	}

	rows := domain.Derive(fresh, spec)
	if err := p.store.AppendRows(ctx, table, columns, rows); err != nil {
		p.metrics.SyncErrors.WithLabelValues(st.ID, tier, "store").Inc()
		return nil, fmt.Errorf("append to %s: %w", table, err)
	}

	p.metrics.RowsWritten.WithLabelValues(st.ID, tier).Add(float64(len(rows)))
	p.logger.Info("wrote new rows", "station", st.ID, "tier", tier, "rows", len(rows))
	return rows, nil
}
