package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
	"github.com/viu-hydromet/wx-ingest/internal/observability"
	"github.com/viu-hydromet/wx-ingest/internal/pipeline"
	"github.com/viu-hydromet/wx-ingest/internal/station"
)

// --- fakes ---

type fakeFetcher struct {
	messages []domain.RawMessage
	err      error
	calls    int
}

func (f *fakeFetcher) FetchMessages(_ context.Context, _ int) ([]domain.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

// fakeStore keeps rows per table in insertion (ascending) order, the way
// an append-only table accumulates them.
type fakeStore struct {
	tables    map[string][]domain.OutputRow
	appendErr error
	readErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]domain.OutputRow{}}
}

func (s *fakeStore) ReadTail(_ context.Context, table string, _ []string, limit int) (domain.StoreTail, error) {
	if s.readErr != nil {
		return domain.StoreTail{}, s.readErr
	}
	rows := s.tables[table]
	tail := domain.StoreTail{}
	for i := len(rows) - 1; i >= 0 && len(tail.Records) < limit; i-- {
		fields := make(map[string]float64, len(rows[i].Fields))
		for k, v := range rows[i].Fields {
			fields[k] = v
		}
		tail.Records = append(tail.Records, domain.Record{Time: rows[i].Time, Fields: fields})
	}
	return tail, nil
}

func (s *fakeStore) AppendRows(_ context.Context, table string, _ []string, rows []domain.OutputRow) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.tables[table] = append(s.tables[table], rows...)
	return nil
}

type fakePublisher struct {
	published map[string]int
	err       error
}

func (p *fakePublisher) PublishRows(_ context.Context, stationID string, rows []domain.OutputRow) error {
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = map[string]int{}
	}
	p.published[stationID] += len(rows)
	return nil
}

// --- helpers ---

func mayaStation(t *testing.T) station.Station {
	t.Helper()
	for _, st := range station.Defaults() {
		if st.ID == "mountmaya" {
			return st
		}
	}
	t.Fatal("mountmaya not in defaults")
	return station.Station{}
}

// mayaMessage builds a valid Mount Maya payload for the given hour with a
// configurable precipitation gauge level.
func mayaMessage(ts time.Time, gauge float64) domain.RawMessage {
	return domain.RawMessage{
		ID: ts.Unix(),
		Payload: fmt.Sprintf("MAYA,1,%d,%d,%d,%d,13.2,8.5,77.1,2.113,1.2,3.4,180.5,12.2,0.0,94.1,520.0,%.3f",
			ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), gauge),
		ReceiptTime: ts,
	}
}

// newestFirst mimics relay delivery order.
func newestFirst(msgs ...domain.RawMessage) []domain.RawMessage {
	out := make([]domain.RawMessage, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

func newPipeline(f pipeline.MessageFetcher, s pipeline.Store, pub pipeline.RowPublisher, stations ...station.Station) *pipeline.Pipeline {
	return pipeline.New(f, s, pub, stations, slog.Default(), observability.NewMetricsForTesting(), 1000, 1000)
}

func at(day, hour int) time.Time {
	return time.Date(2023, 7, day, hour, 0, 0, 0, time.UTC)
}

// --- tests ---

func TestRunCycle_FirstSyncWritesBothTiers(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{messages: newestFirst(
		mayaMessage(at(12, 21), 0.412),
		mayaMessage(at(12, 22), 0.415),
		mayaMessage(at(12, 23), 0.415),
	)}
	store := newFakeStore()
	pub := &fakePublisher{}

	p := newPipeline(fetcher, store, pub, st)
	require.NoError(t, p.RunCycle(context.Background()))

	raw := store.tables["raw_mountmaya"]
	require.Len(t, raw, 3)
	assert.Equal(t, at(12, 21), raw[0].Time)
	assert.Equal(t, at(12, 23), raw[2].Time)
	assert.Equal(t, 0.412, raw[0].Fields["PrecipGaugeLvl_Avg"])

	clean := store.tables["clean_mountmaya"]
	require.Len(t, clean, 3)
	assert.Equal(t, 2023.0, clean[0].Fields["WatYr"])
	assert.InDelta(t, 4.32, clean[0].Fields["Wind_speed"], 1e-9)
	assert.InDelta(t, 168.7, clean[0].Fields["Snow_Depth"], 1e-9)
	assert.InDelta(t, 412.0, clean[0].Fields["PC_Raw_Pipe"], 1e-9)
	assert.Equal(t, 0.0, clean[0].Fields["PP_Pipe"])
	assert.InDelta(t, 3.0, clean[1].Fields["PP_Pipe"], 1e-9)
	assert.InDelta(t, 0.0, clean[2].Fields["PP_Pipe"], 1e-9)

	assert.Equal(t, 3, pub.published["mountmaya"])
}

func TestRunCycle_IdempotentOnUnchangedRelay(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{messages: newestFirst(
		mayaMessage(at(12, 22), 0.412),
		mayaMessage(at(12, 23), 0.415),
	)}
	store := newFakeStore()

	p := newPipeline(fetcher, store, nil, st)
	require.NoError(t, p.RunCycle(context.Background()))
	require.NoError(t, p.RunCycle(context.Background()))

	assert.Len(t, store.tables["raw_mountmaya"], 2)
	assert.Len(t, store.tables["clean_mountmaya"], 2)
}

func TestRunCycle_AppendsOnlyTheSuffix(t *testing.T) {
	st := mayaStation(t)
	older := []domain.RawMessage{
		mayaMessage(at(12, 22), 0.412),
		mayaMessage(at(12, 23), 0.415),
	}
	fetcher := &fakeFetcher{messages: newestFirst(older...)}
	store := newFakeStore()

	p := newPipeline(fetcher, store, nil, st)
	require.NoError(t, p.RunCycle(context.Background()))

	// Next cycle the relay still holds the old messages plus one new.
	fetcher.messages = newestFirst(append(older, mayaMessage(at(13, 0), 0.418))...)
	require.NoError(t, p.RunCycle(context.Background()))

	raw := store.tables["raw_mountmaya"]
	require.Len(t, raw, 3)
	assert.Equal(t, at(13, 0), raw[2].Time)

	clean := store.tables["clean_mountmaya"]
	require.Len(t, clean, 3)
	// The new row starts a fresh derivation batch: its delta is zero by
	// definition, even though the gauge rose. Known under-count.
	assert.Equal(t, 0.0, clean[2].Fields["PP_Pipe"])
}

func TestRunCycle_ExclusionWindowSuppressesWrites(t *testing.T) {
	// Store tail ends 2023-07-12 23:00; the relay offers two 07-13
	// records, but 07-13 is excluded wholesale: no write, no error.
	st := mayaStation(t)
	fetcher := &fakeFetcher{messages: newestFirst(
		mayaMessage(at(12, 23), 0.412),
	)}
	store := newFakeStore()
	p := newPipeline(fetcher, store, nil, st)
	require.NoError(t, p.RunCycle(context.Background()))
	require.Len(t, store.tables["raw_mountmaya"], 1)

	fetcher.messages = newestFirst(
		mayaMessage(at(12, 23), 0.412),
		mayaMessage(at(13, 0), 0.415),
		mayaMessage(at(13, 1), 0.418),
	)
	require.NoError(t, p.RunCycle(context.Background()))

	assert.Len(t, store.tables["raw_mountmaya"], 1)
	assert.Len(t, store.tables["clean_mountmaya"], 1)
}

func TestRunCycle_MalformedMessageSkipped(t *testing.T) {
	st := mayaStation(t)
	good := mayaMessage(at(12, 23), 0.412)
	bad := domain.RawMessage{ID: 99, Payload: "MAYA,totally,truncated"}
	fetcher := &fakeFetcher{messages: []domain.RawMessage{good, bad}}
	store := newFakeStore()

	p := newPipeline(fetcher, store, nil, st)
	require.NoError(t, p.RunCycle(context.Background()))

	assert.Len(t, store.tables["raw_mountmaya"], 1)
}

func TestRunCycle_FetchFailureAbortsCycle(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{err: errors.New("relay unreachable")}
	store := newFakeStore()

	p := newPipeline(fetcher, store, nil, st)
	err := p.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch messages")
	assert.Empty(t, store.tables)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestRunCycle_ReconcileFailureIsolatedPerStation(t *testing.T) {
	var maya, russell station.Station
	for _, st := range station.Defaults() {
		switch st.ID {
		case "mountmaya":
			maya = st
		case "upperrussell":
			russell = st
		}
	}

	// Seed the maya raw table with a timestamp newer than anything the
	// relay will offer: reconciliation must fail for maya only.
	store := newFakeStore()
	store.tables["raw_mountmaya"] = []domain.OutputRow{
		{Time: at(20, 0), Fields: map[string]float64{"PrecipGaugeLvl_Avg": 0.5}},
	}

	s9 := domain.RawMessage{
		ID:      7,
		Payload: "S9,2023,7,12,22h,12.1,-1.2,88,0,0,0.512,0.3,0.01,23h,12.0,-1.5,89,0,0,0.513,0.31,0.01",
	}
	fetcher := &fakeFetcher{messages: []domain.RawMessage{s9, mayaMessage(at(12, 23), 0.412)}}

	p := newPipeline(fetcher, store, nil, maya, russell)
	require.NoError(t, p.RunCycle(context.Background()))

	// Maya unchanged, Upper Russell fully synced.
	assert.Len(t, store.tables["raw_mountmaya"], 1)
	assert.Empty(t, store.tables["clean_mountmaya"])
	assert.Len(t, store.tables["raw_upperrussell"], 2)
	assert.Len(t, store.tables["clean_upperrussell"], 2)
}

func TestRunCycle_StoreFailureNoPartialWrite(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{messages: newestFirst(mayaMessage(at(12, 23), 0.412))}
	store := newFakeStore()
	store.appendErr = errors.New("connection reset")

	p := newPipeline(fetcher, store, nil, st)
	require.NoError(t, p.RunCycle(context.Background()))

	assert.Empty(t, store.tables["raw_mountmaya"])
	assert.Empty(t, store.tables["clean_mountmaya"])
}

func TestRunCycle_PublisherFailureDoesNotAbort(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{messages: newestFirst(mayaMessage(at(12, 23), 0.412))}
	store := newFakeStore()
	pub := &fakePublisher{err: errors.New("broker down")}

	p := newPipeline(fetcher, store, pub, st)
	require.NoError(t, p.RunCycle(context.Background()))

	assert.Len(t, store.tables["clean_mountmaya"], 1)
}

func TestCheckReadiness(t *testing.T) {
	st := mayaStation(t)
	fetcher := &fakeFetcher{}
	p := newPipeline(fetcher, newFakeStore(), nil, st)

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.RunCycle(context.Background()))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestRunCycle_DualReadingMidnightRollover(t *testing.T) {
	var russell station.Station
	for _, st := range station.Defaults() {
		if st.ID == "upperrussell" {
			russell = st
		}
	}

	msg := domain.RawMessage{
		ID:      8,
		Payload: "S9,2023,11,4,23h,12.1,-1.2,88,0,0,0.512,0.3,0.01,00h,12.0,-1.5,89,0,0,0.513,0.31,0.01",
	}
	fetcher := &fakeFetcher{messages: []domain.RawMessage{msg}}
	store := newFakeStore()

	p := newPipeline(fetcher, store, nil, russell)
	require.NoError(t, p.RunCycle(context.Background()))

	raw := store.tables["raw_upperrussell"]
	require.Len(t, raw, 2)
	assert.Equal(t, time.Date(2023, 11, 4, 23, 0, 0, 0, time.UTC), raw[0].Time)
	assert.Equal(t, time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC), raw[1].Time)

	clean := store.tables["clean_upperrussell"]
	require.Len(t, clean, 2)
	// November is past the water-year boundary.
	assert.Equal(t, 2024.0, clean[0].Fields["WatYr"])
	assert.InDelta(t, 513.0, clean[1].Fields["PC_Raw_Pipe"], 1e-9)
}
