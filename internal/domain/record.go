package domain

import "time"

// RawMessage is one transport message fetched from the satellite relay.
// Payload is the base64-decoded ASCII line; ID is the relay-assigned
// message id, kept for acknowledgement and diagnostics.
type RawMessage struct {
	ID          int64
	Payload     string
	ReceiptTime time.Time
}

// Record is a decoded, timestamped reading for one station. Fields maps
// column names to numeric values; an absent key means "no value" and is
// persisted as SQL NULL downstream.
type Record struct {
	StationID string
	Time      time.Time
	Fields    map[string]float64
}

// OutputRow is a fully derived record ready for an append-only write.
// Fields is keyed by output column name; absent columns become NULL.
type OutputRow struct {
	Time   time.Time
	Fields map[string]float64
}

// StoreTail holds the most recent persisted records of a station+tier
// table, ordered newest first. Tail queries always run
// ORDER BY "DateTime" DESC so callers never have to infer direction.
type StoreTail struct {
	Records []Record
}

// Empty reports whether the table held no rows at read time.
func (t StoreTail) Empty() bool { return len(t.Records) == 0 }

// Latest returns the newest persisted timestamp. ok is false when the
// tail is empty.
func (t StoreTail) Latest() (latest time.Time, ok bool) {
	if len(t.Records) == 0 {
		return time.Time{}, false
	}
	return t.Records[0].Time, true
}

// Ascending returns the tail records in chronological order, oldest
// first, without mutating the tail.
func (t StoreTail) Ascending() []Record {
	out := make([]Record, len(t.Records))
	for i, r := range t.Records {
		out[len(t.Records)-1-i] = r
	}
	return out
}

// Window is a closed date range whose records are always discarded,
// used to drop known-bad transmissions.
type Window struct {
	From time.Time `yaml:"from"`
	To   time.Time `yaml:"to"`
}

// Contains reports whether t falls inside the window (inclusive).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
