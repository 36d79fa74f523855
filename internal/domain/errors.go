package domain

import (
	"fmt"
	"time"
)

// MalformedMessageError reports a payload whose shape does not match the
// station layout. The message is dropped; the rest of the batch proceeds.
type MalformedMessageError struct {
	StationID string
	Got       int
	Want      int
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message for %s: %d fields, layout expects %d", e.StationID, e.Got, e.Want)
}

// InvalidTimestampError reports date components that do not assemble into
// a calendar instant. The record is dropped, not retried.
type InvalidTimestampError struct {
	StationID string
	Component string
	Value     string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp for %s: %s %q", e.StationID, e.Component, e.Value)
}

// ReconciliationError reports that no insertion point could be determined
// between a batch and the store tail. The cycle aborts without writing;
// guessing an offset risks a gap or duplicate in durable history.
type ReconciliationError struct {
	StoreLatest   time.Time
	BatchEarliest time.Time
	BatchLatest   time.Time
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("no insertion point: store latest %s not found in batch [%s, %s]",
		e.StoreLatest.Format(time.DateTime),
		e.BatchEarliest.Format(time.DateTime),
		e.BatchLatest.Format(time.DateTime))
}
