package domain

import (
	"strconv"
	"strings"
	"time"
)

// ReadingSpec locates one sub-reading inside a message: the column holding
// its hour and the first of its value columns. Value columns run
// positionally from ValueStart across the layout's FieldNames.
type ReadingSpec struct {
	HourCol    int `yaml:"hour_col"`
	ValueStart int `yaml:"value_start"`
}

// Layout describes how a station packs readings into one message.
type Layout struct {
	// Arity is the exact comma-separated field count of a valid payload.
	Arity int `yaml:"arity"`
	// Label, when set, must match column 0 for the message to belong to
	// this station. Stations sharing a Swarm application are told apart
	// this way.
	Label    string `yaml:"label,omitempty"`
	YearCol  int    `yaml:"year_col"`
	MonthCol int    `yaml:"month_col"`
	DayCol   int    `yaml:"day_col"`
	// HourSuffix is a literal marker trailing hour fields ("h"), trimmed
	// before parsing.
	HourSuffix string `yaml:"hour_suffix,omitempty"`
	// MidnightMarker is the hour string that flags a rollover reading: the
	// datalogger encodes the day's last reading under the previous day's
	// date with this hour. Applies to sub-readings after the first.
	MidnightMarker string `yaml:"midnight_marker,omitempty"`
	// FieldNames names the value columns of each sub-reading, in wire order.
	FieldNames []string      `yaml:"field_names"`
	Readings   []ReadingSpec `yaml:"readings"`
}

// Decode splits a raw message payload into zero or more records per the
// station layout. A dual-reading layout yields up to two records; a
// sub-reading with a blank hour field is absent and yields none.
//
// Messages carrying another station's label decode to zero records with no
// error. A field-count mismatch returns a MalformedMessageError; a bad
// date component returns an InvalidTimestampError for that sub-reading.
// Records decoded before the failing sub-reading are still returned.
//
// Value fields that are blank or non-numeric are left out of the record,
// surfacing downstream as NULL rather than a fabricated number.
func Decode(msg RawMessage, stationID string, layout Layout) ([]Record, error) {
	fields := strings.Split(strings.TrimSpace(msg.Payload), ",")

	if layout.Label != "" && (len(fields) == 0 || fields[0] != layout.Label) {
		return nil, nil
	}
	if len(fields) != layout.Arity {
		return nil, &MalformedMessageError{StationID: stationID, Got: len(fields), Want: layout.Arity}
	}

	var records []Record
	for i, rd := range layout.Readings {
		hourStr := strings.TrimSuffix(fields[rd.HourCol], layout.HourSuffix)
		if strings.TrimSpace(hourStr) == "" {
			continue
		}

		rollover := i > 0 && layout.MidnightMarker != "" && hourStr == layout.MidnightMarker
		ts, err := normalizeTimestamp(stationID,
			fields[layout.YearCol], fields[layout.MonthCol], fields[layout.DayCol],
			hourStr, rollover)
		if err != nil {
			return records, err
		}

		values := make(map[string]float64, len(layout.FieldNames))
		for j, name := range layout.FieldNames {
			raw := strings.TrimSpace(fields[rd.ValueStart+j])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			values[name] = v
		}

		records = append(records, Record{StationID: stationID, Time: ts, Fields: values})
	}

	return records, nil
}

// normalizeTimestamp assembles a calendar instant from split date fields.
// With rollover set the constructed day is advanced by one, undoing the
// datalogger's previous-day encoding of the midnight reading.
func normalizeTimestamp(stationID, yearS, monthS, dayS, hourS string, rollover bool) (time.Time, error) {
	year, err := parseDateComponent(stationID, "year", yearS, 2000, 2100)
	if err != nil {
		return time.Time{}, err
	}
	month, err := parseDateComponent(stationID, "month", monthS, 1, 12)
	if err != nil {
		return time.Time{}, err
	}
	day, err := parseDateComponent(stationID, "day", dayS, 1, 31)
	if err != nil {
		return time.Time{}, err
	}
	hour, err := parseDateComponent(stationID, "hour", hourS, 0, 23)
	if err != nil {
		return time.Time{}, err
	}

	t := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// time.Date normalized an impossible date like April 31.
		return time.Time{}, &InvalidTimestampError{StationID: stationID, Component: "day", Value: dayS}
	}
	if rollover {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseDateComponent(stationID, name, raw string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < lo || v > hi {
		return 0, &InvalidTimestampError{StationID: stationID, Component: name, Value: raw}
	}
	return v, nil
}

// WaterYear returns the hydrological year of t. A water year starts on
// October 1: September 2023 is water year 2023, October 2023 is 2024.
func WaterYear(t time.Time) int {
	if t.Month() < time.October {
		return t.Year()
	}
	return t.Year() + 1
}
