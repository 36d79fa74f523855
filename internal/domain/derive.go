package domain

import "math"

// Op identifies how one output column is produced from a record.
type Op string

const (
	// OpCopy passes the source field through unchanged.
	OpCopy Op = "copy"
	// OpScale multiplies the source field by Factor (e.g. 3.6 for m/s to
	// km/h, 1000 for metres of gauge level to millimetres).
	OpScale Op = "scale"
	// OpDepth converts a distance-to-surface reading into a depth below
	// the instrument: (Height - value) scaled by Factor and rounded to
	// Digits decimals. RoundFirst rounds the difference before scaling,
	// matching stations whose depth is logged to whole centimetres.
	OpDepth Op = "depth"
	// OpDelta emits the increment over the preceding record's source
	// field, scaled by Factor. The first record of a batch has no
	// predecessor and its delta is defined as zero; across batch
	// boundaries this can under-count one increment, a documented
	// limitation rather than an error.
	OpDelta Op = "delta"
	// OpWaterYear emits the hydrological year of the record timestamp.
	OpWaterYear Op = "water_year"
	// OpNull emits no value, reserving the column for a sensor that is
	// present but not currently trusted.
	OpNull Op = "null"
)

// ColumnSpec defines one output column of a tier table.
type ColumnSpec struct {
	Name       string  `yaml:"name"`
	Op         Op      `yaml:"op"`
	Source     string  `yaml:"source,omitempty"`
	Factor     float64 `yaml:"factor,omitempty"`
	Height     float64 `yaml:"height,omitempty"`
	Digits     int     `yaml:"digits,omitempty"`
	RoundFirst bool    `yaml:"round_first,omitempty"`
}

// Columns returns the output column names of a spec, in table order.
func Columns(spec []ColumnSpec) []string {
	cols := make([]string, len(spec))
	for i, c := range spec {
		cols[i] = c.Name
	}
	return cols
}

// CopySpec builds a pass-through spec mapping each named column to
// itself, as used by the raw tier.
func CopySpec(columns []string) []ColumnSpec {
	spec := make([]ColumnSpec, len(columns))
	for i, name := range columns {
		spec[i] = ColumnSpec{Name: name, Op: OpCopy, Source: name}
	}
	return spec
}

// Derive turns a sequence of new records into output rows per the column
// spec. It is pure and deterministic: incremental columns see only the
// immediately preceding record of the same sequence, and a column whose
// source is absent stays absent in the row.
func Derive(records []Record, spec []ColumnSpec) []OutputRow {
	rows := make([]OutputRow, 0, len(records))
	for i, rec := range records {
		row := OutputRow{Time: rec.Time, Fields: make(map[string]float64, len(spec))}
		for _, col := range spec {
			if v, ok := deriveColumn(col, records, i); ok {
				row.Fields[col.Name] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func deriveColumn(col ColumnSpec, records []Record, i int) (float64, bool) {
	rec := records[i]
	switch col.Op {
	case OpCopy:
		v, ok := rec.Fields[col.Source]
		return v, ok
	case OpScale:
		v, ok := rec.Fields[col.Source]
		if !ok {
			return 0, false
		}
		return v * col.Factor, true
	case OpDepth:
		v, ok := rec.Fields[col.Source]
		if !ok {
			return 0, false
		}
		if col.RoundFirst {
			return roundTo(col.Height-v, col.Digits) * col.Factor, true
		}
		return roundTo((col.Height-v)*col.Factor, col.Digits), true
	case OpDelta:
		if i == 0 {
			return 0, true
		}
		cur, okCur := rec.Fields[col.Source]
		prev, okPrev := records[i-1].Fields[col.Source]
		if !okCur || !okPrev {
			return 0, false
		}
		return (cur - prev) * col.Factor, true
	case OpWaterYear:
		return float64(WaterYear(rec.Time)), true
	case OpNull:
		return 0, false
	default:
		return 0, false
	}
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
