// Package station holds the per-station configuration table: message
// layouts, exclusion windows, table names, and tier column specs. The
// built-in registry covers the production VIU-Hydromet stations and can
// be replaced wholesale from a YAML file.
package station

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
)

// Station is one weather station's full ingest configuration.
type Station struct {
	ID         string        `yaml:"id"`
	Layout     domain.Layout `yaml:"layout"`
	RawTable   string        `yaml:"raw_table"`
	CleanTable string        `yaml:"clean_table"`
	// RawColumns is the raw table's column order after DateTime. Names
	// match the layout's field names.
	RawColumns []string `yaml:"raw_columns"`
	// RawNullColumns are raw columns written as NULL even when the wire
	// carries a value, e.g. a barometer pending recalibration.
	RawNullColumns []string            `yaml:"raw_null_columns,omitempty"`
	CleanSpec      []domain.ColumnSpec `yaml:"clean_spec"`
	Exclusions     []domain.Window     `yaml:"exclusions,omitempty"`
}

// RawSpec returns the raw tier's derive spec: a pass-through of each raw
// column with the not-trusted ones forced to NULL.
func (s Station) RawSpec() []domain.ColumnSpec {
	spec := domain.CopySpec(s.RawColumns)
	for i, col := range spec {
		for _, null := range s.RawNullColumns {
			if col.Name == null {
				spec[i] = domain.ColumnSpec{Name: col.Name, Op: domain.OpNull}
			}
		}
	}
	return spec
}

// CleanColumns returns the clean table's column order after DateTime.
func (s Station) CleanColumns() []string { return domain.Columns(s.CleanSpec) }

// Load returns the station registry. With an empty path the built-in
// defaults apply; otherwise the YAML file replaces them entirely.
func Load(path string) ([]Station, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}

	var stations []Station
	if err := yaml.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("decode stations file: %w", err)
	}
	for _, st := range stations {
		if err := validate(st); err != nil {
			return nil, fmt.Errorf("station %q: %w", st.ID, err)
		}
	}
	return stations, nil
}

func validate(s Station) error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.RawTable == "" || s.CleanTable == "" {
		return fmt.Errorf("missing table names")
	}
	if s.Layout.Arity <= 0 {
		return fmt.Errorf("layout arity must be positive")
	}
	if len(s.Layout.Readings) == 0 {
		return fmt.Errorf("layout needs at least one reading")
	}
	for _, rd := range s.Layout.Readings {
		if rd.HourCol >= s.Layout.Arity || rd.ValueStart+len(s.Layout.FieldNames) > s.Layout.Arity {
			return fmt.Errorf("reading columns exceed layout arity %d", s.Layout.Arity)
		}
	}
	if len(s.RawColumns) == 0 || len(s.CleanSpec) == 0 {
		return fmt.Errorf("missing tier column specs")
	}
	return nil
}

// Defaults returns the production station registry, transcribed from the
// datalogger programs deployed in the field.
func Defaults() []Station {
	return []Station{mountMaya(), steph6(), upperRussell()}
}

func mountMaya() Station {
	fields := []string{
		"BattV_Avg", "AirTC_Avg", "RH_Avg", "TCDT_Avg",
		"WS_ms_Avg", "WS_ms_Max", "WindDir_D1_WVT", "WindDir_SD1_WVT",
		"Rain_mm_Tot", "BaroP_Avg", "SolarRad_Avg", "PrecipGaugeLvl_Avg",
	}
	return Station{
		ID: "mountmaya",
		Layout: domain.Layout{
			Arity:      18,
			Label:      "MAYA",
			YearCol:    2,
			MonthCol:   3,
			DayCol:     4,
			FieldNames: fields,
			Readings:   []domain.ReadingSpec{{HourCol: 5, ValueStart: 6}},
		},
		RawTable:   "raw_mountmaya",
		CleanTable: "clean_mountmaya",
		RawColumns: fields,
		CleanSpec: []domain.ColumnSpec{
			{Name: "WatYr", Op: domain.OpWaterYear},
			{Name: "Air_Temp", Op: domain.OpCopy, Source: "AirTC_Avg"},
			{Name: "RH", Op: domain.OpCopy, Source: "RH_Avg"},
			{Name: "BP", Op: domain.OpCopy, Source: "BaroP_Avg"},
			{Name: "Wind_speed", Op: domain.OpScale, Source: "WS_ms_Avg", Factor: 3.6},
			{Name: "Wind_Dir", Op: domain.OpCopy, Source: "WindDir_D1_WVT"},
			{Name: "Pk_Wind_Speed", Op: domain.OpScale, Source: "WS_ms_Max", Factor: 3.6},
			{Name: "PP_Tipper", Op: domain.OpCopy, Source: "Rain_mm_Tot"},
			{Name: "PC_Raw_Pipe", Op: domain.OpScale, Source: "PrecipGaugeLvl_Avg", Factor: 1000},
			{Name: "PP_Pipe", Op: domain.OpDelta, Source: "PrecipGaugeLvl_Avg", Factor: 1000},
			// Tower instrument sits ~3.8 m above summer ground.
			{Name: "Snow_Depth", Op: domain.OpDepth, Source: "TCDT_Avg", Height: 3.8, Factor: 100, Digits: 2},
			{Name: "Solar_Rad", Op: domain.OpCopy, Source: "SolarRad_Avg"},
			{Name: "Batt", Op: domain.OpCopy, Source: "BattV_Avg"},
		},
		Exclusions: []domain.Window{
			// 2023-07-13 transmissions were erroneous end to end.
			{
				From: time.Date(2023, 7, 13, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2023, 7, 13, 23, 59, 59, 0, time.UTC),
			},
		},
	}
}

func steph6() Station {
	fields := []string{
		"Batt", "Air_Temp", "RH", "Snow_Depth",
		"Wind_speed", "Pk_Wind_Speed", "Wind_Dir", "Wind_Dir_SD",
		"PP_Tipper", "BP", "Solar_Rad", "PC_Raw_Pipe",
	}
	return Station{
		ID: "steph6",
		Layout: domain.Layout{
			Arity:          30,
			Label:          "S6",
			YearCol:        1,
			MonthCol:       2,
			DayCol:         3,
			HourSuffix:     "h",
			MidnightMarker: "00",
			FieldNames:     fields,
			Readings: []domain.ReadingSpec{
				{HourCol: 4, ValueStart: 5},
				{HourCol: 17, ValueStart: 18},
			},
		},
		RawTable:   "raw_steph6",
		CleanTable: "clean_steph6",
		RawColumns: fields,
		// BP reads in kPa but the sensor awaits recalibration.
		RawNullColumns: []string{"BP"},
		CleanSpec: []domain.ColumnSpec{
			{Name: "WatYr", Op: domain.OpWaterYear},
			{Name: "Batt", Op: domain.OpCopy, Source: "Batt"},
			{Name: "Air_Temp", Op: domain.OpCopy, Source: "Air_Temp"},
			{Name: "RH", Op: domain.OpCopy, Source: "RH"},
			{Name: "Wind_Speed", Op: domain.OpCopy, Source: "Wind_speed"},
			{Name: "Pk_Wind_Speed", Op: domain.OpCopy, Source: "Pk_Wind_Speed"},
			{Name: "Wind_Dir", Op: domain.OpCopy, Source: "Wind_Dir"},
			{Name: "Solar_Rad", Op: domain.OpCopy, Source: "Solar_Rad"},
			// Sensor logs distance to ground; depth is rounded in metres
			// before converting to centimetres.
			{Name: "Snow_Depth", Op: domain.OpDepth, Source: "Snow_Depth", Height: 3.79, Factor: 100, Digits: 2, RoundFirst: true},
			{Name: "PP_Tipper", Op: domain.OpCopy, Source: "PP_Tipper"},
			{Name: "PC_Raw_Pipe", Op: domain.OpScale, Source: "PC_Raw_Pipe", Factor: 1000},
			{Name: "BP", Op: domain.OpNull},
		},
	}
}

func upperRussell() Station {
	fields := []string{
		"Batt", "Air_Temp", "RH", "PP_Tipper",
		"PP_Tipper_cnt", "PC_Raw_Pipe", "River_Thick", "River_Thick_SD",
	}
	return Station{
		ID: "upperrussell",
		Layout: domain.Layout{
			Arity:          22,
			Label:          "S9",
			YearCol:        1,
			MonthCol:       2,
			DayCol:         3,
			HourSuffix:     "h",
			MidnightMarker: "00",
			FieldNames:     fields,
			Readings: []domain.ReadingSpec{
				{HourCol: 4, ValueStart: 5},
				{HourCol: 13, ValueStart: 14},
			},
		},
		RawTable:   "raw_upperrussell",
		CleanTable: "clean_upperrussell",
		RawColumns: fields,
		CleanSpec: []domain.ColumnSpec{
			{Name: "WatYr", Op: domain.OpWaterYear},
			{Name: "Batt", Op: domain.OpCopy, Source: "Batt"},
			{Name: "Air_Temp", Op: domain.OpCopy, Source: "Air_Temp"},
			{Name: "RH", Op: domain.OpCopy, Source: "RH"},
			{Name: "PP_Tipper", Op: domain.OpCopy, Source: "PP_Tipper"},
			{Name: "PC_Raw_Pipe", Op: domain.OpScale, Source: "PC_Raw_Pipe", Factor: 1000},
		},
	}
}
