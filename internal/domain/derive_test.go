package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_CopyAndScale(t *testing.T) {
	records := []Record{recAt(hourly(12, 1), map[string]float64{
		"WS_ms_Avg": 2.5,
		"RH_Avg":    77.0,
	})}
	spec := []ColumnSpec{
		{Name: "Wind_speed", Op: OpScale, Source: "WS_ms_Avg", Factor: 3.6},
		{Name: "RH", Op: OpCopy, Source: "RH_Avg"},
	}

	rows := Derive(records, spec)
	require.Len(t, rows, 1)
	assert.InDelta(t, 9.0, rows[0].Fields["Wind_speed"], 1e-9)
	assert.Equal(t, 77.0, rows[0].Fields["RH"])
}

func TestDerive_DepthFromDistance(t *testing.T) {
	records := []Record{recAt(hourly(12, 1), map[string]float64{"TCDT_Avg": 2.113})}

	t.Run("scale then round", func(t *testing.T) {
		spec := []ColumnSpec{{Name: "Snow_Depth", Op: OpDepth, Source: "TCDT_Avg", Height: 3.8, Factor: 100, Digits: 2}}
		rows := Derive(records, spec)
		assert.InDelta(t, 168.7, rows[0].Fields["Snow_Depth"], 1e-9)
	})

	t.Run("round then scale", func(t *testing.T) {
		spec := []ColumnSpec{{Name: "Snow_Depth", Op: OpDepth, Source: "TCDT_Avg", Height: 3.79, Factor: 100, Digits: 2, RoundFirst: true}}
		rows := Derive(records, spec)
		assert.InDelta(t, 168.0, rows[0].Fields["Snow_Depth"], 1e-9)
	})
}

func TestDerive_DeltaField(t *testing.T) {
	spec := []ColumnSpec{{Name: "PP_Pipe", Op: OpDelta, Source: "PrecipGaugeLvl_Avg", Factor: 1000}}

	t.Run("first record is zero", func(t *testing.T) {
		records := []Record{recAt(hourly(12, 1), map[string]float64{"PrecipGaugeLvl_Avg": 0.412})}
		rows := Derive(records, spec)
		require.Len(t, rows, 1)
		assert.Equal(t, 0.0, rows[0].Fields["PP_Pipe"])
	})

	t.Run("subsequent records difference", func(t *testing.T) {
		records := []Record{
			recAt(hourly(12, 1), map[string]float64{"PrecipGaugeLvl_Avg": 0.412}),
			recAt(hourly(12, 2), map[string]float64{"PrecipGaugeLvl_Avg": 0.415}),
			recAt(hourly(12, 3), map[string]float64{"PrecipGaugeLvl_Avg": 0.415}),
		}
		rows := Derive(records, spec)
		require.Len(t, rows, 3)
		assert.Equal(t, 0.0, rows[0].Fields["PP_Pipe"])
		assert.InDelta(t, 3.0, rows[1].Fields["PP_Pipe"], 1e-9)
		assert.InDelta(t, 0.0, rows[2].Fields["PP_Pipe"], 1e-9)
	})

	t.Run("missing predecessor value", func(t *testing.T) {
		records := []Record{
			recAt(hourly(12, 1), map[string]float64{}),
			recAt(hourly(12, 2), map[string]float64{"PrecipGaugeLvl_Avg": 0.415}),
		}
		rows := Derive(records, spec)
		_, ok := rows[1].Fields["PP_Pipe"]
		assert.False(t, ok, "delta without a predecessor value must stay absent")
	})
}

func TestDerive_WaterYearColumn(t *testing.T) {
	records := []Record{
		recAt(time.Date(2023, 9, 30, 23, 0, 0, 0, time.UTC), nil),
		recAt(time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), nil),
	}
	spec := []ColumnSpec{{Name: "WatYr", Op: OpWaterYear}}

	rows := Derive(records, spec)
	require.Len(t, rows, 2)
	assert.Equal(t, 2023.0, rows[0].Fields["WatYr"])
	assert.Equal(t, 2024.0, rows[1].Fields["WatYr"])
}

func TestDerive_NullAndMissingSource(t *testing.T) {
	records := []Record{recAt(hourly(12, 1), map[string]float64{"RH_Avg": 80})}
	spec := []ColumnSpec{
		{Name: "BP", Op: OpNull},
		{Name: "Air_Temp", Op: OpCopy, Source: "AirTC_Avg"}, // not in record
		{Name: "RH", Op: OpCopy, Source: "RH_Avg"},
	}

	rows := Derive(records, spec)
	require.Len(t, rows, 1)
	_, hasBP := rows[0].Fields["BP"]
	_, hasAir := rows[0].Fields["Air_Temp"]
	assert.False(t, hasBP)
	assert.False(t, hasAir)
	assert.Equal(t, 80.0, rows[0].Fields["RH"])
}

func TestCopySpec(t *testing.T) {
	spec := CopySpec([]string{"Batt", "Air_Temp"})
	require.Len(t, spec, 2)
	assert.Equal(t, ColumnSpec{Name: "Batt", Op: OpCopy, Source: "Batt"}, spec[0])
	assert.Equal(t, []string{"Batt", "Air_Temp"}, Columns(spec))
}
