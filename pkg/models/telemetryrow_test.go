package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToClickHouseDateTime64(t *testing.T) {
	got, err := ToClickHouseDateTime64("2026-01-02T03:04:05.123456789Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02 03:04:05.123", got)

	got, err = ToClickHouseDateTime64("2026-01-02T03:04:05.123+08:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01 19:04:05.123", got)

	got, err = ToClickHouseDateTime64("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02 03:04:05.000", got)

	_, err = ToClickHouseDateTime64("not-a-timestamp")
	assert.Error(t, err)
}

func TestExplodeTelemetryRows(t *testing.T) {
	eventTs := "2026-01-02T03:04:00Z"
	seq := int64(7)

	payload := TelemetryRaw{
		SchemaVersion: 1,
		DeviceID:      "0b8f23aa-9c1d-4f9e-a8b0-0d7f4c21a001",
		EventTs:       &eventTs,
		ReceivedTs:    "2026-01-02T03:04:05.123Z",
		Seq:           &seq,
		Metrics: map[string]json.RawMessage{
			"tilt_deg":     json.RawMessage(`1.25`),
			"battery_pct":  json.RawMessage(`87`),
			"fw":           json.RawMessage(`"1.4.2"`),
			"heater_on":    json.RawMessage(`true`),
			"rain_gauge":   json.RawMessage(`null`),
			"displacement": json.RawMessage(`1e18`),
		},
	}

	rows, err := ExplodeTelemetryRows(payload)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	// keys come out sorted
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.SensorKey)
	}
	assert.Equal(t, []string{"battery_pct", "displacement", "fw", "heater_on", "rain_gauge", "tilt_deg"}, keys)

	byKey := map[string]TelemetryRow{}
	for _, row := range rows {
		byKey[row.SensorKey] = row
	}

	battery := byKey["battery_pct"]
	require.NotNil(t, battery.ValueI64)
	assert.Equal(t, int64(87), *battery.ValueI64)
	assert.Nil(t, battery.ValueF64)
	assert.Equal(t, "2026-01-02 03:04:05.123", battery.ReceivedTs)
	require.NotNil(t, battery.EventTs)
	assert.Equal(t, "2026-01-02 03:04:00.000", *battery.EventTs)
	require.NotNil(t, battery.Seq)
	assert.Equal(t, int64(7), *battery.Seq)

	tilt := byKey["tilt_deg"]
	require.NotNil(t, tilt.ValueF64)
	assert.Equal(t, 1.25, *tilt.ValueF64)
	assert.Nil(t, tilt.ValueI64)

	// integral but past the 53-bit safe range stays a float
	displacement := byKey["displacement"]
	require.NotNil(t, displacement.ValueF64)
	assert.Nil(t, displacement.ValueI64)

	fw := byKey["fw"]
	require.NotNil(t, fw.ValueStr)
	assert.Equal(t, "1.4.2", *fw.ValueStr)

	heater := byKey["heater_on"]
	require.NotNil(t, heater.ValueBool)
	assert.Equal(t, uint8(1), *heater.ValueBool)

	rain := byKey["rain_gauge"]
	assert.Nil(t, rain.ValueF64)
	assert.Nil(t, rain.ValueI64)
	assert.Nil(t, rain.ValueStr)
	assert.Nil(t, rain.ValueBool)
}

func TestExplodeTelemetryRowsNoEventTs(t *testing.T) {
	payload := TelemetryRaw{
		SchemaVersion: 1,
		DeviceID:      "0b8f23aa-9c1d-4f9e-a8b0-0d7f4c21a001",
		ReceivedTs:    "2026-01-02T03:04:05Z",
		Metrics: map[string]json.RawMessage{
			"tilt_deg": json.RawMessage(`0`),
		},
	}

	rows, err := ExplodeTelemetryRows(payload)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].EventTs)
	assert.Nil(t, rows[0].Seq)
}

func TestExplodeTelemetryRowsBadTimestamp(t *testing.T) {
	payload := TelemetryRaw{
		SchemaVersion: 1,
		DeviceID:      "0b8f23aa-9c1d-4f9e-a8b0-0d7f4c21a001",
		ReceivedTs:    "yesterday",
		Metrics: map[string]json.RawMessage{
			"tilt_deg": json.RawMessage(`0`),
		},
	}

	_, err := ExplodeTelemetryRows(payload)
	assert.Error(t, err)
}
