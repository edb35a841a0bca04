package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

const maxSafeInt64 = 1<<53 - 1

// TelemetryRow is a single exploded metric in the narrow/long columnar layout.
type TelemetryRow struct {
	ReceivedTs    string
	EventTs       *string
	DeviceID      string
	SensorKey     string
	Seq           *int64
	ValueF64      *float64
	ValueI64      *int64
	ValueStr      *string
	ValueBool     *uint8
	Quality       *string
	SchemaVersion int
}

// ToClickHouseDateTime64 renders an RFC3339 timestamp in the DateTime64 text
// form "YYYY-MM-DD HH:MM:SS.mmm", UTC, no trailing zone designator.
func ToClickHouseDateTime64(value string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return "", err
	}
	return t.UTC().Format("2006-01-02 15:04:05.000"), nil
}

// ExplodeTelemetryRows turns one TelemetryRaw record into exactly one row per
// metric key. Integral numbers within the 53-bit safe range land in value_i64,
// other numbers in value_f64, strings in value_str, booleans in value_bool
// and JSON null leaves all value slots empty. Keys are emitted in sorted
// order so the output is deterministic.
func ExplodeTelemetryRows(payload TelemetryRaw) ([]TelemetryRow, error) {
	receivedTs, err := ToClickHouseDateTime64(payload.ReceivedTs)
	if err != nil {
		return nil, err
	}

	var eventTs *string
	if payload.EventTs != nil {
		ts, err := ToClickHouseDateTime64(*payload.EventTs)
		if err != nil {
			return nil, err
		}
		eventTs = &ts
	}

	keys := make([]string, 0, len(payload.Metrics))
	for k := range payload.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]TelemetryRow, 0, len(keys))
	for _, sensorKey := range keys {
		row := TelemetryRow{
			ReceivedTs:    receivedTs,
			EventTs:       eventTs,
			DeviceID:      payload.DeviceID,
			SensorKey:     sensorKey,
			Seq:           payload.Seq,
			SchemaVersion: payload.SchemaVersion,
		}

		assignMetricValue(&row, payload.Metrics[sensorKey])
		rows = append(rows, row)
	}

	return rows, nil
}

func assignMetricValue(row *TelemetryRow, raw json.RawMessage) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return
	}

	switch v := value.(type) {
	case float64:
		if isSafeInt64(v) {
			i := int64(v)
			row.ValueI64 = &i
		} else {
			row.ValueF64 = &v
		}
	case string:
		row.ValueStr = &v
	case bool:
		b := uint8(0)
		if v {
			b = 1
		}
		row.ValueBool = &b
	}
}

func isSafeInt64(v float64) bool {
	return v == math.Trunc(v) && math.Abs(v) <= maxSafeInt64
}
