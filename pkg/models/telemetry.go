package models

import "encoding/json"

const SchemaVersion = 1

// TelemetryEnvelope is the payload devices publish on telemetry/{deviceId}.
// Metric values keep their raw JSON form until the writer explodes them into rows.
type TelemetryEnvelope struct {
	SchemaVersion int                        `json:"schema_version"`
	DeviceID      string                     `json:"device_id"`
	EventTs       *string                    `json:"event_ts,omitempty"`
	Seq           *int64                     `json:"seq,omitempty"`
	Metrics       map[string]json.RawMessage `json:"metrics"`
	Meta          map[string]interface{}     `json:"meta,omitempty"`
}

// TelemetryRaw is the envelope enriched with the broker-side receive timestamp.
type TelemetryRaw struct {
	SchemaVersion int                        `json:"schema_version"`
	DeviceID      string                     `json:"device_id"`
	EventTs       *string                    `json:"event_ts"`
	ReceivedTs    string                     `json:"received_ts"`
	Seq           *int64                     `json:"seq"`
	Metrics       map[string]json.RawMessage `json:"metrics"`
	Meta          map[string]interface{}     `json:"meta,omitempty"`
}

type DlqReasonCode string

const (
	DlqInvalidJSON            DlqReasonCode = "invalid_json"
	DlqSchemaValidationFailed DlqReasonCode = "schema_validation_failed"
	DlqInternalMappingFailed  DlqReasonCode = "internal_mapping_failed"
	DlqPayloadTooLarge        DlqReasonCode = "payload_too_large"
	DlqMetricsTooMany         DlqReasonCode = "metrics_too_many"

	DlqWriterInvalidJSON            DlqReasonCode = "writer_invalid_json"
	DlqWriterSchemaValidationFailed DlqReasonCode = "writer_schema_validation_failed"
	DlqWriterClickhouseInsertFailed DlqReasonCode = "writer_clickhouse_insert_failed"
)

type TelemetryDlq struct {
	SchemaVersion int           `json:"schema_version"`
	ReasonCode    DlqReasonCode `json:"reason_code"`
	ReasonDetail  string        `json:"reason_detail,omitempty"`
	ReceivedTs    string        `json:"received_ts"`
	DeviceID      *string       `json:"device_id"`
	RawPayload    string        `json:"raw_payload"`
}
