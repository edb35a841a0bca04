package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHuaweiAdapter(t *testing.T, publisher *capturingPublisher) HuaweiAdapterService {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	return NewHuaweiAdapterService(HuaweiAdapterServiceBuilder{
		Logger:    testLogger(),
		Registry:  registry,
		Publisher: publisher,
		Topics:    config.DefaultTopics(),
	})
}

func TestIngestVendorTelemetryCamelCase(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestHuaweiAdapter(t, publisher)

	err := svc.IngestVendorTelemetry(context.Background(), []byte(`{
		"deviceId": "`+testDeviceID+`",
		"eventTs": "2026-01-02T03:04:05Z",
		"seq": 4,
		"metrics": {"tilt_deg": 1.2},
		"vendorExtra": "ignored"
	}`))
	require.NoError(t, err)

	msgs := publisher.published("telemetry.raw.v1")
	require.Len(t, msgs, 1)

	var raw models.TelemetryRaw
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &raw))
	assert.Equal(t, testDeviceID, raw.DeviceID)
	require.NotNil(t, raw.EventTs)
	assert.Equal(t, "2026-01-02T03:04:05Z", *raw.EventTs)
	assert.NotEmpty(t, raw.ReceivedTs)
}

func TestIngestVendorTelemetrySnakeCaseAndDataAlias(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestHuaweiAdapter(t, publisher)

	err := svc.IngestVendorTelemetry(context.Background(), []byte(`{
		"device_id": "`+testDeviceID+`",
		"event_ts": "2026-01-02T03:04:05Z",
		"data": {"vibration": 0.3}
	}`))
	require.NoError(t, err)

	msgs := publisher.published("telemetry.raw.v1")
	require.Len(t, msgs, 1)

	var raw models.TelemetryRaw
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &raw))
	assert.Contains(t, raw.Metrics, "vibration")
}

func TestIngestVendorTelemetryRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"deviceId":`},
		{"missing device id", `{"metrics": {"tilt_deg": 1}}`},
		{"blank device id", `{"deviceId": "   ", "metrics": {"tilt_deg": 1}}`},
		{"missing metrics", `{"deviceId": "` + testDeviceID + `"}`},
		{"empty metrics", `{"deviceId": "` + testDeviceID + `", "metrics": {}}`},
		{"bad event ts", `{"deviceId": "` + testDeviceID + `", "eventTs": "tomorrow", "metrics": {"tilt_deg": 1}}`},
		{"negative seq", `{"deviceId": "` + testDeviceID + `", "seq": -1, "metrics": {"tilt_deg": 1}}`},
	}

	publisher := &capturingPublisher{}
	svc := newTestHuaweiAdapter(t, publisher)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.IngestVendorTelemetry(context.Background(), []byte(tt.body))
			require.Error(t, err)

			var rejected *VendorRejectedError
			assert.True(t, errors.As(err, &rejected))
		})
	}

	assert.Empty(t, publisher.published("telemetry.raw.v1"))
}

func TestIngestVendorTelemetryMappingBugIsNotRejection(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestHuaweiAdapter(t, publisher)

	// object-valued metrics pass the vendor checks but fail our outbound schema
	err := svc.IngestVendorTelemetry(context.Background(), []byte(`{
		"deviceId": "`+testDeviceID+`",
		"metrics": {"tilt_deg": {"nested": true}}
	}`))
	require.Error(t, err)

	var rejected *VendorRejectedError
	assert.False(t, errors.As(err, &rejected))
	assert.Empty(t, publisher.published("telemetry.raw.v1"))
}

func TestIngestVendorTelemetryPublishErrorPropagates(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker gone")}
	svc := newTestHuaweiAdapter(t, publisher)

	err := svc.IngestVendorTelemetry(context.Background(), []byte(`{
		"deviceId": "`+testDeviceID+`",
		"metrics": {"tilt_deg": 1}
	}`))
	require.Error(t, err)

	var rejected *VendorRejectedError
	assert.False(t, errors.As(err, &rejected))
}
