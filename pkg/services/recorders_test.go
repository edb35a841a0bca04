package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresenceStore struct {
	rows []models.DevicePresenceRecord
	err  error
}

func (f *fakePresenceStore) Upsert(ctx context.Context, record *models.DevicePresenceRecord) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *record)
	return nil
}

type fakeCommandEventsStore struct {
	rows []models.DeviceCommandEventRecord
	err  error
}

func (f *fakeCommandEventsStore) Insert(ctx context.Context, record *models.DeviceCommandEventRecord) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *record)
	return nil
}

type fakeDlqArchive struct {
	rows []models.TelemetryDlqMessage
	err  error
}

func (f *fakeDlqArchive) Insert(ctx context.Context, record *models.TelemetryDlqMessage) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *record)
	return nil
}

func TestPresenceRecorderRecord(t *testing.T) {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	store := &fakePresenceStore{}
	svc := NewPresenceRecorderService(PresenceRecorderServiceBuilder{
		Logger:   testLogger(),
		Registry: registry,
		Presence: store,
		Monitor:  metrics.NewSet("presence-recorder-test"),
		Topics:   config.DefaultTopics(),
	})

	payload := []byte(`{
		"schema_version": 1,
		"device_id": "` + testDeviceID + `",
		"event_ts": "2026-01-02T03:04:00Z",
		"status": "offline",
		"received_ts": "2026-01-02T03:04:05Z"
	}`)

	require.NoError(t, svc.Record(context.Background(), payload))
	require.Len(t, store.rows, 1)
	assert.Equal(t, models.PresenceOffline, store.rows[0].Status)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC), store.rows[0].EventTs.UTC())

	// malformed records are skipped, not retried
	require.NoError(t, svc.Record(context.Background(), []byte(`{"status": "offline"}`)))
	require.NoError(t, svc.Record(context.Background(), []byte(`garbage`)))
	assert.Len(t, store.rows, 1)

	store.err = errors.New("deadlock")
	assert.Error(t, svc.Record(context.Background(), payload))
}

func TestCommandEventsRecorderRecord(t *testing.T) {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	store := &fakeCommandEventsStore{}
	svc := NewCommandEventsRecorderService(CommandEventsRecorderServiceBuilder{
		Logger:   testLogger(),
		Registry: registry,
		Events:   store,
		Monitor:  metrics.NewSet("command-events-recorder-test"),
		Topics:   config.DefaultTopics(),
	})

	eventID := "b1a2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
	payload := []byte(`{
		"schema_version": 1,
		"event_id": "` + eventID + `",
		"event_type": "COMMAND_TIMEOUT",
		"created_ts": "2026-01-02T03:04:05Z",
		"command_id": "` + testCommandID + `",
		"device_id": "` + testDeviceID + `",
		"status": "timeout",
		"detail": "ack timeout after 120s"
	}`)

	require.NoError(t, svc.Record(context.Background(), payload))
	require.Len(t, store.rows, 1)
	assert.Equal(t, eventID, store.rows[0].EventID)
	assert.Equal(t, models.CommandEventTimeout, store.rows[0].EventType)
	require.NotNil(t, store.rows[0].Detail)
	assert.Equal(t, "ack timeout after 120s", *store.rows[0].Detail)

	require.NoError(t, svc.Record(context.Background(), []byte(`{"event_type": "COMMAND_SENT"}`)))
	assert.Len(t, store.rows, 1)

	store.err = errors.New("deadlock")
	assert.Error(t, svc.Record(context.Background(), payload))
}

func TestTelemetryDlqRecorderArchives(t *testing.T) {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	archive := &fakeDlqArchive{}
	svc := NewTelemetryDlqRecorderService(TelemetryDlqRecorderServiceBuilder{
		Logger:   testLogger(),
		Registry: registry,
		Archive:  archive,
		Monitor:  metrics.NewSet("telemetry-dlq-recorder-test"),
		Topics:   config.DefaultTopics(),
	})

	sess := &fakeSession{}
	msg := &sarama.ConsumerMessage{
		Topic:     "telemetry.dlq.v1",
		Partition: 2,
		Offset:    41,
		Key:       []byte(testDeviceID),
		Value: []byte(`{
			"schema_version": 1,
			"reason_code": "invalid_json",
			"reason_detail": "unexpected end of JSON input",
			"received_ts": "2026-01-02T03:04:05Z",
			"device_id": null,
			"raw_payload": "{broken"
		}`),
	}

	require.NoError(t, svc.HandleMessage(sess, msg))
	require.Len(t, archive.rows, 1)

	row := archive.rows[0]
	assert.Equal(t, "telemetry.dlq.v1", row.KafkaTopic)
	assert.Equal(t, int32(2), row.KafkaPartition)
	assert.Equal(t, int64(41), row.KafkaOffset)
	require.NotNil(t, row.KafkaKey)
	assert.Equal(t, testDeviceID, *row.KafkaKey)
	assert.Equal(t, "invalid_json", row.ReasonCode)
	require.NotNil(t, row.ReasonDetail)
	assert.Equal(t, "unexpected end of JSON input", *row.ReasonDetail)
	assert.Len(t, sess.marked, 1)
	assert.Equal(t, 1, sess.commits)
}

func TestTelemetryDlqRecorderSkipsInvalidRecords(t *testing.T) {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	archive := &fakeDlqArchive{}
	svc := NewTelemetryDlqRecorderService(TelemetryDlqRecorderServiceBuilder{
		Logger:   testLogger(),
		Registry: registry,
		Archive:  archive,
		Monitor:  metrics.NewSet("telemetry-dlq-recorder-skip-test"),
		Topics:   config.DefaultTopics(),
	})

	sess := &fakeSession{}
	msg := &sarama.ConsumerMessage{
		Topic:     "telemetry.dlq.v1",
		Partition: 0,
		Offset:    7,
		Value:     []byte(`{"reason_code": "made_up"}`),
	}

	require.NoError(t, svc.HandleMessage(sess, msg))
	assert.Empty(t, archive.rows)
	assert.Len(t, sess.marked, 1)
	assert.Equal(t, 1, sess.commits)
}
