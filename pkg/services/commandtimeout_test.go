package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimeoutService(t *testing.T, commands *fakeCommands, publisher *capturingPublisher) *CommandTimeoutService {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	return NewCommandTimeoutService(CommandTimeoutServiceBuilder{
		Logger:       testLogger(),
		Registry:     registry,
		Commands:     commands,
		Publisher:    publisher,
		Monitor:      metrics.NewSet("command-timeout-test"),
		Topics:       config.DefaultTopics(),
		AckTimeout:   120 * time.Second,
		ScanInterval: time.Minute,
		ScanLimit:    100,
		Now:          func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
}

func TestScanOnceExpiresAndPublishes(t *testing.T) {
	commands := &fakeCommands{
		sentBefore: []storage.SentCommand{
			{CommandID: testCommandID, DeviceID: testDeviceID, SentAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		},
		timeoutWon: true,
	}
	publisher := &capturingPublisher{}
	svc := newTestTimeoutService(t, commands, publisher)

	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Equal(t, []string{testCommandID}, commands.timedOutIDs)

	msgs := publisher.published("device.command_events.v1")
	require.Len(t, msgs, 1)

	var event models.DeviceCommandEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	assert.Equal(t, models.CommandEventTimeout, event.EventType)
	assert.Equal(t, models.CommandTimeout, event.Status)
	assert.Equal(t, testCommandID, event.CommandID)
	assert.Equal(t, "ack timeout after 120s", event.Detail)
}

func TestScanOnceLostRaceStaysSilent(t *testing.T) {
	commands := &fakeCommands{
		sentBefore: []storage.SentCommand{
			{CommandID: testCommandID, DeviceID: testDeviceID, SentAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		},
		timeoutWon: false,
	}
	publisher := &capturingPublisher{}
	svc := newTestTimeoutService(t, commands, publisher)

	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Empty(t, publisher.published("device.command_events.v1"))
}

func TestScanOnceNoCandidates(t *testing.T) {
	commands := &fakeCommands{}
	publisher := &capturingPublisher{}
	svc := newTestTimeoutService(t, commands, publisher)

	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Empty(t, commands.timedOutIDs)
}

func TestScanOnceListErrorPropagates(t *testing.T) {
	commands := &fakeCommands{listErr: errors.New("timeout")}
	svc := newTestTimeoutService(t, commands, &capturingPublisher{})

	assert.Error(t, svc.ScanOnce(context.Background()))
}

func TestScanOncePublishFailureIsBestEffort(t *testing.T) {
	commands := &fakeCommands{
		sentBefore: []storage.SentCommand{
			{CommandID: testCommandID, DeviceID: testDeviceID, SentAt: time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		},
		timeoutWon: true,
	}
	publisher := &capturingPublisher{err: errors.New("broker gone")}
	svc := newTestTimeoutService(t, commands, publisher)

	// the status transition is durable even when the audit publish fails
	require.NoError(t, svc.ScanOnce(context.Background()))
	assert.Equal(t, []string{testCommandID}, commands.timedOutIDs)
}
