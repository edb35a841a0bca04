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

const testCommandID = "6f5e4d3c-2b1a-4c9d-8e7f-6a5b4c3d2e1f"

type statusLookup struct {
	commandStatus models.CommandStatus
	deviceStatus  models.DeviceStatus
	found         bool
	err           error
}

type fakeCommands struct {
	lookups      []statusLookup
	lookupCalls  int
	sentIDs      []string
	canceledIDs  []string
	sentBefore   []storage.SentCommand
	timeoutWon   bool
	timedOutIDs  []string
	markSentErr  error
	ackOutcome   storage.AckOutcome
	appliedAcks  []models.DeviceCommandAck
	ackErr       error
	listErr      error
	markTimedErr error
}

func (f *fakeCommands) GetCommandAndDeviceStatus(ctx context.Context, commandID string) (models.CommandStatus, models.DeviceStatus, bool, error) {
	lookup := f.lookups[len(f.lookups)-1]
	if f.lookupCalls < len(f.lookups) {
		lookup = f.lookups[f.lookupCalls]
	}
	f.lookupCalls++
	return lookup.commandStatus, lookup.deviceStatus, lookup.found, lookup.err
}

func (f *fakeCommands) MarkSent(ctx context.Context, commandID string) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.sentIDs = append(f.sentIDs, commandID)
	return nil
}

func (f *fakeCommands) CancelForRevokedDevice(ctx context.Context, commandID string) error {
	f.canceledIDs = append(f.canceledIDs, commandID)
	return nil
}

func (f *fakeCommands) ApplyAck(ctx context.Context, ack models.DeviceCommandAck) (storage.AckOutcome, error) {
	if f.ackErr != nil {
		return "", f.ackErr
	}
	f.appliedAcks = append(f.appliedAcks, ack)
	return f.ackOutcome, nil
}

func (f *fakeCommands) ListSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]storage.SentCommand, error) {
	return f.sentBefore, f.listErr
}

func (f *fakeCommands) MarkTimeout(ctx context.Context, commandID string, deviceID string, detail string) (bool, error) {
	if f.markTimedErr != nil {
		return false, f.markTimedErr
	}
	f.timedOutIDs = append(f.timedOutIDs, commandID)
	return f.timeoutWon, nil
}

type fakeDownlink struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeDownlink) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestDispatcher(t *testing.T, commands *fakeCommands, downlink *fakeDownlink) *CommandDispatcherService {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	return NewCommandDispatcherService(CommandDispatcherServiceBuilder{
		Logger:             testLogger(),
		Registry:           registry,
		Commands:           commands,
		Downlink:           downlink,
		Monitor:            metrics.NewSet("command-dispatcher-test"),
		Topics:             config.DefaultTopics(),
		VisibilityDeadline: 50 * time.Millisecond,
		VisibilityPoll:     5 * time.Millisecond,
	})
}

func commandRecordPayload() []byte {
	return []byte(`{
		"schema_version": 1,
		"command_id": "` + testCommandID + `",
		"device_id": "` + testDeviceID + `",
		"command_type": "reboot",
		"payload": {"delay_s": 5},
		"issued_ts": "2026-01-02T03:04:05Z",
		"requested_by": "ops"
	}`)
}

func TestDispatchQueuedCommand(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{
		{commandStatus: models.CommandQueued, deviceStatus: models.DeviceActive, found: true},
	}}
	downlink := &fakeDownlink{}
	svc := newTestDispatcher(t, commands, downlink)

	err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
	require.NoError(t, err)

	require.Len(t, downlink.topics, 1)
	assert.Equal(t, "cmd/"+testDeviceID, downlink.topics[0])
	assert.Equal(t, []string{testCommandID}, commands.sentIDs)

	// requested_by never goes down to the device
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(downlink.payloads[0], &sent))
	_, hasRequestedBy := sent["requested_by"]
	assert.False(t, hasRequestedBy)
}

func TestDispatchWaitsForRowVisibility(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{
		{found: false},
		{found: false},
		{commandStatus: models.CommandQueued, deviceStatus: models.DeviceActive, found: true},
	}}
	downlink := &fakeDownlink{}
	svc := newTestDispatcher(t, commands, downlink)

	err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
	require.NoError(t, err)

	assert.Equal(t, 3, commands.lookupCalls)
	assert.Len(t, downlink.topics, 1)
}

func TestDispatchNeverVisibleSkips(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{{found: false}}}
	downlink := &fakeDownlink{}
	svc := newTestDispatcher(t, commands, downlink)

	err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
	require.NoError(t, err)

	assert.Empty(t, downlink.topics)
	assert.Empty(t, commands.sentIDs)
}

func TestDispatchRevokedDeviceCancels(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{
		{commandStatus: models.CommandQueued, deviceStatus: models.DeviceRevoked, found: true},
	}}
	downlink := &fakeDownlink{}
	svc := newTestDispatcher(t, commands, downlink)

	err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
	require.NoError(t, err)

	assert.Equal(t, []string{testCommandID}, commands.canceledIDs)
	assert.Empty(t, downlink.topics)
	assert.Empty(t, commands.sentIDs)
}

func TestDispatchAlreadySettledSkips(t *testing.T) {
	for _, status := range []models.CommandStatus{models.CommandAcked, models.CommandCanceled} {
		commands := &fakeCommands{lookups: []statusLookup{
			{commandStatus: status, deviceStatus: models.DeviceActive, found: true},
		}}
		downlink := &fakeDownlink{}
		svc := newTestDispatcher(t, commands, downlink)

		err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
		require.NoError(t, err)
		assert.Empty(t, downlink.topics)
		assert.Empty(t, commands.sentIDs)
	}
}

func TestDispatchPublishErrorRedelivers(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{
		{commandStatus: models.CommandQueued, deviceStatus: models.DeviceActive, found: true},
	}}
	downlink := &fakeDownlink{err: errors.New("broker gone")}
	svc := newTestDispatcher(t, commands, downlink)

	err := svc.Dispatch(context.Background(), context.Background(), commandRecordPayload())
	assert.Error(t, err)
	assert.Empty(t, commands.sentIDs)
}

func TestDispatchInvalidRecordSkips(t *testing.T) {
	commands := &fakeCommands{lookups: []statusLookup{{found: true}}}
	downlink := &fakeDownlink{}
	svc := newTestDispatcher(t, commands, downlink)

	require.NoError(t, svc.Dispatch(context.Background(), context.Background(), []byte(`{"command_id": 1}`)))
	require.NoError(t, svc.Dispatch(context.Background(), context.Background(), []byte(`garbage`)))

	assert.Equal(t, 0, commands.lookupCalls)
	assert.Empty(t, downlink.topics)
}
