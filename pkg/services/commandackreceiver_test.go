package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAckReceiver(t *testing.T, publisher *capturingPublisher, commands *fakeCommands) *CommandAckReceiverService {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	return NewCommandAckReceiverService(CommandAckReceiverServiceBuilder{
		Logger:    testLogger(),
		Registry:  registry,
		Publisher: publisher,
		Commands:  commands,
		Monitor:   metrics.NewSet("command-ack-receiver-test"),
		Topics:    config.DefaultTopics(),
	})
}

func ackPayload(deviceID string) []byte {
	return []byte(`{
		"schema_version": 1,
		"command_id": "` + testCommandID + `",
		"device_id": "` + deviceID + `",
		"status": "acked",
		"ack_ts": "2026-01-02T03:04:05Z",
		"result": {"exit_code": 0}
	}`)
}

func TestHandleUplinkAckForwards(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestAckReceiver(t, publisher, &fakeCommands{})

	svc.HandleUplinkAck(context.Background(), "cmd_ack/"+testDeviceID, ackPayload(testDeviceID))

	msgs := publisher.published("device.command_acks.v1")
	require.Len(t, msgs, 1)

	var ack models.DeviceCommandAck
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ack))
	assert.Equal(t, testCommandID, ack.CommandID)
	assert.Equal(t, models.AckOK, ack.Status)
}

func TestHandleUplinkAckDeviceMismatchDrops(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestAckReceiver(t, publisher, &fakeCommands{})

	otherDevice := "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	svc.HandleUplinkAck(context.Background(), "cmd_ack/"+otherDevice, ackPayload(testDeviceID))

	assert.Empty(t, publisher.published("device.command_acks.v1"))
}

func TestHandleUplinkAckMalformedDrops(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newTestAckReceiver(t, publisher, &fakeCommands{})

	svc.HandleUplinkAck(context.Background(), "cmd_ack/"+testDeviceID, []byte(`{"status": "acked"}`))
	svc.HandleUplinkAck(context.Background(), "cmd_ack/"+testDeviceID, []byte(`garbage`))
	svc.HandleUplinkAck(context.Background(), "cmd_ack", ackPayload(testDeviceID))

	assert.Empty(t, publisher.published("device.command_acks.v1"))
}

func TestApplyAckRecordOutcomes(t *testing.T) {
	for _, outcome := range []storage.AckOutcome{storage.AckApplied, storage.AckNoop, storage.AckMissing} {
		commands := &fakeCommands{ackOutcome: outcome}
		svc := newTestAckReceiver(t, &capturingPublisher{}, commands)

		err := svc.ApplyAckRecord(context.Background(), ackPayload(testDeviceID))
		require.NoError(t, err)
		require.Len(t, commands.appliedAcks, 1)
		assert.Equal(t, testCommandID, commands.appliedAcks[0].CommandID)
	}
}

func TestApplyAckRecordStoreErrorRedelivers(t *testing.T) {
	commands := &fakeCommands{ackErr: errors.New("deadlock")}
	svc := newTestAckReceiver(t, &capturingPublisher{}, commands)

	err := svc.ApplyAckRecord(context.Background(), ackPayload(testDeviceID))
	assert.Error(t, err)
}

func TestApplyAckRecordInvalidSkips(t *testing.T) {
	commands := &fakeCommands{}
	svc := newTestAckReceiver(t, &capturingPublisher{}, commands)

	require.NoError(t, svc.ApplyAckRecord(context.Background(), []byte(`{"status": "acked"}`)))
	require.NoError(t, svc.ApplyAckRecord(context.Background(), []byte(`garbage`)))
	assert.Empty(t, commands.appliedAcks)
}
