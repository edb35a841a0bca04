package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/mqttbus"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DownlinkPublisher pushes a payload to a device-facing topic at QoS 1.
type DownlinkPublisher interface {
	Publish(topic string, payload []byte) error
}

// CommandDispatcherService turns durable command records into MQTT downlinks.
// The command row is written by the API before the record is published, but
// the two stores are not transactional: the dispatcher polls for row
// visibility up to a bounded deadline before giving up on a record.
type CommandDispatcherService struct {
	logger   *logrus.Entry
	registry *schemas.Registry
	commands storage.CommandsRepository
	downlink DownlinkPublisher
	monitor  *metrics.Set
	topics   config.Topics

	visibilityDeadline time.Duration
	visibilityPoll     time.Duration
}

type CommandDispatcherServiceBuilder struct {
	Logger   *logrus.Entry
	Registry *schemas.Registry
	Commands storage.CommandsRepository
	Downlink DownlinkPublisher
	Monitor  *metrics.Set
	Topics   config.Topics

	VisibilityDeadline time.Duration
	VisibilityPoll     time.Duration
}

func NewCommandDispatcherService(builder CommandDispatcherServiceBuilder) *CommandDispatcherService {
	return &CommandDispatcherService{
		logger:             builder.Logger,
		registry:           builder.Registry,
		commands:           builder.Commands,
		downlink:           builder.Downlink,
		monitor:            builder.Monitor,
		topics:             builder.Topics,
		visibilityDeadline: builder.VisibilityDeadline,
		visibilityPoll:     builder.VisibilityPoll,
	}
}

func (svc *CommandDispatcherService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.Dispatch(ctx, sess.Context(), msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *CommandDispatcherService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

// Dispatch handles one command record. A nil return means the record is
// finished with (dispatched, idempotently skipped, or unprocessable); an
// error means the side effects are not durable and the record must be
// redelivered.
func (svc *CommandDispatcherService) Dispatch(ctx context.Context, sessCtx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.DeviceCommands).Inc()

	if err := svc.registry.ValidateBytes(schemas.DeviceCommandsV1, payload); err != nil {
		lFunc.Warnf("command record invalid (skipped): %s", err)
		return nil
	}

	var command models.DeviceCommand
	if err := json.Unmarshal(payload, &command); err != nil {
		lFunc.Warnf("command record undecodable (skipped): %s", err)
		return nil
	}

	lFunc = lFunc.WithField("device-id", command.DeviceID)

	commandStatus, deviceStatus, found, err := svc.waitForVisibility(ctx, sessCtx, command.CommandID)
	if err != nil {
		return err
	}
	if !found {
		svc.monitor.ProcessingErrors.WithLabelValues("command_not_visible").Inc()
		lFunc.Warnf("command '%s' not visible after %s (skipped)", command.CommandID, svc.visibilityDeadline)
		return nil
	}

	if deviceStatus == models.DeviceRevoked {
		if err := svc.commands.CancelForRevokedDevice(ctx, command.CommandID); err != nil {
			return err
		}
		lFunc.Warnf("command '%s' canceled: device revoked", command.CommandID)
		return nil
	}

	if commandStatus == models.CommandAcked || commandStatus == models.CommandCanceled {
		lFunc.Debugf("command '%s' already %s (skipped)", command.CommandID, commandStatus)
		return nil
	}

	downlink := models.MQTTCommand{
		SchemaVersion: command.SchemaVersion,
		CommandID:     command.CommandID,
		DeviceID:      command.DeviceID,
		CommandType:   command.CommandType,
		Payload:       command.Payload,
		IssuedTs:      command.IssuedTs,
	}

	if err := svc.registry.ValidateStruct(schemas.DeviceCommandMqttV1, downlink); err != nil {
		lFunc.Errorf("downlink mapping invalid (skipped): %s", err)
		return nil
	}

	encoded, err := json.Marshal(downlink)
	if err != nil {
		lFunc.Errorf("could not encode downlink (skipped): %s", err)
		return nil
	}

	if err := svc.downlink.Publish(mqttbus.CommandTopic(command.DeviceID), encoded); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("mqtt_publish").Inc()
		return err
	}

	if err := svc.commands.MarkSent(ctx, command.CommandID); err != nil {
		return err
	}

	svc.monitor.MessagesPublished.WithLabelValues("mqtt_downlink").Inc()
	lFunc.Infof("command '%s' dispatched", command.CommandID)
	return nil
}

func (svc *CommandDispatcherService) waitForVisibility(ctx context.Context, sessCtx context.Context, commandID string) (models.CommandStatus, models.DeviceStatus, bool, error) {
	deadline := time.Now().Add(svc.visibilityDeadline)

	for {
		commandStatus, deviceStatus, found, err := svc.commands.GetCommandAndDeviceStatus(ctx, commandID)
		if err != nil {
			return "", "", false, err
		}
		if found {
			return commandStatus, deviceStatus, true, nil
		}
		if time.Now().After(deadline) {
			return "", "", false, nil
		}

		select {
		case <-sessCtx.Done():
			return "", "", false, sessCtx.Err()
		case <-time.After(svc.visibilityPoll):
		}
	}
}
