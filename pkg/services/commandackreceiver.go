package services

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/mqttbus"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// CommandAckReceiverService runs the two halves of the ack path. The uplink
// half bridges cmd_ack/{deviceId} to the partitioned log; the apply half
// consumes the log and settles device_commands with one guarded update.
type CommandAckReceiverService struct {
	logger    *logrus.Entry
	registry  *schemas.Registry
	publisher message.Publisher
	commands  storage.CommandsRepository
	monitor   *metrics.Set
	topics    config.Topics
}

type CommandAckReceiverServiceBuilder struct {
	Logger    *logrus.Entry
	Registry  *schemas.Registry
	Publisher message.Publisher
	Commands  storage.CommandsRepository
	Monitor   *metrics.Set
	Topics    config.Topics
}

func NewCommandAckReceiverService(builder CommandAckReceiverServiceBuilder) *CommandAckReceiverService {
	return &CommandAckReceiverService{
		logger:    builder.Logger,
		registry:  builder.Registry,
		publisher: builder.Publisher,
		commands:  builder.Commands,
		monitor:   builder.Monitor,
		topics:    builder.Topics,
	}
}

// HandleUplinkAck is the MQTT side. Devices are not trusted: the device id in
// the topic must match the payload, and anything malformed drops with a
// warning. The uplink is not the authoritative record, the log is.
func (svc *CommandAckReceiverService) HandleUplinkAck(ctx context.Context, topic string, payload []byte) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("topic", topic)
	svc.monitor.MessagesConsumed.WithLabelValues(topic).Inc()

	topicDeviceID := mqttbus.DeviceIDFromTopic(topic)
	if topicDeviceID == "" {
		lFunc.Warnf("ack topic carries no device id (dropped)")
		return
	}

	if err := svc.registry.ValidateBytes(schemas.DeviceCommandAckV1, payload); err != nil {
		lFunc.Warnf("ack payload invalid (dropped): %s", err)
		return
	}

	var ack models.DeviceCommandAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		lFunc.Warnf("ack payload undecodable (dropped): %s", err)
		return
	}

	if ack.DeviceID != topicDeviceID {
		svc.monitor.ProcessingErrors.WithLabelValues("ack_device_mismatch").Inc()
		lFunc.Warnf("ack device id '%s' does not match topic device id '%s' (dropped)", ack.DeviceID, topicDeviceID)
		return
	}

	if err := svc.registry.ValidateStruct(schemas.DeviceCommandAcksV1, ack); err != nil {
		lFunc.Errorf("ack record mapping invalid: %s", err)
		return
	}

	encoded, err := json.Marshal(ack)
	if err != nil {
		lFunc.Errorf("could not encode ack record: %s", err)
		return
	}

	if err := svc.publisher.Publish(svc.topics.DeviceCommandAcks, eventbus.NewMessage(ack.DeviceID, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish").Inc()
		lFunc.Errorf("could not publish ack record: %s", err)
		return
	}

	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.DeviceCommandAcks).Inc()
	lFunc.WithField("device-id", ack.DeviceID).Infof("ack '%s' forwarded", ack.CommandID)
}

func (svc *CommandAckReceiverService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.ApplyAckRecord(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *CommandAckReceiverService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

// ApplyAckRecord settles one ack from the log. An error return means the
// update did not happen and the record must be redelivered.
func (svc *CommandAckReceiverService) ApplyAckRecord(ctx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.DeviceCommandAcks).Inc()

	if err := svc.registry.ValidateBytes(schemas.DeviceCommandAcksV1, payload); err != nil {
		lFunc.Warnf("ack record invalid (skipped): %s", err)
		return nil
	}

	var ack models.DeviceCommandAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		lFunc.Warnf("ack record undecodable (skipped): %s", err)
		return nil
	}

	outcome, err := svc.commands.ApplyAck(ctx, ack)
	if err != nil {
		return err
	}

	lFunc = lFunc.WithField("device-id", ack.DeviceID)
	switch outcome {
	case storage.AckApplied:
		svc.monitor.StoreWrites.WithLabelValues("device_commands").Inc()
		lFunc.Infof("ack '%s' applied: status=%s", ack.CommandID, ack.Status)
	case storage.AckNoop:
		lFunc.Debugf("ack '%s' ignored by guard (redelivery or out of order)", ack.CommandID)
	case storage.AckMissing:
		lFunc.Warnf("ack '%s' references unknown command", ack.CommandID)
	}

	return nil
}
