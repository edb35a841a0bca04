package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// CommandNotifyService turns terminal command failures into user-facing
// notifications. Only COMMAND_TIMEOUT and COMMAND_FAILED events notify;
// the rest of the audit stream passes through untouched.
type CommandNotifyService struct {
	logger        *logrus.Entry
	registry      *schemas.Registry
	notifications storage.CommandNotificationsRepository
	monitor       *metrics.Set
	topics        config.Topics

	notifyType string
}

type CommandNotifyServiceBuilder struct {
	Logger        *logrus.Entry
	Registry      *schemas.Registry
	Notifications storage.CommandNotificationsRepository
	Monitor       *metrics.Set
	Topics        config.Topics

	NotifyType string
}

func NewCommandNotifyService(builder CommandNotifyServiceBuilder) *CommandNotifyService {
	return &CommandNotifyService{
		logger:        builder.Logger,
		registry:      builder.Registry,
		notifications: builder.Notifications,
		monitor:       builder.Monitor,
		topics:        builder.Topics,
		notifyType:    builder.NotifyType,
	}
}

func (svc *CommandNotifyService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.Notify(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *CommandNotifyService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

func (svc *CommandNotifyService) Notify(ctx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.DeviceCommandEvents).Inc()

	if err := svc.registry.ValidateBytes(schemas.DeviceCommandEventsV1, payload); err != nil {
		lFunc.Warnf("command event invalid (skipped): %s", err)
		return nil
	}

	var event models.DeviceCommandEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		lFunc.Warnf("command event undecodable (skipped): %s", err)
		return nil
	}

	if !event.ShouldNotify() {
		lFunc.Debugf("command event '%s' type %s does not notify", event.EventID, event.EventType)
		return nil
	}

	title, content := buildCommandNotification(event)
	if err := svc.notifications.InsertPending(ctx, event.EventID, svc.notifyType, title, content); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	svc.monitor.StoreWrites.WithLabelValues("device_command_notifications").Inc()
	lFunc.WithField("command-id", event.CommandID).Infof("command notification created for event '%s'", event.EventID)
	return nil
}

func buildCommandNotification(event models.DeviceCommandEvent) (string, string) {
	prefix := "命令失败"
	if event.EventType == models.CommandEventTimeout {
		prefix = "命令超时"
	}

	title := fmt.Sprintf("%s：%s", prefix, event.CommandID)

	content := fmt.Sprintf("%s\ndeviceId=%s\ncommandId=%s\nstatus=%s\n", prefix, event.DeviceID, event.CommandID, event.Status)
	if event.Detail != "" {
		content += fmt.Sprintf("detail=%s\n", event.Detail)
	}

	return title, content
}
