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
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// CommandEventsRecorderService materializes the command audit log into
// postgres. The insert is keyed on event_id, so replays are absorbed by the
// store rather than filtered here.
type CommandEventsRecorderService struct {
	logger   *logrus.Entry
	registry *schemas.Registry
	events   storage.CommandEventsRepository
	monitor  *metrics.Set
	topics   config.Topics
}

type CommandEventsRecorderServiceBuilder struct {
	Logger   *logrus.Entry
	Registry *schemas.Registry
	Events   storage.CommandEventsRepository
	Monitor  *metrics.Set
	Topics   config.Topics
}

func NewCommandEventsRecorderService(builder CommandEventsRecorderServiceBuilder) *CommandEventsRecorderService {
	return &CommandEventsRecorderService{
		logger:   builder.Logger,
		registry: builder.Registry,
		events:   builder.Events,
		monitor:  builder.Monitor,
		topics:   builder.Topics,
	}
}

func (svc *CommandEventsRecorderService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.Record(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *CommandEventsRecorderService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

func (svc *CommandEventsRecorderService) Record(ctx context.Context, payload []byte) error {
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

	createdAt, err := time.Parse(time.RFC3339Nano, event.CreatedTs)
	if err != nil {
		lFunc.Warnf("command event '%s' carries unparseable created_ts (skipped): %s", event.EventID, err)
		return nil
	}

	record := models.DeviceCommandEventRecord{
		EventID:   event.EventID,
		EventType: event.EventType,
		CommandID: event.CommandID,
		DeviceID:  event.DeviceID,
		Status:    event.Status,
		Result:    event.Result,
		CreatedAt: createdAt,
	}
	if event.Detail != "" {
		record.Detail = &event.Detail
	}

	if err := svc.events.Insert(ctx, &record); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	svc.monitor.StoreWrites.WithLabelValues("device_command_events").Inc()
	lFunc.WithField("device-id", event.DeviceID).Debugf("command event '%s' recorded", event.EventID)
	return nil
}
