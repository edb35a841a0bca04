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

// PresenceRecorderService keeps one row per device reflecting the last seen
// presence transition. Last write wins; the partitioned log already orders
// records per device.
type PresenceRecorderService struct {
	logger   *logrus.Entry
	registry *schemas.Registry
	presence storage.PresenceRepository
	monitor  *metrics.Set
	topics   config.Topics
}

type PresenceRecorderServiceBuilder struct {
	Logger   *logrus.Entry
	Registry *schemas.Registry
	Presence storage.PresenceRepository
	Monitor  *metrics.Set
	Topics   config.Topics
}

func NewPresenceRecorderService(builder PresenceRecorderServiceBuilder) *PresenceRecorderService {
	return &PresenceRecorderService{
		logger:   builder.Logger,
		registry: builder.Registry,
		presence: builder.Presence,
		monitor:  builder.Monitor,
		topics:   builder.Topics,
	}
}

func (svc *PresenceRecorderService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.Record(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *PresenceRecorderService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

func (svc *PresenceRecorderService) Record(ctx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.PresenceEvents).Inc()

	if err := svc.registry.ValidateBytes(schemas.PresenceEventsV1, payload); err != nil {
		lFunc.Warnf("presence record invalid (skipped): %s", err)
		return nil
	}

	var record models.PresenceRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		lFunc.Warnf("presence record undecodable (skipped): %s", err)
		return nil
	}

	eventTs, err := time.Parse(time.RFC3339Nano, record.EventTs)
	if err != nil {
		lFunc.Warnf("presence record carries unparseable event_ts (skipped): %s", err)
		return nil
	}
	receivedTs, err := time.Parse(time.RFC3339Nano, record.ReceivedTs)
	if err != nil {
		lFunc.Warnf("presence record carries unparseable received_ts (skipped): %s", err)
		return nil
	}

	row := models.DevicePresenceRecord{
		DeviceID:   record.DeviceID,
		Status:     record.Status,
		EventTs:    eventTs,
		ReceivedTs: receivedTs,
		Meta:       record.Meta,
	}

	if err := svc.presence.Upsert(ctx, &row); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	svc.monitor.StoreWrites.WithLabelValues("device_presence").Inc()
	lFunc.WithField("device-id", record.DeviceID).Debugf("presence recorded: %s", record.Status)
	return nil
}
