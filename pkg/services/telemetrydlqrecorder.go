package services

import (
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

// TelemetryDlqRecorderService archives dead-lettered telemetry for forensics.
// The archive is keyed on (topic, partition, offset) so replays are no-ops.
type TelemetryDlqRecorderService struct {
	logger   *logrus.Entry
	registry *schemas.Registry
	archive  storage.DlqArchiveRepository
	monitor  *metrics.Set
	topics   config.Topics
}

type TelemetryDlqRecorderServiceBuilder struct {
	Logger   *logrus.Entry
	Registry *schemas.Registry
	Archive  storage.DlqArchiveRepository
	Monitor  *metrics.Set
	Topics   config.Topics
}

func NewTelemetryDlqRecorderService(builder TelemetryDlqRecorderServiceBuilder) *TelemetryDlqRecorderService {
	return &TelemetryDlqRecorderService{
		logger:   builder.Logger,
		registry: builder.Registry,
		archive:  builder.Archive,
		monitor:  builder.Monitor,
		topics:   builder.Topics,
	}
}

func (svc *TelemetryDlqRecorderService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("topic", msg.Topic)
	svc.monitor.MessagesConsumed.WithLabelValues(msg.Topic).Inc()

	record := models.TelemetryDlqMessage{
		KafkaTopic:     msg.Topic,
		KafkaPartition: msg.Partition,
		KafkaOffset:    msg.Offset,
	}
	if len(msg.Key) > 0 {
		key := string(msg.Key)
		record.KafkaKey = &key
	}

	if err := svc.registry.ValidateBytes(schemas.TelemetryDlqV1, msg.Value); err != nil {
		lFunc.Warnf("dlq record invalid (skipped): %s", err)
		sess.MarkMessage(msg, "")
		sess.Commit()
		return nil
	}

	var dlq models.TelemetryDlq
	if err := json.Unmarshal(msg.Value, &dlq); err != nil {
		lFunc.Warnf("dlq record undecodable (skipped): %s", err)
		sess.MarkMessage(msg, "")
		sess.Commit()
		return nil
	}

	receivedTs, err := time.Parse(time.RFC3339Nano, dlq.ReceivedTs)
	if err != nil {
		receivedTs = time.Now().UTC()
	}
	record.ReceivedTs = receivedTs
	record.DeviceID = dlq.DeviceID
	record.ReasonCode = string(dlq.ReasonCode)
	if dlq.ReasonDetail != "" {
		record.ReasonDetail = &dlq.ReasonDetail
	}
	record.RawPayload = dlq.RawPayload

	if err := svc.archive.Insert(ctx, &record); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	svc.monitor.StoreWrites.WithLabelValues("telemetry_dlq_messages").Inc()
	lFunc.Debugf("dlq message archived: partition=%d offset=%d reason=%s", msg.Partition, msg.Offset, record.ReasonCode)
	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *TelemetryDlqRecorderService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}
