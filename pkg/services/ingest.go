package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// IngestService bridges the device-facing MQTT side to Kafka. Telemetry is
// the authoritative ingress: anything that cannot be forwarded is dead
// lettered with a reason code. Presence is best effort and drops with a
// warning instead.
type IngestService interface {
	Enqueue(topic string, payload []byte)
	HandleUplink(ctx context.Context, topic string, payload []byte)
	Start()
	Stop()
}

type IngestServiceBackend struct {
	logger    *logrus.Entry
	registry  *schemas.Registry
	publisher message.Publisher
	topics    config.Topics
	monitor   *metrics.Set

	messageMaxBytes       int
	metricsMaxKeys        int
	dlqRawPayloadMaxBytes int
	maxInFlight           int

	queue     chan uplink
	queueSize prometheus.Gauge
	inFlight  prometheus.Gauge

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

type uplink struct {
	topic   string
	payload []byte
}

type IngestServiceBuilder struct {
	Logger    *logrus.Entry
	Registry  *schemas.Registry
	Publisher message.Publisher
	Topics    config.Topics
	Monitor   *metrics.Set

	MessageMaxBytes       int
	MetricsMaxKeys        int
	DlqRawPayloadMaxBytes int
	MaxQueueSize          int
	MaxInFlight           int
}

func NewIngestService(builder IngestServiceBuilder) IngestService {
	svc := &IngestServiceBackend{
		logger:                builder.Logger,
		registry:              builder.Registry,
		publisher:             builder.Publisher,
		topics:                builder.Topics,
		monitor:               builder.Monitor,
		messageMaxBytes:       builder.MessageMaxBytes,
		metricsMaxKeys:        builder.MetricsMaxKeys,
		dlqRawPayloadMaxBytes: builder.DlqRawPayloadMaxBytes,
		maxInFlight:           builder.MaxInFlight,
		queue:                 make(chan uplink, builder.MaxQueueSize),
		stop:                  make(chan struct{}),
	}

	factory := promauto.With(builder.Monitor.Registry)
	svc.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_size",
		Help: "Current in-memory queue size.",
	})
	svc.inFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_in_flight",
		Help: "Uplink messages being processed.",
	})

	return svc
}

// Enqueue admits an uplink message to the bounded work queue. When the queue
// is full the message is dropped; QoS 1 redelivery and device retransmission
// cover the loss.
func (svc *IngestServiceBackend) Enqueue(topic string, payload []byte) {
	select {
	case svc.queue <- uplink{topic: topic, payload: payload}:
		svc.queueSize.Set(float64(len(svc.queue)))
	default:
		svc.monitor.ProcessingErrors.WithLabelValues("queue_full").Inc()
		svc.logger.WithField("topic", topic).Warnf("ingest queue full; dropping message")
	}
}

func (svc *IngestServiceBackend) Start() {
	for i := 0; i < svc.maxInFlight; i++ {
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			for {
				select {
				case item := <-svc.queue:
					svc.queueSize.Set(float64(len(svc.queue)))
					svc.inFlight.Inc()
					svc.HandleUplink(helpers.InitContext(), item.topic, item.payload)
					svc.inFlight.Dec()
				case <-svc.stop:
					return
				}
			}
		}()
	}
}

func (svc *IngestServiceBackend) Stop() {
	svc.once.Do(func() { close(svc.stop) })
	svc.wg.Wait()
}

func (svc *IngestServiceBackend) HandleUplink(ctx context.Context, topic string, payload []byte) {
	if strings.HasPrefix(topic, "presence/") {
		svc.handlePresence(ctx, topic, payload)
		return
	}
	svc.handleTelemetry(ctx, topic, payload)
}

func (svc *IngestServiceBackend) handleTelemetry(ctx context.Context, topic string, payload []byte) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("topic", topic)
	receivedTs := time.Now().UTC().Format(time.RFC3339Nano)
	svc.monitor.MessagesConsumed.WithLabelValues(topic).Inc()

	if len(payload) > svc.messageMaxBytes {
		detail := fmt.Sprintf("payload bytes=%d exceeds limit=%d", len(payload), svc.messageMaxBytes)
		svc.publishDlq(ctx, receivedTs, payload, models.DlqPayloadTooLarge, detail, nil)
		lFunc.Warnf("telemetry payload too large (sent to dlq)")
		return
	}

	if err := svc.registry.ValidateBytes(schemas.TelemetryEnvelopeV1, payload); err != nil {
		if schemas.IsValidationError(err) {
			svc.publishDlq(ctx, receivedTs, payload, models.DlqSchemaValidationFailed, "TelemetryEnvelope schema validation failed", nil)
			lFunc.Warnf("telemetry schema invalid: %s", err)
		} else {
			svc.publishDlq(ctx, receivedTs, payload, models.DlqInvalidJSON, err.Error(), nil)
			lFunc.Warnf("invalid telemetry json: %s", err)
		}
		return
	}

	var envelope models.TelemetryEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		svc.publishDlq(ctx, receivedTs, payload, models.DlqInvalidJSON, err.Error(), nil)
		lFunc.Warnf("invalid telemetry json: %s", err)
		return
	}

	if len(envelope.Metrics) > svc.metricsMaxKeys {
		detail := fmt.Sprintf("metrics keys=%d exceeds limit=%d", len(envelope.Metrics), svc.metricsMaxKeys)
		svc.publishDlq(ctx, receivedTs, payload, models.DlqMetricsTooMany, detail, &envelope.DeviceID)
		lFunc.WithField("device-id", envelope.DeviceID).Warnf("telemetry metrics too many (sent to dlq)")
		return
	}

	raw := models.TelemetryRaw{
		SchemaVersion: envelope.SchemaVersion,
		DeviceID:      envelope.DeviceID,
		EventTs:       envelope.EventTs,
		ReceivedTs:    receivedTs,
		Seq:           envelope.Seq,
		Metrics:       envelope.Metrics,
		Meta:          envelope.Meta,
	}

	if err := svc.registry.ValidateStruct(schemas.TelemetryRawV1, raw); err != nil {
		svc.publishDlq(ctx, receivedTs, payload, models.DlqInternalMappingFailed, "telemetry.raw mapping does not match schema", &envelope.DeviceID)
		lFunc.Errorf("raw mapping invalid: %s", err)
		return
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		svc.publishDlq(ctx, receivedTs, payload, models.DlqInternalMappingFailed, err.Error(), &envelope.DeviceID)
		lFunc.Errorf("could not encode telemetry.raw record: %s", err)
		return
	}

	if err := svc.publisher.Publish(svc.topics.TelemetryRaw, eventbus.NewMessage(raw.DeviceID, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish").Inc()
		lFunc.Errorf("could not publish telemetry record: %s", err)
		return
	}

	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.TelemetryRaw).Inc()
	lFunc.WithField("device-id", raw.DeviceID).Infof("telemetry ingested")
}

// handlePresence forwards presence transitions. This boundary is not
// authoritative, so failures drop with a warning instead of dead lettering.
func (svc *IngestServiceBackend) handlePresence(ctx context.Context, topic string, payload []byte) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("topic", topic)
	receivedTs := time.Now().UTC().Format(time.RFC3339Nano)
	svc.monitor.MessagesConsumed.WithLabelValues(topic).Inc()

	if len(payload) > svc.messageMaxBytes {
		lFunc.Warnf("presence payload too large (dropped)")
		return
	}

	if err := svc.registry.ValidateBytes(schemas.PresenceEventV1, payload); err != nil {
		lFunc.Warnf("presence payload invalid (skipped): %s", err)
		return
	}

	var event models.PresenceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		lFunc.Warnf("invalid presence json: %s", err)
		return
	}

	record := models.PresenceRecord{
		SchemaVersion: event.SchemaVersion,
		DeviceID:      event.DeviceID,
		EventTs:       event.EventTs,
		Status:        event.Status,
		Meta:          event.Meta,
		ReceivedTs:    receivedTs,
	}

	if err := svc.registry.ValidateStruct(schemas.PresenceEventsV1, record); err != nil {
		lFunc.Errorf("presence mapping invalid: %s", err)
		return
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		lFunc.Errorf("could not encode presence record: %s", err)
		return
	}

	if err := svc.publisher.Publish(svc.topics.PresenceEvents, eventbus.NewMessage(record.DeviceID, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish").Inc()
		lFunc.Errorf("could not publish presence record: %s", err)
		return
	}

	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.PresenceEvents).Inc()
	lFunc.WithField("device-id", record.DeviceID).Infof("presence ingested")
}

func (svc *IngestServiceBackend) publishDlq(ctx context.Context, receivedTs string, rawPayload []byte, reason models.DlqReasonCode, detail string, deviceID *string) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	truncated, wasTruncated := truncateUTF8(string(rawPayload), svc.dlqRawPayloadMaxBytes)
	if wasTruncated {
		if detail != "" {
			detail = detail + " (raw_payload truncated)"
		} else {
			detail = "raw_payload truncated"
		}
	}

	dlq := models.TelemetryDlq{
		SchemaVersion: models.SchemaVersion,
		ReasonCode:    reason,
		ReasonDetail:  detail,
		ReceivedTs:    receivedTs,
		DeviceID:      deviceID,
		RawPayload:    truncated,
	}

	if err := svc.registry.ValidateStruct(schemas.TelemetryDlqV1, dlq); err != nil {
		lFunc.Errorf("dlq payload does not match schema: %s", err)
		return
	}

	encoded, err := json.Marshal(dlq)
	if err != nil {
		lFunc.Errorf("could not encode dlq record: %s", err)
		return
	}

	key := ""
	if deviceID != nil {
		key = *deviceID
	}

	if err := svc.publisher.Publish(svc.topics.TelemetryDLQ, eventbus.NewMessage(key, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish_dlq").Inc()
		lFunc.Errorf("could not publish dlq record: %s", err)
		return
	}

	svc.monitor.DeadLettered.WithLabelValues(string(reason)).Inc()
	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.TelemetryDLQ).Inc()
}

// truncateUTF8 cuts value down to maxBytes without splitting a multi-byte
// rune.
func truncateUTF8(value string, maxBytes int) (string, bool) {
	if maxBytes <= 0 {
		return "", len(value) > 0
	}
	if len(value) <= maxBytes {
		return value, false
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut], true
}
