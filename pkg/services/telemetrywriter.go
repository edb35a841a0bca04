package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// TelemetryWriterService drains telemetry.raw.v1 into the columnar store.
// It implements group.ClaimHandler. Sarama runs one ConsumeClaim goroutine
// per assigned partition, so the buffer is guarded by a mutex: size-triggered
// and timer-triggered flushes are single flight. Offsets are marked and
// committed only after the owning flush has made the rows durable.
type TelemetryWriterService struct {
	logger    *logrus.Entry
	registry  *schemas.Registry
	column    storage.TelemetryColumnStore
	shadow    storage.DeviceStateRepository
	publisher message.Publisher
	topics    config.Topics
	monitor   *metrics.Set

	batchMaxRows          int
	dlqRawPayloadMaxBytes int
	shadowEnabled         bool

	mu           sync.Mutex
	pending      []pendingTelemetry
	pendingRows  int
	shadowStates map[string]shadowState
}

type pendingTelemetry struct {
	msg     *sarama.ConsumerMessage
	raw     string
	payload models.TelemetryRaw
	rows    []models.TelemetryRow
}

type shadowState struct {
	updatedAt time.Time
	state     map[string]interface{}
}

type TelemetryWriterServiceBuilder struct {
	Logger    *logrus.Entry
	Registry  *schemas.Registry
	Column    storage.TelemetryColumnStore
	Shadow    storage.DeviceStateRepository
	Publisher message.Publisher
	Topics    config.Topics
	Monitor   *metrics.Set

	BatchMaxRows          int
	DlqRawPayloadMaxBytes int
	ShadowEnabled         bool
}

func NewTelemetryWriterService(builder TelemetryWriterServiceBuilder) *TelemetryWriterService {
	return &TelemetryWriterService{
		logger:                builder.Logger,
		registry:              builder.Registry,
		column:                builder.Column,
		shadow:                builder.Shadow,
		publisher:             builder.Publisher,
		topics:                builder.Topics,
		monitor:               builder.Monitor,
		batchMaxRows:          builder.BatchMaxRows,
		dlqRawPayloadMaxBytes: builder.DlqRawPayloadMaxBytes,
		shadowEnabled:         builder.ShadowEnabled,
		shadowStates:          map[string]shadowState{},
	}
}

func (svc *TelemetryWriterService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, svc.logger).WithField("topic", msg.Topic)
	svc.monitor.MessagesConsumed.WithLabelValues(msg.Topic).Inc()

	raw := string(msg.Value)

	if err := svc.registry.ValidateBytes(schemas.TelemetryRawV1, msg.Value); err != nil {
		if schemas.IsValidationError(err) {
			svc.deadLetter(ctx, models.DlqWriterSchemaValidationFailed, "telemetry.raw schema validation failed", extractReceivedTsOrNow(msg.Value), extractDeviceID(msg.Value), raw)
			lFunc.Warnf("telemetry.raw schema invalid (dlq): %s", err)
		} else {
			svc.deadLetter(ctx, models.DlqWriterInvalidJSON, err.Error(), nowRFC3339(), nil, raw)
			lFunc.Warnf("telemetry.raw parse failed (dlq): %s", err)
		}
		sess.MarkMessage(msg, "")
		return nil
	}

	var payload models.TelemetryRaw
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		svc.deadLetter(ctx, models.DlqWriterInvalidJSON, err.Error(), nowRFC3339(), nil, raw)
		lFunc.Warnf("telemetry.raw decode failed (dlq): %s", err)
		sess.MarkMessage(msg, "")
		return nil
	}

	rows, err := models.ExplodeTelemetryRows(payload)
	if err != nil {
		svc.deadLetter(ctx, models.DlqWriterSchemaValidationFailed, err.Error(), payload.ReceivedTs, &payload.DeviceID, raw)
		lFunc.Warnf("telemetry.raw timestamps unparseable (dlq): %s", err)
		sess.MarkMessage(msg, "")
		return nil
	}

	if len(rows) == 0 {
		sess.MarkMessage(msg, "")
		return nil
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.pending = append(svc.pending, pendingTelemetry{msg: msg, raw: raw, payload: payload, rows: rows})
	svc.pendingRows += len(rows)
	svc.rememberShadow(payload)

	if svc.pendingRows >= svc.batchMaxRows {
		return svc.flushLocked(sess, "batch_max_rows")
	}
	return nil
}

// Flush inserts the buffered rows in one batch. A transient insert failure
// propagates so the session ends without committing and the broker redelivers
// from the last committed offset. A data error switches to per-message
// isolation so one poisonous record cannot wedge the partition.
func (svc *TelemetryWriterService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.flushLocked(sess, reason)
}

func (svc *TelemetryWriterService) flushLocked(sess sarama.ConsumerGroupSession, reason string) error {
	if len(svc.pending) == 0 {
		sess.Commit()
		return nil
	}

	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	allRows := make([]models.TelemetryRow, 0, svc.pendingRows)
	for _, p := range svc.pending {
		allRows = append(allRows, p.rows...)
	}

	startedAt := time.Now()
	err := svc.column.InsertRows(sess.Context(), allRows)
	if err == nil {
		lFunc.Infof("clickhouse insert ok: reason=%s rows=%d messages=%d took=%s", reason, len(allRows), len(svc.pending), time.Since(startedAt))
		svc.monitor.StoreWrites.WithLabelValues("clickhouse").Add(float64(len(allRows)))
		svc.monitor.BatchFlushes.WithLabelValues(reason).Inc()

		svc.applyShadow(ctx)
		for _, p := range svc.pending {
			sess.MarkMessage(p.msg, "")
		}
		svc.reset()
		sess.Commit()
		return nil
	}

	if !storage.IsDataError(err) {
		svc.monitor.ProcessingErrors.WithLabelValues("clickhouse_insert").Inc()
		return err
	}

	lFunc.Warnf("clickhouse insert failed (data error suspected); isolating per-message: %s", err)
	svc.shadowStates = map[string]shadowState{}

	for _, p := range svc.pending {
		insErr := svc.column.InsertRows(sess.Context(), p.rows)
		if insErr == nil {
			svc.monitor.StoreWrites.WithLabelValues("clickhouse").Add(float64(len(p.rows)))
			svc.rememberShadow(p.payload)
			sess.MarkMessage(p.msg, "")
			continue
		}

		if !storage.IsDataError(insErr) {
			svc.monitor.ProcessingErrors.WithLabelValues("clickhouse_insert").Inc()
			return insErr
		}

		svc.deadLetter(ctx, models.DlqWriterClickhouseInsertFailed, insErr.Error(), p.payload.ReceivedTs, &p.payload.DeviceID, p.raw)
		lFunc.WithField("device-id", p.payload.DeviceID).Warnf("message dead lettered due to clickhouse insert failure")
		sess.MarkMessage(p.msg, "")
	}

	svc.applyShadow(ctx)
	svc.reset()
	sess.Commit()
	return nil
}

func (svc *TelemetryWriterService) rememberShadow(payload models.TelemetryRaw) {
	if !svc.shadowEnabled {
		return
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, payload.ReceivedTs)
	if err != nil {
		return
	}

	existing, ok := svc.shadowStates[payload.DeviceID]
	if ok && existing.updatedAt.After(updatedAt) {
		return
	}

	meta := payload.Meta
	if meta == nil {
		meta = map[string]interface{}{}
	}
	svc.shadowStates[payload.DeviceID] = shadowState{
		updatedAt: updatedAt,
		state: map[string]interface{}{
			"metrics": payload.Metrics,
			"meta":    meta,
		},
	}
}

// applyShadow is best effort: shadow staleness is acceptable, lost telemetry
// rows are not.
func (svc *TelemetryWriterService) applyShadow(ctx context.Context) {
	if !svc.shadowEnabled || svc.shadow == nil || len(svc.shadowStates) == 0 {
		return
	}

	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	for deviceID, v := range svc.shadowStates {
		if err := svc.shadow.UpsertShadow(ctx, deviceID, v.updatedAt, v.state); err != nil {
			lFunc.Errorf("device_state shadow update failed (ignored): %s", err)
			continue
		}
		svc.monitor.StoreWrites.WithLabelValues("device_state").Inc()
	}
}

func (svc *TelemetryWriterService) reset() {
	svc.pending = nil
	svc.pendingRows = 0
	svc.shadowStates = map[string]shadowState{}
}

func (svc *TelemetryWriterService) deadLetter(ctx context.Context, reason models.DlqReasonCode, detail string, receivedTs string, deviceID *string, rawPayload string) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	truncated, wasTruncated := truncateUTF8(rawPayload, svc.dlqRawPayloadMaxBytes)
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

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// extractReceivedTsOrNow pulls received_ts out of a schema-invalid payload
// when it is at least well formed JSON, so the dead letter keeps the original
// receive time where possible.
func extractReceivedTsOrNow(raw []byte) string {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err == nil {
		if ts, ok := generic["received_ts"].(string); ok {
			if _, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				return ts
			}
		}
	}
	return nowRFC3339()
}

func extractDeviceID(raw []byte) *string {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err == nil {
		if id, ok := generic["device_id"].(string); ok && id != "" {
			return &id
		}
	}
	return nil
}
