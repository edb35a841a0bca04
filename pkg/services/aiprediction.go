package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
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

var displacementAliases = []string{"displacement_mm", "displacement", "disp_mm", "gps_displacement_mm"}
var tiltAliases = []string{"tilt_deg", "tilt", "inclination_deg"}
var vibrationAliases = []string{"vibration", "vibration_g", "accel_g"}

// AiPredictionService scores every telemetry record with the heuristic risk model
// and emits one prediction per record: persisted first, then published.
type AiPredictionService struct {
	logger      *logrus.Entry
	registry    *schemas.Registry
	devices     storage.DevicesRepository
	predictions storage.PredictionsRepository
	publisher   message.Publisher
	monitor     *metrics.Set
	topics      config.Topics

	modelKey       string
	modelVersion   string
	horizonSeconds int
	now            func() time.Time
}

type AiPredictionServiceBuilder struct {
	Logger      *logrus.Entry
	Registry    *schemas.Registry
	Devices     storage.DevicesRepository
	Predictions storage.PredictionsRepository
	Publisher   message.Publisher
	Monitor     *metrics.Set
	Topics      config.Topics

	ModelKey       string
	ModelVersion   string
	HorizonSeconds int
	Now            func() time.Time
}

func NewAiPredictionService(builder AiPredictionServiceBuilder) *AiPredictionService {
	now := builder.Now
	if now == nil {
		now = time.Now
	}

	return &AiPredictionService{
		logger:         builder.Logger,
		registry:       builder.Registry,
		devices:        builder.Devices,
		predictions:    builder.Predictions,
		publisher:      builder.Publisher,
		monitor:        builder.Monitor,
		topics:         builder.Topics,
		modelKey:       builder.ModelKey,
		modelVersion:   builder.ModelVersion,
		horizonSeconds: builder.HorizonSeconds,
		now:            now,
	}
}

func (svc *AiPredictionService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.Predict(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *AiPredictionService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

func (svc *AiPredictionService) Predict(ctx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.TelemetryRaw).Inc()

	if err := svc.registry.ValidateBytes(schemas.TelemetryRawV1, payload); err != nil {
		lFunc.Warnf("telemetry record invalid (skipped): %s", err)
		return nil
	}

	var telemetry models.TelemetryRaw
	if err := json.Unmarshal(payload, &telemetry); err != nil {
		lFunc.Warnf("telemetry record undecodable (skipped): %s", err)
		return nil
	}

	score, explain := heuristicScore(telemetry.Metrics)
	level := riskLevel(score)
	createdTs := svc.now().UTC()
	predictedTs := createdTs.Add(time.Duration(svc.horizonSeconds) * time.Second)

	stationID, err := svc.devices.ResolveStationID(ctx, telemetry.DeviceID)
	if err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	var seq interface{}
	if telemetry.Seq != nil {
		seq = *telemetry.Seq
	}

	modelVersion := svc.modelVersion
	prediction := models.AiPrediction{
		SchemaVersion:  models.SchemaVersion,
		PredictionID:   helpers.NewTraceID(),
		CreatedTs:      createdTs.Format(time.RFC3339Nano),
		DeviceID:       telemetry.DeviceID,
		StationID:      stationID,
		ModelKey:       svc.modelKey,
		ModelVersion:   &modelVersion,
		HorizonSeconds: svc.horizonSeconds,
		PredictedTs:    predictedTs.Format(time.RFC3339Nano),
		RiskScore:      score,
		RiskLevel:      &level,
		Explain:        &explain,
		Payload: map[string]interface{}{
			"source":      svc.topics.TelemetryRaw,
			"received_ts": telemetry.ReceivedTs,
			"seq":         seq,
			"metrics":     telemetry.Metrics,
		},
	}

	if err := svc.registry.ValidateStruct(schemas.AiPredictionsV1, prediction); err != nil {
		lFunc.Errorf("prediction mapping invalid (dropped): %s", err)
		return nil
	}

	record := models.AiPredictionRecord{
		PredictionID:   prediction.PredictionID,
		DeviceID:       prediction.DeviceID,
		StationID:      prediction.StationID,
		ModelKey:       prediction.ModelKey,
		ModelVersion:   prediction.ModelVersion,
		HorizonSeconds: prediction.HorizonSeconds,
		PredictedTs:    predictedTs,
		RiskScore:      prediction.RiskScore,
		RiskLevel:      prediction.RiskLevel,
		Explain:        prediction.Explain,
		Payload:        prediction.Payload,
	}

	if err := svc.predictions.Insert(ctx, &record); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}
	svc.monitor.StoreWrites.WithLabelValues("ai_predictions").Inc()

	encoded, err := json.Marshal(prediction)
	if err != nil {
		lFunc.Errorf("could not encode prediction (dropped): %s", err)
		return nil
	}

	if err := svc.publisher.Publish(svc.topics.AiPredictions, eventbus.NewMessage(prediction.DeviceID, encoded)); err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("publish").Inc()
		return err
	}

	svc.monitor.MessagesPublished.WithLabelValues(svc.topics.AiPredictions).Inc()
	lFunc.WithField("device-id", prediction.DeviceID).Infof("prediction %s: score=%.3f level=%s", prediction.PredictionID, score, level)
	return nil
}

// heuristicScore weights displacement over tilt over vibration. Signals are
// looked up by alias order and only finite JSON numbers count.
func heuristicScore(metrics map[string]json.RawMessage) (float64, string) {
	displacement := pickNumber(metrics, displacementAliases)
	tilt := pickNumber(metrics, tiltAliases)
	vibration := pickNumber(metrics, vibrationAliases)

	dispScore := 0.0
	if displacement != nil {
		dispScore = clamp01(math.Abs(*displacement) / 100)
	}
	tiltScore := 0.0
	if tilt != nil {
		tiltScore = clamp01(math.Abs(*tilt) / 10)
	}
	vibScore := 0.0
	if vibration != nil {
		vibScore = clamp01(math.Abs(*vibration) / 5)
	}

	score := clamp01(dispScore*0.6 + tiltScore*0.3 + vibScore*0.1)
	explain := fmt.Sprintf("heuristic: disp=%s, tilt=%s, vib=%s",
		numberLabel(displacement), numberLabel(tilt), numberLabel(vibration))

	return score, explain
}

func riskLevel(score float64) models.RiskLevel {
	if score >= 0.8 {
		return models.RiskHigh
	}
	if score >= 0.4 {
		return models.RiskMedium
	}
	return models.RiskLow
}

func pickNumber(metrics map[string]json.RawMessage, keys []string) *float64 {
	for _, key := range keys {
		raw, ok := metrics[key]
		if !ok {
			continue
		}

		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return &v
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func numberLabel(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
