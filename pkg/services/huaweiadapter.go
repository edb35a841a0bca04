package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/sirupsen/logrus"
)

// VendorTelemetry is the body accepted from the vendor IoT platform. Both
// camelCase and snake_case spellings occur in the wild, and `data` is a
// legacy alias for `metrics`. Unknown fields are tolerated.
type VendorTelemetry struct {
	DeviceID      string                     `json:"deviceId"`
	DeviceIDSnake string                     `json:"device_id"`
	EventTs       string                     `json:"eventTs"`
	EventTsSnake  string                     `json:"event_ts"`
	Seq           *int64                     `json:"seq"`
	Metrics       map[string]json.RawMessage `json:"metrics"`
	Data          map[string]json.RawMessage `json:"data"`
	Meta          map[string]interface{}     `json:"meta"`
}

// VendorRejectedError distinguishes a bad vendor body (400) from a mapping
// bug on our side (500).
type VendorRejectedError struct {
	Message string
}

func (e *VendorRejectedError) Error() string { return e.Message }

type HuaweiAdapterService interface {
	IngestVendorTelemetry(ctx context.Context, body []byte) error
}

type HuaweiAdapterServiceBackend struct {
	logger    *logrus.Entry
	registry  *schemas.Registry
	publisher message.Publisher
	topics    config.Topics
}

type HuaweiAdapterServiceBuilder struct {
	Logger    *logrus.Entry
	Registry  *schemas.Registry
	Publisher message.Publisher
	Topics    config.Topics
}

func NewHuaweiAdapterService(builder HuaweiAdapterServiceBuilder) HuaweiAdapterService {
	return &HuaweiAdapterServiceBackend{
		logger:    builder.Logger,
		registry:  builder.Registry,
		publisher: builder.Publisher,
		topics:    builder.Topics,
	}
}

func (svc *HuaweiAdapterServiceBackend) IngestVendorTelemetry(ctx context.Context, body []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	var vendor VendorTelemetry
	if err := json.Unmarshal(body, &vendor); err != nil {
		return &VendorRejectedError{Message: "invalid body"}
	}

	deviceID := strings.TrimSpace(vendor.DeviceID)
	if deviceID == "" {
		deviceID = strings.TrimSpace(vendor.DeviceIDSnake)
	}
	if deviceID == "" {
		return &VendorRejectedError{Message: "missing deviceId"}
	}

	metrics := vendor.Metrics
	if metrics == nil {
		metrics = vendor.Data
	}
	if len(metrics) == 0 {
		return &VendorRejectedError{Message: "missing metrics"}
	}

	var eventTs *string
	if ts := firstNonEmpty(vendor.EventTs, vendor.EventTsSnake); ts != "" {
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			return &VendorRejectedError{Message: "invalid body"}
		}
		eventTs = &ts
	}

	if vendor.Seq != nil && *vendor.Seq < 0 {
		return &VendorRejectedError{Message: "invalid body"}
	}

	raw := models.TelemetryRaw{
		SchemaVersion: models.SchemaVersion,
		DeviceID:      deviceID,
		EventTs:       eventTs,
		ReceivedTs:    time.Now().UTC().Format(time.RFC3339Nano),
		Seq:           vendor.Seq,
		Metrics:       metrics,
		Meta:          vendor.Meta,
	}

	if err := svc.registry.ValidateStruct(schemas.TelemetryRawV1, raw); err != nil {
		lFunc.WithField("device-id", deviceID).Errorf("telemetry mapping invalid: %s", err)
		return fmt.Errorf("telemetry mapping invalid: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("could not encode telemetry record: %w", err)
	}

	if err := svc.publisher.Publish(svc.topics.TelemetryRaw, eventbus.NewMessage(raw.DeviceID, encoded)); err != nil {
		return fmt.Errorf("could not publish telemetry record: %w", err)
	}

	lFunc.WithField("device-id", deviceID).Infof("vendor telemetry ingested")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
