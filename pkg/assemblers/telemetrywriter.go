package assemblers

import (
	"fmt"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/builder"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/group"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/landslide-monitor/pipeline/pkg/storage"
)

func AssembleTelemetryWriterService(conf config.TelemetryWriterConfig) (*services.TelemetryWriterService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "TelemetryWriter", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "TelemetryWriter", "Event Bus")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "TelemetryWriter", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "TelemetryWriter", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("telemetry-writer")

	column, err := storage.NewClickHouseTelemetryStore(lStorage, conf.ClickHouse, conf.InsertMaxRetries, time.Duration(conf.InsertRetryBackoffMs)*time.Millisecond)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect clickhouse: %s", err)
	}

	var shadow storage.DeviceStateRepository
	if conf.DeviceShadowEnabled {
		db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
		}
		shadow, err = storage.NewDeviceStatePostgresRepository(lStorage, db)
		if err != nil {
			return nil, nil, fmt.Errorf("could not create device state repository: %s", err)
		}
	}

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "telemetry-writer", lMessaging)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewTelemetryWriterService(services.TelemetryWriterServiceBuilder{
		Logger:                lSvc,
		Registry:              registry,
		Column:                column,
		Shadow:                shadow,
		Publisher:             publisher,
		Topics:                conf.Topics,
		Monitor:               monitor,
		BatchMaxRows:          conf.BatchMaxRows,
		DlqRawPayloadMaxBytes: conf.DlqRawPayloadMaxBytes,
		ShadowEnabled:         conf.DeviceShadowEnabled && shadow != nil,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.TelemetryRaw}, time.Duration(conf.BatchFlushIntervalMs)*time.Millisecond, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
