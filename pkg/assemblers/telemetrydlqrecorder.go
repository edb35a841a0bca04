package assemblers

import (
	"fmt"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/group"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/landslide-monitor/pipeline/pkg/storage"
)

func AssembleTelemetryDlqRecorderService(conf config.TelemetryDlqRecorderConfig) (*services.TelemetryDlqRecorderService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "TelemetryDlqRecorder", "Service")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "TelemetryDlqRecorder", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "TelemetryDlqRecorder", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("telemetry-dlq-recorder")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	archive, err := storage.NewDlqArchivePostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create dlq archive repository: %s", err)
	}

	svc := services.NewTelemetryDlqRecorderService(services.TelemetryDlqRecorderServiceBuilder{
		Logger:   lSvc,
		Registry: registry,
		Archive:  archive,
		Monitor:  monitor,
		Topics:   conf.Topics,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.TelemetryDLQ}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
