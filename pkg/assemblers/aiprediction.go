package assemblers

import (
	"fmt"

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

func AssembleAiPredictionService(conf config.AiPredictionConfig) (*services.AiPredictionService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "AiPrediction", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "AiPrediction", "Event Bus")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "AiPrediction", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "AiPrediction", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("ai-prediction-worker")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	devices, err := storage.NewDevicesPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create devices repository: %s", err)
	}
	predictions, err := storage.NewPredictionsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create predictions repository: %s", err)
	}

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "ai-prediction-worker", lMessaging)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewAiPredictionService(services.AiPredictionServiceBuilder{
		Logger:         lSvc,
		Registry:       registry,
		Devices:        devices,
		Predictions:    predictions,
		Publisher:      publisher,
		Monitor:        monitor,
		Topics:         conf.Topics,
		ModelKey:       conf.ModelKey,
		ModelVersion:   conf.ModelVersion,
		HorizonSeconds: conf.PredictHorizonSeconds,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.TelemetryRaw}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
