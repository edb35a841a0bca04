package assemblers

import (
	"context"
	"fmt"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/builder"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/landslide-monitor/pipeline/pkg/storage"
)

func AssembleCommandTimeoutService(conf config.CommandTimeoutConfig) (*services.CommandTimeoutService, context.CancelFunc, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "CommandTimeout", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "CommandTimeout", "Event Bus")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "CommandTimeout", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("command-timeout-worker")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	commands, err := storage.NewCommandsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create commands repository: %s", err)
	}

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "command-timeout-worker", lMessaging)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewCommandTimeoutService(services.CommandTimeoutServiceBuilder{
		Logger:       lSvc,
		Registry:     registry,
		Commands:     commands,
		Publisher:    publisher,
		Monitor:      monitor,
		Topics:       conf.Topics,
		AckTimeout:   time.Duration(conf.AckTimeoutSeconds) * time.Second,
		ScanInterval: time.Duration(conf.ScanIntervalMs) * time.Millisecond,
		ScanLimit:    conf.ScanLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, cancel, nil
}
