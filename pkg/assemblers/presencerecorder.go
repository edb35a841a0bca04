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

func AssemblePresenceRecorderService(conf config.PresenceRecorderConfig) (*services.PresenceRecorderService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "PresenceRecorder", "Service")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "PresenceRecorder", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "PresenceRecorder", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("presence-recorder")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	presence, err := storage.NewPresencePostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create presence repository: %s", err)
	}

	svc := services.NewPresenceRecorderService(services.PresenceRecorderServiceBuilder{
		Logger:   lSvc,
		Registry: registry,
		Presence: presence,
		Monitor:  monitor,
		Topics:   conf.Topics,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.PresenceEvents}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
