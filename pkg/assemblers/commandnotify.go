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

func AssembleCommandNotifyService(conf config.CommandNotifyConfig) (*services.CommandNotifyService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "CommandNotify", "Service")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "CommandNotify", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "CommandNotify", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("command-notify-worker")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	notifications, err := storage.NewCommandNotificationsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create command notifications repository: %s", err)
	}

	svc := services.NewCommandNotifyService(services.CommandNotifyServiceBuilder{
		Logger:        lSvc,
		Registry:      registry,
		Notifications: notifications,
		Monitor:       monitor,
		Topics:        conf.Topics,
		NotifyType:    conf.NotifyType,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.DeviceCommandEvents}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
