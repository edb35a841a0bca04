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

func AssembleAlertNotifyService(conf config.AlertNotifyConfig) (*services.AlertNotifyService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "AlertNotify", "Service")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "AlertNotify", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "AlertNotify", "Storage")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("alert-notify-worker")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	subscriptions, err := storage.NewSubscriptionsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create subscriptions repository: %s", err)
	}
	notifications, err := storage.NewNotificationsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create notifications repository: %s", err)
	}

	svc := services.NewAlertNotifyService(services.AlertNotifyServiceBuilder{
		Logger:        lSvc,
		Registry:      registry,
		Subscriptions: subscriptions,
		Notifications: notifications,
		Monitor:       monitor,
		Topics:        conf.Topics,
		NotifyType:    conf.NotifyType,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.AlertEvents}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, nil); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
