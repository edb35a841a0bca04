package assemblers

import (
	"fmt"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/group"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/mqttbus"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/landslide-monitor/pipeline/pkg/storage"
)

func AssembleCommandDispatcherService(conf config.CommandDispatcherConfig) (*services.CommandDispatcherService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "CommandDispatcher", "Service")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "CommandDispatcher", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "CommandDispatcher", "Storage")
	lMqtt := helpers.SetupLogger(conf.Mqtt.LogLevel, "CommandDispatcher", "MQTT")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("command-dispatcher")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	commands, err := storage.NewCommandsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create commands repository: %s", err)
	}

	mqttClient, err := mqttbus.NewClient(conf.Mqtt, lMqtt)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect mqtt client: %s", err)
	}

	svc := services.NewCommandDispatcherService(services.CommandDispatcherServiceBuilder{
		Logger:             lSvc,
		Registry:           registry,
		Commands:           commands,
		Downlink:           mqttClient,
		Monitor:            monitor,
		Topics:             conf.Topics,
		VisibilityDeadline: time.Duration(conf.VisibilityDeadlineMs) * time.Millisecond,
		VisibilityPoll:     time.Duration(conf.VisibilityPollIntervalMs) * time.Millisecond,
	})

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.DeviceCommands}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, mqttClient.IsConnected); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
