package assemblers

import (
	"fmt"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/builder"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/group"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/mqttbus"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/landslide-monitor/pipeline/pkg/storage"
)

func AssembleCommandAckReceiverService(conf config.CommandAckReceiverConfig) (*services.CommandAckReceiverService, *group.Consumer, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "CommandAckReceiver", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "CommandAckReceiver", "Event Bus")
	lConsumer := helpers.SetupLogger(conf.Consumer.LogLevel, "CommandAckReceiver", "Consumer Group")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, "CommandAckReceiver", "Storage")
	lMqtt := helpers.SetupLogger(conf.Mqtt.LogLevel, "CommandAckReceiver", "MQTT")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("command-ack-receiver")

	db, err := storage.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect postgres: %s", err)
	}
	commands, err := storage.NewCommandsPostgresRepository(lStorage, db)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create commands repository: %s", err)
	}

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "command-ack-receiver", lMessaging)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewCommandAckReceiverService(services.CommandAckReceiverServiceBuilder{
		Logger:    lSvc,
		Registry:  registry,
		Publisher: publisher,
		Commands:  commands,
		Monitor:   monitor,
		Topics:    conf.Topics,
	})

	mqttClient, err := mqttbus.NewClient(conf.Mqtt, lMqtt)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect mqtt client: %s", err)
	}
	if err := mqttClient.Subscribe(conf.AckTopicFilter, func(topic string, payload []byte) {
		svc.HandleUplinkAck(helpers.InitContext(), topic, payload)
	}); err != nil {
		return nil, nil, err
	}

	consumer, err := group.NewConsumer(conf.Consumer, []string{conf.Topics.DeviceCommandAcks}, 0, svc, lConsumer)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create consumer group: %s", err)
	}
	consumer.RunAsync()

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, mqttClient.IsConnected); err != nil {
		return nil, nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, consumer, nil
}
