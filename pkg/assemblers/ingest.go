package assemblers

import (
	"fmt"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/builder"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/mqttbus"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
)

func AssembleIngestService(conf config.IngestConfig) (services.IngestService, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "Ingest", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "Ingest", "Event Bus")
	lMqtt := helpers.SetupLogger(conf.Mqtt.LogLevel, "Ingest", "MQTT")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("could not build schema registry: %s", err)
	}

	monitor := metrics.NewSet("ingest")

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "ingest", lMessaging)
	if err != nil {
		return nil, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewIngestService(services.IngestServiceBuilder{
		Logger:                lSvc,
		Registry:              registry,
		Publisher:             publisher,
		Topics:                conf.Topics,
		Monitor:               monitor,
		MessageMaxBytes:       conf.MessageMaxBytes,
		MetricsMaxKeys:        conf.MetricsMaxKeys,
		DlqRawPayloadMaxBytes: conf.DlqRawPayloadMaxBytes,
		MaxQueueSize:          conf.MaxQueueSize,
		MaxInFlight:           conf.MaxInFlight,
	})
	svc.Start()

	mqttClient, err := mqttbus.NewClient(conf.Mqtt, lMqtt)
	if err != nil {
		return nil, fmt.Errorf("could not connect mqtt client: %s", err)
	}

	uplink := func(topic string, payload []byte) {
		svc.Enqueue(topic, payload)
	}
	if err := mqttClient.Subscribe(conf.TelemetryTopicFilter, uplink); err != nil {
		return nil, err
	}
	if err := mqttClient.Subscribe(conf.PresenceTopicFilter, uplink); err != nil {
		return nil, err
	}

	if _, err := routes.RunOpsServer(lSvc, conf.Ops, monitor.Registry, mqttClient.IsConnected); err != nil {
		return nil, fmt.Errorf("could not run ops server: %s", err)
	}

	return svc, nil
}
