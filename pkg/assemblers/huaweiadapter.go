package assemblers

import (
	"fmt"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus/builder"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/routes"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/services"
)

func AssembleHuaweiAdapterServiceWithHTTPServer(conf config.HuaweiAdapterConfig) (services.HuaweiAdapterService, int, error) {
	lSvc := helpers.SetupLogger(conf.Logs.Level, "HuaweiAdapter", "Service")
	lMessaging := helpers.SetupLogger(conf.PublisherEventBus.LogLevel, "HuaweiAdapter", "Event Bus")
	lHttp := helpers.SetupLogger(conf.Server.LogLevel, "HuaweiAdapter", "HTTP Server")

	registry, err := schemas.NewRegistry()
	if err != nil {
		return nil, -1, fmt.Errorf("could not build schema registry: %s", err)
	}

	publisher, err := builder.NewEventBusPublisher(conf.PublisherEventBus, "huawei-iot-adapter", lMessaging)
	if err != nil {
		return nil, -1, fmt.Errorf("could not create Event Bus publisher: %s", err)
	}

	svc := services.NewHuaweiAdapterService(services.HuaweiAdapterServiceBuilder{
		Logger:    lSvc,
		Registry:  registry,
		Publisher: publisher,
		Topics:    conf.Topics,
	})

	httpEngine := routes.NewGinEngine(lHttp)
	httpGrp := httpEngine.Group("/")
	routes.NewHuaweiAdapterRoutes(lHttp, httpGrp, svc, string(conf.AuthToken))

	port, err := routes.RunHttpRouter(lHttp, httpEngine, conf.Server)
	if err != nil {
		return nil, -1, fmt.Errorf("could not run http server: %s", err)
	}

	return svc, port, nil
}
