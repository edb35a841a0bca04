package kafka

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/sirupsen/logrus"
)

func Register() {
	eventbus.RegisterEventBusEngine("kafka", func(eventBusProvider string, conf interface{}, serviceId string, logger *logrus.Entry) (eventbus.EventBusEngine, error) {
		return NewKafkaEngine(conf, serviceId, logger)
	})
}

type KafkaEngine struct {
	logger     *logrus.Entry
	config     KafkaConnection
	serviceID  string
	subscriber message.Subscriber
	publisher  message.Publisher
}

func NewKafkaEngine(conf interface{}, serviceId string, logger *logrus.Entry) (eventbus.EventBusEngine, error) {
	localConf, err := config.DecodeStruct[KafkaConnection](conf)
	if err != nil {
		logger.Errorf("could not decode Kafka Connection config: %s", err)
		return nil, err
	}
	return &KafkaEngine{
		logger:    logger,
		config:    localConf,
		serviceID: serviceId,
	}, nil
}

func (e *KafkaEngine) Subscriber() (message.Subscriber, error) {
	if e.subscriber == nil {
		subscriber, err := NewKafkaSub(e.config, e.serviceID, e.logger)
		if err != nil {
			e.logger.Errorf("could not generate Event Bus Subscriber: %s", err)
			return nil, err
		}
		e.subscriber = subscriber
	}
	return e.subscriber, nil
}

func (e *KafkaEngine) Publisher() (message.Publisher, error) {
	if e.publisher == nil {
		publisher, err := NewKafkaPub(e.config, e.serviceID, e.logger)
		if err != nil {
			e.logger.Errorf("could not generate Event Bus Publisher: %s", err)
			return nil, err
		}
		e.publisher = publisher
	}

	return e.publisher, nil
}
