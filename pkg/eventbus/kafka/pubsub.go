package kafka

import (
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/landslide-monitor/pipeline/pkg/eventbus"
	"github.com/sirupsen/logrus"
)

// partitioningMarshaler keys each record by the partition key metadata so
// records for the same device keep their relative order.
var partitioningMarshaler = kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(eventbus.PartitionKeyMetadata), nil
})

func NewKafkaPub(conf KafkaConnection, serviceID string, logger *logrus.Entry) (message.Publisher, error) {
	lEventBus := eventbus.NewLoggerAdapter(logger.WithField("subsystem-provider", "Kafka - Publisher"))

	saramaConfig := kafka.DefaultSaramaSyncPublisherConfig()
	saramaConfig.ClientID = clientID(conf, serviceID)

	return kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               conf.Brokers,
		Marshaler:             partitioningMarshaler,
		OverwriteSaramaConfig: saramaConfig,
	}, lEventBus)
}

func NewKafkaSub(conf KafkaConnection, serviceID string, logger *logrus.Entry) (message.Subscriber, error) {
	lEventBus := eventbus.NewLoggerAdapter(logger.WithField("subsystem-provider", "Kafka - Subscriber"))

	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.ClientID = clientID(conf, serviceID)

	group := conf.ConsumerGroup
	if group == "" {
		group = serviceID
	}

	return kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               conf.Brokers,
		Unmarshaler:           partitioningMarshaler,
		ConsumerGroup:         group,
		OverwriteSaramaConfig: saramaConfig,
	}, lEventBus)
}

func clientID(conf KafkaConnection, serviceID string) string {
	if conf.ClientID != "" {
		return conf.ClientID
	}
	return serviceID
}
