package config

type EventBusEngine struct {
	LogLevel LogLevel               `mapstructure:"log_level"`
	Provider EventBusProvider       `mapstructure:"provider"`
	Config   map[string]interface{} `mapstructure:",remain"`
}

type EventBusProvider string

const (
	Kafka     EventBusProvider = "kafka"
	GoChannel EventBusProvider = "gochannel"
)

// KafkaConsumer configures daemons that own their consumer group loop
// instead of going through the event bus engine registry.
type KafkaConsumer struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	GroupID  string   `mapstructure:"group_id"`
}
