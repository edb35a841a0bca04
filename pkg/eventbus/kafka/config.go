package kafka

// KafkaConnection is the engine-specific config carried in the event bus
// engine's remainder map.
type KafkaConnection struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}
