package config

// Per-daemon configuration. Each daemon loads its own struct through
// LoadConfig, seeded with the matching Default* values.

type IngestConfig struct {
	Logs              Logging        `mapstructure:"logs"`
	Ops               OpsServer      `mapstructure:"ops"`
	Mqtt              MQTTClient     `mapstructure:"mqtt"`
	PublisherEventBus EventBusEngine `mapstructure:"publisher_event_bus"`
	Topics            Topics         `mapstructure:"topics"`

	TelemetryTopicFilter string `mapstructure:"telemetry_topic_filter"`
	PresenceTopicFilter  string `mapstructure:"presence_topic_filter"`

	MessageMaxBytes       int `mapstructure:"message_max_bytes"`
	MetricsMaxKeys        int `mapstructure:"metrics_max_keys"`
	DlqRawPayloadMaxBytes int `mapstructure:"dlq_raw_payload_max_bytes"`
	MaxQueueSize          int `mapstructure:"max_queue_size"`
	MaxInFlight           int `mapstructure:"max_in_flight"`
}

func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Topics:                DefaultTopics(),
		TelemetryTopicFilter:  "telemetry/+",
		PresenceTopicFilter:   "presence/+",
		MessageMaxBytes:       262144,
		MetricsMaxKeys:        256,
		DlqRawPayloadMaxBytes: 65536,
		MaxQueueSize:          1024,
		MaxInFlight:           16,
	}
}

type TelemetryWriterConfig struct {
	Logs              Logging          `mapstructure:"logs"`
	Ops               OpsServer        `mapstructure:"ops"`
	Consumer          KafkaConsumer    `mapstructure:"consumer"`
	PublisherEventBus EventBusEngine   `mapstructure:"publisher_event_bus"`
	ClickHouse        ClickHouseConfig `mapstructure:"clickhouse"`
	Storage           PostgresConfig   `mapstructure:"storage"`
	Topics            Topics           `mapstructure:"topics"`

	BatchMaxRows          int  `mapstructure:"batch_max_rows"`
	BatchFlushIntervalMs  int  `mapstructure:"batch_flush_interval_ms"`
	InsertMaxRetries      int  `mapstructure:"insert_max_retries"`
	InsertRetryBackoffMs  int  `mapstructure:"insert_retry_backoff_ms"`
	DeviceShadowEnabled   bool `mapstructure:"device_shadow_enabled"`
	DlqRawPayloadMaxBytes int  `mapstructure:"dlq_raw_payload_max_bytes"`
}

func DefaultTelemetryWriterConfig() *TelemetryWriterConfig {
	return &TelemetryWriterConfig{
		Consumer: KafkaConsumer{
			ClientID: "telemetry-writer",
			GroupID:  "telemetry-writer.v1",
		},
		ClickHouse: ClickHouseConfig{
			Database: "landslide",
			Table:    "telemetry_raw",
		},
		Topics:                DefaultTopics(),
		BatchMaxRows:          2000,
		BatchFlushIntervalMs:  1000,
		InsertMaxRetries:      5,
		InsertRetryBackoffMs:  500,
		DeviceShadowEnabled:   true,
		DlqRawPayloadMaxBytes: 65536,
	}
}

type HuaweiAdapterConfig struct {
	Logs              Logging        `mapstructure:"logs"`
	Server            HttpServer     `mapstructure:"server"`
	PublisherEventBus EventBusEngine `mapstructure:"publisher_event_bus"`
	Topics            Topics         `mapstructure:"topics"`

	AuthToken Password `mapstructure:"auth_token"`
}

func DefaultHuaweiAdapterConfig() *HuaweiAdapterConfig {
	return &HuaweiAdapterConfig{
		Topics: DefaultTopics(),
	}
}

type CommandDispatcherConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Mqtt     MQTTClient     `mapstructure:"mqtt"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`

	VisibilityDeadlineMs     int `mapstructure:"visibility_deadline_ms"`
	VisibilityPollIntervalMs int `mapstructure:"visibility_poll_interval_ms"`
}

func DefaultCommandDispatcherConfig() *CommandDispatcherConfig {
	return &CommandDispatcherConfig{
		Consumer: KafkaConsumer{
			ClientID: "command-dispatcher",
			GroupID:  "command-dispatcher.v1",
		},
		Topics:                   DefaultTopics(),
		VisibilityDeadlineMs:     5000,
		VisibilityPollIntervalMs: 200,
	}
}

type CommandAckReceiverConfig struct {
	Logs              Logging        `mapstructure:"logs"`
	Ops               OpsServer      `mapstructure:"ops"`
	Mqtt              MQTTClient     `mapstructure:"mqtt"`
	PublisherEventBus EventBusEngine `mapstructure:"publisher_event_bus"`
	Consumer          KafkaConsumer  `mapstructure:"consumer"`
	Storage           PostgresConfig `mapstructure:"storage"`
	Topics            Topics         `mapstructure:"topics"`

	AckTopicFilter string `mapstructure:"ack_topic_filter"`
}

func DefaultCommandAckReceiverConfig() *CommandAckReceiverConfig {
	return &CommandAckReceiverConfig{
		Consumer: KafkaConsumer{
			ClientID: "command-ack-receiver",
			GroupID:  "command-ack-receiver.v1",
		},
		Topics:         DefaultTopics(),
		AckTopicFilter: "cmd_ack/+",
	}
}

type CommandEventsRecorderConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`
}

func DefaultCommandEventsRecorderConfig() *CommandEventsRecorderConfig {
	return &CommandEventsRecorderConfig{
		Consumer: KafkaConsumer{
			ClientID: "command-events-recorder",
			GroupID:  "command-events-recorder.v1",
		},
		Topics: DefaultTopics(),
	}
}

type PresenceRecorderConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`
}

func DefaultPresenceRecorderConfig() *PresenceRecorderConfig {
	return &PresenceRecorderConfig{
		Consumer: KafkaConsumer{
			ClientID: "presence-recorder",
			GroupID:  "presence-recorder.v1",
		},
		Topics: DefaultTopics(),
	}
}

type AlertNotifyConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`

	NotifyType string `mapstructure:"notify_type"`
}

func DefaultAlertNotifyConfig() *AlertNotifyConfig {
	return &AlertNotifyConfig{
		Consumer: KafkaConsumer{
			ClientID: "alert-notify-worker",
			GroupID:  "alert-notify-worker.v1",
		},
		Topics:     DefaultTopics(),
		NotifyType: "app",
	}
}

type CommandNotifyConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`

	NotifyType string `mapstructure:"notify_type"`
}

func DefaultCommandNotifyConfig() *CommandNotifyConfig {
	return &CommandNotifyConfig{
		Consumer: KafkaConsumer{
			ClientID: "command-notify-worker",
			GroupID:  "command-notify-worker.v1",
		},
		Topics:     DefaultTopics(),
		NotifyType: "app",
	}
}

type AiPredictionConfig struct {
	Logs              Logging        `mapstructure:"logs"`
	Ops               OpsServer      `mapstructure:"ops"`
	Consumer          KafkaConsumer  `mapstructure:"consumer"`
	PublisherEventBus EventBusEngine `mapstructure:"publisher_event_bus"`
	Storage           PostgresConfig `mapstructure:"storage"`
	Topics            Topics         `mapstructure:"topics"`

	ModelKey              string `mapstructure:"model_key"`
	ModelVersion          string `mapstructure:"model_version"`
	PredictHorizonSeconds int    `mapstructure:"predict_horizon_seconds"`
}

func DefaultAiPredictionConfig() *AiPredictionConfig {
	return &AiPredictionConfig{
		Consumer: KafkaConsumer{
			ClientID: "ai-prediction-worker",
			GroupID:  "ai-prediction-worker.v1",
		},
		Topics:                DefaultTopics(),
		ModelKey:              "heuristic.v1",
		ModelVersion:          "1",
		PredictHorizonSeconds: 3600,
	}
}

type CommandTimeoutConfig struct {
	Logs              Logging        `mapstructure:"logs"`
	Ops               OpsServer      `mapstructure:"ops"`
	PublisherEventBus EventBusEngine `mapstructure:"publisher_event_bus"`
	Storage           PostgresConfig `mapstructure:"storage"`
	Topics            Topics         `mapstructure:"topics"`

	AckTimeoutSeconds int `mapstructure:"ack_timeout_seconds"`
	ScanIntervalMs    int `mapstructure:"scan_interval_ms"`
	ScanLimit         int `mapstructure:"scan_limit"`
}

func DefaultCommandTimeoutConfig() *CommandTimeoutConfig {
	return &CommandTimeoutConfig{
		Topics:            DefaultTopics(),
		AckTimeoutSeconds: 120,
		ScanIntervalMs:    15000,
		ScanLimit:         200,
	}
}

type TelemetryDlqRecorderConfig struct {
	Logs     Logging        `mapstructure:"logs"`
	Ops      OpsServer      `mapstructure:"ops"`
	Consumer KafkaConsumer  `mapstructure:"consumer"`
	Storage  PostgresConfig `mapstructure:"storage"`
	Topics   Topics         `mapstructure:"topics"`
}

func DefaultTelemetryDlqRecorderConfig() *TelemetryDlqRecorderConfig {
	return &TelemetryDlqRecorderConfig{
		Consumer: KafkaConsumer{
			ClientID: "telemetry-dlq-recorder",
			GroupID:  "telemetry-dlq-recorder.v1",
		},
		Topics: DefaultTopics(),
	}
}
