package config

// Topics holds the partitioned-log topic names shared by all daemons.
type Topics struct {
	TelemetryRaw        string `mapstructure:"telemetry_raw" validate:"required"`
	TelemetryDLQ        string `mapstructure:"telemetry_dlq" validate:"required"`
	PresenceEvents      string `mapstructure:"presence_events" validate:"required"`
	DeviceCommands      string `mapstructure:"device_commands" validate:"required"`
	DeviceCommandAcks   string `mapstructure:"device_command_acks" validate:"required"`
	DeviceCommandEvents string `mapstructure:"device_command_events" validate:"required"`
	AlertEvents         string `mapstructure:"alert_events" validate:"required"`
	AiPredictions       string `mapstructure:"ai_predictions" validate:"required"`
}

func DefaultTopics() Topics {
	return Topics{
		TelemetryRaw:        "telemetry.raw.v1",
		TelemetryDLQ:        "telemetry.dlq.v1",
		PresenceEvents:      "presence.events.v1",
		DeviceCommands:      "device.commands.v1",
		DeviceCommandAcks:   "device.command_acks.v1",
		DeviceCommandEvents: "device.command_events.v1",
		AlertEvents:         "alerts.events.v1",
		AiPredictions:       "ai.predictions.v1",
	}
}
