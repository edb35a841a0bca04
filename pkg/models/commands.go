package models

type CommandStatus string

const (
	CommandQueued   CommandStatus = "queued"
	CommandSent     CommandStatus = "sent"
	CommandAcked    CommandStatus = "acked"
	CommandFailed   CommandStatus = "failed"
	CommandTimeout  CommandStatus = "timeout"
	CommandCanceled CommandStatus = "canceled"
)

// DeviceCommand is the command record on device.commands.v1.
type DeviceCommand struct {
	SchemaVersion int                    `json:"schema_version"`
	CommandID     string                 `json:"command_id"`
	DeviceID      string                 `json:"device_id"`
	CommandType   string                 `json:"command_type"`
	Payload       map[string]interface{} `json:"payload"`
	IssuedTs      string                 `json:"issued_ts"`
	RequestedBy   *string                `json:"requested_by,omitempty"`
}

// MQTTCommand is the downlink shape pushed to cmd/{deviceId}. It never
// carries requested_by.
type MQTTCommand struct {
	SchemaVersion int                    `json:"schema_version"`
	CommandID     string                 `json:"command_id"`
	DeviceID      string                 `json:"device_id"`
	CommandType   string                 `json:"command_type"`
	Payload       map[string]interface{} `json:"payload"`
	IssuedTs      string                 `json:"issued_ts"`
}

type AckStatus string

const (
	AckOK     AckStatus = "acked"
	AckFailed AckStatus = "failed"
)

// DeviceCommandAck is the uplink ack on cmd_ack/{deviceId} and, enriched
// downstream, the record on device.command_acks.v1.
type DeviceCommandAck struct {
	SchemaVersion int                    `json:"schema_version"`
	CommandID     string                 `json:"command_id"`
	DeviceID      string                 `json:"device_id"`
	Status        AckStatus              `json:"status"`
	AckTs         string                 `json:"ack_ts"`
	Result        map[string]interface{} `json:"result,omitempty"`
}

type CommandEventType string

const (
	CommandEventSent    CommandEventType = "COMMAND_SENT"
	CommandEventAcked   CommandEventType = "COMMAND_ACKED"
	CommandEventFailed  CommandEventType = "COMMAND_FAILED"
	CommandEventTimeout CommandEventType = "COMMAND_TIMEOUT"
)

// DeviceCommandEvent is the append-only audit record on device.command_events.v1.
type DeviceCommandEvent struct {
	SchemaVersion int                    `json:"schema_version"`
	EventID       string                 `json:"event_id"`
	EventType     CommandEventType       `json:"event_type"`
	CreatedTs     string                 `json:"created_ts"`
	CommandID     string                 `json:"command_id"`
	DeviceID      string                 `json:"device_id"`
	Status        CommandStatus          `json:"status"`
	Detail        string                 `json:"detail,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
}

// ShouldNotify reports whether the event is a terminal failure worth telling
// a user about. Sent and acked events stay in the audit log only.
func (e DeviceCommandEvent) ShouldNotify() bool {
	return e.EventType == CommandEventTimeout || e.EventType == CommandEventFailed
}
