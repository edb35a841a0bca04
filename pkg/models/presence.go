package models

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceEvent is the payload published on presence/{deviceId}.
type PresenceEvent struct {
	SchemaVersion int                    `json:"schema_version"`
	DeviceID      string                 `json:"device_id"`
	EventTs       string                 `json:"event_ts"`
	Status        PresenceStatus         `json:"status"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
}

// PresenceRecord is the presence event enriched with received_ts for the log.
type PresenceRecord struct {
	SchemaVersion int                    `json:"schema_version"`
	DeviceID      string                 `json:"device_id"`
	EventTs       string                 `json:"event_ts"`
	Status        PresenceStatus         `json:"status"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	ReceivedTs    string                 `json:"received_ts"`
}
