package models

import "time"

// Relational models. Table DDL is owned by the platform migration system;
// these structs only have to line up with it.

type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	DeviceRevoked  DeviceStatus = "revoked"
)

type Device struct {
	DeviceID  string       `gorm:"column:device_id;primaryKey"`
	StationID *string      `gorm:"column:station_id"`
	Status    DeviceStatus `gorm:"column:status"`
	CreatedAt time.Time    `gorm:"column:created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

func (Device) TableName() string { return "devices" }

type DeviceCommandRecord struct {
	CommandID    string                 `gorm:"column:command_id;primaryKey"`
	DeviceID     string                 `gorm:"column:device_id"`
	CommandType  string                 `gorm:"column:command_type"`
	Payload      map[string]interface{} `gorm:"column:payload;serializer:json"`
	Status       CommandStatus          `gorm:"column:status"`
	IssuedTs     time.Time              `gorm:"column:issued_ts"`
	SentAt       *time.Time             `gorm:"column:sent_at"`
	AckedAt      *time.Time             `gorm:"column:acked_at"`
	Result       map[string]interface{} `gorm:"column:result;serializer:json"`
	ErrorMessage *string                `gorm:"column:error_message"`
	RequestedBy  *string                `gorm:"column:requested_by"`
	CreatedAt    time.Time              `gorm:"column:created_at"`
	UpdatedAt    time.Time              `gorm:"column:updated_at"`
}

func (DeviceCommandRecord) TableName() string { return "device_commands" }

type DeviceCommandEventRecord struct {
	EventID   string                 `gorm:"column:event_id;primaryKey"`
	EventType CommandEventType       `gorm:"column:event_type"`
	CommandID string                 `gorm:"column:command_id"`
	DeviceID  string                 `gorm:"column:device_id"`
	Status    CommandStatus          `gorm:"column:status"`
	Detail    *string                `gorm:"column:detail"`
	Result    map[string]interface{} `gorm:"column:result;serializer:json"`
	CreatedAt time.Time              `gorm:"column:created_at"`
}

func (DeviceCommandEventRecord) TableName() string { return "device_command_events" }

type DevicePresenceRecord struct {
	DeviceID   string                 `gorm:"column:device_id;primaryKey"`
	Status     PresenceStatus         `gorm:"column:status"`
	EventTs    time.Time              `gorm:"column:event_ts"`
	ReceivedTs time.Time              `gorm:"column:received_ts"`
	Meta       map[string]interface{} `gorm:"column:meta;serializer:json"`
	UpdatedAt  time.Time              `gorm:"column:updated_at"`
}

func (DevicePresenceRecord) TableName() string { return "device_presence" }

type AlertSubscription struct {
	SubscriptionID string    `gorm:"column:subscription_id;primaryKey"`
	UserID         string    `gorm:"column:user_id"`
	DeviceID       *string   `gorm:"column:device_id"`
	StationID      *string   `gorm:"column:station_id"`
	MinSeverity    Severity  `gorm:"column:min_severity"`
	NotifyApp      bool      `gorm:"column:notify_app"`
	NotifySms      bool      `gorm:"column:notify_sms"`
	NotifyEmail    bool      `gorm:"column:notify_email"`
	QuietStartTime *string   `gorm:"column:quiet_start_time"`
	QuietEndTime   *string   `gorm:"column:quiet_end_time"`
	IsActive       bool      `gorm:"column:is_active"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (AlertSubscription) TableName() string { return "user_alert_subscriptions" }

type AlertNotification struct {
	NotificationID int64     `gorm:"column:notification_id;primaryKey;autoIncrement"`
	EventID        string    `gorm:"column:event_id"`
	UserID         string    `gorm:"column:user_id"`
	NotifyType     string    `gorm:"column:notify_type"`
	Status         string    `gorm:"column:status"`
	Title          string    `gorm:"column:title"`
	Content        string    `gorm:"column:content"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (AlertNotification) TableName() string { return "alert_notifications" }

type AiPredictionRecord struct {
	PredictionID   string                 `gorm:"column:prediction_id;primaryKey"`
	DeviceID       string                 `gorm:"column:device_id"`
	StationID      *string                `gorm:"column:station_id"`
	ModelKey       string                 `gorm:"column:model_key"`
	ModelVersion   *string                `gorm:"column:model_version"`
	HorizonSeconds int                    `gorm:"column:horizon_seconds"`
	PredictedTs    time.Time              `gorm:"column:predicted_ts"`
	RiskScore      float64                `gorm:"column:risk_score"`
	RiskLevel      *RiskLevel             `gorm:"column:risk_level"`
	Explain        *string                `gorm:"column:explain"`
	Payload        map[string]interface{} `gorm:"column:payload;serializer:json"`
	CreatedAt      time.Time              `gorm:"column:created_at"`
}

func (AiPredictionRecord) TableName() string { return "ai_predictions" }

type DeviceState struct {
	DeviceID  string                 `gorm:"column:device_id;primaryKey"`
	Version   int64                  `gorm:"column:version"`
	State     map[string]interface{} `gorm:"column:state;serializer:json"`
	UpdatedAt time.Time              `gorm:"column:updated_at"`
}

func (DeviceState) TableName() string { return "device_state" }

type TelemetryDlqMessage struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	KafkaTopic     string     `gorm:"column:kafka_topic"`
	KafkaPartition int32      `gorm:"column:kafka_partition"`
	KafkaOffset    int64      `gorm:"column:kafka_offset"`
	KafkaKey       *string    `gorm:"column:kafka_key"`
	ReceivedTs     time.Time  `gorm:"column:received_ts"`
	DeviceID       *string    `gorm:"column:device_id"`
	ReasonCode     string     `gorm:"column:reason_code"`
	ReasonDetail   *string    `gorm:"column:reason_detail"`
	RawPayload     string     `gorm:"column:raw_payload"`
	RecordedAt     *time.Time `gorm:"column:recorded_at"`
}

func (TelemetryDlqMessage) TableName() string { return "telemetry_dlq_messages" }
