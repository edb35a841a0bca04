package models

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s ranks at or above min. Unknown severities rank
// below every known one, so they never satisfy a threshold.
func (s Severity) AtLeast(min Severity) bool {
	sr, ok := severityRank[s]
	if !ok {
		return false
	}
	mr, ok := severityRank[min]
	if !ok {
		return false
	}
	return sr >= mr
}

type AlertEventType string

const (
	AlertTrigger AlertEventType = "ALERT_TRIGGER"
	AlertUpdate  AlertEventType = "ALERT_UPDATE"
	AlertResolve AlertEventType = "ALERT_RESOLVE"
	AlertAck     AlertEventType = "ALERT_ACK"
)

// AlertEvent is the record on alerts.events.v1.
type AlertEvent struct {
	SchemaVersion int                    `json:"schema_version"`
	AlertID       string                 `json:"alert_id"`
	EventID       string                 `json:"event_id"`
	EventType     AlertEventType         `json:"event_type"`
	CreatedTs     string                 `json:"created_ts"`
	RuleID        string                 `json:"rule_id"`
	RuleVersion   int                    `json:"rule_version"`
	Severity      Severity               `json:"severity"`
	DeviceID      *string                `json:"device_id,omitempty"`
	StationID     *string                `json:"station_id,omitempty"`
	Evidence      map[string]interface{} `json:"evidence,omitempty"`
	Explain       string                 `json:"explain,omitempty"`
}

// ShouldNotify reports whether the event type fans out to subscribers.
func (e AlertEvent) ShouldNotify() bool {
	return e.EventType == AlertTrigger || e.EventType == AlertUpdate
}
