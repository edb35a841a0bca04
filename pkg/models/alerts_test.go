package models

import "testing"

func TestSeverityAtLeast(t *testing.T) {
	tests := []struct {
		severity Severity
		min      Severity
		want     bool
	}{
		{SeverityLow, SeverityLow, true},
		{SeverityMedium, SeverityLow, true},
		{SeverityHigh, SeverityMedium, true},
		{SeverityCritical, SeverityHigh, true},
		{SeverityLow, SeverityMedium, false},
		{SeverityHigh, SeverityCritical, false},
		{Severity("unknown"), SeverityLow, false},
		{SeverityHigh, Severity("unknown"), false},
	}

	for _, tt := range tests {
		got := tt.severity.AtLeast(tt.min)
		if got != tt.want {
			t.Errorf("AtLeast(%s, %s) = %v, want %v", tt.severity, tt.min, got, tt.want)
		}
	}
}

func TestAlertEventShouldNotify(t *testing.T) {
	tests := []struct {
		eventType AlertEventType
		want      bool
	}{
		{AlertTrigger, true},
		{AlertUpdate, true},
		{AlertResolve, false},
		{AlertAck, false},
	}

	for _, tt := range tests {
		event := AlertEvent{EventType: tt.eventType}
		if event.ShouldNotify() != tt.want {
			t.Errorf("ShouldNotify(%s) = %v, want %v", tt.eventType, !tt.want, tt.want)
		}
	}
}
