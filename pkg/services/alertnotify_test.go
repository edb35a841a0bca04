package services

import (
	"context"
	"testing"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriptions struct {
	subs []models.AlertSubscription
	err  error
}

func (f *fakeSubscriptions) CandidatesForEvent(ctx context.Context, deviceID *string, stationID *string) ([]models.AlertSubscription, error) {
	return f.subs, f.err
}

type pendingNotification struct {
	eventID    string
	userID     string
	notifyType string
	title      string
	content    string
}

type fakeNotifications struct {
	inserted []pendingNotification
	err      error
}

func (f *fakeNotifications) InsertPending(ctx context.Context, eventID string, userID string, notifyType string, title string, content string) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, pendingNotification{eventID, userID, notifyType, title, content})
	return nil
}

func newTestAlertNotifyService(t *testing.T, subs *fakeSubscriptions, notifications *fakeNotifications, now time.Time) *AlertNotifyService {
	registry, err := schemas.NewRegistry()
	require.NoError(t, err)

	return NewAlertNotifyService(AlertNotifyServiceBuilder{
		Logger:        testLogger(),
		Registry:      registry,
		Subscriptions: subs,
		Notifications: notifications,
		Monitor:       metrics.NewSet("alert-notify-test"),
		Topics:        config.DefaultTopics(),
		NotifyType:    "app",
		Now:           func() time.Time { return now },
	})
}

func alertEventPayload(eventType string) []byte {
	return []byte(`{
		"schema_version": 1,
		"alert_id": "52c7b5b4-10e6-4b84-92cc-1a2b3c4d5e6f",
		"event_id": "d3a9b0a4-7f2e-4a8b-9c1d-0e1f2a3b4c5d",
		"event_type": "` + eventType + `",
		"created_ts": "2026-01-02T03:04:05Z",
		"rule_id": "9f8e7d6c-5b4a-3c2d-9e8f-7a6b5c4d3e2f",
		"rule_version": 2,
		"severity": "high",
		"device_id": "` + testDeviceID + `"
	}`)
}

func appSubscription(userID string) models.AlertSubscription {
	return models.AlertSubscription{
		SubscriptionID: "sub-" + userID,
		UserID:         userID,
		MinSeverity:    models.SeverityLow,
		NotifyApp:      true,
		IsActive:       true,
	}
}

func TestFanOutInsertsPendingNotification(t *testing.T) {
	subs := &fakeSubscriptions{subs: []models.AlertSubscription{appSubscription("u1")}}
	notifications := &fakeNotifications{}
	svc := newTestAlertNotifyService(t, subs, notifications, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))

	err := svc.FanOut(context.Background(), alertEventPayload("ALERT_TRIGGER"))
	require.NoError(t, err)

	require.Len(t, notifications.inserted, 1)
	assert.Equal(t, "d3a9b0a4-7f2e-4a8b-9c1d-0e1f2a3b4c5d", notifications.inserted[0].eventID)
	assert.Equal(t, "u1", notifications.inserted[0].userID)
	assert.Equal(t, "app", notifications.inserted[0].notifyType)
	assert.Equal(t, "告警：52c7b5b4-10e6-4b84-92cc-1a2b3c4d5e6f", notifications.inserted[0].title)
	assert.Contains(t, notifications.inserted[0].content, "severity=high")
	assert.Contains(t, notifications.inserted[0].content, "deviceId="+testDeviceID)
	assert.Contains(t, notifications.inserted[0].content, "ruleVersion=2")
}

func TestFanOutResolveDoesNotNotify(t *testing.T) {
	subs := &fakeSubscriptions{subs: []models.AlertSubscription{appSubscription("u1")}}
	notifications := &fakeNotifications{}
	svc := newTestAlertNotifyService(t, subs, notifications, time.Now())

	err := svc.FanOut(context.Background(), alertEventPayload("ALERT_RESOLVE"))
	require.NoError(t, err)
	assert.Empty(t, notifications.inserted)
}

func TestFanOutSeverityThreshold(t *testing.T) {
	sub := appSubscription("u1")
	sub.MinSeverity = models.SeverityCritical

	subs := &fakeSubscriptions{subs: []models.AlertSubscription{sub}}
	notifications := &fakeNotifications{}
	svc := newTestAlertNotifyService(t, subs, notifications, time.Now())

	// event severity is high, threshold is critical
	err := svc.FanOut(context.Background(), alertEventPayload("ALERT_TRIGGER"))
	require.NoError(t, err)
	assert.Empty(t, notifications.inserted)
}

func TestFanOutChannelDisabled(t *testing.T) {
	sub := appSubscription("u1")
	sub.NotifyApp = false
	sub.NotifySms = true

	subs := &fakeSubscriptions{subs: []models.AlertSubscription{sub}}
	notifications := &fakeNotifications{}
	svc := newTestAlertNotifyService(t, subs, notifications, time.Now())

	err := svc.FanOut(context.Background(), alertEventPayload("ALERT_TRIGGER"))
	require.NoError(t, err)
	assert.Empty(t, notifications.inserted)
}

func TestFanOutQuietHours(t *testing.T) {
	quietStart := "22:00"
	quietEnd := "07:00"
	sub := appSubscription("u1")
	sub.QuietStartTime = &quietStart
	sub.QuietEndTime = &quietEnd

	subs := &fakeSubscriptions{subs: []models.AlertSubscription{sub}}
	notifications := &fakeNotifications{}

	// 23:30 falls inside the wrapped window
	svc := newTestAlertNotifyService(t, subs, notifications, time.Date(2026, 1, 2, 23, 30, 0, 0, time.UTC))
	require.NoError(t, svc.FanOut(context.Background(), alertEventPayload("ALERT_TRIGGER")))
	assert.Empty(t, notifications.inserted)

	// 12:00 does not
	svc = newTestAlertNotifyService(t, subs, notifications, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, svc.FanOut(context.Background(), alertEventPayload("ALERT_TRIGGER")))
	assert.Len(t, notifications.inserted, 1)
}

func TestFanOutInvalidEventSkipped(t *testing.T) {
	subs := &fakeSubscriptions{subs: []models.AlertSubscription{appSubscription("u1")}}
	notifications := &fakeNotifications{}
	svc := newTestAlertNotifyService(t, subs, notifications, time.Now())

	require.NoError(t, svc.FanOut(context.Background(), []byte(`{"event_type": "ALERT_TRIGGER"}`)))
	require.NoError(t, svc.FanOut(context.Background(), []byte(`not json`)))
	assert.Empty(t, notifications.inserted)
}

func TestTimeOfDayMinutes(t *testing.T) {
	tests := []struct {
		value string
		want  int
		ok    bool
	}{
		{"00:00", 0, true},
		{"07:30", 450, true},
		{"23:59", 1439, true},
		{"22:00:30", 1320, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"12:00:61", 0, false},
		{"7:30", 0, false},
		{"noonish", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := timeOfDayMinutes(tt.value)
		if got != tt.want || ok != tt.ok {
			t.Errorf("timeOfDayMinutes(%q) = (%d, %v), want (%d, %v)", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsQuietNow(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 1, 2, hh, mm, 0, 0, time.UTC)
	}

	// same-day window, end exclusive
	assert.True(t, isQuietNow(at(12, 0), "09:00", "17:00"))
	assert.True(t, isQuietNow(at(9, 0), "09:00", "17:00"))
	assert.False(t, isQuietNow(at(17, 0), "09:00", "17:00"))
	assert.False(t, isQuietNow(at(8, 59), "09:00", "17:00"))

	// wrapped past midnight
	assert.True(t, isQuietNow(at(23, 0), "22:00", "07:00"))
	assert.True(t, isQuietNow(at(3, 0), "22:00", "07:00"))
	assert.False(t, isQuietNow(at(12, 0), "22:00", "07:00"))

	// equal bounds are always quiet
	assert.True(t, isQuietNow(at(0, 0), "08:00", "08:00"))
	assert.True(t, isQuietNow(at(15, 45), "08:00", "08:00"))

	// malformed bound disables the window
	assert.False(t, isQuietNow(at(12, 0), "nope", "17:00"))
	assert.False(t, isQuietNow(at(12, 0), "09:00", "25:00"))
}
