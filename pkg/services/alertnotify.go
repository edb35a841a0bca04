package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/landslide-monitor/pipeline/pkg/metrics"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/landslide-monitor/pipeline/pkg/schemas"
	"github.com/landslide-monitor/pipeline/pkg/storage"
	"github.com/sirupsen/logrus"
)

// AlertNotifyService fans alert events out to subscribed users. One worker
// instance serves one notification channel; the channel flag on the
// subscription decides whether the user participates.
type AlertNotifyService struct {
	logger        *logrus.Entry
	registry      *schemas.Registry
	subscriptions storage.SubscriptionsRepository
	notifications storage.NotificationsRepository
	monitor       *metrics.Set
	topics        config.Topics

	notifyType string
	now        func() time.Time
}

type AlertNotifyServiceBuilder struct {
	Logger        *logrus.Entry
	Registry      *schemas.Registry
	Subscriptions storage.SubscriptionsRepository
	Notifications storage.NotificationsRepository
	Monitor       *metrics.Set
	Topics        config.Topics

	NotifyType string
	Now        func() time.Time
}

func NewAlertNotifyService(builder AlertNotifyServiceBuilder) *AlertNotifyService {
	now := builder.Now
	if now == nil {
		now = time.Now
	}

	return &AlertNotifyService{
		logger:        builder.Logger,
		registry:      builder.Registry,
		subscriptions: builder.Subscriptions,
		notifications: builder.Notifications,
		monitor:       builder.Monitor,
		topics:        builder.Topics,
		notifyType:    builder.NotifyType,
		now:           now,
	}
}

func (svc *AlertNotifyService) HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error {
	ctx := helpers.InitContext()
	if err := svc.FanOut(ctx, msg.Value); err != nil {
		return err
	}

	sess.MarkMessage(msg, "")
	sess.Commit()
	return nil
}

func (svc *AlertNotifyService) Flush(sess sarama.ConsumerGroupSession, reason string) error {
	sess.Commit()
	return nil
}

func (svc *AlertNotifyService) FanOut(ctx context.Context, payload []byte) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)
	svc.monitor.MessagesConsumed.WithLabelValues(svc.topics.AlertEvents).Inc()

	if err := svc.registry.ValidateBytes(schemas.AlertEventsV1, payload); err != nil {
		lFunc.Warnf("alert event invalid (skipped): %s", err)
		return nil
	}

	var event models.AlertEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		lFunc.Warnf("alert event undecodable (skipped): %s", err)
		return nil
	}

	if !event.ShouldNotify() {
		lFunc.Debugf("alert event '%s' type %s does not notify", event.EventID, event.EventType)
		return nil
	}

	subs, err := svc.subscriptions.CandidatesForEvent(ctx, event.DeviceID, event.StationID)
	if err != nil {
		svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
		return err
	}

	title, content := buildNotification(event)
	inserted := 0

	for _, sub := range subs {
		if !event.Severity.AtLeast(sub.MinSeverity) {
			continue
		}
		if !svc.channelEnabled(sub) {
			continue
		}
		if sub.QuietStartTime != nil && sub.QuietEndTime != nil &&
			isQuietNow(svc.now(), *sub.QuietStartTime, *sub.QuietEndTime) {
			lFunc.Debugf("user %s is in quiet hours, skipping", sub.UserID)
			continue
		}

		if err := svc.notifications.InsertPending(ctx, event.EventID, sub.UserID, svc.notifyType, title, content); err != nil {
			svc.monitor.ProcessingErrors.WithLabelValues("store").Inc()
			return err
		}
		inserted++
	}

	svc.monitor.StoreWrites.WithLabelValues("alert_notifications").Add(float64(inserted))
	lFunc.Infof("alert event '%s' fanned out: candidates=%d inserted=%d", event.EventID, len(subs), inserted)
	return nil
}

func (svc *AlertNotifyService) channelEnabled(sub models.AlertSubscription) bool {
	switch svc.notifyType {
	case "app":
		return sub.NotifyApp
	case "sms":
		return sub.NotifySms
	case "email":
		return sub.NotifyEmail
	default:
		return false
	}
}

func buildNotification(event models.AlertEvent) (string, string) {
	title := fmt.Sprintf("告警：%s", event.AlertID)

	content := fmt.Sprintf("eventType=%s\nseverity=%s\n", event.EventType, event.Severity)
	if event.DeviceID != nil {
		content += fmt.Sprintf("deviceId=%s\n", *event.DeviceID)
	}
	if event.StationID != nil {
		content += fmt.Sprintf("stationId=%s\n", *event.StationID)
	}
	content += fmt.Sprintf("ruleId=%s\nruleVersion=%d\ncreatedTs=%s\n", event.RuleID, event.RuleVersion, event.CreatedTs)

	return title, content
}

var timeOfDayPattern = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2}))?$`)

func timeOfDayMinutes(value string) (int, bool) {
	m := timeOfDayPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}

	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss := 0
	if m[3] != "" {
		ss, _ = strconv.Atoi(m[3])
	}
	if hh > 23 || mm > 59 || ss > 59 {
		return 0, false
	}

	return hh*60 + mm, true
}

// isQuietNow evaluates the quiet window in wall-clock minutes. Equal bounds
// mean always quiet, start>end wraps past midnight, and a malformed bound
// disables the window.
func isQuietNow(now time.Time, start string, end string) bool {
	s, ok := timeOfDayMinutes(start)
	if !ok {
		return false
	}
	e, ok := timeOfDayMinutes(end)
	if !ok {
		return false
	}

	n := now.Hour()*60 + now.Minute()
	if s == e {
		return true
	}
	if s < e {
		return n >= s && n < e
	}
	return n >= s || n < e
}
