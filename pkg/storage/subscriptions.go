package storage

import (
	"context"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubscriptionsRepository resolves the active subscriptions an alert event
// can fan out to. A null device or station on either side matches anything.
type SubscriptionsRepository interface {
	CandidatesForEvent(ctx context.Context, deviceID *string, stationID *string) ([]models.AlertSubscription, error)
}

type PostgresSubscriptionsStore struct {
	db *gorm.DB
}

func NewSubscriptionsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (SubscriptionsRepository, error) {
	return &PostgresSubscriptionsStore{db: db}, nil
}

func (s *PostgresSubscriptionsStore) CandidatesForEvent(ctx context.Context, deviceID *string, stationID *string) ([]models.AlertSubscription, error) {
	var subs []models.AlertSubscription
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			subscription_id,
			user_id,
			device_id,
			station_id,
			min_severity,
			notify_app,
			notify_sms,
			notify_email,
			quiet_start_time::text,
			quiet_end_time::text,
			is_active
		FROM user_alert_subscriptions
		WHERE is_active = TRUE
			AND (?::uuid IS NULL OR device_id IS NULL OR device_id = ?::uuid)
			AND (?::uuid IS NULL OR station_id IS NULL OR station_id = ?::uuid)`,
		deviceID, deviceID, stationID, stationID).Scan(&subs).Error
	return subs, err
}
