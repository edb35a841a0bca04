package storage

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationsRepository inserts pending notifications deduplicated on
// (event_id, user_id, notify_type) so a replayed alert event cannot notify
// the same user twice over the same channel.
type NotificationsRepository interface {
	InsertPending(ctx context.Context, eventID string, userID string, notifyType string, title string, content string) error
}

type PostgresNotificationsStore struct {
	db *gorm.DB
}

func NewNotificationsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (NotificationsRepository, error) {
	return &PostgresNotificationsStore{db: db}, nil
}

func (s *PostgresNotificationsStore) InsertPending(ctx context.Context, eventID string, userID string, notifyType string, title string, content string) error {
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO alert_notifications (
			event_id, user_id, notify_type, status, title, content
		)
		SELECT ?::uuid, ?::uuid, ?::varchar, 'pending', ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alert_notifications
			WHERE event_id = ?::uuid AND user_id = ?::uuid AND notify_type = ?::varchar
		)`,
		eventID, userID, notifyType, title, content, eventID, userID, notifyType).Error
}
