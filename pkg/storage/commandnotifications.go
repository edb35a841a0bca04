package storage

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CommandNotificationsRepository inserts pending command notifications
// deduplicated on (event_id, notify_type) so a replayed command event cannot
// notify twice over the same channel.
type CommandNotificationsRepository interface {
	InsertPending(ctx context.Context, eventID string, notifyType string, title string, content string) error
}

type PostgresCommandNotificationsStore struct {
	db *gorm.DB
}

func NewCommandNotificationsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (CommandNotificationsRepository, error) {
	return &PostgresCommandNotificationsStore{db: db}, nil
}

func (s *PostgresCommandNotificationsStore) InsertPending(ctx context.Context, eventID string, notifyType string, title string, content string) error {
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO device_command_notifications (
			event_id, notify_type, status, title, content
		) VALUES (?::uuid, ?::varchar, 'pending', ?, ?)
		ON CONFLICT (event_id, notify_type) DO NOTHING`,
		eventID, notifyType, title, content).Error
}
