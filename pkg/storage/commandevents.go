package storage

import (
	"context"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommandEventsRepository is the append-only command audit log. Inserts are
// keyed by event_id so replays are no-ops.
type CommandEventsRepository interface {
	Insert(ctx context.Context, event *models.DeviceCommandEventRecord) error
}

type PostgresCommandEventsStore struct {
	db *gorm.DB
}

func NewCommandEventsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (CommandEventsRepository, error) {
	return &PostgresCommandEventsStore{db: db}, nil
}

func (s *PostgresCommandEventsStore) Insert(ctx context.Context, event *models.DeviceCommandEventRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event).Error
}
