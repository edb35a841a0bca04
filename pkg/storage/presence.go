package storage

import (
	"context"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepository keeps one last-write-wins row per device.
type PresenceRepository interface {
	Upsert(ctx context.Context, record *models.DevicePresenceRecord) error
}

type PostgresPresenceStore struct {
	db *gorm.DB
}

func NewPresencePostgresRepository(logger *logrus.Entry, db *gorm.DB) (PresenceRepository, error) {
	return &PostgresPresenceStore{db: db}, nil
}

func (s *PostgresPresenceStore) Upsert(ctx context.Context, record *models.DevicePresenceRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":      record.Status,
				"event_ts":    record.EventTs,
				"received_ts": record.ReceivedTs,
				"meta":        jsonString(record.Meta),
				"updated_at":  gorm.Expr("NOW()"),
			}),
		}).
		Create(record).Error
}
