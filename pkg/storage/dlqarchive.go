package storage

import (
	"context"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DlqArchiveRepository keeps the forensic archive of dead-lettered
// telemetry. Uniqueness on (topic, partition, offset) makes replays no-ops.
type DlqArchiveRepository interface {
	Insert(ctx context.Context, record *models.TelemetryDlqMessage) error
}

type PostgresDlqArchiveStore struct {
	db *gorm.DB
}

func NewDlqArchivePostgresRepository(logger *logrus.Entry, db *gorm.DB) (DlqArchiveRepository, error) {
	return &PostgresDlqArchiveStore{db: db}, nil
}

func (s *PostgresDlqArchiveStore) Insert(ctx context.Context, record *models.TelemetryDlqMessage) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kafka_topic"}, {Name: "kafka_partition"}, {Name: "kafka_offset"}},
			DoNothing: true,
		}).
		Create(record).Error
}
