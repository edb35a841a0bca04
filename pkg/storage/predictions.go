package storage

import (
	"context"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PredictionsRepository interface {
	Insert(ctx context.Context, record *models.AiPredictionRecord) error
}

type PostgresPredictionsStore struct {
	db *gorm.DB
}

func NewPredictionsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (PredictionsRepository, error) {
	return &PostgresPredictionsStore{db: db}, nil
}

func (s *PostgresPredictionsStore) Insert(ctx context.Context, record *models.AiPredictionRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}
