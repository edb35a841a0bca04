package storage

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DevicesRepository interface {
	ResolveStationID(ctx context.Context, deviceID string) (*string, error)
}

type PostgresDevicesStore struct {
	db *gorm.DB
}

func NewDevicesPostgresRepository(logger *logrus.Entry, db *gorm.DB) (DevicesRepository, error) {
	return &PostgresDevicesStore{db: db}, nil
}

// ResolveStationID returns nil when the device is unknown or has no station.
func (s *PostgresDevicesStore) ResolveStationID(ctx context.Context, deviceID string) (*string, error) {
	var rows []struct {
		StationID *string
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT station_id FROM devices WHERE device_id = ?`, deviceID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].StationID, nil
}
