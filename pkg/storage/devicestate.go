package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeviceStateRepository maintains the best-effort latest-state shadow.
// The guard keeps updated_at monotonic: a slow replay with an older
// timestamp never overwrites fresher state.
type DeviceStateRepository interface {
	UpsertShadow(ctx context.Context, deviceID string, updatedAt time.Time, state map[string]interface{}) error
}

type PostgresDeviceStateStore struct {
	db *gorm.DB
}

func NewDeviceStatePostgresRepository(logger *logrus.Entry, db *gorm.DB) (DeviceStateRepository, error) {
	return &PostgresDeviceStateStore{db: db}, nil
}

func (s *PostgresDeviceStateStore) UpsertShadow(ctx context.Context, deviceID string, updatedAt time.Time, state map[string]interface{}) error {
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO device_state (device_id, version, state, updated_at)
		VALUES (?, 1, ?::jsonb, ?::timestamptz)
		ON CONFLICT (device_id) DO UPDATE
		SET
			version = device_state.version + 1,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.updated_at >= device_state.updated_at`,
		deviceID, jsonString(state), updatedAt).Error
}
