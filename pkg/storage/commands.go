package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AckOutcome string

const (
	AckApplied AckOutcome = "updated"
	AckNoop    AckOutcome = "noop"
	AckMissing AckOutcome = "missing"
)

type SentCommand struct {
	CommandID string
	DeviceID  string
	SentAt    time.Time
}

// CommandsRepository owns the device_commands lifecycle mutations. Every
// mutation is guarded so redelivered records cannot regress a command.
type CommandsRepository interface {
	GetCommandAndDeviceStatus(ctx context.Context, commandID string) (commandStatus models.CommandStatus, deviceStatus models.DeviceStatus, found bool, err error)
	MarkSent(ctx context.Context, commandID string) error
	CancelForRevokedDevice(ctx context.Context, commandID string) error
	ApplyAck(ctx context.Context, ack models.DeviceCommandAck) (AckOutcome, error)
	ListSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]SentCommand, error)
	MarkTimeout(ctx context.Context, commandID string, deviceID string, detail string) (bool, error)
}

type PostgresCommandsStore struct {
	db *gorm.DB
}

func NewCommandsPostgresRepository(logger *logrus.Entry, db *gorm.DB) (CommandsRepository, error) {
	return &PostgresCommandsStore{db: db}, nil
}

func (s *PostgresCommandsStore) GetCommandAndDeviceStatus(ctx context.Context, commandID string) (models.CommandStatus, models.DeviceStatus, bool, error) {
	var row struct {
		CommandStatus models.CommandStatus
		DeviceStatus  models.DeviceStatus
	}

	tx := s.db.WithContext(ctx).Raw(`
		SELECT
			dc.status AS command_status,
			d.status AS device_status
		FROM device_commands dc
		JOIN devices d ON d.device_id = dc.device_id
		WHERE dc.command_id = ?`, commandID).Scan(&row)
	if tx.Error != nil {
		return "", "", false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return "", "", false, nil
	}

	return row.CommandStatus, row.DeviceStatus, true, nil
}

// MarkSent performs at most one queued-to-sent transition; a redelivered
// record finds status != 'queued' and only refreshes updated_at.
func (s *PostgresCommandsStore) MarkSent(ctx context.Context, commandID string) error {
	return s.db.WithContext(ctx).Exec(`
		UPDATE device_commands
		SET
			status = CASE WHEN status = 'queued' THEN 'sent' ELSE status END,
			sent_at = COALESCE(sent_at, NOW()),
			updated_at = NOW()
		WHERE command_id = ?`, commandID).Error
}

func (s *PostgresCommandsStore) CancelForRevokedDevice(ctx context.Context, commandID string) error {
	return s.db.WithContext(ctx).Exec(`
		UPDATE device_commands
		SET
			status = 'canceled',
			error_message = 'device revoked',
			updated_at = NOW()
		WHERE command_id = ? AND status <> 'acked'`, commandID).Error
}

// ApplyAck applies an ack under the monotonicity guard: only commands still
// in 'queued' or 'sent' move, and acked_at never regresses.
func (s *PostgresCommandsStore) ApplyAck(ctx context.Context, ack models.DeviceCommandAck) (AckOutcome, error) {
	var errorMessage *string
	if ack.Status == models.AckFailed {
		errorMessage = pickErrorMessage(ack.Result)
	}

	result := ack.Result
	if result == nil {
		result = map[string]interface{}{}
	}

	tx := s.db.WithContext(ctx).Exec(`
		UPDATE device_commands
		SET
			status = ?,
			acked_at = ?::timestamptz,
			result = ?::jsonb,
			error_message = ?,
			updated_at = NOW()
		WHERE
			command_id = ?
			AND device_id = ?
			AND status IN ('queued', 'sent')
			AND (acked_at IS NULL OR ?::timestamptz >= acked_at)`,
		string(ack.Status), ack.AckTs, jsonString(result), errorMessage, ack.CommandID, ack.DeviceID, ack.AckTs)
	if tx.Error != nil {
		return "", tx.Error
	}
	if tx.RowsAffected > 0 {
		return AckApplied, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.DeviceCommandRecord{}).
		Where("command_id = ? AND device_id = ?", ack.CommandID, ack.DeviceID).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	if count == 0 {
		return AckMissing, nil
	}
	return AckNoop, nil
}

func (s *PostgresCommandsStore) ListSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]SentCommand, error) {
	var rows []SentCommand
	err := s.db.WithContext(ctx).Raw(`
		SELECT command_id, device_id, sent_at
		FROM device_commands
		WHERE
			status = 'sent'
			AND sent_at IS NOT NULL
			AND sent_at <= ?
		ORDER BY sent_at ASC
		LIMIT ?`, cutoff, limit).Scan(&rows).Error
	return rows, err
}

// MarkTimeout transitions a single command to 'timeout', guarded on it
// still being 'sent'. The boolean reports whether this call won the
// transition.
func (s *PostgresCommandsStore) MarkTimeout(ctx context.Context, commandID string, deviceID string, detail string) (bool, error) {
	tx := s.db.WithContext(ctx).Exec(`
		UPDATE device_commands
		SET
			status = 'timeout',
			error_message = ?,
			updated_at = NOW()
		WHERE command_id = ? AND device_id = ? AND status = 'sent'`, detail, commandID, deviceID)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func pickErrorMessage(result map[string]interface{}) *string {
	for _, key := range []string{"error_message", "message"} {
		if v, ok := result[key]; ok {
			if s, ok := v.(string); ok {
				trimmed := strings.TrimSpace(s)
				if trimmed != "" {
					return &trimmed
				}
			}
		}
	}
	return nil
}

func jsonString(v map[string]interface{}) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
