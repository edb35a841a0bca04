package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockCommandsStore(t *testing.T) (CommandsRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	repo, err := NewCommandsPostgresRepository(logrus.New().WithField("service", "test"), gormDB)
	require.NoError(t, err)
	return repo, mock
}

func TestGetCommandAndDeviceStatus(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("cmd-1").
		WillReturnRows(sqlmock.NewRows([]string{"command_status", "device_status"}).
			AddRow("queued", "active"))

	commandStatus, deviceStatus, found, err := repo.GetCommandAndDeviceStatus(context.Background(), "cmd-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.CommandQueued, commandStatus)
	assert.Equal(t, models.DeviceActive, deviceStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCommandAndDeviceStatusNotFound(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("cmd-1").
		WillReturnRows(sqlmock.NewRows([]string{"command_status", "device_status"}))

	_, _, found, err := repo.GetCommandAndDeviceStatus(context.Background(), "cmd-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMarkSent(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WithArgs("cmd-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "cmd-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAckApplied(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WillReturnResult(sqlmock.NewResult(0, 1))

	outcome, err := repo.ApplyAck(context.Background(), models.DeviceCommandAck{
		SchemaVersion: 1,
		CommandID:     "cmd-1",
		DeviceID:      "dev-1",
		Status:        models.AckOK,
		AckTs:         "2026-01-02T03:04:05Z",
		Result:        map[string]interface{}{"exit_code": float64(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, AckApplied, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAckNoop(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	outcome, err := repo.ApplyAck(context.Background(), models.DeviceCommandAck{
		SchemaVersion: 1,
		CommandID:     "cmd-1",
		DeviceID:      "dev-1",
		Status:        models.AckOK,
		AckTs:         "2026-01-02T03:04:05Z",
	})
	require.NoError(t, err)
	assert.Equal(t, AckNoop, outcome)
}

func TestApplyAckMissing(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	outcome, err := repo.ApplyAck(context.Background(), models.DeviceCommandAck{
		SchemaVersion: 1,
		CommandID:     "cmd-1",
		DeviceID:      "dev-1",
		Status:        models.AckFailed,
		AckTs:         "2026-01-02T03:04:05Z",
		Result:        map[string]interface{}{"error_message": "sensor stuck"},
	})
	require.NoError(t, err)
	assert.Equal(t, AckMissing, outcome)
}

func TestMarkTimeout(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WithArgs("ack timeout after 120s", "cmd-1", "dev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.MarkTimeout(context.Background(), "cmd-1", "dev-1", "ack timeout after 120s")
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMarkTimeoutLostRace(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	mock.ExpectExec("UPDATE device_commands").
		WithArgs("ack timeout after 120s", "cmd-1", "dev-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkTimeout(context.Background(), "cmd-1", "dev-1", "ack timeout after 120s")
	require.NoError(t, err)
	assert.False(t, won)
}

func TestListSentBefore(t *testing.T) {
	repo, mock := newMockCommandsStore(t)

	sentAt := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT command_id, device_id, sent_at").
		WillReturnRows(sqlmock.NewRows([]string{"command_id", "device_id", "sent_at"}).
			AddRow("cmd-1", "dev-1", sentAt).
			AddRow("cmd-2", "dev-1", sentAt.Add(time.Second)))

	rows, err := repo.ListSentBefore(context.Background(), sentAt.Add(time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "cmd-1", rows[0].CommandID)
	assert.Equal(t, sentAt, rows[0].SentAt.UTC())
}

func TestPickErrorMessage(t *testing.T) {
	msg := pickErrorMessage(map[string]interface{}{"error_message": "  boom  "})
	require.NotNil(t, msg)
	assert.Equal(t, "boom", *msg)

	msg = pickErrorMessage(map[string]interface{}{"message": "fallback"})
	require.NotNil(t, msg)
	assert.Equal(t, "fallback", *msg)

	assert.Nil(t, pickErrorMessage(map[string]interface{}{"error_message": "   "}))
	assert.Nil(t, pickErrorMessage(map[string]interface{}{"error_message": 42}))
	assert.Nil(t, pickErrorMessage(map[string]interface{}{}))
}
