package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/models"
	"github.com/sirupsen/logrus"
)

// TelemetryColumnStore appends exploded telemetry rows to the columnar store.
type TelemetryColumnStore interface {
	InsertRows(ctx context.Context, rows []models.TelemetryRow) error
	Close() error
}

type ClickHouseTelemetryStore struct {
	conn   driver.Conn
	table  string
	logger *logrus.Entry

	maxRetries int
	backoff    time.Duration
}

func NewClickHouseTelemetryStore(logger *logrus.Entry, cfg config.ClickHouseConfig, maxRetries int, retryBackoff time.Duration) (TelemetryColumnStore, error) {
	dialTimeout := time.Duration(cfg.DialTimeoutSeconds) * time.Second
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: string(cfg.Password),
		},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "telemetry_raw"
	}

	return &ClickHouseTelemetryStore{
		conn:       conn,
		table:      fmt.Sprintf("%s.%s", cfg.Database, table),
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    retryBackoff,
	}, nil
}

// InsertRows writes the batch in a single INSERT, retrying transient failures
// with linear backoff. Data errors are returned immediately so the caller can
// dead-letter the offending records instead of retrying forever.
func (s *ClickHouseTelemetryStore) InsertRows(ctx context.Context, rows []models.TelemetryRow) error {
	if len(rows) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		lastErr = s.insertOnce(ctx, rows)
		if lastErr == nil {
			return nil
		}

		if IsDataError(lastErr) {
			return lastErr
		}

		s.logger.Warnf("insert attempt %d/%d failed: %s", attempt, s.maxRetries, lastErr)
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *ClickHouseTelemetryStore) insertOnce(ctx context.Context, rows []models.TelemetryRow) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			received_ts, event_ts, device_id, sensor_key, seq,
			value_f64, value_i64, value_str, value_bool, quality, schema_version
		)`, s.table))
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(
			row.ReceivedTs,
			row.EventTs,
			row.DeviceID,
			row.SensorKey,
			row.Seq,
			row.ValueF64,
			row.ValueI64,
			row.ValueStr,
			row.ValueBool,
			row.Quality,
			uint8(row.SchemaVersion),
		); err != nil {
			batch.Abort()
			return err
		}
	}

	return batch.Send()
}

func (s *ClickHouseTelemetryStore) Close() error {
	return s.conn.Close()
}

// Server-side error codes that indicate the payload itself is unparseable or
// mistyped. Retrying such a batch can never succeed.
var dataErrorCodes = map[int32]bool{
	6:   true, // CANNOT_PARSE_TEXT
	27:  true, // CANNOT_PARSE_INPUT_ASSERTION_FAILED
	38:  true, // CANNOT_PARSE_DATE
	41:  true, // CANNOT_PARSE_DATETIME
	53:  true, // TYPE_MISMATCH
	117: true, // INCORRECT_DATA
}

func IsDataError(err error) bool {
	var exc *clickhouse.Exception
	if errors.As(err, &exc) {
		return dataErrorCodes[exc.Code]
	}
	return false
}
