// Package db pkg/db/db.go provides SQLite storage for device events and the
// phased command trigger history.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mfreeman451/killswitch/pkg/command"
	"github.com/mfreeman451/killswitch/pkg/logger"
)

const (
	// Maximum number of events returned by a single query.
	maxEventRows = 1000

	createTablesSQL = `
	-- Device transitions (inactive, shutdown, enable)
	CREATE TABLE IF NOT EXISTS device_events (
		id TEXT PRIMARY KEY,
		device_hash TEXT NOT NULL,
		hostname TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Phased command triggers, never cleaned
	CREATE TABLE IF NOT EXISTS command_triggers (
		id TEXT PRIMARY KEY,
		triggered_at TIMESTAMP NOT NULL,
		source TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_device_events_hash_time
		ON device_events(device_hash, timestamp);
	CREATE INDEX IF NOT EXISTS idx_device_events_time
		ON device_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_command_triggers_time
		ON command_triggers(triggered_at);
	`
)

// DB represents the database connection and operations.
type DB struct {
	*sql.DB
	logger logger.Logger
}

// New creates a new database connection and initializes the schema.
func New(dbPath string, log logger.Logger) (Service, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", ErrFailedToEnableWAL, err)
	}

	db := &DB{DB: sqlDB, logger: log}
	if err := db.initSchema(); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	log.Info().Str("path", dbPath).Msg("Opened event database")

	return db, nil
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema() error {
	_, err := db.Exec(createTablesSQL)

	return err
}

// RecordEvent stores a device transition. Missing ids and timestamps are
// filled in.
func (db *DB) RecordEvent(ctx context.Context, event *DeviceEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO device_events (id, device_hash, hostname, kind, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, event.ID, event.DeviceHash, event.Hostname, event.Kind, event.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("%w device event: %w", ErrFailedToInsert, err)
	}

	return nil
}

// DeviceEvents returns the latest events of one device, newest first.
func (db *DB) DeviceEvents(ctx context.Context, deviceHash string, limit int) ([]DeviceEvent, error) {
	const query = `
		SELECT id, device_hash, hostname, kind, timestamp
		FROM device_events
		WHERE device_hash = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	return db.queryEvents(ctx, query, deviceHash, clampLimit(limit))
}

// RecentEvents returns the latest events across all devices, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]DeviceEvent, error) {
	const query = `
		SELECT id, device_hash, hostname, kind, timestamp
		FROM device_events
		ORDER BY timestamp DESC
		LIMIT ?
	`

	return db.queryEvents(ctx, query, clampLimit(limit))
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...interface{}) ([]DeviceEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w device events: %w", ErrFailedToQuery, err)
	}
	defer db.closeRows(rows)

	var events []DeviceEvent

	for rows.Next() {
		var e DeviceEvent
		if err := rows.Scan(&e.ID, &e.DeviceHash, &e.Hostname, &e.Kind, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w device event: %w", ErrFailedToScan, err)
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w device events: %w", ErrFailedToQuery, err)
	}

	return events, nil
}

// RecordTrigger stores a phased command trigger.
func (db *DB) RecordTrigger(ctx context.Context, at time.Time, source string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO command_triggers (id, triggered_at, source)
		VALUES (?, ?, ?)
	`, uuid.NewString(), at.UTC(), source)
	if err != nil {
		return fmt.Errorf("%w trigger: %w", ErrFailedToInsert, err)
	}

	return nil
}

// LoadTriggers returns every trigger, oldest first.
func (db *DB) LoadTriggers(ctx context.Context) ([]command.Trigger, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT triggered_at, source
		FROM command_triggers
		ORDER BY triggered_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w triggers: %w", ErrFailedToQuery, err)
	}
	defer db.closeRows(rows)

	var triggers []command.Trigger

	for rows.Next() {
		var t command.Trigger
		if err := rows.Scan(&t.At, &t.Source); err != nil {
			return nil, fmt.Errorf("%w trigger: %w", ErrFailedToScan, err)
		}

		t.At = t.At.UTC()
		triggers = append(triggers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w triggers: %w", ErrFailedToQuery, err)
	}

	return triggers, nil
}

func (db *DB) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		db.logger.Error().Err(err).Msg("Failed to close rows")
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxEventRows {
		return maxEventRows
	}

	return limit
}
