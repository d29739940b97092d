package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/vincentbai/browsetrace-sessions/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

type Database struct {
	db *sql.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id         INTEGER PRIMARY KEY,
	  visitor_id TEXT    NOT NULL,
	  url        TEXT    NOT NULL,
	  ts         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_visitor_ts ON events(visitor_id, ts);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) ValidateEvent(event models.Event) error {
	if event.VisitorID == "" {
		return fmt.Errorf("visitorId cannot be empty")
	}
	if event.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	// SQLite integers are signed 64-bit.
	if uint64(event.Timestamp) > math.MaxInt64 {
		return fmt.Errorf("timestamp %d exceeds storage range", event.Timestamp)
	}
	return nil
}

func (d *Database) InsertEvents(ctx context.Context, events []models.Event) error {
	transaction, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.PrepareContext(ctx, `INSERT INTO events(visitor_id, url, ts) VALUES(?,?,?)`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, event := range events {
		if err := d.ValidateEvent(event); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		if _, err := statement.ExecContext(ctx, event.VisitorID, event.URL, int64(event.Timestamp)); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Events returns every stored event in insertion order. A negative stored
// timestamp aborts the load with models.ErrMalformedInput.
func (d *Database) Events(ctx context.Context) ([]models.Event, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT visitor_id, url, ts FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event models.Event
			ts    int64
		)
		if err := rows.Scan(&event.VisitorID, &event.URL, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ts < 0 {
			return nil, fmt.Errorf("%w: stored timestamp %d for visitor %q is negative", models.ErrMalformedInput, ts, event.VisitorID)
		}
		event.Timestamp = models.Timestamp(ts)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Fetch makes the store usable as a run's event source.
func (d *Database) Fetch(ctx context.Context) ([]models.Event, error) {
	return d.Events(ctx)
}
