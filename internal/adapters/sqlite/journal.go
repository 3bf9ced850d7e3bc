// Package sqlite stores outbound notifications in an append-only SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// Journal implements ports.SnapshotJournal using SQLite.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal opens (creating if needed) the journal database.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/eve_journal.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	// A single writer; the journal is only appended from the sink goroutine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger, now: time.Now}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite journal ready", map[string]interface{}{"path": dbPath})
	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		payload TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_name_id ON snapshots (name, id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_entity_sequence ON snapshots (entity_id, sequence);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing SQLite journal")
		return j.db.Close()
	}
	return nil
}

// Record appends one notification. The payload is the JSON encoding of Data.
func (j *Journal) Record(ctx context.Context, snap domain.Snapshot) error {
	const query = `
	INSERT INTO snapshots (name, entity_id, sequence, payload, recorded_at)
	VALUES (?, ?, ?, ?, ?)`

	payload, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot %s: %w", snap.Name, snap.ID, err)
	}
	if _, err := j.db.ExecContext(ctx, query, snap.Name, snap.ID, int64(snap.Type), string(payload), j.now().UnixMilli()); err != nil {
		return fmt.Errorf("%w: %s snapshot %s: %w", ports.ErrInsertFailed, snap.Name, snap.ID, err)
	}
	return nil
}

// FindByEntity returns the latest notifications with the given name, newest first.
func (j *Journal) FindByEntity(ctx context.Context, name string, limit int) ([]ports.JournalEntry, error) {
	const query = `
	SELECT id, name, entity_id, sequence, payload, recorded_at
	FROM snapshots
	WHERE name = ? ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshots for %s: %w", ports.ErrQueryFailed, name, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Latest returns the newest notification for one entity.
func (j *Journal) Latest(ctx context.Context, entityID string) (*ports.JournalEntry, error) {
	const query = `
	SELECT id, name, entity_id, sequence, payload, recorded_at
	FROM snapshots
	WHERE entity_id = ? ORDER BY sequence DESC LIMIT 1`

	e, err := scanEntry(j.db.QueryRowContext(ctx, query, entityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entity %s: %w", entityID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: latest snapshot for %s: %w", ports.ErrQueryFailed, entityID, err)
	}
	return e, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*ports.JournalEntry, error) {
	e := &ports.JournalEntry{}
	var seq int64
	var payload string
	if err := s.Scan(&e.ID, &e.Name, &e.EntityID, &seq, &payload, &e.RecordedAt); err != nil {
		return nil, err
	}
	e.Sequence = uint64(seq)
	e.Payload = []byte(payload)
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]ports.JournalEntry, error) {
	entries := make([]ports.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return entries, nil
}
