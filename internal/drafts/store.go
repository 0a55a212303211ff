// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package drafts persists composition drafts and remembers their last export.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go driver
)

// ErrNotFound is returned for unknown draft ids.
var ErrNotFound = errors.New("draft not found")

// Draft is a saved composition. Segment locations are relative to the media
// root unless absolute.
type Draft struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Segments     []segment.Descriptor `json:"segments"`
	LastExport   string               `json:"lastExport,omitempty"`
	LastExportMs int64                `json:"lastExportMs,omitempty"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// Store is the draft persistence contract.
type Store interface {
	Get(ctx context.Context, id string) (Draft, error)
	Put(ctx context.Context, d Draft) error
	List(ctx context.Context) ([]Draft, error)
	RecordExport(ctx context.Context, id, outputLocation string, duration media.Millis) error
	Close() error
}

// Config tunes the SQLite connection pool.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns WAL-friendly pool settings.
func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second, MaxOpenConns: 4}
}

// SQLiteStore keeps drafts in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, cfg Config) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("drafts: empty database path")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	if cfg.MaxOpenConns < 1 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("drafts: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("drafts: ping: %w", err)
	}

	s := &SQLiteStore{db: db, logger: log.WithComponent("drafts"), now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("drafts: migrate: %w", err)
	}
	s.logger.Debug().Str(log.FieldPath, path).Msg("draft store opened")
	return s, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		segments TEXT NOT NULL DEFAULT '[]',
		last_export TEXT,
		last_export_ms INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get loads one draft.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Draft, error) {
	query := `
	SELECT id, name, segments, last_export, last_export_ms, updated_at
	FROM drafts
	WHERE id = ?
	`
	d, err := scanDraft(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

// Put inserts or replaces a draft's name and segments. The last export is
// kept.
func (s *SQLiteStore) Put(ctx context.Context, d Draft) error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("drafts: empty id")
	}
	segs := d.Segments
	if segs == nil {
		segs = []segment.Descriptor{}
	}
	raw, err := json.Marshal(segs)
	if err != nil {
		return fmt.Errorf("drafts: encode segments: %w", err)
	}
	query := `
	INSERT INTO drafts (id, name, segments, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		segments = excluded.segments,
		updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, d.ID, d.Name, string(raw), s.timestamp())
	return err
}

// List returns all drafts, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Draft, error) {
	query := `
	SELECT id, name, segments, last_export, last_export_ms, updated_at
	FROM drafts
	ORDER BY updated_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordExport stores the location and duration of a completed export.
func (s *SQLiteStore) RecordExport(ctx context.Context, id, outputLocation string, duration media.Millis) error {
	query := `
	UPDATE drafts
	SET last_export = ?, last_export_ms = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, outputLocation, int64(duration), s.timestamp(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Info().
		Str(log.FieldDraftID, id).
		Str(log.FieldOutputPath, outputLocation).
		Int64(log.FieldDurationMs, int64(duration)).
		Msg("export recorded on draft")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// timestampLayout is fixed width so that text order is time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func scanDraft(row scanner) (Draft, error) {
	var (
		d          Draft
		segs       string
		lastExport sql.NullString
		updatedAt  string
	)
	if err := row.Scan(&d.ID, &d.Name, &segs, &lastExport, &d.LastExportMs, &updatedAt); err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal([]byte(segs), &d.Segments); err != nil {
		return Draft{}, fmt.Errorf("drafts: decode segments of %s: %w", d.ID, err)
	}
	if lastExport.Valid {
		d.LastExport = lastExport.String
	}
	ts, err := time.Parse(timestampLayout, updatedAt)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, updatedAt)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("drafts: updated_at of %s: %w", d.ID, err)
	}
	d.UpdatedAt = ts
	return d, nil
}
