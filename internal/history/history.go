// Package history persists quota snapshots so consumers can chart usage over
// time. Storage is a local SQLite file.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"

	"github.com/j-veylop/cascade-quota-engine/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// Store wraps the SQL database connection with application-specific methods.
type Store struct {
	*sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{
		DB:   sqlDB,
		path: path,
	}

	if err := store.configure(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := store.createSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// configure sets up database pragmas.
func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// createSchema creates the snapshot tables if they do not exist.
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			credits_available REAL,
			credits_monthly REAL
		);

		CREATE TABLE IF NOT EXISTS snapshot_models (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			label TEXT NOT NULL,
			model_id TEXT NOT NULL,
			remaining_fraction REAL NOT NULL,
			is_exhausted INTEGER NOT NULL DEFAULT 0,
			reset_time TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);
		CREATE INDEX IF NOT EXISTS idx_snapshot_models_snapshot ON snapshot_models(snapshot_id);
	`

	if _, err := s.ExecContext(context.Background(), schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Insert records a snapshot and its model entries in one transaction.
func (s *Store) Insert(snap *models.QuotaSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}

	tx, err := s.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var available, monthly sql.NullFloat64
	if snap.PromptCredits != nil {
		available = sql.NullFloat64{Float64: snap.PromptCredits.Available, Valid: true}
		monthly = sql.NullFloat64{Float64: snap.PromptCredits.Monthly, Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO snapshots (timestamp, credits_available, credits_monthly) VALUES (?, ?, ?)`,
		snap.Timestamp.UTC().Format(timeFormat), available, monthly,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	snapshotID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read snapshot id: %w", err)
	}

	for _, m := range snap.Models {
		var reset sql.NullString
		if !m.ResetTime.IsZero() {
			reset = sql.NullString{String: m.ResetTime.UTC().Format(timeFormat), Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO snapshot_models
				(snapshot_id, label, model_id, remaining_fraction, is_exhausted, reset_time)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			snapshotID, m.Label, m.ModelID, m.RemainingFraction, boolToInt(m.IsExhausted), reset,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot model: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Recent returns the most recent snapshots, newest first, with their model
// entries attached.
func (s *Store) Recent(limit int) ([]models.QuotaSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.QueryContext(context.Background(),
		`SELECT id, timestamp, credits_available, credits_monthly
		 FROM snapshots ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type row struct {
		id   int64
		snap models.QuotaSnapshot
	}
	var out []row

	for rows.Next() {
		var r row
		var ts string
		var available, monthly sql.NullFloat64
		if err := rows.Scan(&r.id, &ts, &available, &monthly); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if t, err := time.Parse(timeFormat, ts); err == nil {
			r.snap.Timestamp = t.UTC()
		}
		if available.Valid && monthly.Valid && monthly.Float64 > 0 {
			r.snap.PromptCredits = &models.PromptCreditsInfo{
				Available:           available.Float64,
				Monthly:             monthly.Float64,
				UsedPercentage:      (monthly.Float64 - available.Float64) / monthly.Float64 * 100,
				RemainingPercentage: available.Float64 / monthly.Float64 * 100,
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	for i := range out {
		if err := s.attachModels(&out[i].snap, out[i].id); err != nil {
			return nil, err
		}
	}

	snaps := make([]models.QuotaSnapshot, len(out))
	for i, r := range out {
		snaps[i] = r.snap
	}
	return snaps, nil
}

func (s *Store) attachModels(snap *models.QuotaSnapshot, snapshotID int64) error {
	rows, err := s.QueryContext(context.Background(),
		`SELECT label, model_id, remaining_fraction, is_exhausted, reset_time
		 FROM snapshot_models WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to query snapshot models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m models.ModelQuotaInfo
		var exhausted int
		var reset sql.NullString
		if err := rows.Scan(&m.Label, &m.ModelID, &m.RemainingFraction, &exhausted, &reset); err != nil {
			return fmt.Errorf("failed to scan snapshot model: %w", err)
		}
		m.RemainingPercentage = m.RemainingFraction * 100
		m.IsExhausted = exhausted != 0
		if reset.Valid {
			if t, err := time.Parse(timeFormat, reset.String); err == nil {
				m.ResetTime = t.UTC()
			}
		}
		snap.Models = append(snap.Models, m)
	}
	return rows.Err()
}

// Prune removes snapshots older than the retention window.
func (s *Store) Prune(retention time.Duration) error {
	cutoff := time.Now().Add(-retention).UTC().Format(timeFormat)
	if _, err := s.ExecContext(context.Background(),
		`DELETE FROM snapshots WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
