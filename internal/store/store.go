// Package store persists correction factors in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/born-ml/tokencodec/internal/calibrate"
)

// currentSchemaVersion is bumped whenever the schema changes.
const currentSchemaVersion = 1

// ErrNewerSchema is returned by Open for a database written by a newer release.
var ErrNewerSchema = errors.New("database schema is newer than supported")

// Store is a calibrate.Store backed by a SQLite file.
//
// SQLite serializes writers and WAL mode lets readers proceed alongside
// them. Transactions start IMMEDIATE, so the read-modify-write in
// RecordSample holds the write lock from its first read.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

var _ calibrate.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn, now: time.Now}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")

	return s.conn.Close()
}

func (s *Store) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO settings (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS correction_factors (
		model TEXT PRIMARY KEY,
		samples INTEGER NOT NULL DEFAULT 0,
		ratio REAL NOT NULL DEFAULT 1.0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`, currentSchemaVersion)

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: version %d, supported %d", ErrNewerSchema, version, currentSchemaVersion)
	}

	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.conn.QueryRow("SELECT schema_version FROM settings WHERE id = 1").Scan(&version)
	return version, err
}

func (s *Store) Factor(ctx context.Context, model string) (calibrate.Factor, bool, error) {
	f, err := scanFactor(s.conn.QueryRowContext(ctx,
		"SELECT model, samples, ratio, updated_at FROM correction_factors WHERE model = ?", model))
	if errors.Is(err, sql.ErrNoRows) {
		return calibrate.Factor{}, false, nil
	}
	if err != nil {
		return calibrate.Factor{}, false, fmt.Errorf("get correction factor: %w", err)
	}
	return f, true, nil
}

func (s *Store) RecordSample(ctx context.Context, model string, ratio float64) (calibrate.Factor, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return calibrate.Factor{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	f, err := scanFactor(tx.QueryRowContext(ctx,
		"SELECT model, samples, ratio, updated_at FROM correction_factors WHERE model = ?", model))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return calibrate.Factor{}, fmt.Errorf("get correction factor: %w", err)
	}

	f.Model = model
	f.Ratio = calibrate.RunningMean(f.Ratio, f.Samples, ratio)
	f.Samples++
	f.UpdatedAt = s.now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO correction_factors (model, samples, ratio, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			samples = excluded.samples,
			ratio = excluded.ratio,
			updated_at = excluded.updated_at
	`, f.Model, f.Samples, f.Ratio, f.UpdatedAt)
	if err != nil {
		return calibrate.Factor{}, fmt.Errorf("save correction factor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return calibrate.Factor{}, fmt.Errorf("commit transaction: %w", err)
	}

	return f, nil
}

func (s *Store) Clear(ctx context.Context, model string) error {
	var err error
	if model == "" {
		_, err = s.conn.ExecContext(ctx, "DELETE FROM correction_factors")
	} else {
		_, err = s.conn.ExecContext(ctx, "DELETE FROM correction_factors WHERE model = ?", model)
	}
	if err != nil {
		return fmt.Errorf("clear correction factors: %w", err)
	}
	return nil
}

func (s *Store) Factors(ctx context.Context) ([]calibrate.Factor, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT model, samples, ratio, updated_at FROM correction_factors ORDER BY model")
	if err != nil {
		return nil, fmt.Errorf("query correction factors: %w", err)
	}
	defer rows.Close()

	var factors []calibrate.Factor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan correction factor: %w", err)
		}
		factors = append(factors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correction factors: %w", err)
	}

	return factors, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFactor(row scanner) (calibrate.Factor, error) {
	var f calibrate.Factor
	err := row.Scan(&f.Model, &f.Samples, &f.Ratio, &f.UpdatedAt)
	return f, err
}
