// Package repository provides storage for the latest river status
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/riverflow/internal/entities"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// StatusRepository stores the result of the most recent refresh cycle.
// SaveStatus replaces the previous status and river list as one transition.
type StatusRepository interface {
	SaveStatus(ctx context.Context, status entities.Status) error
	GetStatus(ctx context.Context) (entities.Status, error)
	Close() error
}

// SQLiteStatusRepository implements StatusRepository using SQLite so that
// the refresher and the bot can share state across processes
type SQLiteStatusRepository struct {
	db     *sql.DB
	DBPath string
	logger zerolog.Logger
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS river_status (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		skipped INTEGER NOT NULL DEFAULT 0,
		cycle_id TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS river_view (
		position INTEGER PRIMARY KEY,
		site_id TEXT NOT NULL,
		name TEXT NOT NULL,
		map_link TEXT NOT NULL,
		display_date TEXT NOT NULL,
		display_time TEXT NOT NULL,
		current_flow INTEGER NOT NULL,
		previous_flow INTEGER NOT NULL,
		percent_changed INTEGER,
		condition_text TEXT NOT NULL,
		level INTEGER NOT NULL,
		rising INTEGER NOT NULL,
		rising_fast INTEGER NOT NULL,
		class TEXT NOT NULL DEFAULT '',
		observed_at TEXT NOT NULL
	);`

// NewSQLiteStatusRepository opens (and creates if needed) the status database
func NewSQLiteStatusRepository(dbPath string, logger zerolog.Logger) (*SQLiteStatusRepository, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "riverflow.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Info().Str("path", dbPath).Msg("opening status database")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStatusRepository{
		db:     db,
		DBPath: dbPath,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (r *SQLiteStatusRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveStatus replaces the stored status and river list in a single transaction
func (r *SQLiteStatusRepository) SaveStatus(ctx context.Context, status entities.Status) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO river_status(id, state, reason, message, skipped, cycle_id, updated_at)
		VALUES(1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		state=excluded.state,
		reason=excluded.reason,
		message=excluded.message,
		skipped=excluded.skipped,
		cycle_id=excluded.cycle_id,
		updated_at=excluded.updated_at`,
		string(status.State),
		status.Reason,
		status.Message,
		status.Skipped,
		status.CycleID,
		status.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM river_view`); err != nil {
		return fmt.Errorf("failed to clear rivers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO river_view(position, site_id, name, map_link, display_date, display_time,
			current_flow, previous_flow, percent_changed, condition_text, level,
			rising, rising_fast, class, observed_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, rv := range status.Rivers {
		var pct sql.NullInt64
		if rv.PercentChanged != nil {
			pct = sql.NullInt64{Int64: int64(*rv.PercentChanged), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			i,
			rv.SiteID,
			rv.Name,
			rv.MapLink,
			rv.DisplayDate,
			rv.DisplayTime,
			rv.CurrentFlow,
			rv.PreviousFlow,
			pct,
			rv.Condition,
			rv.Level,
			rv.Rising,
			rv.RisingFast,
			rv.Class,
			rv.ObservedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert river %s: %w", rv.SiteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug().
		Str("state", string(status.State)).
		Int("rivers", len(status.Rivers)).
		Msg("saved status")
	return nil
}

// GetStatus returns the latest status, or a loading status when nothing has been saved yet
func (r *SQLiteStatusRepository) GetStatus(ctx context.Context) (entities.Status, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return entities.Status{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	var (
		status    entities.Status
		state     string
		updatedAt string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT state, reason, message, skipped, cycle_id, updated_at FROM river_status WHERE id = 1`,
	).Scan(&state, &status.Reason, &status.Message, &status.Skipped, &status.CycleID, &updatedAt)
	if err == sql.ErrNoRows {
		return entities.LoadingStatus(), nil
	}
	if err != nil {
		return entities.Status{}, fmt.Errorf("failed to query status: %w", err)
	}
	status.State = entities.State(state)
	if status.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return entities.Status{}, fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT site_id, name, map_link, display_date, display_time, current_flow, previous_flow,
			percent_changed, condition_text, level, rising, rising_fast, class, observed_at
		FROM river_view
		ORDER BY position`)
	if err != nil {
		return entities.Status{}, fmt.Errorf("failed to query rivers: %w", err)
	}
	defer rows.Close()

	status.Rivers = []entities.RiverView{}
	for rows.Next() {
		var (
			rv         entities.RiverView
			pct        sql.NullInt64
			observedAt string
		)
		if err := rows.Scan(
			&rv.SiteID,
			&rv.Name,
			&rv.MapLink,
			&rv.DisplayDate,
			&rv.DisplayTime,
			&rv.CurrentFlow,
			&rv.PreviousFlow,
			&pct,
			&rv.Condition,
			&rv.Level,
			&rv.Rising,
			&rv.RisingFast,
			&rv.Class,
			&observedAt,
		); err != nil {
			return entities.Status{}, fmt.Errorf("failed to scan row: %w", err)
		}
		if pct.Valid {
			v := int(pct.Int64)
			rv.PercentChanged = &v
		}
		if rv.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt); err != nil {
			return entities.Status{}, fmt.Errorf("failed to parse observed_at %q: %w", observedAt, err)
		}
		status.Rivers = append(status.Rivers, rv)
	}

	if err := rows.Err(); err != nil {
		return entities.Status{}, fmt.Errorf("error during row iteration: %w", err)
	}

	return status, nil
}
