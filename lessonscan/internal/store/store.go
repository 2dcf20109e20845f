// Package store persists completed lesson session summaries in SQLite.
// Rows are written once, at session completion, and never updated.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/a11ywatch/finding"
)

// ErrNotFound is returned when no session matches.
var ErrNotFound = errors.New("store: session not found")

// Schema is the session history schema.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	started_at     INTEGER NOT NULL,
	ended_at       INTEGER NOT NULL,
	end_reason     TEXT NOT NULL,
	warning        TEXT NOT NULL DEFAULT '',
	total_screens  INTEGER NOT NULL,
	total_issues   INTEGER NOT NULL,
	failed_screens INTEGER NOT NULL,
	summary        TEXT NOT NULL,
	screens        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at DESC);
`

// Record is one completed session as persisted.
type Record struct {
	SessionID string              `json:"sessionId"`
	StartedAt time.Time           `json:"startedAt"`
	EndedAt   time.Time           `json:"endedAt"`
	EndReason string              `json:"endReason"`
	Warning   string              `json:"warning,omitempty"`
	Summary   finding.Summary     `json:"summary"`
	Screens   []finding.ScreenRef `json:"screens"`
}

// Store is the history database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Save writes a completed session. Saving the same session twice is a
// no-op.
func (s *Store) Save(ctx context.Context, r Record) error {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("store: marshal summary: %w", err)
	}
	screens, err := json.Marshal(r.Screens)
	if err != nil {
		return fmt.Errorf("store: marshal screens: %w", err)
	}

	return runTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO sessions
				(id, started_at, ended_at, end_reason, warning,
				 total_screens, total_issues, failed_screens, summary, screens)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SessionID, r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(), r.EndReason, r.Warning,
			r.Summary.TotalScreens, r.Summary.TotalIssues, r.Summary.FailedScreens,
			string(summary), string(screens))
		if err != nil {
			return fmt.Errorf("store: insert session: %w", err)
		}
		return nil
	})
}

const selectCols = `id, started_at, ended_at, end_reason, warning, summary, screens`

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+selectCols+` FROM sessions WHERE id = ?`, id)
	return scanRecord(row)
}

// Last returns the most recently ended session.
func (s *Store) Last(ctx context.Context) (*Record, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+selectCols+` FROM sessions ORDER BY ended_at DESC, id DESC LIMIT 1`)
	return scanRecord(row)
}

// List returns up to limit sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+selectCols+` FROM sessions ORDER BY ended_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r                Record
		started, ended   int64
		summary, screens string
	)
	err := sc.Scan(&r.SessionID, &started, &ended, &r.EndReason, &r.Warning, &summary, &screens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.EndedAt = time.UnixMilli(ended).UTC()
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return nil, fmt.Errorf("store: decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(screens), &r.Screens); err != nil {
		return nil, fmt.Errorf("store: decode screens: %w", err)
	}
	return &r, nil
}
