package stepstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/veranda-hq/applyflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "stepstore: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS step_outputs (
	session_id TEXT NOT NULL,
	step       INTEGER NOT NULL,
	output     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (session_id, step)
);

CREATE TABLE IF NOT EXISTS rental_info (
	session_id TEXT PRIMARY KEY,
	info       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS wizard_state (
	session_id TEXT PRIMARY KEY,
	last_step  INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_step_outputs_session ON step_outputs(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "stepstore: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetStep(ctx context.Context, sessionID string, step int) (*model.StepOutput, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT output FROM step_outputs WHERE session_id = ? AND step = ?`,
		sessionID, step,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "stepstore: get step %d", step)
	}

	var out model.StepOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrapf(err, "stepstore: unmarshal step %d", step)
	}
	return &out, nil
}

func (s *SQLiteStore) SetStep(ctx context.Context, sessionID string, out model.StepOutput) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return eris.Wrapf(err, "stepstore: marshal step %d", out.Step)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_outputs (session_id, step, output, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, step) DO UPDATE SET output = excluded.output, updated_at = excluded.updated_at`,
		sessionID, out.Step, string(raw), time.Now().UTC(),
	)
	return eris.Wrapf(err, "stepstore: set step %d", out.Step)
}

func (s *SQLiteStore) ListSteps(ctx context.Context, sessionID string) ([]model.StepOutput, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT output FROM step_outputs WHERE session_id = ? ORDER BY step`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: list steps")
	}
	defer rows.Close()

	var outs []model.StepOutput
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "stepstore: scan step")
		}
		var out model.StepOutput
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, eris.Wrap(err, "stepstore: unmarshal step")
		}
		outs = append(outs, out)
	}
	return outs, eris.Wrap(rows.Err(), "stepstore: iterate steps")
}

func (s *SQLiteStore) ClearSteps(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM step_outputs WHERE session_id = ?`, sessionID)
	return eris.Wrap(err, "stepstore: clear steps")
}

func (s *SQLiteStore) Info(ctx context.Context, sessionID string) (*model.RentalInfo, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT info FROM rental_info WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.RentalInfo{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: get info")
	}

	var info model.RentalInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, eris.Wrap(err, "stepstore: unmarshal info")
	}
	return &info, nil
}

func (s *SQLiteStore) MergeInfo(ctx context.Context, sessionID string, in model.RentalInfo) (*model.RentalInfo, error) {
	info, err := s.Info(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	info.Merge(in)

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: marshal info")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rental_info (session_id, info, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET info = excluded.info, updated_at = excluded.updated_at`,
		sessionID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: set info")
	}
	return info, nil
}

func (s *SQLiteStore) ClearInfo(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rental_info WHERE session_id = ?`, sessionID)
	return eris.Wrap(err, "stepstore: clear info")
}

func (s *SQLiteStore) LastStep(ctx context.Context, sessionID string) (int, error) {
	var step int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_step FROM wizard_state WHERE session_id = ?`, sessionID,
	).Scan(&step)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "stepstore: get last step")
	}
	return step, nil
}

func (s *SQLiteStore) SetLastStep(ctx context.Context, sessionID string, step int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wizard_state (session_id, last_step, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET last_step = excluded.last_step, updated_at = excluded.updated_at`,
		sessionID, step, time.Now().UTC(),
	)
	return eris.Wrap(err, "stepstore: set last step")
}
