package stepstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/veranda-hq/applyflow/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: parse postgres config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "stepstore: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS step_outputs (
	session_id TEXT NOT NULL,
	step       INTEGER NOT NULL,
	output     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, step)
);

CREATE TABLE IF NOT EXISTS rental_info (
	session_id TEXT PRIMARY KEY,
	info       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wizard_state (
	session_id TEXT PRIMARY KEY,
	last_step  INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "stepstore: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetStep(ctx context.Context, sessionID string, step int) (*model.StepOutput, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT output FROM step_outputs WHERE session_id = $1 AND step = $2`,
		sessionID, step,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "stepstore: get step %d", step)
	}

	var out model.StepOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "stepstore: unmarshal step %d", step)
	}
	return &out, nil
}

func (s *PostgresStore) SetStep(ctx context.Context, sessionID string, out model.StepOutput) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return eris.Wrapf(err, "stepstore: marshal step %d", out.Step)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO step_outputs (session_id, step, output, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id, step) DO UPDATE SET output = EXCLUDED.output, updated_at = now()`,
		sessionID, out.Step, raw,
	)
	return eris.Wrapf(err, "stepstore: set step %d", out.Step)
}

func (s *PostgresStore) ListSteps(ctx context.Context, sessionID string) ([]model.StepOutput, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT output FROM step_outputs WHERE session_id = $1 ORDER BY step`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: list steps")
	}
	defer rows.Close()

	var outs []model.StepOutput
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "stepstore: scan step")
		}
		var out model.StepOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, eris.Wrap(err, "stepstore: unmarshal step")
		}
		outs = append(outs, out)
	}
	return outs, eris.Wrap(rows.Err(), "stepstore: iterate steps")
}

func (s *PostgresStore) ClearSteps(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM step_outputs WHERE session_id = $1`, sessionID)
	return eris.Wrap(err, "stepstore: clear steps")
}

func (s *PostgresStore) Info(ctx context.Context, sessionID string) (*model.RentalInfo, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT info FROM rental_info WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.RentalInfo{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: get info")
	}

	var info model.RentalInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, eris.Wrap(err, "stepstore: unmarshal info")
	}
	return &info, nil
}

func (s *PostgresStore) MergeInfo(ctx context.Context, sessionID string, in model.RentalInfo) (*model.RentalInfo, error) {
	info, err := s.Info(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	info.Merge(in)

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: marshal info")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rental_info (session_id, info, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET info = EXCLUDED.info, updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return nil, eris.Wrap(err, "stepstore: set info")
	}
	return info, nil
}

func (s *PostgresStore) ClearInfo(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rental_info WHERE session_id = $1`, sessionID)
	return eris.Wrap(err, "stepstore: clear info")
}

func (s *PostgresStore) LastStep(ctx context.Context, sessionID string) (int, error) {
	var step int
	err := s.pool.QueryRow(ctx,
		`SELECT last_step FROM wizard_state WHERE session_id = $1`, sessionID,
	).Scan(&step)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "stepstore: get last step")
	}
	return step, nil
}

func (s *PostgresStore) SetLastStep(ctx context.Context, sessionID string, step int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wizard_state (session_id, last_step, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET last_step = EXCLUDED.last_step, updated_at = now()`,
		sessionID, step,
	)
	return eris.Wrap(err, "stepstore: set last step")
}
