// Package stepstore persists wizard progress: the sparse step-output
// sequence, the flat rental/applicant merge object, and the last saved
// step. File bytes never land here; they live in the blob tier and are
// referenced by key.
package stepstore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/veranda-hq/applyflow/internal/config"
	"github.com/veranda-hq/applyflow/internal/model"
)

// Store is the index-tier persistence contract.
type Store interface {
	// GetStep returns the output for one slot, or nil when the slot is
	// empty.
	GetStep(ctx context.Context, sessionID string, step int) (*model.StepOutput, error)
	// SetStep writes one slot, overwriting in place.
	SetStep(ctx context.Context, sessionID string, out model.StepOutput) error
	// ListSteps returns all non-empty slots in step order.
	ListSteps(ctx context.Context, sessionID string) ([]model.StepOutput, error)
	// ClearSteps removes every slot for the session.
	ClearSteps(ctx context.Context, sessionID string) error

	Info(ctx context.Context, sessionID string) (*model.RentalInfo, error)
	MergeInfo(ctx context.Context, sessionID string, in model.RentalInfo) (*model.RentalInfo, error)
	ClearInfo(ctx context.Context, sessionID string) error

	LastStep(ctx context.Context, sessionID string) (int, error)
	SetLastStep(ctx context.Context, sessionID string, step int) error

	Migrate(ctx context.Context) error
	Close() error
}

// New builds a Store from config.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("stepstore: unknown driver %q", cfg.Driver)
	}
}
