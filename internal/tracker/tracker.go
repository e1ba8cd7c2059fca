// Package tracker mirrors application progress into a server-side
// tracking record keyed by session id. Records drive cross-device
// resume links and the reminder/alert scanner.
package tracker

import (
	"context"
	"time"

	"github.com/veranda-hq/applyflow/internal/model"
)

// Store is the tracking-record persistence contract. One entity, one
// key: session id. Email is an attribute with a secondary index, never
// an alternate primary key.
type Store interface {
	// Apply upserts a partial update: only the fields set on the update
	// are written, createdAt is first-write-wins, lastActivity and the
	// TTL horizon always advance. Returns the record after the write.
	Apply(ctx context.Context, sessionID string, u model.TrackingUpdate) (*model.TrackingRecord, error)

	// Get returns the record, or nil when none exists.
	Get(ctx context.Context, sessionID string) (*model.TrackingRecord, error)

	// GetByEmail looks a record up through the email index.
	GetByEmail(ctx context.Context, email string) (*model.TrackingRecord, error)

	// Delete removes the record. Deleting is the only way the one-shot
	// notification flags ever reset.
	Delete(ctx context.Context, sessionID string) error

	// MarkReminded flips userReminderSent false→true. Returns false
	// without writing when the flag was already set or the record is
	// gone, so at most one reminder is ever sent per record.
	MarkReminded(ctx context.Context, sessionID string) (bool, error)

	// MarkAlerted is MarkReminded for the salesAlertSent flag.
	MarkAlerted(ctx context.Context, sessionID string) (bool, error)

	// ListIncomplete returns records idle since before the cutoff whose
	// step has not reached finalStep.
	ListIncomplete(ctx context.Context, idleBefore time.Time, finalStep int) ([]model.TrackingRecord, error)
}
