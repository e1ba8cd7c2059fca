package resilience

import (
	"time"

	"github.com/veranda-hq/applyflow/internal/model"
)

// DLQEntry is a tracking update the queue exhausted its retries on,
// kept in memory for operator inspection and replay.
type DLQEntry struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id"`
	Update    model.TrackingUpdate `json:"update"`
	Error     string               `json:"error"`
	ErrorType string               `json:"error_type"`
	Attempts  int                  `json:"attempts"`
	FailedAt  time.Time            `json:"failed_at"`
}

// ClassifyError labels an error transient or permanent for the
// dead-letter record.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
