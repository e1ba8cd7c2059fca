// Package monitoring tracks the application funnel and raises webhook
// alerts when verification rejections or tracking dead letters pile up.
package monitoring

import (
	"sync"
	"time"
)

// MetricsSnapshot holds a point-in-time view of funnel health. Counters
// are cumulative since process start.
type MetricsSnapshot struct {
	UploadsVerified  int     `json:"uploads_verified"`
	UploadsRejected  int     `json:"uploads_rejected"`
	RejectionRate    float64 `json:"rejection_rate"`
	ChecksRun        int     `json:"checks_run"`
	ChecksFailed     int     `json:"checks_failed"`
	SignRequests     int     `json:"sign_requests"`
	Submissions      int     `json:"submissions"`
	DeliveryFailures int     `json:"delivery_failures"`

	DeadLetterDepth int `json:"dead_letter_depth"`

	StartedAt   time.Time `json:"started_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// DepthFunc reports the current tracking dead-letter depth.
type DepthFunc func() int

// Collector accumulates funnel counters from the request handlers.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time
	depth     DepthFunc

	uploadsVerified  int
	uploadsRejected  int
	checksRun        int
	checksFailed     int
	signRequests     int
	submissions      int
	deliveryFailures int
}

// NewCollector creates a Collector. depth may be nil when no
// dead-letter source exists.
func NewCollector(depth DepthFunc) *Collector {
	return &Collector{
		startedAt: time.Now().UTC(),
		depth:     depth,
	}
}

func (c *Collector) UploadVerified() { c.bump(&c.uploadsVerified) }
func (c *Collector) UploadRejected() { c.bump(&c.uploadsRejected) }
func (c *Collector) CheckRun()       { c.bump(&c.checksRun) }
func (c *Collector) CheckFailed()    { c.bump(&c.checksFailed) }
func (c *Collector) SignRequest()    { c.bump(&c.signRequests) }
func (c *Collector) Submission()     { c.bump(&c.submissions) }
func (c *Collector) DeliveryFailed() { c.bump(&c.deliveryFailures) }

func (c *Collector) bump(counter *int) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	snap := &MetricsSnapshot{
		UploadsVerified:  c.uploadsVerified,
		UploadsRejected:  c.uploadsRejected,
		ChecksRun:        c.checksRun,
		ChecksFailed:     c.checksFailed,
		SignRequests:     c.signRequests,
		Submissions:      c.submissions,
		DeliveryFailures: c.deliveryFailures,
		StartedAt:        c.startedAt,
		CollectedAt:      time.Now().UTC(),
	}
	c.mu.Unlock()

	if total := snap.UploadsVerified + snap.UploadsRejected; total > 0 {
		snap.RejectionRate = float64(snap.UploadsRejected) / float64(total)
	}
	if c.depth != nil {
		snap.DeadLetterDepth = c.depth()
	}
	return snap
}
