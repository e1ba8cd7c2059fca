package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/resilience"
)

// maxDeadLetters bounds the in-memory dead-letter list; oldest entries
// are dropped first.
const maxDeadLetters = 256

// Synchronizer serializes tracking writes per session so updates apply
// in issue order: a step=3 write fired after a step=1 write can never be
// clobbered by the earlier one finishing late. Callers treat Track as
// fire-and-forget; failures are logged, not surfaced.
type Synchronizer struct {
	store   Store
	timeout time.Duration
	retry   resilience.RetryConfig

	mu     sync.Mutex
	queues map[string]*sessionQueue
	dead   []resilience.DLQEntry
	wg     sync.WaitGroup
}

type sessionQueue struct {
	pending []model.TrackingUpdate
	running bool
}

// NewSynchronizer wraps a store. timeout bounds each remote write.
func NewSynchronizer(store Store, timeout time.Duration) *Synchronizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Synchronizer{
		store:   store,
		timeout: timeout,
		retry:   resilience.DefaultRetryConfig(),
		queues:  make(map[string]*sessionQueue),
	}
}

// SetRetryConfig overrides the per-write retry policy.
func (s *Synchronizer) SetRetryConfig(cfg resilience.RetryConfig) {
	s.retry = cfg
}

// Track enqueues a partial update for the session. Updates for one
// session drain on a single goroutine in FIFO order; different sessions
// proceed independently.
func (s *Synchronizer) Track(sessionID string, u model.TrackingUpdate) {
	if u.IsZero() {
		return
	}

	s.mu.Lock()
	q, ok := s.queues[sessionID]
	if !ok {
		q = &sessionQueue{}
		s.queues[sessionID] = q
	}
	q.pending = append(q.pending, u)
	if q.running {
		s.mu.Unlock()
		return
	}
	q.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(sessionID, q)
}

func (s *Synchronizer) drain(sessionID string, q *sessionQueue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(s.queues, sessionID)
			s.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending = q.pending[1:]
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			_, applyErr := s.store.Apply(ctx, sessionID, u)
			return applyErr
		})
		cancel()
		if err != nil {
			zap.L().Warn("tracking update failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			s.deadLetter(sessionID, u, err)
		}
	}
}

// deadLetter records an undeliverable update so operators can inspect
// or replay it. The list is bounded; the queue never blocks on it.
func (s *Synchronizer) deadLetter(sessionID string, u model.TrackingUpdate, err error) {
	entry := resilience.DLQEntry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Update:    u,
		Error:     err.Error(),
		ErrorType: resilience.ClassifyError(err),
		Attempts:  s.retry.MaxAttempts,
		FailedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.dead = append(s.dead, entry)
	if len(s.dead) > maxDeadLetters {
		s.dead = s.dead[len(s.dead)-maxDeadLetters:]
	}
	s.mu.Unlock()
}

// DeadLetters returns a copy of the undelivered updates.
func (s *Synchronizer) DeadLetters() []resilience.DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]resilience.DLQEntry, len(s.dead))
	copy(out, s.dead)
	return out
}

// Wait blocks until every queued update has drained. Used on shutdown
// and by tests.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Canonical resolves the authoritative session id for a (sessionID,
// email) pair. When the session has no record yet but an email-keyed
// record exists from an earlier attempt, that record's id wins and the
// caller must adopt it (the server record, not the client cookie, is
// the authority).
func (s *Synchronizer) Canonical(ctx context.Context, sessionID, email string) (string, error) {
	rec, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return sessionID, err
	}
	if rec != nil || email == "" {
		return sessionID, nil
	}

	byEmail, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return sessionID, err
	}
	if byEmail != nil && byEmail.SessionID != "" {
		return byEmail.SessionID, nil
	}
	return sessionID, nil
}

// Delete removes the session's record immediately, bypassing the queue,
// after waiting out any in-flight updates for orderliness.
func (s *Synchronizer) Delete(ctx context.Context, sessionID string) error {
	s.Wait()
	return s.store.Delete(ctx, sessionID)
}

// Store exposes the wrapped store for read paths that need no ordering.
func (s *Synchronizer) Store() Store {
	return s.store
}
