package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veranda-hq/applyflow/internal/model"
)

// MemoryStore is an in-process Store used by the local driver and by
// tests across packages.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*model.TrackingRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.TrackingRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock overrides the store's notion of now, for tests.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) Apply(_ context.Context, sessionID string, u model.TrackingUpdate) (*model.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC().Truncate(time.Second)
	rec, ok := m.records[sessionID]
	if !ok {
		rec = &model.TrackingRecord{SessionID: sessionID, CreatedAt: now}
		m.records[sessionID] = rec
	}
	rec.LastActivity = now
	rec.ExpiresAt = now.Add(m.ttl).Unix()

	if u.Step != nil {
		rec.Step = *u.Step
	}
	if u.Email != "" {
		rec.Email = u.Email
	}
	if u.Name != "" {
		rec.Name = u.Name
	}
	if u.Address != "" {
		rec.Address = u.Address
	}
	if u.PropertyID != "" {
		rec.PropertyID = u.PropertyID
	}
	if u.IP != "" {
		rec.IP = u.IP
	}
	if u.Geo != "" {
		rec.Geo = u.Geo
	}
	if u.Signed != nil {
		rec.Signed = *u.Signed
	}

	out := *rec
	return &out, nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*model.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*model.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.TrackingRecord
	for _, rec := range m.records {
		if rec.Email != email {
			continue
		}
		if latest == nil || rec.LastActivity.After(latest.LastActivity) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

func (m *MemoryStore) markFlag(sessionID string, flag func(*model.TrackingRecord) *bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return false, nil
	}
	f := flag(rec)
	if *f {
		return false, nil
	}
	*f = true
	return true, nil
}

func (m *MemoryStore) MarkReminded(_ context.Context, sessionID string) (bool, error) {
	return m.markFlag(sessionID, func(r *model.TrackingRecord) *bool { return &r.UserReminderSent })
}

func (m *MemoryStore) MarkAlerted(_ context.Context, sessionID string) (bool, error) {
	return m.markFlag(sessionID, func(r *model.TrackingRecord) *bool { return &r.SalesAlertSent })
}

func (m *MemoryStore) ListIncomplete(_ context.Context, idleBefore time.Time, finalStep int) ([]model.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []model.TrackingRecord
	for _, rec := range m.records {
		if rec.LastActivity.Before(idleBefore) && rec.Step < finalStep {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].SessionID < recs[j].SessionID })
	return recs, nil
}
