package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
)

func TestCollector_Snapshot(t *testing.T) {
	t.Parallel()

	c := NewCollector(func() int { return 3 })
	c.UploadVerified()
	c.UploadVerified()
	c.UploadVerified()
	c.UploadRejected()
	c.CheckRun()
	c.Submission()
	c.DeliveryFailed()

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.UploadsVerified)
	assert.Equal(t, 1, snap.UploadsRejected)
	assert.InDelta(t, 0.25, snap.RejectionRate, 1e-9)
	assert.Equal(t, 1, snap.ChecksRun)
	assert.Equal(t, 1, snap.Submissions)
	assert.Equal(t, 1, snap.DeliveryFailures)
	assert.Equal(t, 3, snap.DeadLetterDepth)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_NoDepthFunc(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	snap := c.Snapshot()
	assert.Zero(t, snap.DeadLetterDepth)
	assert.Zero(t, snap.RejectionRate, "no attempts means no rate")
}

func TestCollector_ConcurrentBumps(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.UploadVerified()
			c.Submission()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, 50, snap.UploadsVerified)
	assert.Equal(t, 50, snap.Submissions)
}

func alertCfg() config.MonitoringConfig {
	return config.MonitoringConfig{
		RejectionRateThreshold: 0.5,
		DeadLetterThreshold:    1,
	}
}

func TestAlerter_Evaluate(t *testing.T) {
	t.Parallel()

	t.Run("quiet funnel raises nothing", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		snap := &MetricsSnapshot{UploadsVerified: 20, UploadsRejected: 2, RejectionRate: 0.09}
		assert.Empty(t, a.Evaluate(snap))
	})

	t.Run("rejection rate over threshold", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		snap := &MetricsSnapshot{UploadsVerified: 3, UploadsRejected: 9, RejectionRate: 0.75}
		alerts := a.Evaluate(snap)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertRejectionRate, alerts[0].Type)
		assert.Equal(t, "high", alerts[0].Severity)
	})

	t.Run("small sample never judged", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		snap := &MetricsSnapshot{UploadsRejected: 4, RejectionRate: 1.0}
		assert.Empty(t, a.Evaluate(snap))
	})

	t.Run("delivery failures", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		snap := &MetricsSnapshot{Submissions: 5, DeliveryFailures: 2}
		alerts := a.Evaluate(snap)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertDeliveryFailures, alerts[0].Type)
	})

	t.Run("dead letters", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		snap := &MetricsSnapshot{DeadLetterDepth: 1}
		alerts := a.Evaluate(snap)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertDeadLetters, alerts[0].Type)
		assert.Equal(t, "medium", alerts[0].Severity)
	})
}

func TestAlerter_SendAlerts(t *testing.T) {
	t.Parallel()

	t.Run("posts each alert to the webhook", func(t *testing.T) {
		t.Parallel()
		var got []Alert
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var a Alert
			require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
			got = append(got, a)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg := alertCfg()
		cfg.WebhookURL = srv.URL
		a := NewAlerter(cfg)

		alerts := []Alert{
			{Type: AlertDeadLetters, Severity: "medium", Message: "m1"},
			{Type: AlertDeliveryFailures, Severity: "high", Message: "m2"},
		}
		assert.Equal(t, 2, a.SendAlerts(context.Background(), alerts))
		require.Len(t, got, 2)
		assert.Equal(t, AlertDeadLetters, got[0].Type)
	})

	t.Run("no webhook configured sends nothing", func(t *testing.T) {
		t.Parallel()
		a := NewAlerter(alertCfg())
		assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertDeadLetters}}))
	})

	t.Run("webhook failure counted out", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		cfg := alertCfg()
		cfg.WebhookURL = srv.URL
		a := NewAlerter(cfg)
		assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertDeadLetters}}))
	})
}

func TestChecker_DeduplicatesUnchangedAlerts(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := alertCfg()
	cfg.WebhookURL = srv.URL

	col := NewCollector(func() int { return 2 })
	ch := NewChecker(col, NewAlerter(cfg), cfg)

	log := zap.NewNop()
	ch.check(context.Background(), log)
	ch.check(context.Background(), log)
	assert.Equal(t, 1, hits, "an unchanged breach alerts once")

	// A deeper dead-letter list is a new message and fires again.
	col.depth = func() int { return 5 }
	ch.check(context.Background(), log)
	assert.Equal(t, 2, hits)
}
