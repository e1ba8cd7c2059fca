package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRejectionRate    AlertType = "upload_rejection_rate"
	AlertDeliveryFailures AlertType = "delivery_failures"
	AlertDeadLetters      AlertType = "tracking_dead_letters"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// minRejectionSample is how many verification attempts must exist
// before the rejection rate is judged at all.
const minRejectionSample = 10

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	total := snap.UploadsVerified + snap.UploadsRejected
	if total >= minRejectionSample && snap.RejectionRate > a.cfg.RejectionRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRejectionRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Upload rejection rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d attempts)",
				snap.RejectionRate*100, a.cfg.RejectionRateThreshold*100,
				snap.UploadsRejected, total,
			),
			Details: map[string]any{
				"rejection_rate": snap.RejectionRate,
				"threshold":      a.cfg.RejectionRateThreshold,
				"rejected":       snap.UploadsRejected,
				"attempts":       total,
			},
			Timestamp: now,
		})
	}

	if snap.DeliveryFailures > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertDeliveryFailures,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d application packet(s) failed to deliver (%d submitted)",
				snap.DeliveryFailures, snap.Submissions,
			),
			Details: map[string]any{
				"failed":    snap.DeliveryFailures,
				"submitted": snap.Submissions,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DeadLetterThreshold > 0 && snap.DeadLetterDepth >= a.cfg.DeadLetterThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDeadLetters,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d tracking update(s) exhausted retries and sit in the dead-letter list",
				snap.DeadLetterDepth,
			),
			Details: map[string]any{
				"depth":     snap.DeadLetterDepth,
				"threshold": a.cfg.DeadLetterThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
