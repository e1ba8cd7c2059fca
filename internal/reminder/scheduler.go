// Package reminder scans the tracking table for stalled applications and
// sends at most one nudge to the applicant and one alert to the sales
// inbox per session. The one-shot guarantee comes from the store's
// conditional flag writes, so concurrent scanners stay idempotent.
package reminder

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/veranda-hq/applyflow/internal/config"
	"github.com/veranda-hq/applyflow/internal/mailer"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/tracker"
)

// Sender is the outbound-mail dependency.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Stats tallies one scan pass.
type Stats struct {
	Scanned  int
	Reminded int
	Alerted  int
}

// Scheduler runs reminder scans.
type Scheduler struct {
	store       tracker.Store
	mail        Sender
	finalStep   int
	idle        time.Duration
	concurrency int
	limiter     *rate.Limiter
	salesAddr   string
	resumeURL   string
	now         func() time.Time
}

// New builds a Scheduler from config. finalStep is the submission
// screen's index; sessions at or past it are not nagged.
func New(store tracker.Store, mail Sender, cfg config.ReminderConfig, mailCfg config.MailConfig, finalStep int) *Scheduler {
	idle := time.Duration(cfg.IdleHours) * time.Hour
	if idle <= 0 {
		idle = 24 * time.Hour
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	perSecond := cfg.SendsPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Scheduler{
		store:       store,
		mail:        mail,
		finalStep:   finalStep,
		idle:        idle,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		salesAddr:   mailCfg.SalesAddr,
		resumeURL:   mailCfg.ResumeURL,
		now:         time.Now,
	}
}

// RunOnce executes a single scan pass.
func (s *Scheduler) RunOnce(ctx context.Context) (Stats, error) {
	idleBefore := s.now().Add(-s.idle)
	records, err := s.store.ListIncomplete(ctx, idleBefore, s.finalStep)
	if err != nil {
		return Stats{}, eris.Wrap(err, "reminder: list incomplete sessions")
	}

	var stats Stats
	stats.Scanned = len(records)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	reminded := make([]bool, len(records))
	alerted := make([]bool, len(records))
	for i, rec := range records {
		g.Go(func() error {
			r, a, err := s.process(ctx, rec)
			reminded[i], alerted[i] = r, a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i := range records {
		if reminded[i] {
			stats.Reminded++
		}
		if alerted[i] {
			stats.Alerted++
		}
	}

	zap.L().Info("reminder scan complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("reminded", stats.Reminded),
		zap.Int("alerted", stats.Alerted),
	)
	return stats, nil
}

// Run loops RunOnce on the given interval until the context ends.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			zap.L().Error("reminder scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process handles one stalled session. Flag writes come before sends:
// losing the flag race means another scanner owns the send.
func (s *Scheduler) process(ctx context.Context, rec model.TrackingRecord) (reminded, alerted bool, err error) {
	if !rec.UserReminderSent && rec.Email != "" {
		won, err := s.store.MarkReminded(ctx, rec.SessionID)
		if err != nil {
			return false, false, eris.Wrapf(err, "reminder: mark reminded %s", rec.SessionID)
		}
		if won {
			if err := s.limiter.Wait(ctx); err != nil {
				return false, false, err
			}
			if err := s.mail.Send(ctx, s.userReminder(rec)); err != nil {
				// Flag is already set; this session gets no second try.
				zap.L().Error("user reminder send failed",
					zap.String("session_id", rec.SessionID),
					zap.Error(err),
				)
			} else {
				reminded = true
			}
		}
	}

	if !rec.SalesAlertSent && s.salesAddr != "" {
		won, err := s.store.MarkAlerted(ctx, rec.SessionID)
		if err != nil {
			return reminded, false, eris.Wrapf(err, "reminder: mark alerted %s", rec.SessionID)
		}
		if won {
			if err := s.limiter.Wait(ctx); err != nil {
				return reminded, false, err
			}
			if err := s.mail.Send(ctx, s.salesAlert(rec)); err != nil {
				zap.L().Error("sales alert send failed",
					zap.String("session_id", rec.SessionID),
					zap.Error(err),
				)
			} else {
				alerted = true
			}
		}
	}

	return reminded, alerted, nil
}

func (s *Scheduler) userReminder(rec model.TrackingRecord) mailer.Message {
	link := s.resumeURL + "?sid=" + url.QueryEscape(rec.SessionID)
	name := rec.Name
	if name == "" {
		name = "there"
	}
	return mailer.Message{
		To:      []string{rec.Email},
		Subject: "Your rental application is waiting",
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your application stopped at step %d. Pick up where you left off:</p><p><a href=%q>Resume application</a></p>",
			name, rec.Step+1, link,
		),
	}
}

func (s *Scheduler) salesAlert(rec model.TrackingRecord) mailer.Message {
	return mailer.Message{
		To:      []string{s.salesAddr},
		Subject: fmt.Sprintf("Stalled application: %s", orUnknown(rec.Name)),
		HTML: fmt.Sprintf(
			"<p>Session %s stalled at step %d.</p><ul><li>Name: %s</li><li>Email: %s</li><li>Property: %s</li><li>Last activity: %s</li></ul>",
			rec.SessionID, rec.Step, orUnknown(rec.Name), orUnknown(rec.Email),
			orUnknown(rec.PropertyID), rec.LastActivity.Format(time.RFC822),
		),
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
