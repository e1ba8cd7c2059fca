package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/backcheck"
	"github.com/veranda-hq/applyflow/internal/blob"
	"github.com/veranda-hq/applyflow/internal/config"
	"github.com/veranda-hq/applyflow/internal/mailer"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/monitoring"
	"github.com/veranda-hq/applyflow/internal/stepstore"
	"github.com/veranda-hq/applyflow/internal/submit"
	"github.com/veranda-hq/applyflow/internal/tracker"
	"github.com/veranda-hq/applyflow/internal/wizard"
	"github.com/veranda-hq/applyflow/pkg/anthropic"
	"github.com/veranda-hq/applyflow/pkg/esign"
	"github.com/veranda-hq/applyflow/pkg/websearch"
)

// backgroundChecker runs the public-records search for an applicant.
type backgroundChecker interface {
	Run(ctx context.Context, subj model.DocumentSubject) (*model.BackgroundCheck, error)
}

// appEnv wires every collaborator the commands share.
type appEnv struct {
	cfg       *config.Config
	store     stepstore.Store
	blobs     blob.Store
	outputs   *stepstore.Service
	syn       *tracker.Synchronizer
	wizard    *wizard.Controller
	checker   backgroundChecker
	mail      *mailer.Mailer
	esign     esign.Client
	submitter *submit.Submitter
	metrics   *monitoring.Collector
}

// initApp builds the shared environment from config.
func initApp(ctx context.Context) (*appEnv, error) {
	store, err := stepstore.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "app: init step store")
	}

	blobs, err := blob.New(cfg.Blob)
	if err != nil {
		return nil, eris.Wrap(err, "app: init blob store")
	}

	trackStore, err := newTrackingStore(ctx, cfg.Tracking)
	if err != nil {
		return nil, eris.Wrap(err, "app: init tracking store")
	}
	syn := tracker.NewSynchronizer(trackStore, time.Duration(cfg.Tracking.TimeoutSecs)*time.Second)

	// Verified-document identity flows into the merge object and the
	// tracking record. The document email outranks typed form input.
	var outputs *stepstore.Service
	onSubject := func(ctx context.Context, sessionID string, subj model.DocumentSubject) {
		if _, err := outputs.MergeInfo(ctx, sessionID, model.RentalInfo{
			ApplicantName:     subj.Name,
			ApplicantEmail:    subj.Email,
			EmailFromDocument: true,
		}); err != nil {
			zap.L().Error("document identity merge failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		syn.Track(sessionID, model.TrackingUpdate{Email: subj.Email, Name: subj.Name})
	}
	outputs = stepstore.NewService(store, blobs, onSubject)

	searchOpts := []websearch.Option{websearch.WithModel(cfg.Search.Model)}
	if cfg.Search.BaseURL != "" {
		searchOpts = append(searchOpts, websearch.WithBaseURL(cfg.Search.BaseURL))
	}
	checker := backcheck.New(
		websearch.NewClient(cfg.Search.Key, searchOpts...),
		anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.Model,
		time.Duration(cfg.Search.TimeoutSecs)*time.Second,
	)

	mail, err := mailer.New(ctx, cfg.Mail)
	if err != nil {
		return nil, eris.Wrap(err, "app: init mailer")
	}

	signer := esign.NewClient(cfg.ESign.Key, esign.WithBaseURL(cfg.ESign.BaseURL))

	ctrl := wizard.New(cfg.Wizard.Steps, cfg.Wizard.NoBackSteps, outputs, syn)
	submitter := submit.New(outputs, mail, syn, cfg.Wizard.StepNames)
	metrics := monitoring.NewCollector(func() int { return len(syn.DeadLetters()) })

	return &appEnv{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		outputs:   outputs,
		syn:       syn,
		wizard:    ctrl,
		checker:   checker,
		mail:      mail,
		esign:     signer,
		submitter: submitter,
		metrics:   metrics,
	}, nil
}

func newTrackingStore(ctx context.Context, cfg config.TrackingConfig) (tracker.Store, error) {
	switch cfg.Mode {
	case "", "dynamo":
		return tracker.NewDynamo(ctx, cfg)
	case "memory":
		zap.L().Warn("tracking store running in-memory; records do not survive restarts")
		return tracker.NewMemory(time.Duration(cfg.TTLDays) * 24 * time.Hour), nil
	default:
		return nil, eris.Errorf("app: unknown tracking mode %q", cfg.Mode)
	}
}

// Close drains the tracking queue and releases the step store.
func (e *appEnv) Close() {
	e.syn.Wait()
	if err := e.store.Close(); err != nil {
		zap.L().Warn("step store close failed", zap.Error(err))
	}
}
