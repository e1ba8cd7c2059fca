// Package wizard owns step transitions: forward moves are gated on the
// current step having produced an output, backward moves are free except
// where a screen forbids going back. All state lives in the step store
// and the tracking record; the controller holds only configuration.
package wizard

import (
	"context"

	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/stepstore"
	"github.com/veranda-hq/applyflow/internal/tracker"
)

// Controller drives the step machine for any session.
type Controller struct {
	steps   int
	noBack  map[int]bool
	outputs *stepstore.Service
	syn     *tracker.Synchronizer
}

// New builds a controller over the given stores.
func New(steps int, noBackSteps []int, outputs *stepstore.Service, syn *tracker.Synchronizer) *Controller {
	noBack := make(map[int]bool, len(noBackSteps))
	for _, s := range noBackSteps {
		noBack[s] = true
	}
	return &Controller{steps: steps, noBack: noBack, outputs: outputs, syn: syn}
}

// Steps returns the number of wizard steps.
func (c *Controller) Steps() int { return c.steps }

// FinalStep is the submission screen's index.
func (c *Controller) FinalStep() int { return c.steps - 1 }

// Current returns the session's persisted position, 0 for a fresh one.
func (c *Controller) Current(ctx context.Context, sessionID string) (int, error) {
	return c.outputs.LastStep(ctx, sessionID)
}

// Next advances by one when the current step has an output, and reports
// whether it moved. Advancing past the last step is refused. A
// successful move persists the position and fires a tracking update.
func (c *Controller) Next(ctx context.Context, sessionID string) (int, bool, error) {
	cur, err := c.Current(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}
	if cur >= c.FinalStep() {
		return cur, false, nil
	}

	out, err := c.outputs.Get(ctx, sessionID, cur)
	if err != nil {
		return cur, false, err
	}
	if out == nil || out.Empty() {
		return cur, false, nil
	}

	next := cur + 1
	if err := c.outputs.SetLastStep(ctx, sessionID, next); err != nil {
		return cur, false, err
	}
	c.syn.Track(sessionID, model.TrackingUpdate{Step: model.IntPtr(next)})
	return next, true, nil
}

// Previous moves back by one unless the current screen suppresses the
// back action or the session is already at the start.
func (c *Controller) Previous(ctx context.Context, sessionID string) (int, bool, error) {
	cur, err := c.Current(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}
	if cur == 0 || c.noBack[cur] {
		return cur, false, nil
	}

	prev := cur - 1
	if err := c.outputs.SetLastStep(ctx, sessionID, prev); err != nil {
		return cur, false, err
	}
	return prev, true, nil
}

// Restart wipes the session: every step output and blob, the merge
// object, the persisted position, and the remote tracking record.
func (c *Controller) Restart(ctx context.Context, sessionID string) error {
	if err := c.outputs.Clear(ctx, sessionID); err != nil {
		return err
	}
	return c.syn.Delete(ctx, sessionID)
}
