package wizard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/blob"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/stepstore"
	"github.com/veranda-hq/applyflow/internal/tracker"
)

func newTestController(t *testing.T) (*Controller, *stepstore.Service, *tracker.MemoryStore) {
	t.Helper()

	st, err := stepstore.NewSQLite(filepath.Join(t.TempDir(), "wizard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)

	outputs := stepstore.NewService(st, blobs, nil)
	mem := tracker.NewMemory(30 * 24 * time.Hour)
	syn := tracker.NewSynchronizer(mem, time.Second)
	t.Cleanup(syn.Wait)

	return New(7, []int{6}, outputs, syn), outputs, mem
}

func TestController_Next(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("refuses to advance past an empty step", func(t *testing.T) {
		c, _, _ := newTestController(t)

		step, moved, err := c.Next(ctx, "sess")
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, 0, step)
	})

	t.Run("advances once the step has an output", func(t *testing.T) {
		c, outputs, mem := newTestController(t)
		outputs.Set(ctx, "sess", model.StepOutput{Step: 0, Kind: model.StepKindForm, Form: []byte(`{"ok":true}`)})

		step, moved, err := c.Next(ctx, "sess")
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, 1, step)

		cur, err := c.Current(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, 1, cur)

		c.syn.Wait()
		rec, err := mem.Get(ctx, "sess")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 1, rec.Step)
	})

	t.Run("a skipped step counts as output", func(t *testing.T) {
		c, outputs, _ := newTestController(t)
		outputs.Set(ctx, "sess", model.StepOutput{Step: 0, Kind: model.StepKindSkip})

		_, moved, err := c.Next(ctx, "sess")
		require.NoError(t, err)
		assert.True(t, moved)
	})

	t.Run("stops at the final step", func(t *testing.T) {
		c, outputs, _ := newTestController(t)
		require.NoError(t, outputs.SetLastStep(ctx, "sess", c.FinalStep()))
		outputs.Set(ctx, "sess", model.StepOutput{Step: c.FinalStep(), Kind: model.StepKindSkip})

		step, moved, err := c.Next(ctx, "sess")
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, c.FinalStep(), step)
	})
}

func TestController_Previous(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("moves back without requiring output", func(t *testing.T) {
		c, outputs, _ := newTestController(t)
		require.NoError(t, outputs.SetLastStep(ctx, "sess", 3))

		step, moved, err := c.Previous(ctx, "sess")
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, 2, step)
	})

	t.Run("refuses at step zero", func(t *testing.T) {
		c, _, _ := newTestController(t)

		step, moved, err := c.Previous(ctx, "sess")
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, 0, step)
	})

	t.Run("refuses on a no-back screen", func(t *testing.T) {
		c, outputs, _ := newTestController(t)
		require.NoError(t, outputs.SetLastStep(ctx, "sess", 6))

		step, moved, err := c.Previous(ctx, "sess")
		require.NoError(t, err)
		assert.False(t, moved)
		assert.Equal(t, 6, step)
	})
}

func TestController_Restart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, outputs, mem := newTestController(t)
	outputs.Set(ctx, "sess", model.StepOutput{Step: 0, Kind: model.StepKindForm, Form: []byte(`{}`)})
	require.NoError(t, outputs.SetLastStep(ctx, "sess", 4))
	_, err := mem.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(4)})
	require.NoError(t, err)

	require.NoError(t, c.Restart(ctx, "sess"))

	cur, err := c.Current(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 0, cur)

	out, err := outputs.Get(ctx, "sess", 0)
	require.NoError(t, err)
	assert.Nil(t, out)

	rec, err := mem.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
