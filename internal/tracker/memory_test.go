package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/model"
)

func TestMemoryStore_Apply_PartialMerge(t *testing.T) {
	t.Parallel()
	st := NewMemory(30 * 24 * time.Hour)
	ctx := context.Background()

	rec, err := st.Apply(ctx, "sess", model.TrackingUpdate{
		Step:  model.IntPtr(1),
		Email: "ada@example.com",
	})
	require.NoError(t, err)
	created := rec.CreatedAt

	// Second update touches only the step; email must survive.
	rec, err = st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Step)
	assert.Equal(t, "ada@example.com", rec.Email)
	assert.Equal(t, created, rec.CreatedAt, "createdAt is first-write-wins")
}

func TestMemoryStore_SequentialStepsLandInOrder(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)
	ctx := context.Background()

	_, err := st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(1)})
	require.NoError(t, err)
	_, err = st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(2)})
	require.NoError(t, err)

	rec, err := st.Get(ctx, "sess")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Step)
}

func TestMemoryStore_GetMissingIsNil(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)

	rec, err := st.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_GetByEmail_PicksMostRecent(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return base })
	_, err := st.Apply(ctx, "old", model.TrackingUpdate{Email: "ada@example.com"})
	require.NoError(t, err)

	st.SetClock(func() time.Time { return base.Add(time.Hour) })
	_, err = st.Apply(ctx, "new", model.TrackingUpdate{Email: "ada@example.com"})
	require.NoError(t, err)

	rec, err := st.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "new", rec.SessionID)
}

func TestMemoryStore_FlagsAreOneShot(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)
	ctx := context.Background()

	_, err := st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(1)})
	require.NoError(t, err)

	first, err := st.MarkReminded(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := st.MarkReminded(ctx, "sess")
	require.NoError(t, err)
	assert.False(t, second, "flag is monotonic")

	// A later non-delete update must not reset the flag.
	_, err = st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(2)})
	require.NoError(t, err)
	rec, err := st.Get(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, rec.UserReminderSent)
}

func TestMemoryStore_MarkFlagOnMissingRecord(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)

	ok, err := st.MarkAlerted(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DeleteResetsEverything(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)
	ctx := context.Background()

	_, err := st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(1)})
	require.NoError(t, err)
	_, err = st.MarkReminded(ctx, "sess")
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, "sess"))

	rec, err := st.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Recreated record starts with fresh flags.
	_, err = st.Apply(ctx, "sess", model.TrackingUpdate{Step: model.IntPtr(0)})
	require.NoError(t, err)
	ok, err := st.MarkReminded(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ListIncomplete(t *testing.T) {
	t.Parallel()
	st := NewMemory(time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	st.SetClock(func() time.Time { return base })
	_, err := st.Apply(ctx, "idle-early", model.TrackingUpdate{Step: model.IntPtr(2)})
	require.NoError(t, err)
	_, err = st.Apply(ctx, "done", model.TrackingUpdate{Step: model.IntPtr(6)})
	require.NoError(t, err)

	st.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	_, err = st.Apply(ctx, "fresh", model.TrackingUpdate{Step: model.IntPtr(1)})
	require.NoError(t, err)

	recs, err := st.ListIncomplete(ctx, base.Add(24*time.Hour), 6)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "idle-early", recs[0].SessionID)
}
