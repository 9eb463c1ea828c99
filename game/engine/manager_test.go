package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/model"
)

func newManagerFixture(t *testing.T, idleTTL time.Duration) (*fixture, *engine.Manager) {
	t.Helper()
	f := newFixture(t)
	m := engine.NewManager(f.opts, idleTTL)
	t.Cleanup(m.Close)
	return f, m
}

func TestManager_LazyCreateAndReuse(t *testing.T) {
	f, m := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	assert.Nil(t, m.Peek(f.char.ID))
	assert.Equal(t, 0, m.Count())

	e1, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	e2, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Same(t, e1, m.Peek(f.char.ID))
	assert.Equal(t, 1, m.Count())
}

func TestManager_RestoresFromStoreOnFirstUse(t *testing.T) {
	f, m := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	e, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	_, err = e.StartQuest(ctx, "quest-1", false)
	require.NoError(t, err)

	// Simulate process restart: a new manager over the same store.
	m.Close()
	m2 := engine.NewManager(f.opts, time.Hour)
	t.Cleanup(m2.Close)

	e2, err := m2.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PhasePending, e2.Status().Phase)
	assert.Equal(t, "quest-1", e2.Status().QuestID)
}

func TestManager_Snapshot(t *testing.T) {
	f, m := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	second := &model.Character{AccountID: 2, Name: "Marlow", Level: 1, XPToNext: 100}
	require.NoError(t, f.db.Create(second).Error)

	e1, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	_, err = e1.StartQuest(ctx, "quest-1", false)
	require.NoError(t, err)
	_, err = m.Engine(ctx, second.ID)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, engine.PhasePending, snap[f.char.ID].Phase)
	assert.Equal(t, engine.PhaseNone, snap[second.ID].Phase)
}

func TestManager_SweepEvictsIdleKeepsActive(t *testing.T) {
	f, m := newManagerFixture(t, time.Nanosecond)
	ctx := context.Background()

	second := &model.Character{AccountID: 2, Name: "Marlow", Level: 1, XPToNext: 100}
	require.NoError(t, f.db.Create(second).Error)

	active, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	_, err = active.StartQuest(ctx, "quest-1", true)
	require.NoError(t, err)
	_, err = m.Engine(ctx, second.ID)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond) // both past the nanosecond TTL
	m.SweepIdle()

	// The active engine keeps its ticker observing; the idle one is gone.
	assert.NotNil(t, m.Peek(f.char.ID))
	assert.Nil(t, m.Peek(second.ID))
	assert.Equal(t, 1, m.Count())
}

func TestManager_SweepKeepsRecentlyTouched(t *testing.T) {
	f, m := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	_, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	m.SweepIdle()
	assert.Equal(t, 1, m.Count())
}

func TestManager_DeliverBatchReplaysBacklog(t *testing.T) {
	f, m := newManagerFixture(t, time.Hour)
	ctx := context.Background()

	e, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	_, err = e.StartQuest(ctx, "quest-1", false)
	require.NoError(t, err)

	// An offline phone queued the whole attempt and flushes it on
	// reconnect: the lock, then the unlock past the quest duration.
	f.clock.Set(500_000)
	st, err := m.DeliverBatch(ctx, f.char.ID, []engine.Signal{
		{Kind: engine.SignalLocked, AtMs: 10_000},
		{Kind: engine.SignalUnlocked, AtMs: 10_000 + questDurMs},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseCompleted, st.Phase)
	require.NotNil(t, st.Outcome)
	assert.True(t, st.Outcome.Success)
}

func TestManager_DeliverBatchLargerThanInbox(t *testing.T) {
	f := newFixture(t)
	f.opts.SignalBuf = 2
	m := engine.NewManager(f.opts, time.Hour)
	t.Cleanup(m.Close)
	ctx := context.Background()

	e, err := m.Engine(ctx, f.char.ID)
	require.NoError(t, err)
	_, err = e.StartQuest(ctx, "quest-1", false)
	require.NoError(t, err)

	// A backlog longer than the inbox buffer still replays completely and
	// in order: the first cycle backdates the start, the second unlock is
	// early and settles the quest as failed, the rest carry nothing to
	// judge.
	sigs := make([]engine.Signal, 0, 8)
	for i := int64(0); i < 4; i++ {
		sigs = append(sigs,
			engine.Signal{Kind: engine.SignalLocked, AtMs: 1_000 + i*2_000},
			engine.Signal{Kind: engine.SignalUnlocked, AtMs: 2_000 + i*2_000},
		)
	}
	st, err := m.DeliverBatch(ctx, f.char.ID, sigs)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseFailed, st.Phase)
	require.NotNil(t, st.Outcome)
	assert.False(t, st.Outcome.Success)
	assert.Equal(t, 1, f.journal.count("fail"))
}
