package ylisp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRegisterStartsRunning(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()
	assert.Equal(t, StateRunning, ctx.State())
	assert.Equal(t, 1, co.Live())
}

func TestCoordinatorDeregisterReleasesOwnedResources(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	released := false
	ctx.pushOwned(nil, func() { released = true })

	co.Deregister(ctx)
	assert.True(t, released)
	assert.Equal(t, 0, co.Live())
}

func TestCoordinatorMarkSafeAndMarkRunningRoundTrip(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	require.NoError(t, co.MarkSafe(ctx))
	assert.Equal(t, StateSafe, ctx.State())

	co.MarkRunning(ctx)
	assert.Equal(t, StateRunning, ctx.State())
}

func TestCoordinatorKillRejectsSelfTarget(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	err := co.Kill(ctx, ctx)
	require.Error(t, err)
	assert.True(t, isKind(err, KindInternal))
}

func TestCoordinatorKillRejectsUnknownTarget(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ghost := NewContext(999, nil, nil)

	err := co.Kill(nil, ghost)
	require.Error(t, err)
	assert.True(t, isKind(err, KindEvalUndefined))
}

func TestCoordinatorMarkSafeDeliversPendingKill(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	killer := co.Register()
	victim := co.Register()

	require.NoError(t, co.Kill(killer, victim))

	err := co.MarkSafe(victim)
	require.Error(t, err)
	var killed KilledError
	require.ErrorAs(t, err, &killed)
	assert.Equal(t, victim.ID, killed.ContextID)

	// a second MarkSafe must not redeliver the same kill.
	require.NoError(t, co.MarkSafe(victim))
}

func TestCoordinatorWithExclusiveWaitsForAllSafe(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	var ran bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, co.MarkSafe(ctx))
	}()

	co.WithExclusive(func() { ran = true })
	wg.Wait()
	assert.True(t, ran)
}

func TestCoordinatorRootsAggregatesLiveContexts(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	a := co.Register()
	a.CurrentAlist = Ref(5)
	b := co.Register()
	b.CurrentAlist = Ref(9)

	roots := co.Roots()
	assert.Contains(t, roots, Ref(5))
	assert.Contains(t, roots, Ref(9))
}

func TestContextYieldRoundTripsSafeState(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	require.NoError(t, ctx.Yield())
	assert.Equal(t, StateRunning, ctx.State())
}

func TestContextYieldDeliversPendingKill(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	killer := co.Register()
	victim := co.Register()

	require.NoError(t, co.Kill(killer, victim))

	err := victim.Yield()
	require.Error(t, err)
	var killed KilledError
	require.ErrorAs(t, err, &killed)
	assert.Equal(t, victim.ID, killed.ContextID)
}

func TestContextYieldIsNoopWithoutCoordinator(t *testing.T) {
	ctx := NewContext(1, nil, nil)
	assert.NoError(t, ctx.Yield())
}

func TestContextOwnAndDisownReleaseInLIFOOrder(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	var released []string
	ctx.Own("first", func() { released = append(released, "first") })
	ctx.Own("second", func() { released = append(released, "second") })

	ctx.Disown()
	assert.Equal(t, []string{"second"}, released)
	assert.Len(t, ctx.Owned, 1)

	ctx.Disown()
	assert.Equal(t, []string{"second", "first"}, released)
	assert.Empty(t, ctx.Owned)
}

func TestContextPoolIsWiredByRegister(t *testing.T) {
	pool := NewPool(64, NewNopLogger())
	co := NewCoordinator(pool)
	ctx := co.Register()

	assert.Same(t, pool, ctx.Pool)
}

func TestCoordinatorContextByID(t *testing.T) {
	co := NewCoordinator(NewPool(64, NewNopLogger()))
	ctx := co.Register()

	found, ok := co.ContextByID(ctx.ID)
	require.True(t, ok)
	assert.Same(t, ctx, found)

	_, ok = co.ContextByID(ctx.ID + 1000)
	assert.False(t, ok)
}
