package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type fakeClock struct {
	at time.Time
}

func (f *fakeClock) now() time.Time {
	return f.at
}

func (f *fakeClock) advance(d time.Duration) {
	f.at = f.at.Add(d)
}

func newTestGate(rule config.RateRule) (*Gate, *fakeClock) {
	clock := &fakeClock{at: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	gate := NewGate(NewMemoryCounter(), map[string]config.RateRule{"imports.csv": rule}, WithClock(clock.now))
	return gate, clock
}

func TestGateActorLimitIsEnforced(t *testing.T) {
	gate, clock := newTestGate(config.RateRule{WindowSecond: 60, PerActor: 2, PerWorkspace: 10})
	ctx := context.Background()

	d, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	require.Equal(t, 1, d.Remaining)

	clock.advance(10 * time.Second)
	d, err = gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	require.Equal(t, 0, d.Remaining)

	clock.advance(10 * time.Second)
	d, err = gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrTooMany))
	var rlErr *appErr.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	require.Equal(t, 40*time.Second, rlErr.RetryAfter)
	require.Equal(t, ScopeActor, d.Scope)

	// another actor in the same workspace is unaffected
	_, err = gate.Acquire(ctx, "imports.csv", "ws1", "u2")
	require.NoError(t, err)
}

func TestGateWorkspaceLimitGovernsWhenStricter(t *testing.T) {
	gate, _ := newTestGate(config.RateRule{WindowSecond: 60, PerActor: 5, PerWorkspace: 2})
	ctx := context.Background()

	_, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	_, err = gate.Acquire(ctx, "imports.csv", "ws1", "u2")
	require.NoError(t, err)

	d, err := gate.Check(ctx, "imports.csv", "ws1", "u3")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ScopeWorkspace, d.Scope)

	d, err = gate.Check(ctx, "imports.csv", "ws2", "u3")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Remaining)
}

func TestGateWindowSlides(t *testing.T) {
	gate, clock := newTestGate(config.RateRule{WindowSecond: 60, PerActor: 1, PerWorkspace: 0})
	ctx := context.Background()

	_, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	_, err = gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.Error(t, err)

	clock.advance(61 * time.Second)
	d, err := gate.Check(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, clock.at.Add(60*time.Second), d.ResetAt)
}

func TestGateCheckDoesNotRecord(t *testing.T) {
	gate, _ := newTestGate(config.RateRule{WindowSecond: 60, PerActor: 1})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := gate.Check(ctx, "imports.csv", "ws1", "u1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestGateUnknownActionIsUnlimited(t *testing.T) {
	gate, _ := newTestGate(config.RateRule{WindowSecond: 60, PerActor: 1})
	d, err := gate.Acquire(context.Background(), "imports.other", "ws1", "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, -1, d.Remaining)
}

func TestGateDenyHook(t *testing.T) {
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	var denied []string
	gate := NewGate(NewMemoryCounter(), map[string]config.RateRule{
		"imports.notra": {WindowSecond: 60, PerWorkspace: 1},
	}, WithClock(clock.now), WithDenyHook(func(action string) {
		denied = append(denied, action)
	}))
	ctx := context.Background()
	_, err := gate.Acquire(ctx, "imports.notra", "ws1", "u1")
	require.NoError(t, err)
	_, err = gate.Acquire(ctx, "imports.notra", "ws1", "u1")
	require.Error(t, err)
	require.Equal(t, []string{"imports.notra"}, denied)
}

func TestGateClockIndependentOfWallClock(t *testing.T) {
	// events stamped years away from time.Now must survive the sweep
	clock := &fakeClock{at: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)}
	counter := NewMemoryCounter()
	counter.sweepInterval = 0
	gate := NewGate(counter, map[string]config.RateRule{
		"imports.csv": {WindowSecond: 60, PerWorkspace: 1},
	}, WithClock(clock.now))
	ctx := context.Background()

	_, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	clock.advance(30 * time.Second)
	_, err = gate.Acquire(ctx, "imports.csv", "ws1", "u2")
	require.ErrorIs(t, err, appErr.ErrTooMany)
}

func TestGateConcurrentAcquireTakesOneSlot(t *testing.T) {
	gate := NewGate(NewMemoryCounter(), map[string]config.RateRule{
		"imports.notra": {WindowSecond: 3600, PerActor: 10, PerWorkspace: 1},
	})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if _, err := gate.Acquire(ctx, "imports.notra", "ws1", fmt.Sprintf("u%d", i)); err == nil {
				allowed.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), allowed.Load())
}

type failingCounter struct{ *MemoryCounter }

func (failingCounter) Take(context.Context, string, string, string, time.Time, time.Duration, Limits) (Usage, error) {
	return Usage{}, errors.New("backend down")
}

func TestGateBackendErrorIsNotADenial(t *testing.T) {
	gate := NewGate(failingCounter{NewMemoryCounter()}, map[string]config.RateRule{
		"imports.csv": {WindowSecond: 60, PerActor: 1},
	})
	_, err := gate.Acquire(context.Background(), "imports.csv", "ws1", "u1")
	require.Error(t, err)
	require.False(t, errors.Is(err, appErr.ErrTooMany))
}

func TestMemoryCounterCleanupExpiredLocked(t *testing.T) {
	base := time.Unix(1700000000, 0)
	counter := NewMemoryCounter()
	counter.sweepInterval = 10 * time.Second
	counter.appendLocked("expired", base.Add(-20*time.Second), 10*time.Second)
	counter.appendLocked("active", base.Add(-2*time.Second), 10*time.Second)

	counter.mu.Lock()
	counter.cleanupExpiredLocked(base)
	counter.mu.Unlock()

	require.NotContains(t, counter.events, "expired")
	require.Contains(t, counter.events, "active")
	require.False(t, counter.lastSweep.IsZero())
}
