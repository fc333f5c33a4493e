package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/model"
)

func newMiniRedisCounter(t *testing.T) *RedisCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounterWithClient(client)
}

func TestRedisCounterSlidingWindow(t *testing.T) {
	counter := newMiniRedisCounter(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)
	unlimited := Limits{}

	usage, err := counter.Take(ctx, "imports.csv", "ws1", "u1", base, time.Minute, unlimited)
	require.NoError(t, err)
	require.True(t, usage.Recorded)
	require.Zero(t, usage.Workspace.Count)
	usage, err = counter.Take(ctx, "imports.csv", "ws1", "u2", base.Add(30*time.Second), time.Minute, unlimited)
	require.NoError(t, err)
	require.Equal(t, Window{Count: 1, Oldest: base}, usage.Workspace)
	require.Zero(t, usage.Actor.Count)

	count, oldest, err := counter.Count(ctx, "imports.csv", ScopeWorkspace, "ws1", base.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, base, oldest)

	count, _, err = counter.Count(ctx, "imports.csv", ScopeActor, "u1", base.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// first event falls out of the window
	count, oldest, err = counter.Count(ctx, "imports.csv", ScopeWorkspace, "ws1", base.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, base.Add(30*time.Second), oldest)

	count, oldest, err = counter.Count(ctx, "imports.notra", ScopeWorkspace, "ws1", base.Add(-time.Minute))
	require.NoError(t, err)
	require.Zero(t, count)
	require.True(t, oldest.IsZero())
}

func TestRedisCounterTakeRespectsLimits(t *testing.T) {
	counter := newMiniRedisCounter(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)
	limits := Limits{Actor: 5, Workspace: 2}

	for i, actor := range []string{"u1", "u2"} {
		usage, err := counter.Take(ctx, "imports.notra", "ws1", actor, base.Add(time.Duration(i)*time.Second), time.Hour, limits)
		require.NoError(t, err)
		require.True(t, usage.Recorded)
	}
	usage, err := counter.Take(ctx, "imports.notra", "ws1", "u3", base.Add(5*time.Second), time.Hour, limits)
	require.NoError(t, err)
	require.False(t, usage.Recorded)
	require.Equal(t, 2, usage.Workspace.Count)

	// the denied attempt left nothing behind
	count, _, err := counter.Count(ctx, "imports.notra", ScopeActor, "u3", base)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRedisCounterBacksGate(t *testing.T) {
	counter := newMiniRedisCounter(t)
	clock := &fakeClock{at: time.UnixMilli(1700000000000)}
	gate := NewGate(counter, map[string]config.RateRule{
		"imports.csv": {WindowSecond: 60, PerActor: 1, PerWorkspace: 5},
	}, WithClock(clock.now))
	ctx := context.Background()

	_, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.NoError(t, err)
	clock.advance(15 * time.Second)
	d, err := gate.Acquire(ctx, "imports.csv", "ws1", "u1")
	require.Error(t, err)
	require.Equal(t, 45*time.Second, d.RetryAfter)
}

type memActionLogs struct {
	rows []model.ActionLog
}

func (m *memActionLogs) TakeSlot(ctx context.Context, log *model.ActionLog, since int64, actorLimit, workspaceLimit int) (model.ActionWindow, error) {
	var out model.ActionWindow
	out.ActorCount, out.ActorOldest, _ = m.CountSince(ctx, log.Action, "actor_id", log.ActorID, since)
	out.WorkspaceCount, out.WorkspaceOldest, _ = m.CountSince(ctx, log.Action, "workspace_id", log.WorkspaceID, since)
	if (actorLimit > 0 && out.ActorCount >= actorLimit) || (workspaceLimit > 0 && out.WorkspaceCount >= workspaceLimit) {
		return out, nil
	}
	log.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *log)
	out.Recorded = true
	return out, nil
}

func (m *memActionLogs) CountSince(_ context.Context, action, column, id string, since int64) (int, int64, error) {
	count := 0
	var oldest int64
	for _, row := range m.rows {
		if row.Action != action || row.Ctime < since {
			continue
		}
		value := row.ActorID
		if column == "workspace_id" {
			value = row.WorkspaceID
		}
		if value != id {
			continue
		}
		if oldest == 0 || row.Ctime < oldest {
			oldest = row.Ctime
		}
		count++
	}
	return count, oldest, nil
}

func TestDBCounterBacksGate(t *testing.T) {
	logs := &memActionLogs{}
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	gate := NewGate(NewDBCounter(logs), map[string]config.RateRule{
		"imports.notra": {WindowSecond: 3600, PerActor: 3, PerWorkspace: 2},
	}, WithClock(clock.now))
	ctx := context.Background()

	_, err := gate.Acquire(ctx, "imports.notra", "ws1", "u1")
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = gate.Acquire(ctx, "imports.notra", "ws1", "u2")
	require.NoError(t, err)
	require.Len(t, logs.rows, 2)

	d, err := gate.Check(ctx, "imports.notra", "ws1", "u3")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ScopeWorkspace, d.Scope)
	require.Equal(t, time.Unix(1700000000+3600, 0), d.ResetAt)
}

func TestNewCounterBackends(t *testing.T) {
	c, err := New(config.RateLimitConfig{Backend: "memory"}, "", nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryCounter{}, c)

	_, err = New(config.RateLimitConfig{Backend: "db"}, "", nil)
	require.Error(t, err)

	c, err = New(config.RateLimitConfig{Backend: "db"}, "", &memActionLogs{})
	require.NoError(t, err)
	require.IsType(t, &DBCounter{}, c)

	mr := miniredis.RunT(t)
	c, err = New(config.RateLimitConfig{Backend: "redis"}, "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	require.IsType(t, &RedisCounter{}, c)
}
