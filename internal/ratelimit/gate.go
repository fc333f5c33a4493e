package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/config"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type Scope string

const (
	ScopeActor     Scope = "actor"
	ScopeWorkspace Scope = "workspace"
)

// Limits are the per-scope caps of one action family. A limit <= 0 is not enforced.
type Limits struct {
	Actor     int
	Workspace int
}

// Window is one scope's event count inside the trailing window. Oldest is zero when Count is 0.
type Window struct {
	Count  int
	Oldest time.Time
}

// Usage reports both windows as seen before the event was recorded.
type Usage struct {
	Actor     Window
	Workspace Window
	Recorded  bool
}

// Counter stores accepted actions and counts them inside a trailing window.
type Counter interface {
	// Count returns the number of events for (action, scope, id) at or after since,
	// and the time of the oldest one. oldest is zero when count is 0.
	Count(ctx context.Context, action string, scope Scope, id string, since time.Time) (count int, oldest time.Time, err error)
	// Take counts both windows ending at at and records the event only when every
	// enforced limit still has room. Counting and recording happen as one step.
	Take(ctx context.Context, action, workspaceID, actorID string, at time.Time, window time.Duration, limits Limits) (Usage, error)
}

type Decision struct {
	Allowed bool
	// Remaining is -1 when the action family has no limit.
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Scope      Scope
}

type Gate struct {
	counter Counter
	rules   map[string]config.RateRule
	now     func() time.Time
	onDeny  func(action string)
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithDenyHook is called for every denied Acquire.
func WithDenyHook(fn func(action string)) Option {
	return func(g *Gate) {
		g.onDeny = fn
	}
}

func NewGate(counter Counter, rules map[string]config.RateRule, opts ...Option) *Gate {
	g := &Gate{
		counter: counter,
		rules:   rules,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) rule(action, workspaceID, actorID string) (Limits, time.Duration, bool) {
	rule, ok := g.rules[action]
	if !ok {
		return Limits{}, 0, false
	}
	var limits Limits
	if actorID != "" && rule.PerActor > 0 {
		limits.Actor = rule.PerActor
	}
	if workspaceID != "" && rule.PerWorkspace > 0 {
		limits.Workspace = rule.PerWorkspace
	}
	if limits.Actor <= 0 && limits.Workspace <= 0 {
		return Limits{}, 0, false
	}
	return limits, time.Duration(rule.WindowSecond) * time.Second, true
}

// Check evaluates both windows without recording anything. The scope with the
// fewest remaining slots governs the decision.
func (g *Gate) Check(ctx context.Context, action, workspaceID, actorID string) (Decision, error) {
	limits, window, limited := g.rule(action, workspaceID, actorID)
	if !limited {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	now := g.now()
	since := now.Add(-window)
	var usage Usage
	if limits.Actor > 0 {
		count, oldest, err := g.counter.Count(ctx, action, ScopeActor, actorID, since)
		if err != nil {
			return Decision{}, fmt.Errorf("count %s window: %w", ScopeActor, err)
		}
		usage.Actor = Window{Count: count, Oldest: oldest}
	}
	if limits.Workspace > 0 {
		count, oldest, err := g.counter.Count(ctx, action, ScopeWorkspace, workspaceID, since)
		if err != nil {
			return Decision{}, fmt.Errorf("count %s window: %w", ScopeWorkspace, err)
		}
		usage.Workspace = Window{Count: count, Oldest: oldest}
	}
	return decide(now, window, limits, usage), nil
}

func decide(now time.Time, window time.Duration, limits Limits, usage Usage) Decision {
	var (
		decision Decision
		found    bool
	)
	for _, s := range []struct {
		scope Scope
		limit int
		seen  Window
	}{
		{ScopeActor, limits.Actor, usage.Actor},
		{ScopeWorkspace, limits.Workspace, usage.Workspace},
	} {
		if s.limit <= 0 {
			continue
		}
		remaining := s.limit - s.seen.Count
		if remaining < 0 {
			remaining = 0
		}
		resetAt := now.Add(window)
		if !s.seen.Oldest.IsZero() {
			resetAt = s.seen.Oldest.Add(window)
		}
		current := Decision{
			Allowed:   remaining > 0,
			Remaining: remaining,
			ResetAt:   resetAt,
			Scope:     s.scope,
		}
		if !current.Allowed {
			current.RetryAfter = resetAt.Sub(now)
			if current.RetryAfter < time.Second {
				current.RetryAfter = time.Second
			}
		}
		if !found || stricter(current, decision) {
			decision = current
			found = true
		}
	}
	return decision
}

func stricter(a, b Decision) bool {
	if a.Remaining != b.Remaining {
		return a.Remaining < b.Remaining
	}
	return a.ResetAt.After(b.ResetAt)
}

// Acquire takes a slot in both windows at once. A denial returns
// *appErr.RateLimitError and records nothing.
func (g *Gate) Acquire(ctx context.Context, action, workspaceID, actorID string) (Decision, error) {
	limits, window, limited := g.rule(action, workspaceID, actorID)
	if !limited {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	now := g.now()
	usage, err := g.counter.Take(ctx, action, workspaceID, actorID, now, window, limits)
	if err != nil {
		return Decision{}, fmt.Errorf("take %s slot: %w", action, err)
	}
	decision := decide(now, window, limits, usage)
	if usage.Recorded {
		decision.Allowed = true
		decision.Remaining--
		return decision, nil
	}
	decision.Allowed = false
	if decision.RetryAfter <= 0 {
		decision.RetryAfter = time.Second
	}
	logutil.GetLogger(ctx).Warn("rate limit denied",
		zap.String("action", action),
		zap.String("workspace_id", workspaceID),
		zap.String("actor_id", actorID),
		zap.String("scope", string(decision.Scope)),
		zap.Duration("retry_after", decision.RetryAfter),
	)
	if g.onDeny != nil {
		g.onDeny(action)
	}
	return decision, &appErr.RateLimitError{
		Action:     action,
		RetryAfter: decision.RetryAfter,
		ResetAt:    decision.ResetAt,
	}
}

// New builds a counter for the configured backend.
func New(cfg config.RateLimitConfig, redisURL string, logs ActionLogStore) (Counter, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryCounter(), nil
	case "redis":
		return NewRedisCounter(redisURL)
	case "db", "":
		if logs == nil {
			return nil, fmt.Errorf("db rate limit backend requires an action log store")
		}
		return NewDBCounter(logs), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
