package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/feedhub/internal/model"
)

// ActionLogStore is the append-only action log the db backend counts over.
type ActionLogStore interface {
	// CountSince counts rows whose column (actor_id or workspace_id) equals id.
	// oldest is the smallest ctime among them in unix seconds, 0 if none.
	CountSince(ctx context.Context, action, column, id string, since int64) (count int, oldest int64, err error)
	// TakeSlot inserts log only while both windows starting at since are under their
	// positive limits, atomically with the counts it returns.
	TakeSlot(ctx context.Context, log *model.ActionLog, since int64, actorLimit, workspaceLimit int) (model.ActionWindow, error)
}

type DBCounter struct {
	logs ActionLogStore
}

func NewDBCounter(logs ActionLogStore) *DBCounter {
	return &DBCounter{logs: logs}
}

func scopeColumn(scope Scope) (string, error) {
	switch scope {
	case ScopeActor:
		return "actor_id", nil
	case ScopeWorkspace:
		return "workspace_id", nil
	}
	return "", fmt.Errorf("unknown scope %q", scope)
}

func (d *DBCounter) Count(ctx context.Context, action string, scope Scope, id string, since time.Time) (int, time.Time, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return 0, time.Time{}, err
	}
	count, oldest, err := d.logs.CountSince(ctx, action, column, id, since.Unix())
	if err != nil {
		return 0, time.Time{}, err
	}
	w := unixWindow(count, oldest)
	return w.Count, w.Oldest, nil
}

func (d *DBCounter) Take(ctx context.Context, action, workspaceID, actorID string, at time.Time, window time.Duration, limits Limits) (Usage, error) {
	seen, err := d.logs.TakeSlot(ctx, &model.ActionLog{
		Action:      action,
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Ctime:       at.Unix(),
	}, at.Add(-window).Unix(), limits.Actor, limits.Workspace)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		Actor:     unixWindow(seen.ActorCount, seen.ActorOldest),
		Workspace: unixWindow(seen.WorkspaceCount, seen.WorkspaceOldest),
		Recorded:  seen.Recorded,
	}, nil
}

func unixWindow(count int, oldest int64) Window {
	if count == 0 || oldest == 0 {
		return Window{Count: count}
	}
	return Window{Count: count, Oldest: time.Unix(oldest, 0)}
}
