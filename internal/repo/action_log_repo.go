package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xxxsen/feedhub/internal/model"
)

// advisory lock classes, actor always taken before workspace
const (
	lockClassActor     = 1
	lockClassWorkspace = 2
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type ActionLogRepo struct {
	db *sql.DB
}

func NewActionLogRepo(db *sql.DB) *ActionLogRepo {
	return &ActionLogRepo{db: db}
}

func (r *ActionLogRepo) Insert(ctx context.Context, log *model.ActionLog) error {
	return insertActionLog(ctx, r.db, log)
}

func insertActionLog(ctx context.Context, q rowQuerier, log *model.ActionLog) error {
	const query = `
		INSERT INTO action_logs (action, workspace_id, actor_id, ctime)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return q.QueryRowContext(ctx, query, log.Action, log.WorkspaceID, log.ActorID, log.Ctime).Scan(&log.ID)
}

func (r *ActionLogRepo) CountSince(ctx context.Context, action, column, id string, since int64) (int, int64, error) {
	return countActionsSince(ctx, r.db, action, column, id, since)
}

func countActionsSince(ctx context.Context, q rowQuerier, action, column, id string, since int64) (int, int64, error) {
	if column != "actor_id" && column != "workspace_id" {
		return 0, 0, fmt.Errorf("unsupported action log column %q", column)
	}
	query := `SELECT COUNT(1), COALESCE(MIN(ctime), 0) FROM action_logs
		WHERE action = $1 AND ` + column + ` = $2 AND ctime >= $3`
	var (
		count  int
		oldest int64
	)
	if err := q.QueryRowContext(ctx, query, action, id, since).Scan(&count, &oldest); err != nil {
		return 0, 0, err
	}
	return count, oldest, nil
}

// TakeSlot counts the actor and workspace windows starting at since and inserts log
// only when both are under their positive limits. The transaction holds advisory locks
// on (action, actor) and (action, workspace) so concurrent callers cannot both take
// the last slot.
func (r *ActionLogRepo) TakeSlot(ctx context.Context, log *model.ActionLog, since int64, actorLimit, workspaceLimit int) (model.ActionWindow, error) {
	var out model.ActionWindow
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		lockClassActor, log.Action+"|"+log.ActorID); err != nil {
		return out, fmt.Errorf("lock actor window: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		lockClassWorkspace, log.Action+"|"+log.WorkspaceID); err != nil {
		return out, fmt.Errorf("lock workspace window: %w", err)
	}
	out.ActorCount, out.ActorOldest, err = countActionsSince(ctx, tx, log.Action, "actor_id", log.ActorID, since)
	if err != nil {
		return out, err
	}
	out.WorkspaceCount, out.WorkspaceOldest, err = countActionsSince(ctx, tx, log.Action, "workspace_id", log.WorkspaceID, since)
	if err != nil {
		return out, err
	}
	if (actorLimit > 0 && out.ActorCount >= actorLimit) || (workspaceLimit > 0 && out.WorkspaceCount >= workspaceLimit) {
		return out, nil
	}
	if err := insertActionLog(ctx, tx, log); err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	out.Recorded = true
	return out, nil
}

func (r *ActionLogRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM action_logs WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
