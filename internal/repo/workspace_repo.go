package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/feedhub/internal/model"
	"github.com/xxxsen/feedhub/internal/pkg/dbutil"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type WorkspaceRepo struct {
	db *sql.DB
}

func NewWorkspaceRepo(db *sql.DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

func (r *WorkspaceRepo) Create(ctx context.Context, ws *model.Workspace) error {
	data := map[string]interface{}{
		"id":    ws.ID,
		"name":  ws.Name,
		"plan":  ws.Plan,
		"ctime": ws.Ctime,
		"mtime": ws.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("workspaces", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *WorkspaceRepo) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("workspaces", where, []string{"id", "name", "plan", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	var ws model.Workspace
	if err := rows.Scan(&ws.ID, &ws.Name, &ws.Plan, &ws.Ctime, &ws.Mtime); err != nil {
		return nil, err
	}
	return &ws, nil
}

type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

func (r *MemberRepo) Add(ctx context.Context, member *model.Member, ctime int64) error {
	data := map[string]interface{}{
		"workspace_id": member.WorkspaceID,
		"user_id":      member.UserID,
		"role":         member.Role,
		"ctime":        ctime,
	}
	sqlStr, args, err := builder.BuildInsert("workspace_members", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// ListMembers joins users so callers can resolve members by email.
func (r *MemberRepo) ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error) {
	const query = `
		SELECT m.workspace_id, m.user_id, u.email, m.role
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.ctime ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	members := make([]model.Member, 0)
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Email, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepo) IsMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"user_id":      userID,
		"_limit":       []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("workspace_members", where, []string{"user_id"})
	if err != nil {
		return false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	return rows.Next(), rows.Err()
}
