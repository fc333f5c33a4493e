package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/feedhub/internal/model"
	"github.com/xxxsen/feedhub/internal/pkg/dbutil"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type BoardRepo struct {
	db *sql.DB
}

func NewBoardRepo(db *sql.DB) *BoardRepo {
	return &BoardRepo{db: db}
}

// Create returns appErr.ErrConflict when the slug is already taken in the workspace.
func (r *BoardRepo) Create(ctx context.Context, board *model.Board) error {
	data := map[string]interface{}{
		"id":           board.ID,
		"workspace_id": board.WorkspaceID,
		"name":         board.Name,
		"slug":         board.Slug,
		"ctime":        board.Ctime,
		"mtime":        board.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("boards", []map[string]interface{}{data})
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

func (r *BoardRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Board, error) {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"_orderby":     "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("boards", where, []string{"id", "workspace_id", "name", "slug", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	boards := make([]model.Board, 0)
	for rows.Next() {
		var b model.Board
		if err := rows.Scan(&b.ID, &b.WorkspaceID, &b.Name, &b.Slug, &b.Ctime, &b.Mtime); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}
