package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/feedhub/internal/model"
	"github.com/xxxsen/feedhub/internal/pkg/dbutil"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

var importRunColumns = []string{"id", "workspace_id", "actor_id", "source", "mode", "status", "file_key", "summary_json", "ctime", "mtime"}

type ImportRunRepo struct {
	db *sql.DB
}

func NewImportRunRepo(db *sql.DB) *ImportRunRepo {
	return &ImportRunRepo{db: db}
}

func (r *ImportRunRepo) Create(ctx context.Context, run *model.ImportRun) error {
	summary := run.SummaryJSON
	if summary == "" {
		summary = "{}"
	}
	data := map[string]interface{}{
		"id":           run.ID,
		"workspace_id": run.WorkspaceID,
		"actor_id":     run.ActorID,
		"source":       run.Source,
		"mode":         run.Mode,
		"status":       run.Status,
		"file_key":     run.FileKey,
		"summary_json": summary,
		"ctime":        run.Ctime,
		"mtime":        run.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("import_runs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Finish moves a running run to its final status.
func (r *ImportRunRepo) Finish(ctx context.Context, run *model.ImportRun) error {
	where := map[string]interface{}{
		"id":           run.ID,
		"workspace_id": run.WorkspaceID,
		"status":       model.ImportRunRunning,
	}
	update := map[string]interface{}{
		"status":       run.Status,
		"file_key":     run.FileKey,
		"summary_json": run.SummaryJSON,
		"mtime":        run.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("import_runs", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ImportRunRepo) ListByWorkspace(ctx context.Context, workspaceID string, limit uint) ([]model.ImportRun, error) {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"_orderby":     "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("import_runs", where, importRunColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	runs := make([]model.ImportRun, 0)
	for rows.Next() {
		var run model.ImportRun
		if err := rows.Scan(&run.ID, &run.WorkspaceID, &run.ActorID, &run.Source, &run.Mode, &run.Status,
			&run.FileKey, &run.SummaryJSON, &run.Ctime, &run.Mtime); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListBefore returns runs created before cutoff so their archived files can be removed.
func (r *ImportRunRepo) ListBefore(ctx context.Context, cutoff int64, limit uint) ([]model.ImportRun, error) {
	where := map[string]interface{}{
		"ctime <":  cutoff,
		"_orderby": "ctime asc",
		"_limit":   []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("import_runs", where, importRunColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	runs := make([]model.ImportRun, 0)
	for rows.Next() {
		var run model.ImportRun
		if err := rows.Scan(&run.ID, &run.WorkspaceID, &run.ActorID, &run.Source, &run.Mode, &run.Status,
			&run.FileKey, &run.SummaryJSON, &run.Ctime, &run.Mtime); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *ImportRunRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("import_runs", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
