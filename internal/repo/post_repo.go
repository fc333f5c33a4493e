package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/feedhub/internal/model"
	"github.com/xxxsen/feedhub/internal/pkg/dbutil"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

var postColumns = []string{
	"id", "workspace_id", "board_id", "kind", "title", "content", "content_html", "status", "score",
	"author_id", "image_url", "attachments_json", "metadata", "published", "ctime", "mtime",
}

type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) *PostRepo {
	return &PostRepo{db: db}
}

func postData(post *model.Post) (map[string]interface{}, error) {
	attachments := post.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	metadataJSON, err := json.Marshal(post.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return map[string]interface{}{
		"board_id":         post.BoardID,
		"kind":             post.Kind,
		"title":            post.Title,
		"content":          post.Content,
		"content_html":     post.ContentHTML,
		"status":           post.Status,
		"score":            post.Score,
		"author_id":        post.AuthorID,
		"image_url":        post.ImageURL,
		"attachments_json": string(attachmentsJSON),
		"metadata":         string(metadataJSON),
		"published":        post.Published,
		"mtime":            post.Mtime,
	}, nil
}

// Create returns appErr.ErrConflict when the id is taken.
func (r *PostRepo) Create(ctx context.Context, post *model.Post) error {
	data, err := postData(post)
	if err != nil {
		return err
	}
	data["id"] = post.ID
	data["workspace_id"] = post.WorkspaceID
	data["ctime"] = post.Ctime
	sqlStr, args, err := builder.BuildInsert("posts", []map[string]interface{}{data})
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

func (r *PostRepo) Update(ctx context.Context, post *model.Post) error {
	update, err := postData(post)
	if err != nil {
		return err
	}
	update["ctime"] = post.Ctime
	where := map[string]interface{}{
		"id":           post.ID,
		"workspace_id": post.WorkspaceID,
	}
	sqlStr, args, err := builder.BuildUpdate("posts", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// GetByID is not scoped to a workspace; callers check WorkspaceID themselves.
func (r *PostRepo) GetByID(ctx context.Context, id string) (*model.Post, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("posts", where, postColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryOne(ctx, sqlStr, args...)
}

func (r *PostRepo) FindImportedByTitle(ctx context.Context, workspaceID, kind, source, title string) (*model.Post, error) {
	query := `SELECT ` + strings.Join(postColumns, ", ") + ` FROM posts
		WHERE workspace_id = $1 AND kind = $2 AND metadata->>'import_source' = $3 AND title = $4
		ORDER BY mtime DESC LIMIT 1`
	return r.queryOne(ctx, query, workspaceID, kind, source, title)
}

func (r *PostRepo) FindBySourceID(ctx context.Context, workspaceID, source, sourceID string) (*model.Post, error) {
	query := `SELECT ` + strings.Join(postColumns, ", ") + ` FROM posts
		WHERE workspace_id = $1 AND metadata->>'import_source' = $2 AND metadata->>'import_source_id' = $3
		ORDER BY ctime ASC LIMIT 1`
	return r.queryOne(ctx, query, workspaceID, source, sourceID)
}

// ListBySourceIDs returns the posts keyed by import source id. When several posts
// share a source id the oldest wins.
func (r *PostRepo) ListBySourceIDs(ctx context.Context, workspaceID, source string, sourceIDs []string) (map[string]*model.Post, error) {
	result := make(map[string]*model.Post, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return result, nil
	}
	query := `SELECT ` + strings.Join(postColumns, ", ") + ` FROM posts
		WHERE workspace_id = ? AND metadata->>'import_source' = ? AND metadata->>'import_source_id' IN (?)
		ORDER BY ctime ASC`
	query, args, err := dbutil.ExpandIn(query, workspaceID, source, sourceIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		key := post.Metadata.ImportSourceID
		if _, ok := result[key]; ok {
			continue
		}
		result[key] = post
	}
	return result, rows.Err()
}

func (r *PostRepo) CountByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	const query = `SELECT COUNT(1) FROM posts WHERE workspace_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, workspaceID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostRepo) queryOne(ctx context.Context, query string, args ...interface{}) (*model.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanPost(rows)
}

func scanPost(rows *sql.Rows) (*model.Post, error) {
	var (
		post            model.Post
		attachmentsJSON string
		metadataJSON    []byte
	)
	if err := rows.Scan(
		&post.ID,
		&post.WorkspaceID,
		&post.BoardID,
		&post.Kind,
		&post.Title,
		&post.Content,
		&post.ContentHTML,
		&post.Status,
		&post.Score,
		&post.AuthorID,
		&post.ImageURL,
		&attachmentsJSON,
		&metadataJSON,
		&post.Published,
		&post.Ctime,
		&post.Mtime,
	); err != nil {
		return nil, err
	}
	if attachmentsJSON != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON), &post.Attachments); err != nil {
			return nil, fmt.Errorf("decode post attachments: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &post.Metadata); err != nil {
			return nil, fmt.Errorf("decode post metadata: %w", err)
		}
	}
	return &post, nil
}
