package importer

import (
	"context"

	"github.com/xxxsen/feedhub/internal/model"
)

// PostStore is the persistence the engine needs for posts. Lookups return
// appErr.ErrNotFound when nothing matches.
type PostStore interface {
	// GetByID looks across all workspaces; callers must check WorkspaceID.
	GetByID(ctx context.Context, id string) (*model.Post, error)
	FindBySourceID(ctx context.Context, workspaceID, source, sourceID string) (*model.Post, error)
	ListBySourceIDs(ctx context.Context, workspaceID, source string, sourceIDs []string) (map[string]*model.Post, error)
	// FindImportedByTitle only matches posts stamped with the given import
	// source, so hand-written posts are never picked up by title.
	FindImportedByTitle(ctx context.Context, workspaceID, kind, source, title string) (*model.Post, error)
	CountByWorkspace(ctx context.Context, workspaceID string) (int, error)
	Create(ctx context.Context, post *model.Post) error
	Update(ctx context.Context, post *model.Post) error
}

type BoardStore interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Board, error)
	Create(ctx context.Context, board *model.Board) error
}

type MemberStore interface {
	ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error)
}

type WorkspaceStore interface {
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
}
