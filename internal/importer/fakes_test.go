package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type memStore struct {
	mu         sync.Mutex
	posts      map[string]model.Post
	boards     []model.Board
	members    map[string][]model.Member
	workspaces map[string]model.Workspace

	createErr     error
	batchLookups  int
	singleLookups int
}

func newMemStore() *memStore {
	return &memStore{
		posts:   make(map[string]model.Post),
		members: make(map[string][]model.Member),
		workspaces: map[string]model.Workspace{
			"ws1": {ID: "ws1", Name: "Acme", Plan: "pro"},
			"ws2": {ID: "ws2", Name: "Other", Plan: "pro"},
		},
	}
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &post, nil
}

func (m *memStore) FindBySourceID(ctx context.Context, workspaceID, source, sourceID string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singleLookups++
	for _, post := range m.posts {
		if post.WorkspaceID == workspaceID && post.Metadata.ImportSource == source && post.Metadata.ImportSourceID == sourceID {
			p := post
			return &p, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memStore) ListBySourceIDs(ctx context.Context, workspaceID, source string, sourceIDs []string) (map[string]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchLookups++
	want := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		want[id] = true
	}
	out := make(map[string]*model.Post)
	for _, post := range m.posts {
		if post.WorkspaceID == workspaceID && post.Metadata.ImportSource == source && want[post.Metadata.ImportSourceID] {
			p := post
			out[p.Metadata.ImportSourceID] = &p
		}
	}
	return out, nil
}

func (m *memStore) FindImportedByTitle(ctx context.Context, workspaceID, kind, source, title string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, post := range m.sortedPosts() {
		if post.WorkspaceID == workspaceID && post.Kind == kind && post.Metadata.ImportSource == source && post.Title == title {
			p := post
			return &p, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memStore) sortedPosts() []model.Post {
	out := make([]model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) CountByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, post := range m.posts {
		if post.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Create(ctx context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.posts[post.ID]; ok {
		return appErr.ErrConflict
	}
	m.posts[post.ID] = *post
	return nil
}

func (m *memStore) Update(ctx context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.posts[post.ID]
	if !ok || existing.WorkspaceID != post.WorkspaceID {
		return appErr.ErrNotFound
	}
	m.posts[post.ID] = *post
	return nil
}

func (m *memStore) postsIn(workspaceID string) []model.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Post, 0)
	for _, post := range m.sortedPosts() {
		if post.WorkspaceID == workspaceID {
			out = append(out, post)
		}
	}
	return out
}

type memBoards struct {
	store *memStore
}

func (b memBoards) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.Board, error) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	out := make([]model.Board, 0)
	for _, board := range b.store.boards {
		if board.WorkspaceID == workspaceID {
			out = append(out, board)
		}
	}
	return out, nil
}

func (b memBoards) Create(ctx context.Context, board *model.Board) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, existing := range b.store.boards {
		if existing.WorkspaceID == board.WorkspaceID && existing.Slug == board.Slug {
			return appErr.ErrConflict
		}
	}
	b.store.boards = append(b.store.boards, *board)
	return nil
}

func (m *memStore) boardsIn(workspaceID string) []model.Board {
	boards, _ := memBoards{store: m}.ListByWorkspace(context.Background(), workspaceID)
	return boards
}

type memMembers struct {
	store *memStore
}

func (mm memMembers) ListMembers(ctx context.Context, workspaceID string) ([]model.Member, error) {
	return mm.store.members[workspaceID], nil
}

type memWorkspaces struct {
	store *memStore
}

func (w memWorkspaces) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	ws, ok := w.store.workspaces[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &ws, nil
}

func testImportConfig() config.ImportConfig {
	cfg := config.ImportConfig{}
	cfg.ApplyDefaults()
	return cfg
}

func testPlans() map[string]config.PlanConfig {
	return map[string]config.PlanConfig{
		"free": {PostLimit: 3},
		"pro":  {PostLimit: 0},
	}
}

func newTestEngine(store *memStore, cfg config.ImportConfig) *Engine {
	seq := 0
	return NewEngine(store, memBoards{store: store}, memMembers{store: store}, memWorkspaces{store: store},
		cfg, testPlans(),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("gen-%03d", seq)
		}))
}

func csvOptions(ws string) RunOptions {
	return RunOptions{WorkspaceID: ws, RunID: "run-1", Source: model.ImportSourceCSV, Mode: ModeUpsert}
}
