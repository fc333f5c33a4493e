package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/importer"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/provider"
	"github.com/xxxsen/feedhub/internal/vault"
)

const testMasterSecret = "0123456789abcdef0123456789abcdef-test"

type fakePosts struct {
	mu    sync.Mutex
	posts map[string]model.Post
}

func (f *fakePosts) GetByID(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &p, nil
}

func (f *fakePosts) FindBySourceID(_ context.Context, workspaceID, source, sourceID string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.WorkspaceID == workspaceID && p.Metadata.ImportSource == source && p.Metadata.ImportSourceID == sourceID {
			out := p
			return &out, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakePosts) ListBySourceIDs(ctx context.Context, workspaceID, source string, sourceIDs []string) (map[string]*model.Post, error) {
	out := make(map[string]*model.Post)
	for _, id := range sourceIDs {
		if p, err := f.FindBySourceID(ctx, workspaceID, source, id); err == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakePosts) FindImportedByTitle(_ context.Context, workspaceID, kind, source, title string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.WorkspaceID == workspaceID && p.Kind == kind && p.Metadata.ImportSource == source && p.Title == title {
			out := p
			return &out, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakePosts) CountByWorkspace(_ context.Context, workspaceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.posts {
		if p.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

func (f *fakePosts) Create(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[post.ID]; ok {
		return appErr.ErrConflict
	}
	f.posts[post.ID] = *post
	return nil
}

func (f *fakePosts) Update(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[post.ID] = *post
	return nil
}

type fakeBoards struct {
	boards []model.Board
}

func (f *fakeBoards) ListByWorkspace(_ context.Context, workspaceID string) ([]model.Board, error) {
	out := make([]model.Board, 0)
	for _, b := range f.boards {
		if b.WorkspaceID == workspaceID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBoards) Create(_ context.Context, board *model.Board) error {
	f.boards = append(f.boards, *board)
	return nil
}

type fakeMembers struct{}

func (fakeMembers) ListMembers(context.Context, string) ([]model.Member, error) {
	return []model.Member{{WorkspaceID: "ws1", UserID: "u1", Email: "ann@example.com"}}, nil
}

type fakeWorkspaces struct{}

func (fakeWorkspaces) GetByID(_ context.Context, id string) (*model.Workspace, error) {
	return &model.Workspace{ID: id, Name: id, Plan: "pro"}, nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]model.ImportRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]model.ImportRun)}
}

func (f *fakeRuns) Create(_ context.Context, run *model.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRuns) Finish(_ context.Context, run *model.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.ID]; !ok {
		return appErr.ErrNotFound
	}
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeRuns) ListByWorkspace(_ context.Context, workspaceID string, limit uint) ([]model.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ImportRun, 0)
	for _, r := range f.runs {
		if r.WorkspaceID == workspaceID && uint(len(out)) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuns) only(t *testing.T) model.ImportRun {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.runs, 1)
	for _, r := range f.runs {
		return r
	}
	return model.ImportRun{}
}

type fakeCredentials struct {
	mu    sync.Mutex
	creds map[string]model.StoredCredential
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{creds: make(map[string]model.StoredCredential)}
}

func (f *fakeCredentials) Upsert(_ context.Context, cred *model.StoredCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[cred.WorkspaceID+"/"+cred.Provider] = *cred
	return nil
}

func (f *fakeCredentials) Get(_ context.Context, workspaceID, provider string) (*model.StoredCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[workspaceID+"/"+provider]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCredentials) UpdateSecretIf(_ context.Context, workspaceID, provider, fromVersion, secret, toVersion string, mtime int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := workspaceID + "/" + provider
	c, ok := f.creds[key]
	if !ok || c.KeyVersion != fromVersion {
		return false, nil
	}
	c.Secret, c.KeyVersion, c.Mtime = secret, toVersion, mtime
	f.creds[key] = c
	return true, nil
}

func (f *fakeCredentials) Delete(_ context.Context, workspaceID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := workspaceID + "/" + provider
	if _, ok := f.creds[key]; !ok {
		return appErr.ErrNotFound
	}
	delete(f.creds, key)
	return nil
}

type stubProvider struct {
	pages   []*provider.Page
	failAt  int
	err     error
	calls   int
	apiKeys []string
}

func (s *stubProvider) Name() string {
	return "notra"
}

func (s *stubProvider) ListPosts(_ context.Context, req provider.ListRequest) (*provider.Page, error) {
	s.calls++
	s.apiKeys = append(s.apiKeys, req.APIKey)
	if s.err != nil && s.calls >= s.failAt {
		return nil, s.err
	}
	if s.calls > len(s.pages) {
		return &provider.Page{}, nil
	}
	return s.pages[s.calls-1], nil
}

func twoPages() []*provider.Page {
	return []*provider.Page{
		{
			Posts: []provider.RemotePost{
				{ID: "n1", Title: "Release 1", Markdown: "# One", PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
				{ID: "n2", Title: "Release 2", Markdown: "two"},
			},
			NextCursor: "c2",
			HasMore:    true,
		},
		{
			Posts: []provider.RemotePost{{ID: "n3", Title: "Release 3", HTML: "<p>three</p>"}},
		},
	}
}

func newTestEngine() (*importer.Engine, *fakePosts) {
	posts := &fakePosts{posts: make(map[string]model.Post)}
	seq := 0
	engine := importer.NewEngine(posts, &fakeBoards{}, fakeMembers{}, fakeWorkspaces{},
		config.ImportConfig{ArchiveUploads: true},
		map[string]config.PlanConfig{"pro": {PostLimit: 0}},
		importer.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
	return engine, posts
}

func newTestVault(t *testing.T, current string, supported ...string) *vault.Vault {
	t.Helper()
	v, err := vault.New(config.VaultConfig{
		MasterSecret:      testMasterSecret,
		CurrentVersion:    current,
		SupportedVersions: supported,
	})
	require.NoError(t, err)
	return v
}
