package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type memRuns struct {
	runs    []model.ImportRun
	deleted []string
}

func (m *memRuns) ListBefore(_ context.Context, cutoff int64, limit uint) ([]model.ImportRun, error) {
	out := make([]model.ImportRun, 0)
	for _, run := range m.runs {
		if run.Ctime < cutoff && uint(len(out)) < limit {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memRuns) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	kept := m.runs[:0]
	for _, run := range m.runs {
		if run.ID != id {
			kept = append(kept, run)
		}
	}
	m.runs = kept
	return nil
}

type memFiles struct {
	deleted []string
	err     error
}

func (m *memFiles) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, key)
	return nil
}

func TestRunCleanupJobRemovesOldRunsAndFiles(t *testing.T) {
	now := time.Unix(1700000000, 0)
	runs := &memRuns{runs: []model.ImportRun{
		{ID: "old-file", FileKey: "import-old-file.csv", Ctime: now.Add(-48 * time.Hour).Unix()},
		{ID: "old-remote", Ctime: now.Add(-30 * time.Hour).Unix()},
		{ID: "fresh", FileKey: "import-fresh.csv", Ctime: now.Add(-time.Hour).Unix()},
	}}
	files := &memFiles{}
	j := NewRunCleanupJob(runs, files, 24*time.Hour)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"old-file", "old-remote"}, runs.deleted)
	require.Equal(t, []string{"import-old-file.csv"}, files.deleted)
	require.Len(t, runs.runs, 1)
}

func TestRunCleanupJobKeepsRowWhenFileDeleteFails(t *testing.T) {
	now := time.Unix(1700000000, 0)
	runs := &memRuns{runs: []model.ImportRun{
		{ID: "old", FileKey: "import-old.csv", Ctime: now.Add(-48 * time.Hour).Unix()},
	}}
	j := NewRunCleanupJob(runs, &memFiles{err: errors.New("bucket down")}, 24*time.Hour)
	j.now = func() time.Time { return now }
	require.Error(t, j.Run(context.Background()))
	require.Empty(t, runs.deleted)

	// already gone from the store is fine
	j.files = &memFiles{err: appErr.ErrNotFound}
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, []string{"old"}, runs.deleted)
}

type memPruner struct {
	cutoff int64
}

func (m *memPruner) DeleteBefore(_ context.Context, cutoff int64) (int64, error) {
	m.cutoff = cutoff
	return 3, nil
}

func TestActionLogPruneJobUsesLongestWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pruner := &memPruner{}
	j := NewActionLogPruneJob(pruner, map[string]config.RateRule{
		config.ActionImportCSV:   {WindowSecond: 60},
		config.ActionImportNotra: {WindowSecond: 3600},
	})
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Unix()-3600, pruner.cutoff)

	empty := &memPruner{}
	require.NoError(t, NewActionLogPruneJob(empty, nil).Run(context.Background()))
	require.Zero(t, empty.cutoff)
}
