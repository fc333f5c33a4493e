package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/model"
)

type RunStore interface {
	Create(ctx context.Context, run *model.ImportRun) error
	Finish(ctx context.Context, run *model.ImportRun) error
	ListByWorkspace(ctx context.Context, workspaceID string, limit uint) ([]model.ImportRun, error)
}

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 100
)

type ImportRunService struct {
	runs RunStore
}

func NewImportRunService(runs RunStore) *ImportRunService {
	return &ImportRunService{runs: runs}
}

func (s *ImportRunService) List(ctx context.Context, workspaceID string, limit int) ([]model.ImportRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}
	return s.runs.ListByWorkspace(ctx, workspaceID, uint(limit))
}

type runRecorder struct {
	runs RunStore
	now  func() time.Time
}

func (r *runRecorder) start(ctx context.Context, workspaceID, actorID, source, mode string) (*model.ImportRun, error) {
	now := r.now().Unix()
	run := &model.ImportRun{
		ID:          newID(),
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Source:      source,
		Mode:        mode,
		Status:      model.ImportRunRunning,
		SummaryJSON: "{}",
		Ctime:       now,
		Mtime:       now,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// finish stores the outcome. Failing to write history never fails the import.
func (r *runRecorder) finish(ctx context.Context, run *model.ImportRun, status string, summary interface{}, runErr error) {
	payload := map[string]interface{}{}
	if summary != nil {
		payload["summary"] = summary
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	run.Status = status
	run.SummaryJSON = string(raw)
	run.Mtime = r.now().Unix()
	if err := r.runs.Finish(ctx, run); err != nil {
		logutil.GetLogger(ctx).Warn("record import run failed",
			zap.String("run_id", run.ID),
			zap.String("status", status),
			zap.Error(err))
	}
}
