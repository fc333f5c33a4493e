package job

import (
	"context"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

const runCleanupBatch = 200

type RunArchive interface {
	ListBefore(ctx context.Context, cutoff int64, limit uint) ([]model.ImportRun, error)
	Delete(ctx context.Context, id string) error
}

type FileDeleter interface {
	Delete(ctx context.Context, key string) error
}

// RunCleanupJob removes import history older than maxAge together with archived uploads.
type RunCleanupJob struct {
	runs   RunArchive
	files  FileDeleter
	maxAge time.Duration
	now    func() time.Time
}

func NewRunCleanupJob(runs RunArchive, files FileDeleter, maxAge time.Duration) *RunCleanupJob {
	return &RunCleanupJob{runs: runs, files: files, maxAge: maxAge, now: time.Now}
}

func (j *RunCleanupJob) Name() string {
	return "import_run_cleanup"
}

func (j *RunCleanupJob) Run(ctx context.Context) error {
	if j.runs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	cutoff := j.now().Add(-maxAge).Unix()
	removed := 0
	for {
		runs, err := j.runs.ListBefore(ctx, cutoff, runCleanupBatch)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if run.FileKey != "" && j.files != nil {
				if err := j.files.Delete(ctx, run.FileKey); err != nil && !errors.Is(err, appErr.ErrNotFound) {
					// keep the row so the file is retried next tick
					return err
				}
			}
			if err := j.runs.Delete(ctx, run.ID); err != nil {
				return err
			}
			removed++
		}
		if len(runs) < runCleanupBatch {
			break
		}
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("import runs removed", zap.Int("count", removed), zap.Int64("cutoff", cutoff))
	}
	return nil
}
