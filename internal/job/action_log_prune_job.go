package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/config"
)

type ActionLogPruner interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// ActionLogPruneJob drops action log rows no rate rule can see anymore.
type ActionLogPruneJob struct {
	logs   ActionLogPruner
	window time.Duration
	now    func() time.Time
}

func NewActionLogPruneJob(logs ActionLogPruner, rules map[string]config.RateRule) *ActionLogPruneJob {
	var longest int64
	for _, rule := range rules {
		if rule.WindowSecond > longest {
			longest = rule.WindowSecond
		}
	}
	return &ActionLogPruneJob{logs: logs, window: time.Duration(longest) * time.Second, now: time.Now}
}

func (j *ActionLogPruneJob) Name() string {
	return "action_log_prune"
}

func (j *ActionLogPruneJob) Run(ctx context.Context) error {
	if j.logs == nil || j.window <= 0 {
		return nil
	}
	cutoff := j.now().Add(-j.window).Unix()
	n, err := j.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Debug("action logs pruned", zap.Int64("count", n))
	}
	return nil
}
