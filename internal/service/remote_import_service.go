package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/importer"
	"github.com/xxxsen/feedhub/internal/metrics"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/provider"
	"github.com/xxxsen/feedhub/internal/ratelimit"
)

// RateGate is satisfied by *ratelimit.Gate.
type RateGate interface {
	Acquire(ctx context.Context, action, workspaceID, actorID string) (ratelimit.Decision, error)
}

type RemoteImportRequest struct {
	WorkspaceID     string
	ActorID         string
	Provider        string
	APIKey          string
	RememberKey     bool
	Status          string
	PageSize        int
	MaxPages        int
	Mode            string
	PublishBehavior string
	Board           string
}

type RemoteImportService struct {
	engine      *importer.Engine
	providers   map[string]provider.Provider
	credentials *CredentialService
	gate        RateGate
	recorder    *runRecorder
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewRemoteImportService(engine *importer.Engine, providers map[string]provider.Provider, credentials *CredentialService,
	gate RateGate, runs RunStore, m *metrics.Metrics) *RemoteImportService {
	return &RemoteImportService{
		engine:      engine,
		providers:   providers,
		credentials: credentials,
		gate:        gate,
		recorder:    &runRecorder{runs: runs, now: time.Now},
		metrics:     m,
		now:         time.Now,
	}
}

// ActionFor is the rate gate action family of a provider.
func ActionFor(providerName string) string {
	return "imports." + providerName
}

// Import checks the gate, resolves the key (inline first, stored connection otherwise)
// and runs the fetch loop. After the first page proves the key works, an inline key
// marked remember is stored and a stale stored key is re-encrypted.
func (s *RemoteImportService) Import(ctx context.Context, req RemoteImportRequest) (*model.RemoteImportSummary, error) {
	name := strings.ToLower(strings.TrimSpace(req.Provider))
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", req.Provider, appErr.ErrInvalid)
	}
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if _, err := importer.ParsePublishBehavior(req.PublishBehavior); err != nil {
		return nil, err
	}
	inlineKey := strings.TrimSpace(req.APIKey)
	var stored *ResolvedKey
	if inlineKey == "" {
		stored, err = s.credentials.Resolve(ctx, req.WorkspaceID, name)
		if err != nil {
			return nil, err
		}
	}
	apiKey := inlineKey
	if stored != nil {
		apiKey = stored.APIKey
	}
	// a run rejected above never takes a slot
	if s.gate != nil {
		if _, err := s.gate.Acquire(ctx, ActionFor(name), req.WorkspaceID, req.ActorID); err != nil {
			return nil, err
		}
	}

	start := s.now()
	run, err := s.recorder.start(ctx, req.WorkspaceID, req.ActorID, name, string(mode))
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", run.ID), zap.String("workspace_id", req.WorkspaceID))

	afterPage := func(ctx context.Context, page int) {
		if page != 1 {
			return
		}
		if stored != nil {
			s.credentials.RekeyIfStale(ctx, req.WorkspaceID, name, stored)
			return
		}
		if req.RememberKey {
			if err := s.credentials.Save(ctx, req.WorkspaceID, name, inlineKey); err != nil {
				logger.Warn("remember provider key failed", zap.Error(err))
			}
		}
	}

	summary, err := s.engine.ImportRemote(ctx, p, importer.RemoteOptions{
		RunOptions: importer.RunOptions{
			WorkspaceID: req.WorkspaceID,
			RunID:       run.ID,
			Source:      name,
			Kind:        model.PostKindChangelog,
			Mode:        mode,
		},
		APIKey:          apiKey,
		Status:          req.Status,
		PageSize:        req.PageSize,
		MaxPages:        req.MaxPages,
		PublishBehavior: req.PublishBehavior,
		Board:           req.Board,
		AfterPage:       afterPage,
	})
	elapsed := s.now().Sub(start).Seconds()
	if summary != nil {
		summary.UsedStoredConnection = stored != nil
		s.metrics.ObserveRemote(name, summary)
	}
	switch {
	case err != nil && summary == nil:
		logger.Warn("remote import failed", zap.Error(err))
		s.recorder.finish(ctx, run, model.ImportRunFailed, nil, err)
		s.metrics.RunFinished(name, model.ImportRunFailed, elapsed)
		return nil, err
	case err != nil:
		logger.Warn("remote import stopped early", zap.Int("pages", summary.PagesFetched), zap.Error(err))
		s.recorder.finish(ctx, run, model.ImportRunFailed, summary, err)
		s.metrics.RunFinished(name, "partial", elapsed)
		return summary, err
	}
	s.recorder.finish(ctx, run, model.ImportRunDone, summary, nil)
	s.metrics.RunFinished(name, model.ImportRunDone, elapsed)
	return summary, nil
}
