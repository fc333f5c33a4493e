package service

import (
	"bytes"
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/filestore"
	"github.com/xxxsen/feedhub/internal/importer"
	"github.com/xxxsen/feedhub/internal/metrics"
	"github.com/xxxsen/feedhub/internal/model"
)

type FileImportRequest struct {
	WorkspaceID string
	ActorID     string
	FileName    string
	Mode        string
	Data        []byte
}

type FileImportService struct {
	engine   *importer.Engine
	gate     RateGate
	recorder *runRecorder
	archive  filestore.Store
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewFileImportService builds the file import flow. gate, archive and m may be nil.
func NewFileImportService(engine *importer.Engine, gate RateGate, runs RunStore, archive filestore.Store, m *metrics.Metrics) *FileImportService {
	return &FileImportService{
		engine:   engine,
		gate:     gate,
		recorder: &runRecorder{runs: runs, now: time.Now},
		archive:  archive,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *FileImportService) MaxUploadBytes() int64 {
	return s.engine.Config().MaxUploadBytes
}

func (s *FileImportService) Import(ctx context.Context, req FileImportRequest) (*model.FileImportSummary, error) {
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	// files rejected here never take a rate slot nor leave a run behind
	prepared, err := s.engine.PrepareTable(req.Data)
	if err != nil {
		logutil.GetLogger(ctx).Info("file import rejected",
			zap.String("workspace_id", req.WorkspaceID), zap.Error(err))
		return nil, err
	}
	if s.gate != nil {
		if _, err := s.gate.Acquire(ctx, config.ActionImportCSV, req.WorkspaceID, req.ActorID); err != nil {
			return nil, err
		}
	}
	start := s.now()
	run, err := s.recorder.start(ctx, req.WorkspaceID, req.ActorID, model.ImportSourceCSV, string(mode))
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", run.ID), zap.String("workspace_id", req.WorkspaceID))
	if s.archive != nil && s.engine.Config().ArchiveUploads {
		key := archiveKey(run.ID, req.FileName)
		if err := s.archive.Save(ctx, key, bytes.NewReader(req.Data), int64(len(req.Data))); err != nil {
			logger.Warn("archive import upload failed", zap.String("key", key), zap.Error(err))
		} else {
			run.FileKey = key
		}
	}

	summary, err := s.engine.ImportPrepared(ctx, importer.RunOptions{
		WorkspaceID: req.WorkspaceID,
		RunID:       run.ID,
		Source:      model.ImportSourceCSV,
		Kind:        model.PostKindFeedback,
		Mode:        mode,
	}, prepared)
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		logger.Warn("file import failed", zap.Error(err))
		s.recorder.finish(ctx, run, model.ImportRunFailed, nil, err)
		s.metrics.RunFinished(model.ImportSourceCSV, model.ImportRunFailed, elapsed)
		return nil, err
	}
	s.recorder.finish(ctx, run, model.ImportRunDone, summary, nil)
	s.metrics.ObserveFile(summary)
	s.metrics.RunFinished(model.ImportSourceCSV, model.ImportRunDone, elapsed)
	return summary, nil
}
