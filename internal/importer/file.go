package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

// PreparedTable is a file that passed every fatal check and can be imported.
type PreparedTable struct {
	table    *Table
	mapping  *Mapping
	warnings []string
}

func (p *PreparedTable) Rows() int {
	return len(p.table.Rows)
}

// PrepareTable runs the checks that reject a whole file: size, parse, row count
// and required columns. Nothing is written.
func (e *Engine) PrepareTable(data []byte) (*PreparedTable, error) {
	if int64(len(data)) > e.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("upload is %d bytes, max %d: %w", len(data), e.cfg.MaxUploadBytes, appErr.ErrImportPayloadTooLarge)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(table.Rows) > e.cfg.MaxRows {
		return nil, fmt.Errorf("file has %d rows, max %d: %w", len(table.Rows), e.cfg.MaxRows, appErr.ErrImportTooManyRows)
	}
	mapping, warnings, err := MapColumns(table.Headers)
	if err != nil {
		return nil, err
	}
	return &PreparedTable{table: table, mapping: mapping, warnings: warnings}, nil
}

// ImportTable prepares and imports a delimited file in one go.
func (e *Engine) ImportTable(ctx context.Context, opts RunOptions, data []byte) (*model.FileImportSummary, error) {
	prepared, err := e.PrepareTable(data)
	if err != nil {
		return nil, err
	}
	return e.ImportPrepared(ctx, opts, prepared)
}

// ImportPrepared reconciles every row of a prepared file in order.
func (e *Engine) ImportPrepared(ctx context.Context, opts RunOptions, prepared *PreparedTable) (*model.FileImportSummary, error) {
	table, mapping := prepared.table, prepared.mapping
	if opts.Source == "" {
		opts.Source = model.ImportSourceCSV
	}
	run, err := e.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range prepared.warnings {
		run.report.Warn(nil, w)
	}

	start := time.Now()
	for i, row := range table.Rows {
		run.Process(ctx, Candidate{
			Row:         RowRef(table.Line(i)),
			ExternalID:  mapping.Value(row, FieldExternalID),
			Title:       mapping.Value(row, FieldTitle),
			Body:        mapping.Value(row, FieldBody),
			Board:       mapping.Value(row, FieldBoard),
			Status:      mapping.Value(row, FieldStatus),
			Score:       mapping.Value(row, FieldScore),
			Attachments: mapping.Value(row, FieldAttachments),
			AuthorEmail: mapping.Value(row, FieldAuthorEmail),
			CreatedAt:   mapping.Value(row, FieldCreatedAt),
			UpdatedAt:   mapping.Value(row, FieldUpdatedAt),
		})
	}
	rep := run.Report()
	logutil.GetLogger(ctx).Info("file import finished",
		zap.String("workspace_id", opts.WorkspaceID),
		zap.String("run_id", opts.RunID),
		zap.Int("rows", len(table.Rows)),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("errors", rep.ErrorTotal),
		zap.Duration("cost", time.Since(start)))
	return &model.FileImportSummary{
		OK:            true,
		ImportedCount: rep.Imported(),
		CreatedCount:  rep.Created,
		UpdatedCount:  rep.Updated,
		SkippedCount:  rep.Skipped,
		ErrorCount:    rep.ErrorTotal,
		Errors:        rep.Errors,
		Warnings:      rep.Warnings,
		RowLimit:      e.cfg.MaxRows,
		LimitReached:  rep.LimitReached,
	}, nil
}
