package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/provider"
	"github.com/xxxsen/feedhub/internal/richtext"
)

const (
	PublishKeepSource = "keep_source"
	PublishDraft      = "draft"

	maxRemotePageSize = 100
)

type RemoteOptions struct {
	RunOptions
	APIKey          string
	Status          string
	PageSize        int
	MaxPages        int
	PublishBehavior string
	Board           string
	// AfterPage runs after every successful page fetch, before its items are reconciled.
	AfterPage func(ctx context.Context, page int)
}

func ParsePublishBehavior(raw string) (string, error) {
	switch normalizeKey(raw) {
	case "", "keepsource", "source", "keep":
		return PublishKeepSource, nil
	case "draft", "drafts":
		return PublishDraft, nil
	}
	return "", fmt.Errorf("unknown publish behavior %q: %w", raw, appErr.ErrInvalid)
}

// ImportRemote pages through a provider and reconciles every item. A provider
// failure on the first page is returned alone; after that the summary of the pages
// already committed is returned together with the error.
func (e *Engine) ImportRemote(ctx context.Context, p provider.Provider, opts RemoteOptions) (*model.RemoteImportSummary, error) {
	if opts.Source == "" {
		opts.Source = p.Name()
	}
	if opts.Kind == "" {
		opts.Kind = model.PostKindChangelog
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = e.cfg.RemotePageSize
	}
	if pageSize > maxRemotePageSize {
		pageSize = maxRemotePageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 || maxPages > e.cfg.MaxRemotePages {
		maxPages = e.cfg.MaxRemotePages
	}
	behavior, err := ParsePublishBehavior(opts.PublishBehavior)
	if err != nil {
		return nil, err
	}
	run, err := e.Begin(ctx, opts.RunOptions)
	if err != nil {
		return nil, err
	}

	logger := logutil.GetLogger(ctx).With(zap.String("workspace_id", opts.WorkspaceID), zap.String("provider", p.Name()))
	pageTimeout := time.Duration(e.cfg.PageTimeoutSecond) * time.Second
	summary := &model.RemoteImportSummary{}
	seen := make(map[string]bool)
	cursor := ""
	var fetchErr error
	for summary.PagesFetched < maxPages {
		pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
		page, err := p.ListPosts(pageCtx, provider.ListRequest{
			APIKey: opts.APIKey,
			Status: opts.Status,
			Limit:  pageSize,
			Cursor: cursor,
		})
		cancel()
		if err != nil {
			if summary.PagesFetched == 0 {
				return nil, err
			}
			fetchErr = err
			break
		}
		summary.PagesFetched++
		summary.FetchedCount += len(page.Posts)
		logger.Debug("remote page fetched",
			zap.Int("page", summary.PagesFetched), zap.Int("items", len(page.Posts)), zap.Bool("has_more", page.HasMore))
		if opts.AfterPage != nil {
			opts.AfterPage(ctx, summary.PagesFetched)
		}
		if page.Discarded > 0 {
			run.report.Warn(nil, fmt.Sprintf("page %d: %d item(s) had an unrecognized shape and were skipped", summary.PagesFetched, page.Discarded))
		}
		e.reconcilePage(ctx, run, page.Posts, seen, behavior, opts.Board)

		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	rep := run.Report()
	summary.ImportedCount = rep.Imported()
	summary.CreatedCount = rep.Created
	summary.UpdatedCount = rep.Updated
	summary.SkippedCount = rep.Skipped
	summary.TruncatedCount = rep.Truncated
	summary.LimitReached = rep.LimitReached
	summary.Errors = rep.Errors
	summary.Warnings = rep.Warnings
	if fetchErr != nil {
		summary.Partial = true
		summary.FailureMessage = fetchErr.Error()
	}
	logger.Info("remote import finished",
		zap.Int("pages", summary.PagesFetched),
		zap.Int("fetched", summary.FetchedCount),
		zap.Int("created", summary.CreatedCount),
		zap.Int("updated", summary.UpdatedCount),
		zap.Int("skipped", summary.SkippedCount),
		zap.Int("truncated", summary.TruncatedCount),
		zap.Bool("partial", summary.Partial))
	return summary, fetchErr
}

func (e *Engine) reconcilePage(ctx context.Context, run *Run, posts []provider.RemotePost, seen map[string]bool, behavior, board string) {
	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		if !seen[post.ID] {
			ids = append(ids, post.ID)
		}
	}
	existing, err := run.Prefetch(ctx, ids)
	prefetched := err == nil
	if err != nil {
		logutil.GetLogger(ctx).Warn("batched source id lookup failed, falling back to per item lookup", zap.Error(err))
	}
	for _, post := range posts {
		if seen[post.ID] {
			run.report.Skipped++
			run.report.Warn(nil, fmt.Sprintf("item %s: duplicate item in provider response skipped", post.ID))
			continue
		}
		seen[post.ID] = true
		c := e.remoteCandidate(run, post, behavior, board)
		if prefetched {
			c.Prefetched = true
			c.Existing = existing[post.ID]
		}
		run.Process(ctx, c)
	}
}

// remoteCandidate converts a provider item. Provider markdown is used as is; HTML is
// reduced to a structural document first. Each input and the output are capped
// independently and an item hitting any cap counts once as truncated.
func (e *Engine) remoteCandidate(run *Run, post provider.RemotePost, behavior, board string) Candidate {
	var (
		body      string
		truncated bool
		cut       bool
	)
	switch {
	case strings.TrimSpace(post.Markdown) != "":
		body, truncated = richtext.TruncateBytes(post.Markdown, e.cfg.MaxMarkdownBytes)
	case strings.TrimSpace(post.HTML) != "":
		var html string
		html, truncated = richtext.TruncateBytes(post.HTML, e.cfg.MaxHTMLBytes)
		body = richtext.ToMarkdown(richtext.FromHTML(html))
	}
	body, cut = richtext.TruncateBytes(body, e.cfg.MaxNormalizedBytes)
	truncated = truncated || cut

	c := Candidate{
		ExternalID:  post.ID,
		Title:       post.Title,
		Body:        body,
		Board:       board,
		Attachments: post.CoverImage,
		SourceURL:   post.URL,
		SourceSlug:  post.Slug,
	}
	if truncated {
		run.report.Truncated++
		run.report.Warn(nil, fmt.Sprintf("item %s: content truncated", post.ID))
	}
	published := post.IsPublished()
	if behavior == PublishDraft {
		published = false
	}
	c.Published = &published
	created := post.PublishedAt
	if created.IsZero() {
		created = post.CreatedAt
	}
	if !created.IsZero() {
		c.CreatedAt = created.UTC().Format(time.RFC3339)
	}
	if !post.UpdatedAt.IsZero() {
		c.UpdatedAt = post.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return c
}
