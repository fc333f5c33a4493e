package importer

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/richtext"
)

type Mode string

const (
	ModeUpsert     Mode = "upsert"
	ModeCreateOnly Mode = "create_only"
)

func ParseMode(raw string) (Mode, error) {
	switch normalizeKey(raw) {
	case "", "upsert":
		return ModeUpsert, nil
	case "createonly":
		return ModeCreateOnly, nil
	}
	return "", fmt.Errorf("unknown import mode %q: %w", raw, appErr.ErrInvalid)
}

type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFailed
)

// Candidate is one incoming record before reconciliation. File rows carry raw
// cell text; the remote loop fills the same fields from provider items.
type Candidate struct {
	Row         *int
	ExternalID  string
	Title       string
	Body        string
	Board       string
	Status      string
	Score       string
	Attachments string
	AuthorEmail string
	CreatedAt   string
	UpdatedAt   string

	Published  *bool
	SourceURL  string
	SourceSlug string
	// Prefetched marks Existing as the result of a batched lookup, nil meaning absent.
	Prefetched bool
	Existing   *model.Post
}

type Engine struct {
	posts      PostStore
	boards     BoardStore
	members    MemberStore
	workspaces WorkspaceStore
	cfg        config.ImportConfig
	plans      map[string]config.PlanConfig
	renderer   *richtext.Renderer
	newID      func() string
	now        func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

func NewEngine(posts PostStore, boards BoardStore, members MemberStore, workspaces WorkspaceStore,
	cfg config.ImportConfig, plans map[string]config.PlanConfig, opts ...Option) *Engine {
	cfg.ApplyDefaults()
	e := &Engine{
		posts:      posts,
		boards:     boards,
		members:    members,
		workspaces: workspaces,
		cfg:        cfg,
		plans:      plans,
		renderer:   richtext.NewRenderer(),
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() config.ImportConfig {
	return e.cfg
}

type RunOptions struct {
	WorkspaceID  string
	RunID        string
	Source       string
	Kind         string
	Mode         Mode
	DefaultBoard string
}

// Run holds everything that changes while one import executes: board cache and
// creation counter, quota usage, member lookup and the report.
type Run struct {
	e      *Engine
	opts   RunOptions
	report *Report
	boards *boardResolver

	members     map[string]string
	postLimit   int
	postCount   int
	limitWarned bool
}

func (e *Engine) Begin(ctx context.Context, opts RunOptions) (*Run, error) {
	if opts.WorkspaceID == "" || opts.Source == "" {
		return nil, appErr.ErrInvalid
	}
	if opts.Mode == "" {
		opts.Mode = ModeUpsert
	}
	if opts.Kind == "" {
		opts.Kind = model.PostKindFeedback
	}
	if strings.TrimSpace(opts.DefaultBoard) == "" {
		opts.DefaultBoard = e.cfg.DefaultBoard
	}
	ws, err := e.workspaces.GetByID(ctx, opts.WorkspaceID)
	if err != nil {
		return nil, err
	}
	plan, ok := e.plans[ws.Plan]
	if !ok {
		plan = e.plans["free"]
	}
	count, err := e.posts.CountByWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	members, err := e.members.ListMembers(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	memberIndex := make(map[string]string, len(members))
	for _, m := range members {
		if m.Email != "" {
			memberIndex[strings.ToLower(m.Email)] = m.UserID
		}
	}
	boards := &boardResolver{
		store:        e.boards,
		workspaceID:  ws.ID,
		defaultName:  cleanTitle(opts.DefaultBoard),
		maxCreated:   e.cfg.MaxAutoBoards,
		maxNameChars: e.cfg.MaxGroupNameChars,
		newID:        e.newID,
		now:          func() int64 { return e.now().Unix() },
	}
	if err := boards.load(ctx); err != nil {
		return nil, err
	}
	return &Run{
		e:         e,
		opts:      opts,
		report:    newReport(e.cfg.MaxIssues),
		boards:    boards,
		members:   memberIndex,
		postLimit: plan.PostLimit,
		postCount: count,
	}, nil
}

func (r *Run) Report() *Report {
	return r.report
}

// Prefetch resolves a page of source ids in one query.
func (r *Run) Prefetch(ctx context.Context, sourceIDs []string) (map[string]*model.Post, error) {
	if len(sourceIDs) == 0 {
		return map[string]*model.Post{}, nil
	}
	return r.e.posts.ListBySourceIDs(ctx, r.opts.WorkspaceID, r.opts.Source, sourceIDs)
}

func (r *Run) warn(c *Candidate, msg string) {
	r.report.Warn(c.Row, r.ref(c)+msg)
}

func (r *Run) fail(c *Candidate, msg string) Outcome {
	r.report.Error(c.Row, r.ref(c)+msg)
	r.report.Skipped++
	return OutcomeFailed
}

func (r *Run) ref(c *Candidate) string {
	if c.Row == nil && c.ExternalID != "" {
		return "item " + c.ExternalID + ": "
	}
	return ""
}

// Process reconciles one candidate. It never returns an error: every problem is
// recorded in the report and the caller moves on to the next candidate.
func (r *Run) Process(ctx context.Context, c Candidate) Outcome {
	cfg := r.e.cfg
	c.ExternalID = strings.TrimSpace(stripControl(c.ExternalID))

	title := cleanTitle(c.Title)
	if title == "" {
		return r.fail(&c, "missing required title")
	}
	if n := utf8.RuneCountInString(title); n > cfg.MaxTitleChars {
		return r.fail(&c, fmt.Sprintf("title is %d characters, max is %d", n, cfg.MaxTitleChars))
	}
	body := cleanBody(c.Body)
	if body == "" {
		body = title
	}
	if cut, truncated := truncateRunes(body, cfg.MaxBodyChars); truncated {
		body = cut
		r.warn(&c, fmt.Sprintf("body truncated to %d characters", cfg.MaxBodyChars))
	}

	ident, err := r.resolveIdentity(ctx, &c, title)
	if err != nil {
		return r.fail(&c, fmt.Sprintf("lookup existing record: %v", err))
	}
	existing := ident.existing
	if existing != nil && r.opts.Mode == ModeCreateOnly {
		r.report.Skipped++
		r.warn(&c, "already imported, skipped (create_only)")
		return OutcomeSkipped
	}
	if existing == nil && r.postLimit > 0 && r.postCount >= r.postLimit {
		r.report.Skipped++
		r.report.LimitReached = true
		if r.limitWarned {
			r.warn(&c, "post limit reached, skipped")
		} else {
			r.limitWarned = true
			r.warn(&c, fmt.Sprintf("workspace post limit of %d reached, new records are skipped", r.postLimit))
		}
		return OutcomeSkipped
	}

	var post model.Post
	if existing != nil {
		post = *existing
	} else {
		post = model.Post{
			WorkspaceID: r.opts.WorkspaceID,
			Kind:        r.opts.Kind,
			Status:      model.PostStatusOpen,
			Published:   true,
			Attachments: []model.Attachment{},
		}
	}
	post.Title = title
	post.Content = body

	if strings.TrimSpace(c.Board) != "" {
		board, warning, err := r.boards.resolve(ctx, c.Board)
		if err != nil {
			return r.fail(&c, fmt.Sprintf("resolve board: %v", err))
		}
		if warning != "" {
			r.warn(&c, warning)
		}
		post.BoardID = board.ID
	} else if post.BoardID == "" {
		board, err := r.boards.defaultBoard(ctx)
		if err != nil {
			return r.fail(&c, fmt.Sprintf("resolve default board: %v", err))
		}
		post.BoardID = board.ID
	}

	if status, ok := NormalizeStatus(c.Status); ok {
		post.Status = status
	} else if raw := strings.TrimSpace(c.Status); raw != "" {
		r.warn(&c, fmt.Sprintf("unknown status %q, kept %q", raw, post.Status))
	}
	r.applyScore(&c, &post)
	r.applyAuthor(&c, &post)
	r.applyAttachments(&c, &post)
	if c.Published != nil {
		post.Published = *c.Published
	}
	post.Metadata.ImportSource = r.opts.Source
	if c.ExternalID != "" {
		post.Metadata.ImportSourceID = c.ExternalID
	}
	if c.SourceURL != "" {
		post.Metadata.SourceURL = c.SourceURL
	}
	if c.SourceSlug != "" {
		post.Metadata.SourceSlug = c.SourceSlug
	}
	post.Metadata.ImportRunID = r.opts.RunID
	if html, err := r.e.renderer.Render(post.Content); err == nil {
		post.ContentHTML = html
	} else {
		logutil.GetLogger(ctx).Warn("render imported content failed", zap.Error(err))
		post.ContentHTML = ""
	}

	now := r.e.now()
	createdAt := r.timestamp(&c, "created_at", c.CreatedAt, now)
	updatedAt := r.timestamp(&c, "updated_at", c.UpdatedAt, now)

	if existing != nil {
		post.Mtime = now.Unix()
		if err := r.e.posts.Update(ctx, &post); err != nil {
			logutil.GetLogger(ctx).Warn("update imported post failed", zap.String("post_id", post.ID), zap.Error(err))
			return r.fail(&c, fmt.Sprintf("update failed: %v", err))
		}
		r.report.Updated++
		return OutcomeUpdated
	}

	post.Ctime = now.Unix()
	if !createdAt.IsZero() {
		post.Ctime = createdAt.Unix()
	}
	post.Mtime = now.Unix()
	if !updatedAt.IsZero() {
		post.Mtime = updatedAt.Unix()
	}
	if post.Mtime < post.Ctime {
		post.Mtime = post.Ctime
	}
	post.ID = ident.id
	err = r.e.posts.Create(ctx, &post)
	if err != nil && appErr.IsConflict(err) && post.ID == c.ExternalID {
		post.ID = r.e.newID()
		ident.warning = fmt.Sprintf("external id %q is already taken, imported under new id %s", c.ExternalID, post.ID)
		err = r.e.posts.Create(ctx, &post)
	}
	if err != nil {
		logutil.GetLogger(ctx).Warn("create imported post failed", zap.String("workspace_id", post.WorkspaceID), zap.Error(err))
		return r.fail(&c, fmt.Sprintf("create failed: %v", err))
	}
	if ident.warning != "" {
		r.warn(&c, ident.warning)
	}
	r.postCount++
	r.report.Created++
	return OutcomeCreated
}

type identity struct {
	existing *model.Post
	id       string
	warning  string
}

var externalIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// resolveIdentity finds the record a candidate refers to inside the run's workspace.
// File rows may reuse their external id as primary key, unless another workspace
// already owns that key; every other source gets a generated id and is found again
// through the remembered source id.
func (r *Run) resolveIdentity(ctx context.Context, c *Candidate, title string) (identity, error) {
	ws := r.opts.WorkspaceID
	if c.Prefetched {
		if c.Existing != nil {
			return identity{existing: c.Existing}, nil
		}
		return identity{id: r.e.newID()}, nil
	}
	if c.ExternalID == "" {
		post, err := r.e.posts.FindImportedByTitle(ctx, ws, r.opts.Kind, r.opts.Source, title)
		if err != nil && !appErr.IsNotFound(err) {
			return identity{}, err
		}
		if post != nil {
			return identity{existing: post}, nil
		}
		return identity{id: r.e.newID()}, nil
	}

	var foreign bool
	if r.opts.Source == model.ImportSourceCSV {
		post, err := r.e.posts.GetByID(ctx, c.ExternalID)
		if err != nil && !appErr.IsNotFound(err) {
			return identity{}, err
		}
		if post != nil {
			if post.WorkspaceID == ws {
				return identity{existing: post}, nil
			}
			foreign = true
		}
	}
	remembered, err := r.e.posts.FindBySourceID(ctx, ws, r.opts.Source, c.ExternalID)
	if err != nil && !appErr.IsNotFound(err) {
		return identity{}, err
	}
	if remembered != nil {
		return identity{existing: remembered}, nil
	}
	if foreign {
		id := r.e.newID()
		return identity{
			id:      id,
			warning: fmt.Sprintf("external id %q is already taken, imported under new id %s", c.ExternalID, id),
		}, nil
	}
	if r.opts.Source == model.ImportSourceCSV && externalIDRegex.MatchString(c.ExternalID) {
		return identity{id: c.ExternalID}, nil
	}
	return identity{id: r.e.newID()}, nil
}

func (r *Run) applyScore(c *Candidate, post *model.Post) {
	raw := strings.TrimSpace(c.Score)
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		r.warn(c, fmt.Sprintf("invalid score %q ignored", raw))
		return
	}
	floored := math.Floor(value)
	clamped := math.Min(math.Max(floored, 0), float64(r.e.cfg.MaxScore))
	if clamped != floored {
		r.warn(c, fmt.Sprintf("score %s clamped to %d", raw, int(clamped)))
	}
	post.Score = int(clamped)
}

func (r *Run) applyAuthor(c *Candidate, post *model.Post) {
	raw := strings.TrimSpace(c.AuthorEmail)
	if raw == "" {
		return
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		post.AuthorID = ""
		r.warn(c, fmt.Sprintf("invalid author email %q, imported as anonymous", raw))
		return
	}
	userID, ok := r.members[strings.ToLower(addr.Address)]
	if !ok {
		post.AuthorID = ""
		r.warn(c, fmt.Sprintf("author %q is not a workspace member, imported as anonymous", addr.Address))
		return
	}
	post.AuthorID = userID
}

func (r *Run) applyAttachments(c *Candidate, post *model.Post) {
	if strings.TrimSpace(c.Attachments) == "" {
		return
	}
	res := extractAttachments(c.Attachments, r.e.cfg.MaxAttachments)
	if res.invalid > 0 {
		r.warn(c, fmt.Sprintf("%d attachment value(s) are not http(s) urls and were ignored", res.invalid))
	}
	if res.truncated {
		r.warn(c, fmt.Sprintf("attachments truncated to %d", r.e.cfg.MaxAttachments))
	}
	if len(res.items) == 0 {
		return
	}
	post.Attachments = res.items
	post.ImageURL = res.items[0].URL
}

func (r *Run) timestamp(c *Candidate, field, raw string, now time.Time) time.Time {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}
	}
	t, ok, clamped := parseTimestamp(raw, now)
	if !ok {
		r.warn(c, fmt.Sprintf("invalid %s %q ignored", field, strings.TrimSpace(raw)))
		return time.Time{}
	}
	if clamped {
		r.warn(c, fmt.Sprintf("%s %q is in the future, clamped to now", field, strings.TrimSpace(raw)))
	}
	return t
}
