package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xxxsen/feedhub/internal/model"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

// nonGroupKeys are normalized values that show up in a board column when a file's
// columns are shifted or mislabeled; they are never accepted as board names.
var nonGroupKeys = map[string]bool{
	"yes": true, "no": true, "true": true, "false": true,
	"na": true, "none": true, "null": true, "nil": true, "undefined": true,
	"anonymous": true, "unknown": true,
}

func init() {
	for status := range statusAliases {
		nonGroupKeys[normalizeKey(status)] = true
	}
}

// boardResolver is the per-run view of a workspace's boards. It owns the
// auto-creation counter so concurrent runs never share it.
type boardResolver struct {
	store        BoardStore
	workspaceID  string
	defaultName  string
	maxCreated   int
	maxNameChars int
	newID        func() string
	now          func() int64

	byKey   map[string]*model.Board
	slugs   map[string]bool
	created int
}

func (b *boardResolver) load(ctx context.Context) error {
	boards, err := b.store.ListByWorkspace(ctx, b.workspaceID)
	if err != nil {
		return fmt.Errorf("list boards: %w", err)
	}
	b.byKey = make(map[string]*model.Board, len(boards))
	b.slugs = make(map[string]bool, len(boards))
	for i := range boards {
		board := boards[i]
		b.slugs[board.Slug] = true
		key := normalizeKey(board.Name)
		if _, exists := b.byKey[key]; !exists {
			b.byKey[key] = &board
		}
	}
	return nil
}

// isStray reports whether raw looks like a data value that landed in the board column.
func (b *boardResolver) isStray(raw string) bool {
	key := normalizeKey(raw)
	if nonGroupKeys[key] {
		return true
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return true
	}
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "://") || strings.HasPrefix(lower, "www.") {
		return true
	}
	if strings.Contains(raw, "@") {
		return true
	}
	return utf8.RuneCountInString(raw) > b.maxNameChars
}

// resolve returns the board for an explicit name, creating it when missing.
// The warning is non-empty when the default board was used instead.
func (b *boardResolver) resolve(ctx context.Context, raw string) (*model.Board, string, error) {
	name := cleanTitle(raw)
	if b.isStray(name) {
		board, err := b.defaultBoard(ctx)
		return board, fmt.Sprintf("board value %q does not look like a board name, used %q", name, b.defaultName), err
	}
	key := normalizeKey(name)
	if key == "" {
		board, err := b.defaultBoard(ctx)
		return board, "", err
	}
	if board, ok := b.byKey[key]; ok {
		return board, "", nil
	}
	if b.created >= b.maxCreated {
		board, err := b.defaultBoard(ctx)
		return board, fmt.Sprintf("board limit of %d new boards per import reached, %q filed under %q", b.maxCreated, name, b.defaultName), err
	}
	board, err := b.create(ctx, name)
	if err != nil {
		return nil, "", err
	}
	b.created++
	return board, "", nil
}

func (b *boardResolver) defaultBoard(ctx context.Context) (*model.Board, error) {
	if board, ok := b.byKey[normalizeKey(b.defaultName)]; ok {
		return board, nil
	}
	return b.create(ctx, b.defaultName)
}

func (b *boardResolver) create(ctx context.Context, name string) (*model.Board, error) {
	key := normalizeKey(name)
	base := slugify(name)
	for attempt := 0; attempt < 3; attempt++ {
		slug := b.nextSlug(base)
		now := b.now()
		board := &model.Board{
			ID:          b.newID(),
			WorkspaceID: b.workspaceID,
			Name:        name,
			Slug:        slug,
			Ctime:       now,
			Mtime:       now,
		}
		err := b.store.Create(ctx, board)
		if err == nil {
			b.slugs[slug] = true
			b.byKey[key] = board
			return board, nil
		}
		if !appErr.IsConflict(err) {
			return nil, fmt.Errorf("create board: %w", err)
		}
		// another run created a board with this slug in the meantime
		if err := b.load(ctx); err != nil {
			return nil, err
		}
		if existing, ok := b.byKey[key]; ok {
			return existing, nil
		}
		b.slugs[slug] = true
	}
	return nil, fmt.Errorf("create board %q: %w", name, appErr.ErrConflict)
}

// nextSlug returns base, base-2, base-3... skipping slugs already taken.
func (b *boardResolver) nextSlug(base string) string {
	if !b.slugs[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if !b.slugs[candidate] {
			return candidate
		}
	}
}

func slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(sb.String(), "-")
	if slug == "" {
		return "board"
	}
	return slug
}
