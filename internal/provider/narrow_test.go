package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

func TestDecodePagePostsKey(t *testing.T) {
	page, err := decodePage([]byte(`{
		"posts": [
			{"id": "p1", "title": "Dark mode", "markdown": "# Hi", "status": "published", "createdAt": "2024-03-01T10:00:00Z"},
			{"id": 42, "title": "Numeric id", "html": "<p>x</p>"}
		],
		"nextCursor": "c2",
		"hasMore": true
	}`))
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	require.Equal(t, "p1", page.Posts[0].ID)
	require.Equal(t, "# Hi", page.Posts[0].Markdown)
	require.True(t, page.Posts[0].IsPublished())
	require.Equal(t, 2024, page.Posts[0].CreatedAt.Year())
	require.Equal(t, "42", page.Posts[1].ID)
	require.Equal(t, "<p>x</p>", page.Posts[1].HTML)
	require.Equal(t, "c2", page.NextCursor)
	require.True(t, page.HasMore)
}

func TestDecodePageDiscardsBadItems(t *testing.T) {
	page, err := decodePage([]byte(`{"data": ["junk", {"title": "no id"}, {"id": "ok"}, null]}`))
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, 3, page.Discarded)
	require.False(t, page.HasMore)
}

func TestDecodePageNestedPagination(t *testing.T) {
	page, err := decodePage([]byte(`{"items": [], "pagination": {"next_cursor": "abc", "has_more": false}}`))
	require.NoError(t, err)
	require.Equal(t, "abc", page.NextCursor)
	require.False(t, page.HasMore)

	page, err = decodePage([]byte(`{"items": [], "pagination": {"nextCursor": "abc"}}`))
	require.NoError(t, err)
	require.True(t, page.HasMore)
}

func TestDecodePageTopLevelArray(t *testing.T) {
	page, err := decodePage([]byte(`[{"id": "a"}, {"id": "b"}]`))
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	require.False(t, page.HasMore)
}

func TestDecodePageRejectsGarbage(t *testing.T) {
	_, err := decodePage([]byte(`not json`))
	require.ErrorIs(t, err, appErr.ErrProviderUnavailable)
	_, err = decodePage([]byte(`"string"`))
	require.ErrorIs(t, err, appErr.ErrProviderUnavailable)
}
