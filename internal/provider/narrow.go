package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

// decodePage narrows an untyped list response. Shapes that do not match are
// dropped here so nothing untyped leaves this package.
func decodePage(body []byte) (*Page, error) {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode provider response: %v: %w", err, appErr.ErrProviderUnavailable)
	}
	page := &Page{Posts: make([]RemotePost, 0)}
	var items []interface{}
	obj, isObject := root.(map[string]interface{})
	switch {
	case isObject:
		for _, key := range []string{"posts", "data", "items"} {
			if list, ok := obj[key].([]interface{}); ok {
				items = list
				break
			}
		}
	default:
		if list, ok := root.([]interface{}); ok {
			items = list
		} else {
			return nil, fmt.Errorf("unexpected provider response shape: %w", appErr.ErrProviderUnavailable)
		}
	}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			page.Discarded++
			continue
		}
		post, ok := narrowPost(m)
		if !ok {
			page.Discarded++
			continue
		}
		page.Posts = append(page.Posts, post)
	}
	if isObject {
		page.NextCursor = stringField(obj, "nextCursor", "next_cursor")
		hasMore, found := boolField(obj, "hasMore", "has_more")
		if pagination, ok := obj["pagination"].(map[string]interface{}); ok {
			if page.NextCursor == "" {
				page.NextCursor = stringField(pagination, "nextCursor", "next_cursor", "cursor")
			}
			if !found {
				hasMore, found = boolField(pagination, "hasMore", "has_more")
			}
		}
		if found {
			page.HasMore = hasMore && page.NextCursor != ""
		} else {
			page.HasMore = page.NextCursor != ""
		}
	}
	return page, nil
}

func narrowPost(m map[string]interface{}) (RemotePost, bool) {
	id := stringField(m, "id", "_id", "uuid")
	if id == "" {
		return RemotePost{}, false
	}
	return RemotePost{
		ID:          id,
		Title:       stringField(m, "title", "name"),
		Markdown:    stringField(m, "markdown", "contentMarkdown", "content_markdown", "bodyMarkdown"),
		HTML:        stringField(m, "html", "contentHtml", "content_html", "bodyHtml"),
		Status:      stringField(m, "status", "state"),
		Slug:        stringField(m, "slug"),
		URL:         stringField(m, "url", "permalink", "link"),
		CoverImage:  stringField(m, "coverImage", "cover_image", "imageUrl", "image"),
		CreatedAt:   timeField(m, "createdAt", "created_at"),
		UpdatedAt:   timeField(m, "updatedAt", "updated_at"),
		PublishedAt: timeField(m, "publishedAt", "published_at"),
	}, true
}

// stringField returns the first key holding a string or a number, trimmed.
func stringField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func boolField(m map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		if v, ok := m[key].(bool); ok {
			return v, true
		}
	}
	return false, false
}

func timeField(m map[string]interface{}, keys ...string) time.Time {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
				return t
			}
		case float64:
			if v > 1e12 {
				return time.UnixMilli(int64(v))
			}
			if v > 0 {
				return time.Unix(int64(v), 0)
			}
		}
	}
	return time.Time{}
}
