package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RemotePost is a provider item after it has been narrowed from the raw response.
type RemotePost struct {
	ID          string
	Title       string
	Markdown    string
	HTML        string
	Status      string
	Slug        string
	URL         string
	CoverImage  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt time.Time
}

// IsPublished reports the source-side publish state.
func (p RemotePost) IsPublished() bool {
	if p.Status != "" {
		return strings.EqualFold(p.Status, "published") || strings.EqualFold(p.Status, "live")
	}
	return !p.PublishedAt.IsZero()
}

type ListRequest struct {
	APIKey string
	Status string
	Limit  int
	Cursor string
}

type Page struct {
	Posts      []RemotePost
	NextCursor string
	HasMore    bool
	// Discarded counts items that could not be narrowed into a RemotePost.
	Discarded int
}

type Provider interface {
	Name() string
	ListPosts(ctx context.Context, req ListRequest) (*Page, error)
}

type Args struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type ProviderFactory func(args interface{}) (Provider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("import provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported import provider: %s", name)
	}
	return factory(args)
}
