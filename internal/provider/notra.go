package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

const (
	NameNotra = "notra"

	defaultNotraBaseURL = "https://api.usenotra.com"
	maxResponseBytes    = 8 * 1024 * 1024
)

func init() {
	Register(NameNotra, func(args interface{}) (Provider, error) {
		cfg, ok := args.(Args)
		if !ok {
			if ptr, okPtr := args.(*Args); okPtr && ptr != nil {
				cfg = *ptr
			} else {
				return nil, fmt.Errorf("invalid notra provider args")
			}
		}
		return newNotraProvider(cfg), nil
	})
}

type notraProvider struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newNotraProvider(cfg Args) *notraProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultNotraBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &notraProvider{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

func (n *notraProvider) Name() string {
	return NameNotra
}

func (n *notraProvider) ListPosts(ctx context.Context, req ListRequest) (*Page, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return nil, appErr.ErrCredentialMissing
	}
	params := url.Values{}
	if status := strings.TrimSpace(req.Status); status != "" && !strings.EqualFold(status, "all") {
		params.Set("status", strings.ToLower(status))
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		params.Set("cursor", req.Cursor)
	}
	endpoint := n.baseURL + "/v1/posts"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	body, err := n.get(ctx, endpoint, apiKey)
	if err != nil {
		return nil, err
	}
	return decodePage(body)
}

func (n *notraProvider) get(ctx context.Context, endpoint, apiKey string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < n.maxRetries {
				if waitErr := sleepContext(ctx, retryDelay(n.baseDelay, n.maxDelay, attempt+1, "")); waitErr != nil {
					return nil, fmt.Errorf("notra request: %v: %w", waitErr, appErr.ErrProviderUnavailable)
				}
				continue
			}
			return nil, fmt.Errorf("notra request: %v: %w", err, appErr.ErrProviderUnavailable)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read notra response: %v: %w", readErr, appErr.ErrProviderUnavailable)
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("notra rejected api key, status=%d: %w", resp.StatusCode, appErr.ErrCredentialRejected)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if attempt < n.maxRetries {
				logutil.GetLogger(ctx).Debug("notra request retry",
					zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt+1))
				if waitErr := sleepContext(ctx, retryDelay(n.baseDelay, n.maxDelay, attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
					return nil, fmt.Errorf("notra request: %v: %w", waitErr, appErr.ErrProviderUnavailable)
				}
				continue
			}
		}
		return nil, fmt.Errorf("notra request failed, status=%d message=%s: %w",
			resp.StatusCode, truncateMessage(string(body)), appErr.ErrProviderUnavailable)
	}
}

func truncateMessage(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
