package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/ratelimit"
)

func newGatedContext(workspaceID, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/workspaces/"+workspaceID+"/imports/csv", nil)
	c.Params = gin.Params{{Key: "workspace_id", Value: workspaceID}}
	c.Set(ContextUserIDKey, userID)
	return c, w
}

func TestRateLimiterHandle_BlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Unix(1700000000, 0)
	gate := ratelimit.NewGate(ratelimit.NewMemoryCounter(), map[string]config.RateRule{
		config.ActionImportCSV: {WindowSecond: 10, PerActor: 1, PerWorkspace: 5},
	}, ratelimit.WithClock(func() time.Time { return now }))
	limiter := &rateLimiter{gate: gate, action: config.ActionImportCSV}

	c1, _ := newGatedContext("ws1", "u1")
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := newGatedContext("ws1", "u1")
	limiter.handle(c2)
	require.False(t, c2.IsAborted(), "checking alone never fills the window")

	_, err := gate.Acquire(context.Background(), config.ActionImportCSV, "ws1", "u1")
	require.NoError(t, err)

	c3, w3 := newGatedContext("ws1", "u1")
	limiter.handle(c3)
	require.True(t, c3.IsAborted())
	require.Equal(t, "10", w3.Header().Get("Retry-After"))

	c4, _ := newGatedContext("ws1", "u2")
	limiter.handle(c4)
	require.False(t, c4.IsAborted())
}

type brokenGate struct{}

func (brokenGate) Check(context.Context, string, string, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimiterHandle_FailsClosedOnBackendError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{gate: brokenGate{}, action: config.ActionImportCSV}
	c, _ := newGatedContext("ws1", "u1")
	limiter.handle(c)
	require.True(t, c.IsAborted())
}
