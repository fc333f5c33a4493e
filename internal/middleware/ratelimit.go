package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/pkg/errcode"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/pkg/response"
	"github.com/xxxsen/feedhub/internal/ratelimit"
)

// Checker is implemented by *ratelimit.Gate.
type Checker interface {
	Check(ctx context.Context, action, workspaceID, actorID string) (ratelimit.Decision, error)
}

type rateLimiter struct {
	gate   Checker
	action string
}

// RateLimit turns away callers whose window is already full. It records
// nothing: the service takes the slot once the request passed its own checks.
// The workspace comes from the :workspace_id path param and the actor from JWTAuth.
func RateLimit(gate Checker, action string) gin.HandlerFunc {
	limiter := &rateLimiter{
		gate:   gate,
		action: action,
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.gate == nil {
		c.Next()
		return
	}
	workspaceID := c.Param("workspace_id")
	uid := ""
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok {
			uid = id
		}
	}
	decision, err := l.gate.Check(c.Request.Context(), l.action, workspaceID, uid)
	if err != nil {
		logutil.GetLogger(c.Request.Context()).Error("rate limit check failed",
			zap.String("action", l.action),
			zap.String("workspace_id", workspaceID),
			zap.Error(err),
		)
		response.Abort(c, errcode.ErrInternal, "rate limit unavailable")
		return
	}
	if !decision.Allowed {
		seconds := int64(decision.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		rlErr := &appErr.RateLimitError{Action: l.action, RetryAfter: decision.RetryAfter, ResetAt: decision.ResetAt}
		response.Abort(c, errcode.ErrTooMany, rlErr.Error())
		return
	}
	c.Next()
}
