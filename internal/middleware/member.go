package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/pkg/errcode"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/pkg/response"
)

type MembershipChecker interface {
	IsMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// RequireMember rejects callers that do not belong to :workspace_id.
func RequireMember(members MembershipChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := c.Param("workspace_id")
		userID := c.GetString(ContextUserIDKey)
		if workspaceID == "" || userID == "" {
			response.Abort(c, errcode.ErrForbidden, "forbidden")
			return
		}
		ok, err := members.IsMember(c.Request.Context(), workspaceID, userID)
		if err != nil && !appErr.IsNotFound(err) {
			logutil.GetLogger(c.Request.Context()).Error("check workspace membership failed",
				zap.String("workspace_id", workspaceID), zap.Error(err))
			response.Abort(c, errcode.ErrInternal, "internal error")
			return
		}
		if !ok {
			response.Abort(c, errcode.ErrForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
