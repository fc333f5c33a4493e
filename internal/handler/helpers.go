package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/middleware"
	"github.com/xxxsen/feedhub/internal/pkg/errcode"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
	"github.com/xxxsen/feedhub/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	var rlErr *appErr.RateLimitError
	if errors.As(err, &rlErr) {
		seconds := int64(rlErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		response.Error(c, errcode.ErrTooMany, rlErr.Error())
		return
	}
	var missing *appErr.MissingColumnsError
	if errors.As(err, &missing) {
		response.Error(c, errcode.ErrImportMissingColumns, missing.Error())
		return
	}
	var parseErr *appErr.ParseError
	if errors.As(err, &parseErr) {
		response.Error(c, errcode.ErrImportMalformedFile, parseErr.Error())
		return
	}
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrImportPayloadTooLarge):
		response.Error(c, errcode.ErrImportPayloadTooLarge, err.Error())
	case errors.Is(err, appErr.ErrImportTooManyRows):
		response.Error(c, errcode.ErrImportTooManyRows, err.Error())
	case errors.Is(err, appErr.ErrCredentialMissing):
		response.Error(c, errcode.ErrCredentialMissing, "no api key provided and no stored connection")
	case errors.Is(err, appErr.ErrCredentialRejected):
		response.Error(c, errcode.ErrCredentialRejected, "invalid api key")
	case errors.Is(err, appErr.ErrUnsupportedKeyVersion):
		response.Error(c, errcode.ErrUnsupportedKeyVersion, "stored connection uses an unsupported key version, reconnect to continue")
	case errors.Is(err, appErr.ErrProviderUnavailable):
		response.Error(c, errcode.ErrProviderUnavailable, "import provider unavailable")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
