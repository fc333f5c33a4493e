package handler

import (
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/feedhub/internal/pkg/errcode"
	"github.com/xxxsen/feedhub/internal/pkg/response"
	"github.com/xxxsen/feedhub/internal/service"
)

type ImportHandler struct {
	files  *service.FileImportService
	remote *service.RemoteImportService
	runs   *service.ImportRunService
}

func NewImportHandler(files *service.FileImportService, remote *service.RemoteImportService, runs *service.ImportRunService) *ImportHandler {
	return &ImportHandler{files: files, remote: remote, runs: runs}
}

type remoteImportRequest struct {
	APIKey          string `json:"api_key"`
	RememberKey     bool   `json:"remember_key"`
	Status          string `json:"status"`
	PageSize        int    `json:"page_size"`
	MaxPages        int    `json:"max_pages"`
	Mode            string `json:"mode"`
	PublishBehavior string `json:"publish_behavior"`
	Board           string `json:"board"`
}

func (h *ImportHandler) CSVUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	maxSize := h.files.MaxUploadBytes()
	if maxSize > 0 && file.Size > maxSize {
		response.Error(c, errcode.ErrImportPayloadTooLarge, "file too large (max "+formatUploadLimit(maxSize)+")")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, maxSize+1))
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}

	summary, err := h.files.Import(c.Request.Context(), service.FileImportRequest{
		WorkspaceID: c.Param("workspace_id"),
		ActorID:     getUserID(c),
		FileName:    file.Filename,
		Mode:        c.PostForm("mode"),
		Data:        data,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}

// RemoteImport returns the handler for one registered provider.
func (h *ImportHandler) RemoteImport(providerName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.remoteImport(c, providerName)
	}
}

func (h *ImportHandler) remoteImport(c *gin.Context, providerName string) {
	var req remoteImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	summary, err := h.remote.Import(c.Request.Context(), service.RemoteImportRequest{
		WorkspaceID:     c.Param("workspace_id"),
		ActorID:         getUserID(c),
		Provider:        providerName,
		APIKey:          req.APIKey,
		RememberKey:     req.RememberKey,
		Status:          req.Status,
		PageSize:        req.PageSize,
		MaxPages:        req.MaxPages,
		Mode:            req.Mode,
		PublishBehavior: req.PublishBehavior,
		Board:           req.Board,
	})
	if err != nil && summary == nil {
		handleError(c, err)
		return
	}
	// a partial run still reports what was committed
	response.Success(c, summary)
}

func (h *ImportHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.runs.List(c.Request.Context(), c.Param("workspace_id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, runs)
}
