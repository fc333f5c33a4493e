package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/feedhub/internal/pkg/errcode"
	"github.com/xxxsen/feedhub/internal/pkg/response"
	"github.com/xxxsen/feedhub/internal/service"
)

type ConnectionHandler struct {
	credentials *service.CredentialService
	providers   map[string]bool
}

func NewConnectionHandler(credentials *service.CredentialService, providers []string) *ConnectionHandler {
	known := make(map[string]bool, len(providers))
	for _, p := range providers {
		known[strings.ToLower(p)] = true
	}
	return &ConnectionHandler{credentials: credentials, providers: known}
}

type saveConnectionRequest struct {
	APIKey string `json:"api_key"`
}

func (h *ConnectionHandler) provider(c *gin.Context) (string, bool) {
	name := strings.ToLower(c.Param("provider"))
	if !h.providers[name] {
		response.Error(c, errcode.ErrNotFound, "unknown provider")
		return "", false
	}
	return name, true
}

func (h *ConnectionHandler) Save(c *gin.Context) {
	name, ok := h.provider(c)
	if !ok {
		return
	}
	var req saveConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.APIKey) == "" {
		response.Error(c, errcode.ErrInvalid, "api_key is required")
		return
	}
	if err := h.credentials.Save(c.Request.Context(), c.Param("workspace_id"), name, req.APIKey); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"connected": true})
}

func (h *ConnectionHandler) Status(c *gin.Context) {
	name, ok := h.provider(c)
	if !ok {
		return
	}
	status, err := h.credentials.Status(c.Request.Context(), c.Param("workspace_id"), name)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}

func (h *ConnectionHandler) Delete(c *gin.Context) {
	name, ok := h.provider(c)
	if !ok {
		return
	}
	if err := h.credentials.Delete(c.Request.Context(), c.Param("workspace_id"), name); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"connected": false})
}
