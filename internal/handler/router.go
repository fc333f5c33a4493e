package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/middleware"
)

type RouterDeps struct {
	Imports     *ImportHandler
	Connections *ConnectionHandler
	Members     middleware.MembershipChecker
	Gate        middleware.Checker
	Providers   []string
	JWTSecret   []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := api.Group("/workspaces/:workspace_id")
	ws.Use(middleware.JWTAuth(deps.JWTSecret), middleware.RequireMember(deps.Members))
	ws.POST("/imports/csv", middleware.RateLimit(deps.Gate, config.ActionImportCSV), deps.Imports.CSVUpload)
	for _, name := range deps.Providers {
		ws.POST("/imports/"+name, deps.Imports.RemoteImport(name))
	}
	ws.GET("/imports", deps.Imports.ListRuns)

	ws.PUT("/connections/:provider", deps.Connections.Save)
	ws.GET("/connections/:provider", deps.Connections.Status)
	ws.DELETE("/connections/:provider", deps.Connections.Delete)
}
