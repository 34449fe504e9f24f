// SPDX-License-Identifier: AGPL-3.0-only
package handlers

import (
	"github.com/SnowMenchik/Parsr/internal/middleware"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Router() *gin.Engine {
	r := gin.Default()
	r.Use(middleware.SecurityHeadersMiddleware())

	r.GET("/health", h.HealthCheckHandler)

	api := r.Group("/api")
	api.POST("/views", h.CollectViewsHandler)
	api.GET("/runs", h.ListRunsHandler)
	api.GET("/runs/:id", h.GetRunHandler)
	api.GET("/runs/:id/csv", h.ExportRunHandler)

	return r
}
