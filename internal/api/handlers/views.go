// SPDX-License-Identifier: AGPL-3.0-only
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/gin-gonic/gin"
)

type collectRequest struct {
	Links []string `json:"links"`
}

func (h *Handler) CollectViewsHandler(c *gin.Context) {
	var req collectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	rawLinks := make([]string, 0, len(req.Links))
	for _, l := range req.Links {
		if l = strings.TrimSpace(l); l != "" {
			rawLinks = append(rawLinks, l)
		}
	}
	if len(rawLinks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no links provided"})
		return
	}

	report, err := h.Collector.RunSync(c.Request.Context(), rawLinks)
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Printf("API: view collection aborted: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
