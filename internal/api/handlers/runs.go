// SPDX-License-Identifier: AGPL-3.0-only
package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/SnowMenchik/Parsr/internal/exports"
	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxRunsLimit = 100

func (h *Handler) historyEnabled(c *gin.Context) bool {
	if h.Store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is disabled"})
		return false
	}
	return true
}

func (h *Handler) ListRunsHandler(c *gin.Context) {
	if !h.historyEnabled(c) {
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		log.Printf("API: failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) GetRunHandler(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.Store.GetRun(c.Request.Context(), id)
	if !h.checkRunErr(c, err) {
		return
	}

	results, err := h.Store.RunResults(c.Request.Context(), id)
	if !h.checkRunErr(c, err) {
		return
	}
	if results == nil {
		results = []store.StoredResult{}
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "results": results})
}

func (h *Handler) ExportRunHandler(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	if _, err := h.Store.GetRun(c.Request.Context(), id); !h.checkRunErr(c, err) {
		return
	}

	results, err := h.Store.RunResults(c.Request.Context(), id)
	if !h.checkRunErr(c, err) {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=views_%s.csv", id))
	c.Status(http.StatusOK)

	if err := exports.WriteResultsCSV(c.Writer, id, results); err != nil {
		log.Printf("API: failed to write CSV for run %s: %v", id, err)
	}
}

func (h *Handler) runID(c *gin.Context) (uuid.UUID, bool) {
	if !h.historyEnabled(c) {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) checkRunErr(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("API: failed to load run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return false
}
