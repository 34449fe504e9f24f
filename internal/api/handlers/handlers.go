// SPDX-License-Identifier: AGPL-3.0-only
package handlers

import (
	"context"

	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/google/uuid"
)

type ViewCollector interface {
	RunSync(ctx context.Context, rawLinks []string) (*worker.Report, error)
}

type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	GetRun(ctx context.Context, id uuid.UUID) (store.RunSummary, error)
	RunResults(ctx context.Context, runID uuid.UUID) ([]store.StoredResult, error)
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API. Store may be nil when run history is
// disabled. Collector is expected to record finished runs itself.
type Handler struct {
	Collector ViewCollector
	Store     RunStore
}

func NewHandler(collector ViewCollector, runs RunStore) *Handler {
	return &Handler{
		Collector: collector,
		Store:     runs,
	}
}
