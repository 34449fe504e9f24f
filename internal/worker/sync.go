// SPDX-License-Identifier: AGPL-3.0-only
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/fetcher"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/google/uuid"
)

// ErrNoData is reported when a run ends with nothing to count.
var ErrNoData = errors.New("no view data could be retrieved")

type Dispatcher interface {
	SyncByPlatform(ctx context.Context, platform links.Platform, c *links.Classification, creds fetcher.Credentials) (common.PlatformResult, error)
}

type PlatformReport struct {
	Platform links.Platform      `json:"platform"`
	Count    int                 `json:"count"`
	Subtotal int                 `json:"subtotal"`
	Results  []common.ViewResult `json:"results"`
	Err      string              `json:"error,omitempty"`
}

type Report struct {
	RunID      uuid.UUID         `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Total      int               `json:"total"`
	NoData     bool              `json:"no_data"`
	Platforms  []PlatformReport  `json:"platforms"`
	Rejected   []links.Rejection `json:"rejected"`
	Truncated  int               `json:"truncated"`
}

// Result returns the aggregate, or ErrNoData when nothing was counted.
func (r *Report) Result() (int, error) {
	if r.NoData {
		return 0, ErrNoData
	}
	return r.Total, nil
}

// FormatThousands renders a view count in thousands with one decimal and a
// comma separator: 12345 becomes "12,3".
func FormatThousands(total int) string {
	s := strconv.FormatFloat(float64(total)/1000, 'f', 1, 64)
	return strings.Replace(s, ".", ",", 1)
}

type Runner struct {
	Classifier  *links.Classifier
	Fetcher     Dispatcher
	Credentials credentials.Provider
	// Parallel runs the platforms concurrently. Each platform stays sequential
	// internally.
	Parallel bool

	now func() time.Time
}

func NewRunner(f Dispatcher, p credentials.Provider, parallel bool) *Runner {
	return &Runner{
		Classifier:  links.NewClassifier(),
		Fetcher:     f,
		Credentials: p,
		Parallel:    parallel,
		now:         time.Now,
	}
}

// RunSync classifies the links, fetches every platform that has posts and
// sums the subtotals in VK, Telegram, OK.ru order. A failing platform
// contributes zero. The returned error is only set when ctx was cancelled.
func (r *Runner) RunSync(ctx context.Context, rawLinks []string) (*Report, error) {
	log.Println("Worker: Starting view collection...")

	report := &Report{
		RunID:     uuid.New(),
		StartedAt: r.now(),
	}

	classification := r.Classifier.Classify(rawLinks)
	report.Rejected = classification.Rejected
	report.Truncated = classification.Truncated

	for _, p := range links.Platforms {
		log.Printf("  %s: %d posts", p, classification.Count(p))
	}

	var active []links.Platform
	for _, p := range links.Platforms {
		if classification.Count(p) > 0 {
			active = append(active, p)
		}
	}

	creds := fetcher.ResolveCredentials(r.Credentials, &classification)

	platformReports := make([]PlatformReport, len(active))
	run := func(i int, p links.Platform) {
		platformReports[i] = r.syncPlatform(ctx, p, &classification, creds)
	}

	if r.Parallel {
		var wg sync.WaitGroup
		for i, p := range active {
			wg.Add(1)
			go func(i int, p links.Platform) {
				defer wg.Done()
				run(i, p)
			}(i, p)
		}
		wg.Wait()
	} else {
		for i, p := range active {
			if ctx.Err() != nil {
				platformReports[i] = PlatformReport{Platform: p, Count: classification.Count(p), Err: ctx.Err().Error()}
				continue
			}
			run(i, p)
		}
	}

	for _, pr := range platformReports {
		report.Total += pr.Subtotal
	}
	report.Platforms = platformReports
	report.NoData = report.Total == 0
	report.FinishedAt = r.now()

	if report.NoData {
		log.Printf("Worker: Completed run %s, no view data", report.RunID)
	} else {
		log.Printf("Worker: Completed run %s, total views %d", report.RunID, report.Total)
	}

	return report, ctx.Err()
}

func (r *Runner) syncPlatform(ctx context.Context, p links.Platform, c *links.Classification, creds fetcher.Credentials) (pr PlatformReport) {
	pr = PlatformReport{Platform: p, Count: c.Count(p)}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Worker Panic in %s sync: %v", p, rec)
			pr.Subtotal = 0
			pr.Results = nil
			pr.Err = fmt.Sprintf("panic: %v", rec)
		}
	}()

	res, err := r.Fetcher.SyncByPlatform(ctx, p, c, creds)
	if err != nil {
		log.Printf("Worker %s sync failed: %v", p, err)
		pr.Err = err.Error()
		return pr
	}

	pr.Subtotal = res.Total
	pr.Results = res.Results
	log.Printf("Worker: %s subtotal %d", p, res.Total)
	return pr
}
