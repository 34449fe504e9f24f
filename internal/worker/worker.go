// SPDX-License-Identifier: AGPL-3.0-only
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/SnowMenchik/Parsr/internal/links"
)

var ErrRunInProgress = errors.New("a collection run is already in progress")

type Collector interface {
	RunSync(ctx context.Context, rawLinks []string) (*Report, error)
}

type Recorder interface {
	SaveRun(ctx context.Context, r *Report) error
}

type Notifier interface {
	Notify(ctx context.Context, r *Report) error
}

// Worker serializes collection runs, records every finished run and can
// repeat the links file on a schedule. Recorder and Notifier are optional.
type Worker struct {
	Runner    Collector
	LinksFile string
	Recorder  Recorder
	Notifier  Notifier
	Ticker    *time.Ticker
	StopChan  chan bool
	mu        sync.Mutex
	running   bool
	active    bool
}

func NewWorker(runner Collector, linksFile string, recorder Recorder, notifier Notifier) *Worker {
	return &Worker{
		Runner:    runner,
		LinksFile: linksFile,
		Recorder:  recorder,
		Notifier:  notifier,
		StopChan:  make(chan bool),
	}
}

func (w *Worker) Start(interval time.Duration) {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		log.Println("Worker: Scheduler already active")
		return
	}
	w.active = true
	w.mu.Unlock()

	w.Ticker = time.NewTicker(interval)
	go func() {
		defer func() {
			w.mu.Lock()
			w.active = false
			w.mu.Unlock()
		}()
		for {
			select {
			case <-w.Ticker.C:
				w.SyncAll()
			case <-w.StopChan:
				w.Ticker.Stop()
				return
			}
		}
	}()
	log.Printf("Background worker started with interval: %v", interval)
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.StopChan <- true
	log.Println("Background worker stopped")
}

func (w *Worker) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// RunSync runs one collection unless another one is in progress, then
// records and announces the report.
func (w *Worker) RunSync(ctx context.Context, rawLinks []string) (*Report, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, ErrRunInProgress
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	report, err := w.Runner.RunSync(ctx, rawLinks)
	if err != nil {
		return report, err
	}

	if w.Recorder != nil {
		if err := w.Recorder.SaveRun(ctx, report); err != nil {
			log.Printf("[WARN] Worker: Failed to save run %s: %v", report.RunID, err)
		}
	}

	if w.Notifier != nil {
		if err := w.Notifier.Notify(ctx, report); err != nil {
			log.Printf("[WARN] Worker: %v", err)
		}
	}

	return report, nil
}

// SyncAll re-reads the links file and collects it.
func (w *Worker) SyncAll() {
	rawLinks, err := links.ReadLinksFile(w.LinksFile)
	if err != nil {
		log.Printf("Worker Error reading links: %v", err)
		return
	}

	if _, err := w.RunSync(context.Background(), rawLinks); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			log.Println("Worker: Sync already in progress, skipping...")
			return
		}
		log.Printf("Worker Error during scheduled run: %v", err)
	}
}
