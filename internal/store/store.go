// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db     *sql.DB
	driver string
}

type PlatformSummary struct {
	Platform links.Platform `json:"platform"`
	Count    int            `json:"count"`
	Subtotal int            `json:"subtotal"`
	Err      string         `json:"error,omitempty"`
}

type RunSummary struct {
	ID         uuid.UUID         `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Total      int               `json:"total"`
	NoData     bool              `json:"no_data"`
	Rejected   int               `json:"rejected"`
	Truncated  int               `json:"truncated"`
	Platforms  []PlatformSummary `json:"platforms"`
}

type StoredResult struct {
	Platform links.Platform `json:"platform"`
	Link     string         `json:"link"`
	Views    int            `json:"views"`
}

// Open connects to the run history database and applies pending migrations.
// driver is "sqlite" (dsn is a file path) or "postgres".
func Open(driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("dsn is required")
	}

	var dialect string
	switch driver {
	case "sqlite":
		dialect = "sqlite3"
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	case "postgres":
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to the DB. Error: %v", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to get DB version: %w", err)
	}
	log.Printf("Store: migrations applied, DB version %d", version)

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores a finished run with its per-platform and per-post rows.
func (s *Store) SaveRun(ctx context.Context, r *worker.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO runs (id, started_at, finished_at, total, no_data, rejected, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.RunID.String(),
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		r.Total,
		r.NoData,
		len(r.Rejected),
		r.Truncated,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	position := 0
	for _, p := range r.Platforms {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO platform_runs (run_id, platform, post_count, subtotal, error)
			VALUES (?, ?, ?, ?, ?)`),
			r.RunID.String(), string(p.Platform), p.Count, p.Subtotal, p.Err,
		)
		if err != nil {
			return fmt.Errorf("insert %s summary: %w", p.Platform, err)
		}

		for _, res := range p.Results {
			_, err = tx.ExecContext(ctx, s.rebind(`
				INSERT INTO view_results (run_id, position, platform, link, views)
				VALUES (?, ?, ?, ?, ?)`),
				r.RunID.String(), position, string(p.Platform), res.Link, res.Views,
			)
			if err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
			position++
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, started_at, finished_at, total, no_data, rejected, truncated
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Platforms, err = s.platforms(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, started_at, finished_at, total, no_data, rejected, truncated
		FROM runs WHERE id = ?`), id.String())

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, ErrRunNotFound
	}
	if err != nil {
		return RunSummary{}, err
	}

	run.Platforms, err = s.platforms(ctx, run.ID)
	return run, err
}

// RunResults returns the per-post rows of a run in the order they were
// produced.
func (s *Store) RunResults(ctx context.Context, runID uuid.UUID) ([]StoredResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT platform, link, views
		FROM view_results
		WHERE run_id = ?
		ORDER BY position`), runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var (
			r        StoredResult
			platform string
		)
		if err := rows.Scan(&platform, &r.Link, &r.Views); err != nil {
			return nil, err
		}
		r.Platform = links.Platform(platform)
		results = append(results, r)
	}

	return results, rows.Err()
}

func (s *Store) platforms(ctx context.Context, runID uuid.UUID) ([]PlatformSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT platform, post_count, subtotal, error
		FROM platform_runs
		WHERE run_id = ?`), runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPlatform := map[links.Platform]PlatformSummary{}
	for rows.Next() {
		var (
			p        PlatformSummary
			platform string
		)
		if err := rows.Scan(&platform, &p.Count, &p.Subtotal, &p.Err); err != nil {
			return nil, err
		}
		p.Platform = links.Platform(platform)
		byPlatform[p.Platform] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []PlatformSummary
	for _, p := range links.Platforms {
		if summary, ok := byPlatform[p]; ok {
			out = append(out, summary)
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		run               RunSummary
		id                string
		started, finished string
	)

	if err := row.Scan(&id, &started, &finished, &run.Total, &run.NoData, &run.Rejected, &run.Truncated); err != nil {
		return RunSummary{}, err
	}

	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return RunSummary{}, fmt.Errorf("malformed run id %q: %w", id, err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return RunSummary{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return RunSummary{}, err
	}

	return run, nil
}

func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
