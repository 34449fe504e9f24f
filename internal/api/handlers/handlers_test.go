// SPDX-License-Identifier: AGPL-3.0-only
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/SnowMenchik/Parsr/internal/store"
	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCollector struct {
	got    []string
	report *worker.Report
	err    error
}

func (f *fakeCollector) RunSync(_ context.Context, rawLinks []string) (*worker.Report, error) {
	f.got = rawLinks
	return f.report, f.err
}

type fakeStore struct {
	runs    map[uuid.UUID]store.RunSummary
	results map[uuid.UUID][]store.StoredResult
	pingErr error
	limit   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:    map[uuid.UUID]store.RunSummary{},
		results: map[uuid.UUID][]store.StoredResult{},
	}
}

func (s *fakeStore) ListRuns(_ context.Context, limit int) ([]store.RunSummary, error) {
	s.limit = limit
	var out []store.RunSummary
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) GetRun(_ context.Context, id uuid.UUID) (store.RunSummary, error) {
	r, ok := s.runs[id]
	if !ok {
		return store.RunSummary{}, store.ErrRunNotFound
	}
	return r, nil
}

func (s *fakeStore) RunResults(_ context.Context, id uuid.UUID) ([]store.StoredResult, error) {
	return s.results[id], nil
}

func (s *fakeStore) Ping(context.Context) error {
	return s.pingErr
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	h.Router().ServeHTTP(w, req)
	return w
}

func sampleReport() *worker.Report {
	return &worker.Report{
		RunID: uuid.New(),
		Total: 150,
		Platforms: []worker.PlatformReport{
			{Platform: links.PlatformVK, Count: 1, Subtotal: 150, Results: []common.ViewResult{{Link: "https://vk.com/wall-1_2", Views: 150}}},
		},
	}
}

func TestCollectViews(t *testing.T) {
	collector := &fakeCollector{report: sampleReport()}
	st := newFakeStore()
	h := NewHandler(collector, st)

	w := serve(h, http.MethodPost, "/api/views", `{"links":["https://vk.com/wall-1_2","  ",""]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got worker.Report
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 150 || got.RunID != collector.report.RunID {
		t.Errorf("report = %+v", got)
	}
	if len(collector.got) != 1 {
		t.Errorf("collector got %v, want blank links dropped", collector.got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestCollectViewsBadRequests(t *testing.T) {
	h := NewHandler(&fakeCollector{report: sampleReport()}, nil)

	for _, body := range []string{`not json`, `{"links":[]}`, `{"links":["  "]}`} {
		if w := serve(h, http.MethodPost, "/api/views", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCollectViewsAborted(t *testing.T) {
	h := NewHandler(&fakeCollector{report: &worker.Report{}, err: context.Canceled}, nil)

	if w := serve(h, http.MethodPost, "/api/views", `{"links":["x"]}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCollectViewsRejectsConcurrentRun(t *testing.T) {
	h := NewHandler(&fakeCollector{err: worker.ErrRunInProgress}, nil)

	if w := serve(h, http.MethodPost, "/api/views", `{"links":["x"]}`); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestRunsHistoryDisabled(t *testing.T) {
	h := NewHandler(&fakeCollector{}, nil)

	for _, target := range []string{"/api/runs", "/api/runs/" + uuid.NewString()} {
		if w := serve(h, http.MethodGet, target, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, w.Code)
		}
	}
}

func TestListRunsLimit(t *testing.T) {
	st := newFakeStore()
	h := NewHandler(&fakeCollector{}, st)

	if w := serve(h, http.MethodGet, "/api/runs?limit=500", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if st.limit != maxRunsLimit {
		t.Errorf("limit = %d, want %d", st.limit, maxRunsLimit)
	}

	w := serve(h, http.MethodGet, "/api/runs", "")
	if !strings.Contains(w.Body.String(), `"runs":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := serve(h, http.MethodGet, "/api/runs?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetRun(t *testing.T) {
	st := newFakeStore()
	id := uuid.New()
	st.runs[id] = store.RunSummary{ID: id, Total: 42}
	st.results[id] = []store.StoredResult{{Platform: links.PlatformOK, Link: "https://ok.ru/g/topic/1", Views: 42}}
	h := NewHandler(&fakeCollector{}, st)

	w := serve(h, http.MethodGet, "/api/runs/"+id.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Run     store.RunSummary     `json:"run"`
		Results []store.StoredResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Run.Total != 42 || len(body.Results) != 1 {
		t.Errorf("body = %+v", body)
	}

	if w := serve(h, http.MethodGet, "/api/runs/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown run: status = %d, want 404", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/runs/nope", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestExportRun(t *testing.T) {
	st := newFakeStore()
	id := uuid.New()
	st.runs[id] = store.RunSummary{ID: id}
	st.results[id] = []store.StoredResult{{Platform: links.PlatformOK, Link: "https://ok.ru/g/topic/1", Views: 42}}
	h := NewHandler(&fakeCollector{}, st)

	w := serve(h, http.MethodGet, "/api/runs/"+id.String()+"/csv", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "https://ok.ru/g/topic/1,42") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	if w := serve(NewHandler(&fakeCollector{}, nil), http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("no store: status = %d", w.Code)
	}

	st := newFakeStore()
	st.pingErr = errors.New("down")
	if w := serve(NewHandler(&fakeCollector{}, st), http.MethodGet, "/health", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("failing store: status = %d", w.Code)
	}
}
