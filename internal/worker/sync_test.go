// SPDX-License-Identifier: AGPL-3.0-only
package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/fetcher"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/fetcher/sources"
	"github.com/SnowMenchik/Parsr/internal/links"
)

type fakeProvider struct {
	vkToken string
	tg      credentials.Telegram
	hasTG   bool

	vkCalls int
	tgCalls int
}

func (p *fakeProvider) VKToken() (string, bool) {
	p.vkCalls++
	return p.vkToken, p.vkToken != ""
}

func (p *fakeProvider) Telegram() (credentials.Telegram, bool) {
	p.tgCalls++
	return p.tg, p.hasTG
}

type fakeSession struct {
	views map[int]int
}

func (s fakeSession) MessageViews(_ context.Context, post links.TelegramPost) (int, error) {
	return s.views[post.MessageID], nil
}

type fakeDialer struct {
	views map[int]int
	runs  atomic.Int32
}

func (d *fakeDialer) Run(ctx context.Context, _ credentials.Telegram, fn func(context.Context, sources.TelegramSession) error) error {
	d.runs.Add(1)
	return fn(ctx, fakeSession{views: d.views})
}

type testEnv struct {
	runner   *Runner
	provider *fakeProvider
	dialer   *fakeDialer
	vkHits   *atomic.Int32
}

func newTestEnv(t *testing.T, vk http.HandlerFunc, parallel bool) *testEnv {
	t.Helper()

	hits := &atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		vk(w, r)
	}))
	t.Cleanup(ts.Close)

	client := common.NewClient(5 * time.Second)
	dialer := &fakeDialer{views: map[int]int{5: 50}}
	provider := &fakeProvider{
		vkToken: "token",
		tg:      credentials.Telegram{APIID: 1, APIHash: "hash", Phone: "+7"},
		hasTG:   true,
	}

	dispatcher := &fetcher.Client{
		VK:       sources.NewVKFetcher(client, ts.URL, ""),
		Telegram: sources.NewTelegramFetcher(dialer, 0),
		OK:       sources.NewOKFetcher(&sources.HTTPPageLoader{Client: client}, 0),
	}

	return &testEnv{
		runner:   NewRunner(dispatcher, provider, parallel),
		provider: provider,
		dialer:   dialer,
		vkHits:   hits,
	}
}

func vkHundred(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(`{"response":{"items":[{"owner_id":-1,"id":2,"views":{"count":100}}]}}`))
}

func TestRunSyncEndToEnd(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, vkHundred, parallel)

			report, err := env.runner.RunSync(context.Background(), []string{
				"https://vk.com/wall-1_2",
				"https://t.me/chan/5",
				"https://example.com/x",
			})
			if err != nil {
				t.Fatalf("RunSync: %v", err)
			}

			if report.Total != 150 {
				t.Errorf("Total = %d, want 150", report.Total)
			}
			if report.NoData {
				t.Error("NoData set for a non-zero total")
			}
			if total, err := report.Result(); err != nil || total != 150 {
				t.Errorf("Result = %d, %v", total, err)
			}
			if len(report.Rejected) != 1 || report.Rejected[0].Link != "https://example.com/x" {
				t.Errorf("Rejected = %+v", report.Rejected)
			}
			if len(report.Platforms) != 2 {
				t.Fatalf("got %d platform reports, want 2", len(report.Platforms))
			}
			if report.Platforms[0].Platform != links.PlatformVK || report.Platforms[0].Subtotal != 100 {
				t.Errorf("first platform = %+v", report.Platforms[0])
			}
			if report.Platforms[1].Platform != links.PlatformTelegram || report.Platforms[1].Subtotal != 50 {
				t.Errorf("second platform = %+v", report.Platforms[1])
			}
			if env.provider.vkCalls != 1 || env.provider.tgCalls != 1 {
				t.Errorf("credential lookups vk=%d tg=%d, want 1 each", env.provider.vkCalls, env.provider.tgCalls)
			}
			if report.RunID.String() == "" || report.FinishedAt.Before(report.StartedAt) {
				t.Errorf("bad run metadata: %+v", report)
			}
		})
	}
}

func TestRunSyncNoData(t *testing.T) {
	env := newTestEnv(t, vkHundred, false)

	report, err := env.runner.RunSync(context.Background(), []string{"https://example.com/a", "not a link"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !report.NoData {
		t.Error("NoData not set")
	}
	if _, err := report.Result(); !errors.Is(err, ErrNoData) {
		t.Errorf("Result err = %v, want ErrNoData", err)
	}
	if env.provider.vkCalls+env.provider.tgCalls != 0 {
		t.Error("credentials requested for empty platforms")
	}
	if env.dialer.runs.Load() != 0 || env.vkHits.Load() != 0 {
		t.Error("network touched for empty platforms")
	}
	if len(report.Platforms) != 0 {
		t.Errorf("Platforms = %+v, want none", report.Platforms)
	}
}

func TestRunSyncPlatformFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, false)

	report, err := env.runner.RunSync(context.Background(), []string{"vk.com/wall-1_2", "t.me/chan/5"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if report.Total != 50 {
		t.Errorf("Total = %d, want 50", report.Total)
	}
	if report.Platforms[0].Err == "" || report.Platforms[0].Subtotal != 0 {
		t.Errorf("VK report = %+v, want an error and zero subtotal", report.Platforms[0])
	}
}

func TestRunSyncMissingCredentialsSkipsPlatform(t *testing.T) {
	env := newTestEnv(t, vkHundred, false)
	env.provider.vkToken = ""

	report, err := env.runner.RunSync(context.Background(), []string{"https://vk.com/wall-1_2", "https://t.me/chan/5"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if report.Total != 50 {
		t.Errorf("Total = %d, want 50", report.Total)
	}
	if env.vkHits.Load() != 0 {
		t.Error("VK API called without a token")
	}
	if !strings.Contains(report.Platforms[0].Err, "credentials") {
		t.Errorf("VK error = %q", report.Platforms[0].Err)
	}
}

type panickingDispatcher struct{}

func (panickingDispatcher) SyncByPlatform(_ context.Context, p links.Platform, c *links.Classification, _ fetcher.Credentials) (common.PlatformResult, error) {
	if p == links.PlatformVK {
		panic("boom")
	}
	return common.PlatformResult{Platform: p, Total: 7 * c.Count(p)}, nil
}

func TestRunSyncRecoversPanics(t *testing.T) {
	r := NewRunner(panickingDispatcher{}, &fakeProvider{vkToken: "t"}, true)

	report, err := r.RunSync(context.Background(), []string{"vk.com/wall-1_2", "ok.ru/group/topic/3"})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if report.Total != 7 {
		t.Errorf("Total = %d, want 7", report.Total)
	}
	if !strings.HasPrefix(report.Platforms[0].Err, "panic") {
		t.Errorf("VK error = %q", report.Platforms[0].Err)
	}
}

func TestRunSyncCancelled(t *testing.T) {
	env := newTestEnv(t, vkHundred, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.runner.RunSync(ctx, []string{"https://vk.com/wall-1_2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !report.NoData {
		t.Error("cancelled run reported data")
	}
}

func TestFormatThousands(t *testing.T) {
	tests := map[int]string{
		12345:   "12,3",
		1000:    "1,0",
		160:     "0,2",
		2500000: "2500,0",
	}
	for in, want := range tests {
		if got := FormatThousands(in); got != want {
			t.Errorf("FormatThousands(%d) = %q, want %q", in, got, want)
		}
	}
}
