// SPDX-License-Identifier: AGPL-3.0-only
package sources

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromePageLoader renders pages in headless Chrome, for OK.ru pages whose
// counters are only filled in by scripts. One browser serves every page
// until Close.
type ChromePageLoader struct {
	UserAgent string
	Timeout   time.Duration

	mu      sync.Mutex
	browser context.Context
	cancels []context.CancelFunc
}

func NewChromePageLoader(userAgent string, timeout time.Duration) *ChromePageLoader {
	return &ChromePageLoader{
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

func (l *ChromePageLoader) browserContext() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(l.UserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	l.browser = browserCtx
	l.cancels = []context.CancelFunc{browserCancel, allocCancel}
	return l.browser
}

func (l *ChromePageLoader) LoadPage(ctx context.Context, url string) (int, []byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(l.browserContext())
	defer cancelTab()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, l.Timeout)
	defer cancelTimeout()

	var status atomic.Int64
	var page string

	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			chromedp.ListenTarget(ctx, func(ev interface{}) {
				if evt, ok := ev.(*network.EventResponseReceived); ok && evt.Type == network.ResourceTypeDocument {
					status.CompareAndSwap(0, evt.Response.Status)
				}
			})
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("OK.ru: browser navigation failed: %w", err)
	}

	code := int(status.Load())
	if code == 0 {
		code = http.StatusOK
	}

	return code, []byte(page), nil
}

func (l *ChromePageLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, cancel := range l.cancels {
		cancel()
	}
	l.browser = nil
	l.cancels = nil
	return nil
}
