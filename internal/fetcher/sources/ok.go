// SPDX-License-Identifier: AGPL-3.0-only
package sources

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/links"
	"golang.org/x/net/html"
)

const (
	DefaultOKDelay = 2 * time.Second

	okMinViews    = 10
	okMaxViews    = 1000000
	okMaxPageSize = 8 << 20
)

var (
	okClassRe      = regexp.MustCompile(`(?i)view|count|visitors`)
	okDataLRe      = regexp.MustCompile(`(?i)view`)
	okDataModuleRe = regexp.MustCompile(`(?i)like`)
	okCountTextRe  = regexp.MustCompile(`(?i)\d+\s*(?:просмотр|лайк|участник)`)
	digitsRe       = regexp.MustCompile(`\d+`)
)

// PageLoader fetches a page and reports its HTTP status.
type PageLoader interface {
	LoadPage(ctx context.Context, url string) (int, []byte, error)
}

type HTTPPageLoader struct {
	Client *common.Client
}

func (l *HTTPPageLoader) LoadPage(ctx context.Context, url string) (int, []byte, error) {
	req, err := l.Client.NewRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, okMaxPageSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

type OKFetcher struct {
	Loader PageLoader
	Delay  time.Duration

	sleep common.SleepFunc
}

func NewOKFetcher(loader PageLoader, delay time.Duration) *OKFetcher {
	return &OKFetcher{
		Loader: loader,
		Delay:  delay,
		sleep:  common.Sleep,
	}
}

// FetchViews scrapes every post page in turn. A page that cannot be loaded
// or parsed counts as zero views.
func (f *OKFetcher) FetchViews(ctx context.Context, posts []links.OKPost) (int, []common.ViewResult, error) {
	if len(posts) == 0 {
		return 0, nil, nil
	}

	if closer, ok := f.Loader.(io.Closer); ok {
		defer closer.Close()
	}

	log.Printf("OK.ru: Fetching views for %d posts", len(posts))

	total := 0
	results := make([]common.ViewResult, 0, len(posts))

	for i, post := range posts {
		url := post.OriginalLink
		if !strings.Contains(url, "://") {
			url = "https://" + url
		}

		log.Printf("  [%d/%d] OK.ru: parsing %s", i+1, len(posts), post.OriginalLink)

		views := 0
		status, body, err := f.Loader.LoadPage(ctx, url)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			log.Printf("     OK.ru: error: %v", err)
		case status != http.StatusOK:
			log.Printf("     OK.ru: HTTP error: %d", status)
		default:
			views = ExtractOKViews(body)
			log.Printf("     OK.ru: found %d views", views)
		}

		total += views
		results = append(results, common.ViewResult{Link: post.OriginalLink, Views: views})

		if err := f.sleep(ctx, f.Delay); err != nil {
			return 0, nil, err
		}
	}

	return total, results, nil
}

// ExtractOKViews guesses a view count from an OK.ru page: the largest
// plausible number found near view/like/count markers, or 0.
func ExtractOKViews(page []byte) (views int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] OK.ru: extraction panicked: %v", r)
			views = 0
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return 0
	}

	var candidates []int
	collect := func(text string) {
		for _, m := range digitsRe.FindAllString(text, -1) {
			n, err := strconv.Atoi(m)
			if err != nil {
				continue
			}
			if n > okMinViews && n < okMaxViews {
				candidates = append(candidates, n)
			}
		}
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if okClassRe.MatchString(s.AttrOr("class", "")) ||
			okDataLRe.MatchString(s.AttrOr("data-l", "")) ||
			okDataModuleRe.MatchString(s.AttrOr("data-module", "")) {
			collect(common.StripNumberSeparators(s.Text()))
		}
	})

	for _, root := range doc.Nodes {
		walkTextNodes(root, func(text string) {
			if okCountTextRe.MatchString(text) {
				collect(text)
			}
		})
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := s.AttrOr("content", "")
		if strings.Contains(strings.ToLower(content), "просмотр") {
			collect(content)
		}
	})

	for _, n := range candidates {
		if n > views {
			views = n
		}
	}

	return views
}

func walkTextNodes(n *html.Node, fn func(string)) {
	if n.Type == html.TextNode {
		fn(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkTextNodes(c, fn)
	}
}
