// SPDX-License-Identifier: AGPL-3.0-only
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/links"
)

const (
	DefaultVKBaseURL    = "https://api.vk.com/method"
	DefaultVKAPIVersion = "5.199"
)

var ErrVKTokenMissing = errors.New("VK API token is not set")

type VKAPIError struct {
	Code    int
	Message string
}

func (e *VKAPIError) Error() string {
	return fmt.Sprintf("VK API error %d: %s", e.Code, e.Message)
}

type vkWallResponse struct {
	Error *struct {
		ErrorCode int    `json:"error_code"`
		ErrorMsg  string `json:"error_msg"`
	} `json:"error"`
	Response struct {
		Items []struct {
			OwnerID int64 `json:"owner_id"`
			ID      int64 `json:"id"`
			Views   struct {
				Count int `json:"count"`
			} `json:"views"`
		} `json:"items"`
	} `json:"response"`
}

type VKFetcher struct {
	Client     *common.Client
	BaseURL    string
	APIVersion string
}

func NewVKFetcher(c *common.Client, baseURL, version string) *VKFetcher {
	if baseURL == "" {
		baseURL = DefaultVKBaseURL
	}
	if version == "" {
		version = DefaultVKAPIVersion
	}
	return &VKFetcher{
		Client:     c,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIVersion: version,
	}
}

// FetchViews resolves all posts with a single wall.getById call. Posts the
// API leaves out of its answer count as zero views.
func (f *VKFetcher) FetchViews(ctx context.Context, posts []links.VKPost, token string) (int, []common.ViewResult, error) {
	if len(posts) == 0 {
		return 0, nil, nil
	}
	if token == "" {
		return 0, nil, ErrVKTokenMissing
	}

	log.Printf("VK: Fetching views for %d posts", len(posts))

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID())
	}

	form := url.Values{}
	form.Set("access_token", token)
	form.Set("v", f.APIVersion)
	form.Set("posts", strings.Join(ids, ","))
	form.Set("extended", "0")

	req, err := f.Client.NewRequest(ctx, http.MethodPost, f.BaseURL+"/wall.getById", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("VK request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("VK: unexpected HTTP status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	var wall vkWallResponse
	if err := json.Unmarshal(data, &wall); err != nil {
		return 0, nil, fmt.Errorf("VK: failed to decode response: %w", err)
	}

	if wall.Error != nil {
		return 0, nil, &VKAPIError{Code: wall.Error.ErrorCode, Message: wall.Error.ErrorMsg}
	}

	viewsByID := make(map[string]int, len(wall.Response.Items))
	for _, item := range wall.Response.Items {
		viewsByID[fmt.Sprintf("%d_%d", item.OwnerID, item.ID)] = item.Views.Count
	}

	total := 0
	results := make([]common.ViewResult, 0, len(posts))

	for i, p := range posts {
		views := viewsByID[p.ID()]
		total += views

		log.Printf("  [%d/%d] VK: %s: %d", i+1, len(posts), p.OriginalLink, views)

		results = append(results, common.ViewResult{
			Link:  p.OriginalLink,
			Views: views,
		})
	}

	return total, results, nil
}
