// SPDX-License-Identifier: AGPL-3.0-only
package common

import "github.com/SnowMenchik/Parsr/internal/links"

type ViewResult struct {
	Link  string `json:"link"`
	Views int    `json:"views"`
}

// PlatformResult is what one fetcher run produced for one platform.
type PlatformResult struct {
	Platform links.Platform
	Total    int
	Results  []ViewResult
}

func SumViews(results []ViewResult) int {
	total := 0
	for _, r := range results {
		total += r.Views
	}
	return total
}
