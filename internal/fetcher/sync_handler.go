// SPDX-License-Identifier: AGPL-3.0-only
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/fetcher/sources"
	"github.com/SnowMenchik/Parsr/internal/links"
)

var (
	ErrCredentialsMissing = errors.New("credentials are not available")
	ErrUnknownPlatform    = errors.New("unknown platform")
)

// Client dispatches classified posts to the fetcher of their platform.
type Client struct {
	VK       *sources.VKFetcher
	Telegram *sources.TelegramFetcher
	OK       *sources.OKFetcher
}

// Credentials holds what was resolved for one run. Only platforms with
// posts are ever asked for.
type Credentials struct {
	VKToken     string
	HasVK       bool
	Telegram    credentials.Telegram
	HasTelegram bool
}

// ResolveCredentials consults the provider once per platform that has work,
// VK first, then Telegram. OK.ru needs nothing.
func ResolveCredentials(p credentials.Provider, c *links.Classification) Credentials {
	var creds Credentials
	if p == nil {
		return creds
	}

	if len(c.VK) > 0 {
		creds.VKToken, creds.HasVK = p.VKToken()
		if !creds.HasVK {
			log.Printf("[WARN] VK: no access token available, %d posts will be skipped", len(c.VK))
		}
	}

	if len(c.Telegram) > 0 {
		creds.Telegram, creds.HasTelegram = p.Telegram()
		if !creds.HasTelegram {
			log.Printf("[WARN] Telegram: no API credentials available, %d posts will be skipped", len(c.Telegram))
		}
	}

	return creds
}

// SyncByPlatform runs the fetcher for one platform. An empty input never
// reaches the network.
func (cl *Client) SyncByPlatform(ctx context.Context, platform links.Platform, c *links.Classification, creds Credentials) (common.PlatformResult, error) {
	result := common.PlatformResult{Platform: platform}

	var (
		total   int
		results []common.ViewResult
		err     error
	)

	switch platform {
	case links.PlatformVK:
		if len(c.VK) == 0 {
			return result, nil
		}
		if !creds.HasVK {
			return result, fmt.Errorf("%s: %w", platform, ErrCredentialsMissing)
		}
		total, results, err = cl.VK.FetchViews(ctx, c.VK, creds.VKToken)

	case links.PlatformTelegram:
		if len(c.Telegram) == 0 {
			return result, nil
		}
		if !creds.HasTelegram {
			return result, fmt.Errorf("%s: %w", platform, ErrCredentialsMissing)
		}
		total, results, err = cl.Telegram.FetchViews(ctx, c.Telegram, creds.Telegram)

	case links.PlatformOK:
		if len(c.OK) == 0 {
			return result, nil
		}
		total, results, err = cl.OK.FetchViews(ctx, c.OK)

	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	if err != nil {
		return result, err
	}

	result.Total = total
	result.Results = results
	return result, nil
}
