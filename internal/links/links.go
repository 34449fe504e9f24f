// SPDX-License-Identifier: AGPL-3.0-only
package links

import (
	"fmt"
	"strings"
)

type Platform string

const (
	PlatformVK       Platform = "VK"
	PlatformTelegram Platform = "Telegram"
	PlatformOK       Platform = "OK.ru"
)

// Platforms lists every supported platform in aggregation order.
var Platforms = []Platform{PlatformVK, PlatformTelegram, PlatformOK}

// PostReference identifies one post on one platform. The set of
// implementations is closed: VKPost, TelegramPost and OKPost.
type PostReference interface {
	Platform() Platform
	Link() string
	CanonicalURL() string
	isPostReference()
}

type VKPost struct {
	OwnerID      string
	PostID       string
	OriginalLink string
}

func (p VKPost) Platform() Platform { return PlatformVK }
func (p VKPost) Link() string       { return p.OriginalLink }
func (p VKPost) isPostReference()   {}

// ID returns the composite "<owner>_<post>" id used by wall.getById.
func (p VKPost) ID() string {
	return p.OwnerID + "_" + p.PostID
}

func (p VKPost) CanonicalURL() string {
	return "https://vk.com/wall" + p.ID()
}

type TelegramPost struct {
	Channel      string
	MessageID    int
	OriginalLink string
}

func (p TelegramPost) Platform() Platform { return PlatformTelegram }
func (p TelegramPost) Link() string       { return p.OriginalLink }
func (p TelegramPost) isPostReference()   {}

// IsPrivate reports whether Channel is a numeric private-channel id
// rather than a public username. Usernames never start with a digit.
func (p TelegramPost) IsPrivate() bool {
	if p.Channel == "" {
		return false
	}
	for _, r := range p.Channel {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p TelegramPost) CanonicalURL() string {
	if p.IsPrivate() {
		return fmt.Sprintf("https://t.me/c/%s/%d", p.Channel, p.MessageID)
	}
	return fmt.Sprintf("https://t.me/%s/%d", p.Channel, p.MessageID)
}

type OKPost struct {
	GroupName    string
	TopicID      string
	OriginalLink string
}

func (p OKPost) Platform() Platform { return PlatformOK }
func (p OKPost) Link() string       { return p.OriginalLink }
func (p OKPost) isPostReference()   {}

func (p OKPost) CanonicalURL() string {
	if strings.Contains(strings.ToLower(p.OriginalLink), "/status/") {
		return "https://ok.ru/" + p.GroupName + "/status/" + p.TopicID
	}
	return "https://ok.ru/" + p.GroupName + "/topic/" + p.TopicID
}
