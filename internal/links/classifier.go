// SPDX-License-Identifier: AGPL-3.0-only
package links

import (
	"log"
	"regexp"
	"strconv"
	"strings"
)

// MaxLinks caps how many links a single run classifies.
const MaxLinks = 100

type Rejection struct {
	Link     string   `json:"link"`
	Platform Platform `json:"platform,omitempty"`
	Reason   string   `json:"reason"`
}

// Classification holds the accepted references per platform in input
// order, plus every link that was dropped.
type Classification struct {
	VK        []VKPost
	Telegram  []TelegramPost
	OK        []OKPost
	Rejected  []Rejection
	Truncated int
}

func (c Classification) Count(p Platform) int {
	switch p {
	case PlatformVK:
		return len(c.VK)
	case PlatformTelegram:
		return len(c.Telegram)
	case PlatformOK:
		return len(c.OK)
	default:
		return 0
	}
}

func (c Classification) Total() int {
	return len(c.VK) + len(c.Telegram) + len(c.OK)
}

type Classifier struct {
	vkWallRe      *regexp.Regexp
	vkCompositeRe *regexp.Regexp
	vkQueryRe     *regexp.Regexp

	tgPrivateRe *regexp.Regexp
	tgPublicRe  *regexp.Regexp

	okTopicRe      *regexp.Regexp
	okStatusRe     *regexp.Regexp
	okGroupTopicRe *regexp.Regexp
}

func NewClassifier() *Classifier {
	return &Classifier{
		vkWallRe:      regexp.MustCompile(`wall-?(\d+)_(\d+)`),
		vkCompositeRe: regexp.MustCompile(`vk\.com/(?:wall)?(\d+_\d+)`),
		vkQueryRe:     regexp.MustCompile(`vk\.com/(?:[\w.]+)\?w=wall-(\d+_\d+)`),

		tgPrivateRe: regexp.MustCompile(`(?:t\.me|telegram\.me)/c/(\d+)/(\d+)`),
		tgPublicRe:  regexp.MustCompile(`(?:t\.me|telegram\.me)/(?:s/)?([^/?]+)/(\d+)`),

		okTopicRe:      regexp.MustCompile(`ok\.ru/([^/?]+)/topic/(\d+)`),
		okStatusRe:     regexp.MustCompile(`ok\.ru/([^/?]+)/status/(\d+)`),
		okGroupTopicRe: regexp.MustCompile(`ok\.ru/(?:group)?(\d+)/topic/(\d+)`),
	}
}

var defaultClassifier = NewClassifier()

// Classify sorts links into platform references using the default classifier.
func Classify(links []string) Classification {
	return defaultClassifier.Classify(links)
}

func (c *Classifier) Classify(links []string) Classification {
	var out Classification

	if len(links) > MaxLinks {
		out.Truncated = len(links) - MaxLinks
		log.Printf("[WARN] Links: limited to the first %d of %d links", MaxLinks, len(links))
		links = links[:MaxLinks]
	}

	for _, link := range links {
		ref, rej := c.classifyOne(link)
		switch post := ref.(type) {
		case VKPost:
			out.VK = append(out.VK, post)
		case TelegramPost:
			out.Telegram = append(out.Telegram, post)
		case OKPost:
			out.OK = append(out.OK, post)
		default:
			out.reject(rej)
		}
	}

	return out
}

// Reference classifies a single link without logging.
func (c *Classifier) Reference(link string) (PostReference, bool) {
	ref, _ := c.classifyOne(link)
	return ref, ref != nil
}

// Reference classifies a single link with the default classifier.
func Reference(link string) (PostReference, bool) {
	return defaultClassifier.Reference(link)
}

func (c *Classifier) classifyOne(link string) (PostReference, Rejection) {
	lower := strings.ToLower(link)

	switch {
	case strings.Contains(lower, "vk.com") || strings.HasPrefix(lower, "wall"):
		if post, ok := c.extractVK(lower, link); ok {
			return post, Rejection{}
		}
		return nil, Rejection{Link: link, Platform: PlatformVK, Reason: "unrecognized VK link"}

	case strings.Contains(lower, "t.me") || strings.Contains(lower, "telegram.me"):
		if post, ok := c.extractTelegram(lower, link); ok {
			return post, Rejection{}
		}
		return nil, Rejection{Link: link, Platform: PlatformTelegram, Reason: "unrecognized Telegram link"}

	case strings.Contains(lower, "ok.ru"):
		if post, ok := c.extractOK(lower, link); ok {
			return post, Rejection{}
		}
		return nil, Rejection{Link: link, Platform: PlatformOK, Reason: "unrecognized OK.ru link"}

	default:
		return nil, Rejection{Link: link, Reason: "unknown link format"}
	}
}

func (out *Classification) reject(r Rejection) {
	log.Printf("Links: %s: %s", r.Reason, r.Link)
	out.Rejected = append(out.Rejected, r)
}

func (c *Classifier) extractVK(lower, original string) (VKPost, bool) {
	if m := c.vkWallRe.FindStringSubmatch(lower); m != nil {
		return VKPost{
			OwnerID:      "-" + m[1],
			PostID:       m[2],
			OriginalLink: original,
		}, true
	}

	if m := c.vkCompositeRe.FindStringSubmatch(lower); m != nil {
		owner, post, _ := strings.Cut(m[1], "_")
		return VKPost{
			OwnerID:      owner,
			PostID:       post,
			OriginalLink: original,
		}, true
	}

	if m := c.vkQueryRe.FindStringSubmatch(lower); m != nil {
		owner, post, _ := strings.Cut(m[1], "_")
		return VKPost{
			OwnerID:      "-" + owner,
			PostID:       post,
			OriginalLink: original,
		}, true
	}

	return VKPost{}, false
}

func (c *Classifier) extractTelegram(lower, original string) (TelegramPost, bool) {
	clean, _, _ := strings.Cut(lower, "?")
	clean, _, _ = strings.Cut(clean, "#")

	// The private form goes first, otherwise "c" would match as a username.
	for _, re := range []*regexp.Regexp{c.tgPrivateRe, c.tgPublicRe} {
		m := re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}

		messageID, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		return TelegramPost{
			Channel:      strings.TrimPrefix(m[1], "@"),
			MessageID:    messageID,
			OriginalLink: original,
		}, true
	}

	return TelegramPost{}, false
}

func (c *Classifier) extractOK(lower, original string) (OKPost, bool) {
	for _, re := range []*regexp.Regexp{c.okTopicRe, c.okStatusRe, c.okGroupTopicRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			return OKPost{
				GroupName:    m[1],
				TopicID:      m[2],
				OriginalLink: original,
			}, true
		}
	}

	return OKPost{}, false
}
