// SPDX-License-Identifier: AGPL-3.0-only
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/SnowMenchik/Parsr/internal/worker"
	"github.com/bwmarrin/discordgo"
)

type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts run summaries to a channel through the bot REST API. No
// gateway connection is opened.
type Discord struct {
	ChannelID string
	Sender    MessageSender
}

func NewDiscord(botToken, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	return &Discord{ChannelID: channelID, Sender: session}, nil
}

func (d *Discord) Notify(ctx context.Context, r *worker.Report) error {
	if _, err := d.Sender.ChannelMessageSend(d.ChannelID, FormatSummary(r), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("Discord: failed to send summary: %w", err)
	}
	return nil
}

// FormatSummary renders a short, human-readable line per platform.
func FormatSummary(r *worker.Report) string {
	var b strings.Builder

	if r.NoData {
		b.WriteString("**View collection finished: no data could be retrieved**")
	} else {
		fmt.Fprintf(&b, "**Total views: %s** (%d)", worker.FormatThousands(r.Total), r.Total)
	}

	for _, p := range r.Platforms {
		fmt.Fprintf(&b, "\n%s: %d posts, %d views", p.Platform, p.Count, p.Subtotal)
		if p.Err != "" {
			fmt.Fprintf(&b, " (failed: %s)", p.Err)
		}
	}

	if len(r.Rejected) > 0 {
		fmt.Fprintf(&b, "\nSkipped links: %d", len(r.Rejected))
	}
	if r.Truncated > 0 {
		fmt.Fprintf(&b, "\nTruncated links: %d", r.Truncated)
	}

	return b.String()
}
