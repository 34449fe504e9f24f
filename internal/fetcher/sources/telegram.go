// SPDX-License-Identifier: AGPL-3.0-only
package sources

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/SnowMenchik/Parsr/internal/credentials"
	"github.com/SnowMenchik/Parsr/internal/fetcher/common"
	"github.com/SnowMenchik/Parsr/internal/links"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const DefaultTelegramDelay = 500 * time.Millisecond

var (
	ErrSessionNotAuthorized = errors.New("telegram session is not authorized")
	ErrMessageNotFound      = errors.New("message not found")
)

// TelegramSession is a connected, authorized session.
type TelegramSession interface {
	MessageViews(ctx context.Context, post links.TelegramPost) (int, error)
}

// TelegramDialer connects, hands the session to fn and disconnects once fn
// returns, whatever the outcome.
type TelegramDialer interface {
	Run(ctx context.Context, creds credentials.Telegram, fn func(ctx context.Context, s TelegramSession) error) error
}

type TelegramFetcher struct {
	Dialer TelegramDialer
	Delay  time.Duration

	sleep common.SleepFunc
}

func NewTelegramFetcher(dialer TelegramDialer, delay time.Duration) *TelegramFetcher {
	return &TelegramFetcher{
		Dialer: dialer,
		Delay:  delay,
		sleep:  common.Sleep,
	}
}

// FetchViews reads views one message at a time over a single session.
// A flood-wait answer is waited out and the post is skipped, not retried.
func (f *TelegramFetcher) FetchViews(ctx context.Context, posts []links.TelegramPost, creds credentials.Telegram) (int, []common.ViewResult, error) {
	if len(posts) == 0 {
		return 0, nil, nil
	}

	total := 0
	var results []common.ViewResult

	err := f.Dialer.Run(ctx, creds, func(ctx context.Context, s TelegramSession) error {
		log.Printf("Telegram: Fetching views for %d posts", len(posts))

		for i, post := range posts {
			views, err := s.MessageViews(ctx, post)

			switch {
			case err == nil:
				total += views
				log.Printf("  [%d/%d] Telegram: %s: %d", i+1, len(posts), post.OriginalLink, views)
				results = append(results, common.ViewResult{Link: post.OriginalLink, Views: views})

			case ctx.Err() != nil:
				return ctx.Err()

			default:
				if wait, isFlood := telegram.AsFloodWait(err); isFlood {
					log.Printf("  [%d/%d] Telegram: rate limited, waiting %v", i+1, len(posts), wait)
					if err := f.sleep(ctx, wait); err != nil {
						return err
					}
					break
				}

				log.Printf("  [%d/%d] Telegram: %s: error - %s", i+1, len(posts), post.OriginalLink, describeTelegramError(err))
				results = append(results, common.ViewResult{Link: post.OriginalLink, Views: 0})
			}

			if err := f.sleep(ctx, f.Delay); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	return total, results, nil
}

func describeTelegramError(err error) string {
	switch {
	case tgerr.Is(err, tg.ErrChannelPrivate):
		return "channel is private"
	case errors.Is(err, ErrMessageNotFound):
		return "message not found"
	default:
		return err.Error()
	}
}

// Authorizer logs a session in when the stored one is not authorized yet.
type Authorizer interface {
	Authorize(ctx context.Context, client *auth.Client, phone string) error
}

// CodeAuthorizer signs in with a login code supplied by PromptCode.
type CodeAuthorizer struct {
	PromptCode func(ctx context.Context) (string, error)
}

func (a CodeAuthorizer) Authorize(ctx context.Context, client *auth.Client, phone string) error {
	code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return a.PromptCode(ctx)
	})
	return auth.NewFlow(auth.CodeOnly(phone, code), auth.SendCodeOptions{}).Run(ctx, client)
}

// GotdDialer runs sessions on MTProto with a file-backed session store.
type GotdDialer struct {
	SessionPath string
	Authorizer  Authorizer
}

func (d *GotdDialer) Run(ctx context.Context, creds credentials.Telegram, fn func(ctx context.Context, s TelegramSession) error) error {
	client := telegram.NewClient(creds.APIID, creds.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: d.SessionPath},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth status: %w", err)
		}

		if !status.Authorized {
			if d.Authorizer == nil {
				return ErrSessionNotAuthorized
			}
			if err := d.Authorizer.Authorize(ctx, client.Auth(), creds.Phone); err != nil {
				return fmt.Errorf("telegram login failed: %w", err)
			}
		}

		return fn(ctx, &gotdSession{
			api:      client.API(),
			channels: make(map[string]*tg.InputChannel),
		})
	})
}

type gotdSession struct {
	api      *tg.Client
	channels map[string]*tg.InputChannel
}

func (s *gotdSession) MessageViews(ctx context.Context, post links.TelegramPost) (int, error) {
	channel, err := s.resolveChannel(ctx, post)
	if err != nil {
		return 0, err
	}

	resp, err := s.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: channel,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: post.MessageID}},
	})
	if err != nil {
		return 0, err
	}

	var messages []tg.MessageClass
	switch v := resp.(type) {
	case *tg.MessagesMessages:
		messages = v.Messages
	case *tg.MessagesMessagesSlice:
		messages = v.Messages
	case *tg.MessagesChannelMessages:
		messages = v.Messages
	default:
		return 0, ErrMessageNotFound
	}

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok || msg.ID != post.MessageID {
			continue
		}
		views, _ := msg.GetViews()
		return views, nil
	}

	return 0, ErrMessageNotFound
}

func (s *gotdSession) resolveChannel(ctx context.Context, post links.TelegramPost) (*tg.InputChannel, error) {
	if ch, ok := s.channels[post.Channel]; ok {
		return ch, nil
	}

	var chats []tg.ChatClass

	if post.IsPrivate() {
		id, err := strconv.ParseInt(post.Channel, 10, 64)
		if err != nil {
			return nil, err
		}
		res, err := s.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: id}})
		if err != nil {
			return nil, fmt.Errorf("failed to load private channel: %w", err)
		}
		chats = res.GetChats()
	} else {
		res, err := s.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: post.Channel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel: %w", err)
		}
		chats = res.Chats
	}

	for _, c := range chats {
		if ch, ok := c.(*tg.Channel); ok {
			input := &tg.InputChannel{
				ChannelID:  ch.ID,
				AccessHash: ch.AccessHash,
			}
			s.channels[post.Channel] = input
			return input, nil
		}
	}

	return nil, fmt.Errorf("resolved chat %q is not a channel", post.Channel)
}
