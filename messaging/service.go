// Package messaging fans report text out to the configured channels.
// Plot images always go through Telegram directly; Slack only receives
// the text portion of auto-reports.
package messaging

import (
	"context"
	"strings"

	"github.com/gidra39/tensorbot/slack"
)

const (
	ChannelTelegram = "TELEGRAM"
	ChannelSlack    = "SLACK"
	ChannelBoth     = "BOTH"
)

// TextSender is the Telegram side of the fan-out.
type TextSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Service struct {
	channels string
	telegram TextSender
	slack    *slack.Client
}

func NewService(channels string, telegram TextSender, slack *slack.Client) *Service {
	if channels = strings.ToUpper(strings.TrimSpace(channels)); channels == "" {
		channels = ChannelTelegram
	}
	return &Service{channels: channels, telegram: telegram, slack: slack}
}

// Notify delivers text to every configured channel. With BOTH configured
// a single channel failure is tolerated; only a total failure is an error.
func (s *Service) Notify(ctx context.Context, chatID int64, text string) error {
	var telegramErr, slackErr error

	if s.channels == ChannelTelegram || s.channels == ChannelBoth {
		telegramErr = s.telegram.SendMessage(ctx, chatID, text)
	}

	if s.channels == ChannelSlack || s.channels == ChannelBoth {
		slackErr = s.slack.Send(ctx, text)
	}

	if s.channels == ChannelBoth {
		if telegramErr != nil && slackErr != nil {
			return telegramErr
		}
		return nil
	}
	if s.channels == ChannelSlack {
		return slackErr
	}
	return telegramErr
}
