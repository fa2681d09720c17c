//go:build slack

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

// SlackNotifier posts approval announcements to a Slack channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

func newSlackNotifier(cfg config.SlackNotifyConfig, logger *slog.Logger) (domain.Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack.token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack.channel is required")
	}
	return &SlackNotifier{
		api:     slack.New(cfg.Token),
		channel: cfg.Channel,
		logger:  logger,
	}, nil
}

func (s *SlackNotifier) Notify(ctx context.Context, message string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	s.logger.Debug("notification sent", "channel", s.channel)
	return nil
}
