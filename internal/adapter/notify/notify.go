// Package notify delivers approval-request announcements to reviewers.
// Implementations are selected by configuration; the Slack and Discord
// notifiers are compiled in with the matching build tags.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

// New builds the configured notifier. An empty or "none" kind returns
// the no-op notifier so callers never need a nil check.
func New(cfg config.NotifyConfig, logger *slog.Logger) (domain.Notifier, error) {
	switch cfg.Kind {
	case "", "none":
		return NoopNotifier{}, nil
	case "slack":
		return newSlackNotifier(cfg.Slack, logger)
	case "discord":
		return newDiscordNotifier(cfg.Discord, logger)
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
	}
}

// NoopNotifier drops every message. Used when no reviewer channel is
// configured; pending requests are still discoverable through the
// listing tools.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, message string) error { return nil }
