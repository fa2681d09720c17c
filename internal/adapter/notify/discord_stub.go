//go:build !discord

package notify

import (
	"fmt"
	"log/slog"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

func newDiscordNotifier(_ config.DiscordNotifyConfig, _ *slog.Logger) (domain.Notifier, error) {
	return nil, fmt.Errorf("discord notifier requires build with -tags discord")
}
