//go:build !slack

package notify

import (
	"fmt"
	"log/slog"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

func newSlackNotifier(_ config.SlackNotifyConfig, _ *slog.Logger) (domain.Notifier, error) {
	return nil, fmt.Errorf("slack notifier requires build with -tags slack")
}
