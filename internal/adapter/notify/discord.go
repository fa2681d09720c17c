//go:build discord

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"foodcourt/internal/domain"
	"foodcourt/internal/infra/config"
)

// DiscordNotifier posts approval announcements to a Discord channel.
// Messages go over the REST API, so no gateway connection is opened.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

func newDiscordNotifier(cfg config.DiscordNotifyConfig, logger *slog.Logger) (domain.Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord.token is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord.channel_id is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordNotifier{
		session:   session,
		channelID: cfg.ChannelID,
		logger:    logger,
	}, nil
}

func (d *DiscordNotifier) Notify(ctx context.Context, message string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord post: %w", err)
	}
	d.logger.Debug("notification sent", "channel_id", d.channelID)
	return nil
}
