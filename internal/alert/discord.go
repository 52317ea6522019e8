package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"solana-moonscan/internal/config"
)

// DiscordChannel sends alerts through a Discord webhook.
type DiscordChannel struct {
	cfg    config.DiscordConfig
	client *http.Client
}

// NewDiscordChannel creates a Discord channel.
func NewDiscordChannel(cfg config.DiscordConfig, client *http.Client) *DiscordChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	return &DiscordChannel{cfg: cfg, client: client}
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Deliver(ctx context.Context, payload *Payload, _ []byte) error {
	embed := map[string]interface{}{
		"title":       fmt.Sprintf("New pair: %.1f (%s)", payload.Score, payload.Rating),
		"description": payload.summaryText(),
	}
	msg := map[string]interface{}{
		"username": "moonscan",
		"embeds":   []interface{}{embed},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return postJSON(ctx, c.client, c.cfg.WebhookURL, body, nil)
}
