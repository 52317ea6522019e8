package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"solana-moonscan/internal/config"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel sends alerts through the Telegram bot API.
type TelegramChannel struct {
	cfg     config.TelegramConfig
	client  *http.Client
	apiBase string
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(cfg config.TelegramConfig, client *http.Client) *TelegramChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	return &TelegramChannel{cfg: cfg, client: client, apiBase: telegramAPIBase}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Deliver(ctx context.Context, payload *Payload, _ []byte) error {
	msg := map[string]interface{}{
		"chat_id":                  c.cfg.ChatID,
		"text":                     payload.summaryText(),
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.cfg.BotToken)
	return postJSON(ctx, c.client, url, body, nil)
}
