package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"solana-moonscan/internal/config"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, keyed
// with the shared webhook secret.
const SignatureHeader = "X-Webhook-Signature"

// WebhookChannel POSTs the canonical payload to a receiver-controlled URL,
// signed so the receiver can verify authenticity.
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a signed-webhook channel. The signing secret is
// required: without it receivers cannot distinguish real alerts from forged
// ones.
func NewWebhookChannel(cfg config.WebhookConfig, client *http.Client) (*WebhookChannel, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: webhook channel requires a signing secret", config.ErrInvalidConfig)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	return &WebhookChannel{cfg: cfg, client: client}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, _ *Payload, body []byte) error {
	headers := map[string]string{
		SignatureHeader: Sign(body, c.cfg.Secret),
	}
	return postJSON(ctx, c.client, c.cfg.URL, body, headers)
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers run the
// same computation to verify.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
