package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Signature"

// WebhookSender posts a JSON envelope to an arbitrary URL, signed when a
// secret is set.
type WebhookSender struct {
	url    string
	secret []byte
	now    func() time.Time
	client *http.Client
}

type webhookPayload struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// NewWebhookSender creates a WebhookSender. An empty secret disables signing.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: []byte(secret),
		now:    time.Now,
		client: newHTTPClient(),
	}
}

// Send posts {"title","message","timestamp"}.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(webhookPayload{
		Title:     title,
		Message:   message,
		Timestamp: w.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var headers map[string]string
	if len(w.secret) > 0 {
		headers = map[string]string{SignatureHeader: Sign(w.secret, body)}
	}
	if err := postJSON(ctx, w.client, w.url, body, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Name returns "webhook".
func (w *WebhookSender) Name() string {
	return "webhook"
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
