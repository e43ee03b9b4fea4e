package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/craftable/errx"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookClient performs the synchronous webhook action with a bounded
// timeout. Responses are logged only; the body is never interpreted.
type WebhookClient struct {
	client *http.Client
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Call posts the payload to the configured URL. Non-2xx responses are
// reported as errors so the dispatcher can log them.
func (c *WebhookClient) Call(ctx context.Context, url, method string, headers map[string]string, payload map[string]any) error {
	if url == "" {
		return errx.New("webhook action requires a url param", errx.TypeValidation)
	}
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errx.Wrap(err, "failed to encode webhook payload", errx.TypeInternal)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return errx.Wrap(err, "failed to build webhook request", errx.TypeInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errx.Wrap(err, "webhook call failed", errx.TypeInternal)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errx.New("webhook returned non-success status", errx.TypeInternal).
			WithDetail("status", resp.StatusCode).
			WithDetail("url", url)
	}

	log.Printf("✅ Webhook delivered: %s %s (%d)", method, url, resp.StatusCode)
	return nil
}
