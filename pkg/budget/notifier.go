package budget

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tallyhq/tally/pkg/observability"
)

// Notifier delivers budget threshold alerts to a sink
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. It is the default
// sink when no webhook is configured.
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a log-backed alert sink
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.WithFields(map[string]interface{}{
		"tenant_id":    alert.TenantID,
		"threshold":    alert.Threshold,
		"spend_cents":  alert.SpendCents,
		"budget_cents": alert.BudgetCents,
		"percentage":   alert.Percentage,
	}).Warn("budget threshold crossed")
	return nil
}

// WebhookNotifier posts alerts to a configured HTTP endpoint, signing
// the payload with HMAC-SHA256 when a secret is set. Delivery is
// best-effort with a small retry budget; the caller already treats
// alerting as fire-and-forget.
type WebhookNotifier struct {
	url     string
	secret  string
	retries int
	client  *http.Client
	logger  *observability.Logger
}

// NewWebhookNotifier creates a webhook alert sink
func NewWebhookNotifier(url, secret string, timeout time.Duration, retries int, logger *observability.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &WebhookNotifier{
		url:     url,
		secret:  secret,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff capped at 30s
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = n.send(ctx, payload); lastErr == nil {
			return nil
		}
		n.logger.WithError(lastErr).WithTenant(alert.TenantID).
			Warnf("alert webhook delivery attempt %d failed", attempt+1)
	}
	return fmt.Errorf("alert webhook delivery failed after %d attempts: %w", n.retries+1, lastErr)
}

func (n *WebhookNotifier) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tally-Event", "budget.threshold")
	req.Header.Set("X-Tally-Delivery", time.Now().UTC().Format(time.RFC3339))
	if n.secret != "" {
		req.Header.Set("X-Tally-Signature", generateSignature(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// VerifySignature verifies a webhook payload signature on the receiver
// side
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(generateSignature(payload, secret)), []byte(signature))
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
