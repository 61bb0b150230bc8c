package notify

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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const publishAttempts = 3

// ResultReadyEvent announces that an extraction finished and text is
// available for hand-off.
type ResultReadyEvent struct {
	Event         string    `json:"event"`
	CorrelationID string    `json:"correlation_id"`
	Chars         int       `json:"chars"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher POSTs result-ready events to a configured webhook with
// exponential-backoff retries and optional HMAC-SHA256 signing.
type Publisher struct {
	client *http.Client
	url    string
	secret string
}

// NewPublisher creates a webhook publisher. An empty URL disables
// publication; ResultReady becomes a no-op.
func NewPublisher(url, secret string) *Publisher {
	return &Publisher{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
		secret: secret,
	}
}

// Enabled reports whether a webhook URL is configured.
func (p *Publisher) Enabled() bool { return p.url != "" }

// ResultReady publishes a result-ready event. Failures after the final
// retry are returned so the caller can log them; publication is
// best-effort and never affects the extraction result itself.
func (p *Publisher) ResultReady(ctx context.Context, correlationID string, chars int) error {
	if !p.Enabled() {
		return nil
	}

	body, err := json.Marshal(ResultReadyEvent{
		Event:         "result_ready",
		CorrelationID: correlationID,
		Chars:         chars,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal result-ready event: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.secret != "" {
			mac := hmac.New(sha256.New, []byte(p.secret))
			mac.Write(body)
			req.Header.Set("X-Notebook-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook HTTP %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), publishAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("publish result-ready after %d attempts: %w", publishAttempts, err)
	}

	log.Debug().Str("correlation_id", correlationID).Msg("Result-ready event published")
	return nil
}
