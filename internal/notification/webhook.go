package notification

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

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"

	"github.com/rs/zerolog"
)

// webhookRetryIntervals is the backoff schedule for failed deliveries.
var webhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// webhookPayload is the JSON body posted to the configured URL. The signature
// is HMAC-SHA256 over the raw event JSON, hex encoded.
type webhookPayload struct {
	Event     ports.Event `json:"event"`
	Signature string      `json:"signature"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookNotifier implements ports.Notifier by posting signed events to a
// consumer endpoint. Send returns once the payload is built; delivery runs
// asynchronously with bounded retries and never blocks a commit path.
type WebhookNotifier struct {
	url            string
	secret         []byte
	client         HTTPClient
	retryIntervals []time.Duration
	log            zerolog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier from config.
func NewWebhookNotifier(cfg config.NotifierConfig, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:            cfg.WebhookURL,
		secret:         []byte(cfg.Secret),
		client:         &http.Client{Timeout: cfg.Timeout},
		retryIntervals: webhookRetryIntervals,
		log:            log,
	}
}

// Send signs the event and hands it to the async delivery loop.
func (n *WebhookNotifier) Send(_ context.Context, event ports.Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	payload, err := json.Marshal(webhookPayload{
		Event:     event,
		Signature: n.sign(eventBytes),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	go n.deliverWithRetries(payload, event.OperationID)
	return nil
}

// sign computes the hex HMAC-SHA256 of the payload.
func (n *WebhookNotifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// deliverWithRetries posts the payload until a 2xx lands or the backoff
// schedule runs out.
func (n *WebhookNotifier) deliverWithRetries(payload []byte, opID string) {
	for attempt := 0; attempt <= len(n.retryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(n.retryIntervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			n.log.Error().Err(err).Str("operation_id", opID).Msg("webhook: failed to create request")
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.log.Warn().Err(err).Str("operation_id", opID).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.log.Info().Str("operation_id", opID).Int("attempt", attempt+1).Msg("webhook: delivered")
			return
		}
		n.log.Warn().Str("operation_id", opID).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
	}

	n.log.Error().Str("operation_id", opID).Msg("webhook: all retry attempts exhausted")
}
