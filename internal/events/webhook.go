package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/resilience"
)

// Webhook posts each event as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhook creates a Webhook publisher.
func NewWebhook(url string) *Webhook {
	retry := resilience.NewRetryConfig(3, 250*time.Millisecond)
	retry.OnRetry = resilience.RetryLogger("events", "webhook")
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Publish implements Publisher. Server errors and throttling are retried.
func (w *Webhook) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal event")
	}
	err = resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.send(ctx, payload)
	})
	if err != nil {
		zap.L().Error("events: webhook delivery failed",
			zap.String("name", string(ev.Name)),
			zap.String("submission_id", ev.SubmissionID),
			zap.Error(err))
		return err
	}
	return nil
}

func (w *Webhook) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "events: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "events: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("events: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
