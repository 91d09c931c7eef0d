// Package alerts delivers best-effort real-time notifications for
// compliance-relevant audit entries to an operator-configured webhook.
// Delivery is fire-and-forget: it happens after the entry has committed to
// the chain and never feeds back into the ledger.
package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/ledger"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Event is the JSON payload POSTed to the webhook endpoint.
type Event struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Entry     *ledger.Entry `json:"entry"`
}

// Notifier POSTs HMAC-signed compliance entry events to a single webhook
// URL. It implements audit.Notifier.
type Notifier struct {
	url        string
	secret     []byte
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// New creates a Notifier. An empty url disables delivery entirely.
func New(url, secret string, logger *zap.Logger) *Notifier {
	return &Notifier{
		url:        url,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Notify schedules delivery of e in the background and returns immediately.
func (n *Notifier) Notify(e *ledger.Entry) {
	if n.url == "" {
		return
	}
	go n.deliver(e)
}

// deliver marshals, signs, and POSTs the event with bounded retries.
func (n *Notifier) deliver(e *ledger.Entry) {
	body, err := json.Marshal(Event{
		Type:      "audit.compliance_entry",
		Timestamp: time.Now().UTC(),
		Entry:     e,
	})
	if err != nil {
		n.logger.Error("alerts: marshal event", zap.Error(err))
		return
	}
	signature := signPayload(body, n.secret)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
	)
	err = r.Do(func() error {
		return n.post(ctx, body, signature)
	})

	if n.onMetrics != nil {
		n.onMetrics(err == nil)
	}
	if err != nil {
		n.logger.Warn("alerts: delivery failed",
			zap.String("url", n.url),
			zap.String("entry_id", e.ID),
			zap.Error(err),
		)
	}
}

// post performs a single HTTP POST delivery attempt.
func (n *Notifier) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Audit-Signature", signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// signPayload returns the hex HMAC-SHA256 of body under secret.
func signPayload(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
