/*
Package notify provides ccb.Notifier sinks.

SINKS:
  Webhook: POSTs {"text": ...} to a chat incoming-webhook URL
  Log:     Writes the event to a slog.Logger
  Multi:   Fans one event out to several sinks concurrently

All sinks are best-effort from the engine's point of view: the engine
logs a returned error and moves on.

SEE ALSO:
  - ccb/notify.go: Event, Notifier, and the async dispatcher
*/
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/ccbdesk/ccb"
)

// =============================================================================
// WEBHOOK
// =============================================================================

// Webhook posts events to an incoming-webhook URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Text    string `json:"text"`
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	CaseID  string `json:"case_id"`
	Actor   string `json:"actor,omitempty"`
	Status  string `json:"status"`
	At      string `json:"at"`
}

func (w *Webhook) Notify(ctx context.Context, e ccb.Event) error {
	body, err := json.Marshal(webhookPayload{
		Text:    e.Message(),
		EventID: e.ID.String(),
		Kind:    string(e.Kind),
		CaseID:  string(e.CaseID),
		Actor:   e.Actor,
		Status:  e.Status.Label(),
		At:      e.At.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// LOG
// =============================================================================

// Log writes events to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, e ccb.Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, e.Message(),
		"event_id", e.ID,
		"kind", e.Kind,
		"case_id", e.CaseID,
		"actor", e.Actor,
		"status", e.Status,
	)
	return nil
}

// =============================================================================
// MULTI
// =============================================================================

// Multi delivers to every sink concurrently. One sink failing does not stop
// the others; all failures are joined.
type Multi []ccb.Notifier

func (m Multi) Notify(ctx context.Context, e ccb.Event) error {
	errs := make([]error, len(m))

	var g errgroup.Group
	for i, n := range m {
		if n == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = n.Notify(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
