package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/position"
	"tradepulse/internal/risk"
)

// EventType classifies lifecycle notifications.
type EventType string

const (
	EventOpened EventType = "position_opened"
	EventClosed EventType = "position_closed"
	EventHalted EventType = "trading_halted"
)

// Event is a structured lifecycle message. The engine is agnostic to
// the transport behind the Notifier.
type Event struct {
	Type      EventType             `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Symbol    string                `json:"symbol,omitempty"`
	Message   string                `json:"message,omitempty"`
	Position  *position.Position    `json:"position,omitempty"`
	Trade     *position.Trade       `json:"trade,omitempty"`
	Account   *risk.AccountSnapshot `json:"account,omitempty"`
}

// Notifier receives lifecycle events. Implementations must not block
// the tick for long; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// WebhookNotifier POSTs events as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook event marshal failed")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("Webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("type", string(ev.Type)).
			Msg("Webhook delivery rejected")
	}
}

// LogNotifier writes events to the structured log, the default when
// no webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev Event) {
	entry := log.Info().Str("event", string(ev.Type))
	if ev.Symbol != "" {
		entry = entry.Str("symbol", ev.Symbol)
	}
	if ev.Trade != nil {
		entry = entry.Float64("pnl", ev.Trade.PnL).Str("reason", ev.Trade.ExitReason.String())
	}
	msg := ev.Message
	if msg == "" {
		msg = fmt.Sprintf("lifecycle event: %s", ev.Type)
	}
	entry.Msg(msg)
}
