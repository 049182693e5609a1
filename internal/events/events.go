package events

import "context"

// Streams
const (
	StreamTrade   = "events:trade"
	StreamPayment = "events:payment"
	StreamRetry   = "events:retry"
	StreamOps     = "events:ops"
)

// Event types
const (
	EventTradeStatusChanged = "trade_status_changed"
	EventPaymentReceived    = "payment_received"
	EventRetryRequested     = "retry_requested"
	EventOperatorAlert      = "operator_alert"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
