package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/submit-logger/internal/queue"
)

const (
	KindRedis = "redis"
	KindKafka = "kafka"
)

// Property keys carried next to every event payload.
const (
	HeaderRoutingKey      = "routing_key"
	HeaderMessageID       = "message-id"
	HeaderSourceConnector = "source_connector"
	HeaderCreatedAt       = "created_at"
	HeaderMessageStatus   = "message_status"
	HeaderSubmitBill      = "submit_sm_bill"
	HeaderSubmitRespBill  = "submit_sm_resp_bill"
)

// Event is one inbound message from the gateway's broker.
type Event struct {
	// ID identifies the delivery within the transport, not the SMS.
	ID        string
	Topic     string
	MessageID string
	Headers   map[string]string
	Payload   []byte
	// Attempts counts earlier failed runs of the handler on this event.
	Attempts int
}

func (e *Event) Header(key string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}

// ErrUnprocessable marks an event no retry can fix. Sources dead-letter such
// events and move on; every other handler error is retried before anything
// later is delivered.
var ErrUnprocessable = fmt.Errorf("unprocessable event: %w", queue.ErrDeadLetter)

func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrUnprocessable)
}

// Handler processes one event. A nil return acknowledges it; an error asks
// the transport to deliver it again.
type Handler func(ctx context.Context, e *Event) error

// Source delivers events to a single handler, one at a time and in order.
type Source interface {
	Consume(handler Handler) error
	Stop(timeout time.Duration) error
	Ping(ctx context.Context) error
	Name() string
}
