package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/submit-logger/internal/correlation"
	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/nimasrn/submit-logger/internal/pdu"
	"github.com/nimasrn/submit-logger/internal/routing"
	"github.com/nimasrn/submit-logger/internal/transport"
	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/nimasrn/submit-logger/pkg/prom"
)

var (
	// ErrMalformedEvent marks a payload or header that cannot be decoded.
	// The transport dead-letters it without retrying.
	ErrMalformedEvent = fmt.Errorf("malformed: %w", transport.ErrUnprocessable)
)

const (
	commandStatusQualifier = "CommandStatus."
	// negativeAckPrefix marks delivery receipts that echo a submit_sm_resp error.
	negativeAckPrefix = "ESME_"
)

const (
	OutcomeCached     = "cached"
	OutcomeStored     = "stored"
	OutcomeUpdated    = "updated"
	OutcomeMissingRow = "missing_row"
	OutcomeOrphan     = "orphan"
	OutcomeFiltered   = "filtered"
	OutcomeUnknown    = "unknown"
	OutcomeMalformed  = "malformed"
	OutcomeFailed     = "failed"
)

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

type SubmitLogStore interface {
	UpsertSubmission(ctx context.Context, log *model.SubmitLog) error
	UpdateStatus(ctx context.Context, messageID, status string, at time.Time) (bool, error)
}

type ConnectionGuard interface {
	Ensure(ctx context.Context) error
}

type ackPayload struct {
	CommandStatus string `json:"command_status"`
}

// SubmitLogProcessor turns gateway events into submit_log rows. It keeps no
// locks: the transport hands it one event at a time.
type SubmitLogProcessor struct {
	cache correlation.Cache
	store SubmitLogStore
	guard ConnectionGuard
	now   func() time.Time
}

func NewSubmitLogProcessor(cache correlation.Cache, store SubmitLogStore, guard ConnectionGuard) *SubmitLogProcessor {
	return &SubmitLogProcessor{
		cache: cache,
		store: store,
		guard: guard,
		now:   time.Now,
	}
}

func (p *SubmitLogProcessor) GetType() string {
	return "submit_log"
}

// Process classifies the event by its topic and applies it. A nil return
// means the event may be acknowledged, including the skip cases.
func (p *SubmitLogProcessor) Process(ctx context.Context, e *transport.Event) error {
	route := routing.Classify(e.Topic)

	var (
		outcome string
		err     error
	)
	switch route.Kind {
	case routing.KindSubmission:
		outcome, err = p.onSubmission(ctx, e, route.Suffix)
	case routing.KindSubmissionAck:
		outcome, err = p.onSubmissionAck(ctx, e)
	case routing.KindDeliveryNotification:
		outcome, err = p.onDeliveryNotification(ctx, e)
	default:
		logger.Warn("unknown route", "topic", e.Topic, "message_id", e.MessageID)
		outcome = OutcomeUnknown
	}

	if err != nil {
		if errors.Is(err, ErrMalformedEvent) {
			outcome = OutcomeMalformed
			logger.Error("malformed event", "topic", e.Topic, "message_id", e.MessageID, "attempts", e.Attempts, "error", err)
		} else {
			outcome = OutcomeFailed
		}
	}
	prom.IncEvent(string(route.Kind), outcome)
	return err
}

func (p *SubmitLogProcessor) onSubmission(ctx context.Context, e *transport.Event, routedCID string) (string, error) {
	if e.MessageID == "" {
		return "", fmt.Errorf("%w: submission without message id", ErrMalformedEvent)
	}

	first, err := pdu.Decode(e.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	billing, err := billingFromHeaders(e)
	if err != nil {
		return "", err
	}

	body, count, last := pdu.Reassemble(first)
	text := pdu.Normalize(body, last.DataCoding)

	pending := model.PendingSubmission{
		MessageID:          e.MessageID,
		SourceConnector:    e.Header(transport.HeaderSourceConnector),
		RoutedChannelID:    routedCID,
		SourceAddress:      last.SourceAddr,
		DestinationAddress: last.DestinationAddr,
		SegmentCount:       count,
		BodyText:           text.Text,
		BodyBinary:         text.Binary,
		Rate:               billing.TotalAmount,
		Charge:             billing.ChargeFor(count),
		BilledUserID:       billing.UserID,
	}

	if err := p.cache.Put(ctx, e.MessageID, pending); err != nil {
		return "", fmt.Errorf("cache pending submission %s: %w", e.MessageID, err)
	}
	if s, ok := p.cache.(correlation.Sizer); ok {
		prom.SetPendingEntries(p.cache.Backend(), s.Len())
	}

	logger.Debug("submission cached",
		"message_id", e.MessageID,
		"routed_cid", routedCID,
		"segments", count,
		"coding", last.DataCoding.String(),
	)
	return OutcomeCached, nil
}

func (p *SubmitLogProcessor) onSubmissionAck(ctx context.Context, e *transport.Event) (string, error) {
	var ack ackPayload
	if err := json.Unmarshal(e.Payload, &ack); err != nil {
		return "", fmt.Errorf("%w: submit_sm_resp: %v", ErrMalformedEvent, err)
	}

	pending, ok, err := p.cache.Take(ctx, e.MessageID)
	if err != nil {
		return "", fmt.Errorf("lookup pending submission %s: %w", e.MessageID, err)
	}
	if !ok {
		logger.Warn("got resp of an unknown submit_sm", "message_id", e.MessageID)
		return OutcomeOrphan, nil
	}

	createdAt := p.eventTime(e)
	log := model.NewSubmitLog(pending, commandStatus(ack.CommandStatus), createdAt)

	if err := p.guard.Ensure(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	err = p.store.UpsertSubmission(ctx, log)
	prom.ObserveStoreOperation("upsert", time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	logger.Info("submission logged", "message_id", e.MessageID, "status", log.Status, "segments", log.SegmentCount)
	return OutcomeStored, nil
}

func (p *SubmitLogProcessor) onDeliveryNotification(ctx context.Context, e *transport.Event) (string, error) {
	status := e.Header(transport.HeaderMessageStatus)
	if strings.HasPrefix(status, negativeAckPrefix) {
		logger.Debug("ignoring dlr echoed from submit_sm_resp", "message_id", e.MessageID, "status", status)
		return OutcomeFiltered, nil
	}

	_, ok, err := p.cache.Take(ctx, e.MessageID)
	if err != nil {
		return "", fmt.Errorf("lookup pending submission %s: %w", e.MessageID, err)
	}
	if !ok {
		logger.Warn("got dlr of an unknown submit_sm", "message_id", e.MessageID)
		return OutcomeOrphan, nil
	}

	if err := p.guard.Ensure(ctx); err != nil {
		return "", err
	}
	start := time.Now()
	found, err := p.store.UpdateStatus(ctx, e.MessageID, status, p.now())
	prom.ObserveStoreOperation("update_status", time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if !found {
		logger.Warn("dlr for a message that was never logged", "message_id", e.MessageID, "status", status)
		return OutcomeMissingRow, nil
	}

	logger.Info("delivery status updated", "message_id", e.MessageID, "status", status)
	return OutcomeUpdated, nil
}

// eventTime reads the created_at header, falling back to the local clock.
func (p *SubmitLogProcessor) eventTime(e *transport.Event) time.Time {
	raw := e.Header(transport.HeaderCreatedAt)
	if raw != "" {
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
	}
	logger.Warn("unusable created_at header, using current time", "message_id", e.MessageID, "created_at", raw)
	return p.now()
}

// billingFromHeaders prefers the bill attached to the resp over the one
// attached to the submit_sm. No bill means a free, unattributed message.
func billingFromHeaders(e *transport.Event) (model.Billing, error) {
	var b model.Billing
	raw := e.Header(transport.HeaderSubmitRespBill)
	if raw == "" {
		raw = e.Header(transport.HeaderSubmitBill)
	}
	if raw == "" {
		return b, nil
	}
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return b, fmt.Errorf("%w: billing header: %v", ErrMalformedEvent, err)
	}
	return b, nil
}

func commandStatus(s string) string {
	return strings.TrimPrefix(s, commandStatusQualifier)
}
