package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingSubmission is what the correlation cache holds between a submit_sm
// and its submit_sm_resp.
type PendingSubmission struct {
	MessageID          string          `json:"message_id"`
	SourceConnector    string          `json:"source_connector"`
	RoutedChannelID    string          `json:"routed_channel_id"`
	SourceAddress      string          `json:"source_address"`
	DestinationAddress string          `json:"destination_address"`
	SegmentCount       int             `json:"segment_count"`
	BodyText           string          `json:"body_text"`
	BodyBinary         string          `json:"body_binary"` // hex
	Rate               decimal.Decimal `json:"rate"`
	Charge             decimal.Decimal `json:"charge"`
	BilledUserID       string          `json:"billed_user_id"`
}

// SubmitLog is one durable row per logical message.
type SubmitLog struct {
	PendingSubmission
	Status    string
	Trials    int
	CreatedAt time.Time
	StatusAt  time.Time
}

// NewSubmitLog builds the first-insert row for an acknowledged submission.
func NewSubmitLog(p PendingSubmission, status string, createdAt time.Time) *SubmitLog {
	return &SubmitLog{
		PendingSubmission: p,
		Status:            status,
		Trials:            1,
		CreatedAt:         createdAt,
		StatusAt:          createdAt,
	}
}
