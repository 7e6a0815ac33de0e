package repository

import (
	"time"

	"github.com/nimasrn/submit-logger/internal/model"
	"github.com/shopspring/decimal"
)

type SubmitLogEntity struct {
	MessageID       string          `gorm:"primaryKey;column:msgid;size:45"`
	SourceConnector string          `gorm:"column:source_connector;size:64"`
	RoutedCID       string          `gorm:"column:routed_cid;size:64;index"`
	SourceAddr      string          `gorm:"column:source_addr;size:32"`
	DestinationAddr string          `gorm:"column:destination_addr;size:32"`
	Rate            decimal.Decimal `gorm:"column:rate;type:numeric(12,6);not null;default:0"`
	Charge          decimal.Decimal `gorm:"column:charge;type:numeric(12,6);not null;default:0"`
	PDUCount        int             `gorm:"column:pdu_count;not null;default:1"`
	ShortMessage    []byte          `gorm:"column:short_message"`
	BinaryMessage   string          `gorm:"column:binary_message;type:text"`
	Status          string          `gorm:"column:status;size:32;index"`
	UID             string          `gorm:"column:uid;size:64;index"`
	Trials          int             `gorm:"column:trials;not null;default:1"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime:false;index"`
	StatusAt        time.Time       `gorm:"column:status_at"`
}

func (SubmitLogEntity) TableName() string {
	return "submit_log"
}

func toSubmitLogEntity(m *model.SubmitLog) *SubmitLogEntity {
	if m == nil {
		return nil
	}
	return &SubmitLogEntity{
		MessageID:       m.MessageID,
		SourceConnector: m.SourceConnector,
		RoutedCID:       m.RoutedChannelID,
		SourceAddr:      m.SourceAddress,
		DestinationAddr: m.DestinationAddress,
		Rate:            m.Rate,
		Charge:          m.Charge,
		PDUCount:        m.SegmentCount,
		ShortMessage:    []byte(m.BodyText),
		BinaryMessage:   m.BodyBinary,
		Status:          m.Status,
		UID:             m.BilledUserID,
		Trials:          m.Trials,
		CreatedAt:       m.CreatedAt,
		StatusAt:        m.StatusAt,
	}
}

func toSubmitLogModel(e *SubmitLogEntity) *model.SubmitLog {
	if e == nil {
		return nil
	}
	return &model.SubmitLog{
		PendingSubmission: model.PendingSubmission{
			MessageID:          e.MessageID,
			SourceConnector:    e.SourceConnector,
			RoutedChannelID:    e.RoutedCID,
			SourceAddress:      e.SourceAddr,
			DestinationAddress: e.DestinationAddr,
			SegmentCount:       e.PDUCount,
			BodyText:           string(e.ShortMessage),
			BodyBinary:         e.BinaryMessage,
			Rate:               e.Rate,
			Charge:             e.Charge,
			BilledUserID:       e.UID,
		},
		Status:    e.Status,
		Trials:    e.Trials,
		CreatedAt: e.CreatedAt,
		StatusAt:  e.StatusAt,
	}
}
