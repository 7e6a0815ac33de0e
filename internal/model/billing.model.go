package model

import (
	"github.com/shopspring/decimal"
)

// Billing is the per-unit charge attached to a submission by the gateway.
type Billing struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	UserID      string          `json:"user_id"`
}

// ChargeFor returns the amount billed for a message split into segments parts.
func (b Billing) ChargeFor(segments int) decimal.Decimal {
	return b.TotalAmount.Mul(decimal.NewFromInt(int64(segments)))
}
