package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusReleased HoldStatus = "released"
)

// TrustHold pins a rider's amount while a settlement is pending. Exactly one
// active hold exists per pending transaction.
type TrustHold struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	TransactionID string          `db:"transaction_id"`
	Amount        decimal.Decimal `db:"amount"`
	Reason        string          `db:"reason"`
	Status        HoldStatus      `db:"status"`
	ExpiresAt     time.Time       `db:"expires_at"`
	CreatedAt     time.Time       `db:"created_at"`
	ReleasedAt    *time.Time      `db:"released_at"`
	ReleaseReason string          `db:"release_reason"`
}

const (
	HoldReasonCashSettlement = "cash_payment_pending"

	ReleaseReasonCompleted = "completed"
	ReleaseReasonExpired   = "expired"
	ReleaseReasonManual    = "released"
)
