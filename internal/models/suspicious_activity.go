package models

import "time"

type SuspiciousAction string

const (
	ActionConfirmReceived SuspiciousAction = "confirm_cash_received"
	ActionConfirmPaid     SuspiciousAction = "confirm_cash_paid"
	ActionCreatePayment   SuspiciousAction = "create_cash_payment"
	ActionViewTransaction SuspiciousAction = "view_transaction"
	ActionReportDispute   SuspiciousAction = "report_dispute"
)

const (
	SuspicionWrongParty    = "wrong_party"
	SuspicionCodeMismatch  = "code_mismatch"
	SuspicionLockedOut     = "attempts_locked"
	SuspicionBookingParty  = "booking_party_mismatch"
	SuspicionScriptPayload = "script_payload"
)

// SuspiciousActivity is kept for offline fraud review.
type SuspiciousActivity struct {
	EventID       string            `db:"event_id"`
	UserID        string            `db:"user_id"`
	TransactionID string            `db:"transaction_id"`
	Action        SuspiciousAction  `db:"action"`
	Reason        string            `db:"reason"`
	Metadata      map[string]string `db:"metadata"`
	EventDate     string            `db:"event_date"`
	OccurredAt    time.Time         `db:"occurred_at"`
}
