package models

import "time"

type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
)

type CashDispute struct {
	ID            string        `db:"id" json:"id"`
	TransactionID string        `db:"transaction_id" json:"transaction_id"`
	ReporterID    string        `db:"reporter_id" json:"reporter_id"`
	ReporterRole  PartyRole     `db:"reporter_role" json:"reporter_role"`
	Reason        string        `db:"reason" json:"reason"`
	Description   string        `db:"description" json:"description"`
	Evidence      []string      `db:"evidence" json:"evidence"`
	Priority      int           `db:"priority" json:"priority"`
	Status        DisputeStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}
