package models

import "time"

// TransactionEvent is one committed status change in a transaction's timeline.
type TransactionEvent struct {
	Bucket        int               `db:"bucket" json:"-"`
	TransactionID string            `db:"transaction_id" json:"transaction_id"`
	EventID       string            `db:"event_id" json:"event_id"`
	OccurredAt    time.Time         `db:"occurred_at" json:"occurred_at"`
	FromStatus    TransactionStatus `db:"from_status" json:"from_status"`
	ToStatus      TransactionStatus `db:"to_status" json:"to_status"`
	ActorID       string            `db:"actor_id" json:"actor_id,omitempty"`
	Note          string            `db:"note" json:"note,omitempty"`
}
