package scylla

import (
	"context"
	"fmt"
	"sort"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"cash-settlement-service/internal/bucketing"
	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/util"
)

// TransactionEventRepository stores status changes partitioned by
// (bucket, transaction_id), plus a per-day index for operations review.
//
//	CREATE TABLE cash_transaction_events (
//	    bucket int, transaction_id text, occurred_at timestamp, event_id uuid,
//	    from_status text, to_status text, actor_id text, note text,
//	    PRIMARY KEY ((bucket, transaction_id), occurred_at, event_id)
//	) WITH CLUSTERING ORDER BY (occurred_at ASC, event_id ASC);
//
//	CREATE TABLE cash_transaction_events_by_date (
//	    event_date text, bucket int, occurred_at timestamp, transaction_id text, event_id uuid, to_status text,
//	    PRIMARY KEY ((event_date, bucket), occurred_at, event_id)
//	);
type TransactionEventRepository struct {
	session   eventSession
	bucketing *bucketing.BucketingManager
}

// eventSession is the part of ScyllaClient the timeline needs.
type eventSession interface {
	AppendEvent(ctx context.Context, event, byDate []interface{}) error
	ListEvents(ctx context.Context, bucket int, transactionID string) ([]*models.TransactionEvent, error)
}

func NewTransactionEventRepository(session eventSession, bm *bucketing.BucketingManager) *TransactionEventRepository {
	return &TransactionEventRepository{session: session, bucketing: bm}
}

// Append assigns the partition bucket and a time UUID when the event has no
// valid id, then writes both tables.
func (r *TransactionEventRepository) Append(ctx context.Context, event *models.TransactionEvent) error {
	eventID, err := gocql.ParseUUID(event.EventID)
	if err != nil {
		eventID = gocql.TimeUUID()
		event.EventID = eventID.String()
	}
	event.Bucket = r.bucketing.GetTransactionBucket(event.TransactionID)
	occurredAt := event.OccurredAt.UTC()

	row := []interface{}{
		event.Bucket, event.TransactionID, occurredAt, eventID,
		string(event.FromStatus), string(event.ToStatus), event.ActorID, event.Note,
	}
	byDate := []interface{}{
		r.bucketing.GetDateBucket(occurredAt), event.Bucket, occurredAt,
		event.TransactionID, eventID, string(event.ToStatus),
	}

	if err := r.session.AppendEvent(ctx, row, byDate); err != nil {
		util.Error("Failed to append transaction event",
			zap.String("transaction_id", event.TransactionID),
			zap.String("to_status", string(event.ToStatus)),
			zap.Error(err))
		return fmt.Errorf("failed to append transaction event: %w", err)
	}
	return nil
}

func (r *TransactionEventRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*models.TransactionEvent, error) {
	bucket := r.bucketing.GetTransactionBucket(transactionID)
	events, err := r.session.ListEvents(ctx, bucket, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction events: %w", err)
	}

	for _, e := range events {
		e.Bucket = bucket
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}
