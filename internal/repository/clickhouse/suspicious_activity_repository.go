package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"cash-settlement-service/internal/bucketing"
	"cash-settlement-service/internal/models"
)

// batchInserter is the part of client.ClickHouseClient the sink uses.
type batchInserter interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

// SuspiciousActivityRepository appends suspicious-activity rows to:
//
//	CREATE TABLE suspicious_activity (
//	    event_date Date, user_bucket UInt16, occurred_at DateTime64(3),
//	    event_id UUID, user_id String, transaction_id String,
//	    action LowCardinality(String), reason LowCardinality(String), metadata String
//	) ENGINE = MergeTree PARTITION BY toYYYYMM(event_date)
//	ORDER BY (event_date, user_bucket, occurred_at);
type SuspiciousActivityRepository struct {
	client    batchInserter
	bucketing *bucketing.BucketingManager
}

func NewSuspiciousActivityRepository(client batchInserter, bm *bucketing.BucketingManager) *SuspiciousActivityRepository {
	return &SuspiciousActivityRepository{client: client, bucketing: bm}
}

const insertSuspiciousActivity = `INSERT INTO suspicious_activity
	(event_date, user_bucket, occurred_at, event_id, user_id, transaction_id, action, reason, metadata)`

func (r *SuspiciousActivityRepository) RecordSuspiciousActivity(ctx context.Context, e *models.SuspiciousActivity) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode suspicious activity metadata: %w", err)
	}

	row := []interface{}{
		e.OccurredAt.UTC(),
		uint16(r.bucketing.GetEventBucket(e.UserID)),
		e.OccurredAt.UTC(),
		e.EventID,
		e.UserID,
		e.TransactionID,
		string(e.Action),
		e.Reason,
		string(metadata),
	}

	if err := r.client.BatchInsert(ctx, insertSuspiciousActivity, [][]interface{}{row}); err != nil {
		return fmt.Errorf("failed to insert suspicious activity: %w", err)
	}
	return nil
}
