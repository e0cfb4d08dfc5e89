package fraud

import (
	"context"
	"time"

	"cash-settlement-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SuspiciousActivitySink stores suspicious activity for offline review.
type SuspiciousActivitySink interface {
	RecordSuspiciousActivity(ctx context.Context, event *models.SuspiciousActivity) error
}

const defaultSinkTimeout = 2 * time.Second

// Recorder logs suspicious activity and forwards it to the sink. Sink failures
// never reach the caller and a sink write is bounded by timeout.
type Recorder struct {
	sink    SuspiciousActivitySink
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(sink SuspiciousActivitySink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, timeout: defaultSinkTimeout, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, userID, transactionID string, action models.SuspiciousAction, reason string, metadata map[string]string) {
	now := r.now().UTC()
	event := &models.SuspiciousActivity{
		EventID:       uuid.NewString(),
		UserID:        userID,
		TransactionID: transactionID,
		Action:        action,
		Reason:        reason,
		Metadata:      metadata,
		EventDate:     now.Format("2006-01-02"),
		OccurredAt:    now,
	}

	r.logger.Warn("Suspicious activity",
		zap.String("event_id", event.EventID),
		zap.String("user_id", userID),
		zap.String("transaction_id", transactionID),
		zap.String("action", string(action)),
		zap.String("reason", reason),
		zap.Any("metadata", metadata),
	)

	if r.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sink.RecordSuspiciousActivity(ctx, event); err != nil {
		r.logger.Error("Failed to store suspicious activity",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}
