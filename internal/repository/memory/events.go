package memory

import (
	"context"
	"sort"
	"sync"

	"cash-settlement-service/internal/models"

	"github.com/google/uuid"
)

// EventLog is the in-process timeline used when Scylla is disabled.
type EventLog struct {
	mu     sync.RWMutex
	events map[string][]models.TransactionEvent
}

func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string][]models.TransactionEvent)}
}

func (l *EventLog) Append(ctx context.Context, event *models.TransactionEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[event.TransactionID] = append(l.events[event.TransactionID], *event)
	return nil
}

func (l *EventLog) ListByTransaction(ctx context.Context, transactionID string) ([]*models.TransactionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored := l.events[transactionID]
	out := make([]*models.TransactionEvent, 0, len(stored))
	for i := range stored {
		e := stored[i]
		out = append(out, &e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}
