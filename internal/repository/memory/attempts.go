package memory

import (
	"context"
	"sync"
	"time"
)

type attemptState struct {
	failures    int
	windowEnds  time.Time
	lockedUntil time.Time
}

// AttemptTracker mirrors the Redis confirmation throttle for local runs and
// tests: failures count inside a lockout window and reaching max locks the
// pair for the same window.
type AttemptTracker struct {
	mu          sync.Mutex
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	state       map[string]*attemptState
}

func NewAttemptTracker(maxAttempts int, lockout time.Duration, now func() time.Time) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &AttemptTracker{
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         now,
		state:       make(map[string]*attemptState),
	}
}

func attemptsKey(transactionID, userID string) string {
	return transactionID + ":" + userID
}

func (t *AttemptTracker) IsLocked(ctx context.Context, transactionID, userID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[attemptsKey(transactionID, userID)]
	return ok && t.now().Before(st.lockedUntil), nil
}

func (t *AttemptTracker) RecordFailure(ctx context.Context, transactionID, userID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := attemptsKey(transactionID, userID)
	st, ok := t.state[key]
	if !ok || !now.Before(st.windowEnds) {
		st = &attemptState{windowEnds: now.Add(t.lockout)}
		t.state[key] = st
	}
	st.failures++
	count := st.failures
	if count >= t.maxAttempts {
		st.lockedUntil = now.Add(t.lockout)
		st.failures = 0
		st.windowEnds = st.lockedUntil
	}
	return count, nil
}

func (t *AttemptTracker) Reset(ctx context.Context, transactionID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, attemptsKey(transactionID, userID))
	return nil
}
