package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cash-settlement-service/internal/util"
)

const (
	attemptPrefix = "cash_confirm_attempts:"
	lockPrefix    = "cash_confirm_lock:"
)

// counterClient is the part of client.RedisClient the cache needs.
type counterClient interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// ConfirmationAttemptCache counts failed confirmation attempts per
// transaction and user and locks the pair once maxAttempts is reached.
type ConfirmationAttemptCache struct {
	client      counterClient
	maxAttempts int
	lockout     time.Duration
	timeout     time.Duration
}

func NewConfirmationAttemptCache(c counterClient, maxAttempts int, lockout time.Duration) *ConfirmationAttemptCache {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &ConfirmationAttemptCache{
		client:      c,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		timeout:     2 * time.Second,
	}
}

func attemptKey(transactionID, userID string) string {
	return fmt.Sprintf("%s%s:%s", attemptPrefix, transactionID, userID)
}

func lockKey(transactionID, userID string) string {
	return fmt.Sprintf("%s%s:%s", lockPrefix, transactionID, userID)
}

func (c *ConfirmationAttemptCache) IsLocked(ctx context.Context, transactionID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	locked, err := c.client.Exists(ctx, lockKey(transactionID, userID))
	if err != nil {
		util.Error("Failed to check confirmation lock",
			zap.String("transaction_id", transactionID),
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check confirmation lock: %w", err)
	}
	return locked, nil
}

// RecordFailure returns the failure count inside the current window.
func (c *ConfirmationAttemptCache) RecordFailure(ctx context.Context, transactionID, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, attemptKey(transactionID, userID), c.lockout)
	if err != nil {
		util.Error("Failed to increment confirmation attempts",
			zap.String("transaction_id", transactionID),
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment confirmation attempts: %w", err)
	}

	if int(count) >= c.maxAttempts {
		if err := c.client.Set(ctx, lockKey(transactionID, userID), "locked", c.lockout); err != nil {
			util.Error("Failed to lock confirmation attempts",
				zap.String("transaction_id", transactionID),
				zap.String("user_id", userID),
				zap.Error(err))
			return int(count), fmt.Errorf("failed to lock confirmation attempts: %w", err)
		}
		util.Warn("Confirmation attempts locked",
			zap.String("transaction_id", transactionID),
			zap.String("user_id", userID),
			zap.Int64("attempts", count),
			zap.Duration("lockout", c.lockout))
	}

	return int(count), nil
}

func (c *ConfirmationAttemptCache) Reset(ctx context.Context, transactionID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, attemptKey(transactionID, userID), lockKey(transactionID, userID)); err != nil {
		util.Error("Failed to reset confirmation attempts",
			zap.String("transaction_id", transactionID),
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to reset confirmation attempts: %w", err)
	}
	return nil
}
