package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"

	"go.uber.org/zap"
)

const defaultSweepLimit = 100

type ExpireResult struct {
	TransactionID string                   `json:"transaction_id"`
	Status        models.TransactionStatus `json:"status"`
	HoldReleased  bool                     `json:"hold_released"`
}

type SweepResult struct {
	Expired []string          `json:"expired"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// ExpireTransaction voids an overdue transaction that never reached dual
// confirmation and releases its hold in the same unit of work. Disputed
// transactions are left for review.
func (s *CashPaymentService) ExpireTransaction(ctx context.Context, txID string, now time.Time) (*ExpireResult, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	var (
		tx       *models.CashTransaction
		from     models.TransactionStatus
		released bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		tx, err = repos.Transactions.GetForUpdate(ctx, txID)
		if err != nil {
			return classify(err, "cash transaction")
		}
		if !tx.Status.CanTransitionTo(models.StatusExpired) {
			return fmt.Errorf("%w: cannot expire a transaction in status %s", ErrInvalidState, tx.Status)
		}
		if !tx.IsExpired(now) {
			return fmt.Errorf("%w: transaction expires at %s", ErrInvalidState, tx.ExpiresAt.UTC().Format(time.RFC3339))
		}

		from = tx.Status
		if err := tx.Advance(models.StatusExpired, now); err != nil {
			return classify(err, "cash transaction")
		}
		tx.Metadata.Append(models.MetadataEntry{
			Kind:   models.KindExpiry,
			Expiry: &models.ExpiryEntry{At: now, Reason: "confirmation window elapsed"},
		})
		if err := repos.Transactions.Update(ctx, tx); err != nil {
			return classify(err, "cash transaction")
		}

		_, err = repos.Holds.Release(ctx, tx.ID, models.ReleaseReasonExpired, now)
		switch {
		case err == nil:
			released = true
		case !errors.Is(err, repository.ErrNotFound):
			return classify(err, "trust hold")
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("expire cash payment", err, zap.String("transaction_id", txID))
	}

	s.logger.Info("Cash payment expired",
		zap.String("transaction_id", tx.ID),
		zap.String("from_status", string(from)),
		zap.Bool("hold_released", released),
	)
	s.recordEvents(ctx, []models.TransactionEvent{
		newEvent(tx.ID, from, models.StatusExpired, "", "expired", now),
	})
	s.notifyExpired(tx)

	return &ExpireResult{TransactionID: tx.ID, Status: tx.Status, HoldReleased: released}, nil
}

// ReleaseHold releases the transaction's active hold. A second call finds no
// active hold and returns ErrNotFound.
func (s *CashPaymentService) ReleaseHold(ctx context.Context, txID string) error {
	if txID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	now := s.now()
	var hold *models.TrustHold
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		hold, err = repos.Holds.Release(ctx, txID, models.ReleaseReasonManual, now)
		if err != nil {
			return classify(err, "active trust hold")
		}
		return nil
	})
	if err != nil {
		return s.fail("release hold", err, zap.String("transaction_id", txID))
	}

	s.logger.Info("Trust hold released",
		zap.String("transaction_id", txID),
		zap.String("hold_id", hold.ID),
		zap.String("user_id", hold.UserID),
	)
	return nil
}

// ExpireDueTransactions expires up to limit overdue transactions. Ones that
// changed status since they were listed are skipped, not failed.
func (s *CashPaymentService) ExpireDueTransactions(ctx context.Context, now time.Time, limit int) (*SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	ids, err := s.store.Repositories().Transactions.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, s.fail("list expired cash payments", err)
	}

	result := &SweepResult{Expired: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.ExpireTransaction(ctx, id, now)
		switch {
		case err == nil:
			result.Expired = append(result.Expired, id)
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			result.Skipped = append(result.Skipped, id)
		default:
			result.Failed[id] = err.Error()
		}
	}

	s.logger.Info("Expiry sweep finished",
		zap.Int("listed", len(ids)),
		zap.Int("expired", len(result.Expired)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}
