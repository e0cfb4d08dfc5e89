package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTxRollsBackEveryMutation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.PutBooking(models.Booking{ID: "b1", RiderID: "r1", DriverID: "d1"})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		require.NoError(t, repos.Bookings.UpdatePaymentReference(ctx, "b1", "tx1"))
		require.NoError(t, repos.Transactions.Create(ctx, &models.CashTransaction{ID: "tx1", BookingID: "b1"}))
		require.NoError(t, repos.Holds.Create(ctx, &models.TrustHold{ID: "h1", TransactionID: "tx1", Status: models.HoldStatusActive}))
		_, err := repos.Wallets.EnsureForUpdate(ctx, &models.UserWallet{UserID: "r1"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	repos := s.Repositories()
	b, err := repos.Bookings.FindBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, b.PaymentReference)

	_, err = repos.Transactions.GetByID(ctx, "tx1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repos.Holds.GetActiveByTransaction(ctx, "tx1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repos.Wallets.Get(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTransactionUpdateKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repos := s.Repositories()

	tx := &models.CashTransaction{
		ID:             "tx1",
		Amount:         decimal.NewFromInt(20),
		ExpectedAmount: decimal.NewFromInt(20),
		RiderCode:      models.SealedCode{Hash: "rider"},
		Status:         models.StatusPendingVerification,
	}
	require.NoError(t, repos.Transactions.Create(ctx, tx))

	tx.Amount = decimal.NewFromInt(999)
	tx.RiderCode.Hash = "forged"
	tx.Status = models.StatusRiderConfirmed
	require.NoError(t, repos.Transactions.Update(ctx, tx))

	got, err := repos.Transactions.GetByID(ctx, "tx1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "rider", got.RiderCode.Hash)
	assert.Equal(t, models.StatusRiderConfirmed, got.Status)
}

func TestHoldReleaseHappensOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repos := s.Repositories()
	now := time.Now()

	require.NoError(t, repos.Holds.Create(ctx, &models.TrustHold{ID: "h1", TransactionID: "tx1", Status: models.HoldStatusActive}))
	assert.ErrorIs(t, repos.Holds.Create(ctx, &models.TrustHold{ID: "h2", TransactionID: "tx1", Status: models.HoldStatusActive}), repository.ErrAlreadyExists)

	h, err := repos.Holds.Release(ctx, "tx1", models.ReleaseReasonCompleted, now)
	require.NoError(t, err)
	assert.Equal(t, models.HoldStatusReleased, h.Status)
	assert.Equal(t, models.ReleaseReasonCompleted, h.ReleaseReason)

	_, err = repos.Holds.Release(ctx, "tx1", models.ReleaseReasonCompleted, now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repos := s.Repositories()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, tx := range []models.CashTransaction{
		{ID: "late", Status: models.StatusPendingVerification, ExpiresAt: now.Add(-time.Minute)},
		{ID: "later", Status: models.StatusDriverConfirmed, ExpiresAt: now.Add(-time.Hour)},
		{ID: "fresh", Status: models.StatusPendingVerification, ExpiresAt: now.Add(time.Minute)},
		{ID: "done", Status: models.StatusCompleted, ExpiresAt: now.Add(-time.Hour)},
		{ID: "disputed", Status: models.StatusDisputed, ExpiresAt: now.Add(-time.Hour)},
	} {
		tx := tx
		require.NoError(t, repos.Transactions.Create(ctx, &tx))
	}

	ids, err := repos.Transactions.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "late"}, ids)

	ids, err = repos.Transactions.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, ids)
}
