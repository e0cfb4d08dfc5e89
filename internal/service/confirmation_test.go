package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDualConfirmationIsOrderIndependent(t *testing.T) {
	tests := []struct {
		name        string
		driverFirst bool
	}{
		{"driver then rider", true},
		{"rider then driver", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res := h.create("b1", "rider-1", "driver-1", "20.00")
			ctx := context.Background()

			var first, second *ConfirmationResult
			var err error
			if tt.driverFirst {
				first, err = h.confirmReceived(res.TransactionID, "driver-1", "20.00")
				require.NoError(t, err)
				assert.Equal(t, models.StatusDriverConfirmed, first.Status)
				assert.Equal(t, NextStepAwaitRider, first.NextStep)

				second, err = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
			} else {
				first, err = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
				require.NoError(t, err)
				assert.Equal(t, models.StatusRiderConfirmed, first.Status)
				assert.Equal(t, NextStepAwaitDriver, first.NextStep)

				second, err = h.confirmReceived(res.TransactionID, "driver-1", "20.00")
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusCompleted, second.Status)
			assert.Equal(t, NextStepCompleted, second.NextStep)

			tx := h.tx(res.TransactionID)
			assert.Equal(t, models.StatusCompleted, tx.Status)
			require.NotNil(t, tx.CompletedAt)
			require.NotNil(t, tx.RiderConfirmedAt)
			require.NotNil(t, tx.DriverConfirmedAt)
			assert.Len(t, tx.Metadata.Confirmations(), 2)

			rider := h.wallet("rider-1")
			assert.Equal(t, 1, rider.CompletedCashTransactions)
			assert.True(t, rider.DailyCashUsed.Equal(dec("20.00")))
			assert.True(t, rider.WeeklyCashUsed.Equal(dec("20.00")))
			assert.True(t, rider.MonthlyCashUsed.Equal(dec("20.00")))
			assert.True(t, rider.TotalTransactionValue.Equal(dec("20.00")))
			assert.InDelta(t, 72.0, rider.TrustScore, 0.001)

			driver := h.wallet("driver-1")
			assert.Equal(t, 1, driver.SuccessfulTransactions)
			assert.True(t, driver.DailyCashUsed.IsZero())
			assert.GreaterOrEqual(t, driver.TrustScore, 0.0)
			assert.LessOrEqual(t, driver.TrustScore, 100.0)

			_, err = h.activeHold(res.TransactionID)
			assert.ErrorIs(t, err, repository.ErrNotFound)
			assert.Equal(t, models.BookingPaymentCompleted, h.booked("b1").PaymentStatus)

			timeline, err := h.svc.GetTransactionTimeline(ctx, res.TransactionID, "driver-1")
			require.NoError(t, err)
			var statuses []models.TransactionStatus
			for _, e := range timeline {
				statuses = append(statuses, e.ToStatus)
			}
			assert.Equal(t, models.StatusPendingVerification, statuses[0])
			assert.Equal(t, models.StatusCompleted, statuses[len(statuses)-1])

			h.svc.dispatcher.Wait()
			completed := 0
			for _, n := range append(h.notifier.For("rider-1"), h.notifier.For("driver-1")...) {
				if n.Type == models.NotifyCashPaymentCompleted {
					completed++
				}
			}
			assert.Equal(t, 2, completed)
		})
	}
}

func TestConfirmCashReceivedFlagsAmountDiscrepancy(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.svc.ConfirmCashReceived(context.Background(), ConfirmReceivedRequest{
		TransactionID: res.TransactionID,
		DriverID:      "driver-1",
		ActualAmount:  dec("25.50"),
		Location:      &LocationInput{Latitude: 40.7, Longitude: -74.0, Accuracy: 12},
	})
	require.NoError(t, err)

	tx := h.tx(res.TransactionID)
	assert.Contains(t, tx.FraudFlags, models.FlagAmountDiscrepancy)
	assert.GreaterOrEqual(t, tx.RiskScore, 30)
	require.NotNil(t, tx.ActualAmountClaimed)
	assert.True(t, tx.ActualAmountClaimed.Equal(dec("25.50")))
	assert.True(t, tx.Amount.Equal(dec("20.00")))
	assert.True(t, tx.ExpectedAmount.Equal(dec("20.00")))
	assert.True(t, tx.GPSLocationConfirmed)
	require.NotNil(t, tx.Location)
	assert.Equal(t, baseTime, tx.Location.ConfirmedAt)

	confs := tx.Metadata.Confirmations()
	require.Len(t, confs, 1)
	assert.True(t, confs[0].Discrepancy.Equal(dec("5.50")))
	assert.Equal(t, 30, confs[0].RiskDelta)
}

func TestConfirmCashReceivedRejectsSubCentAmount(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.504")
	assert.ErrorIs(t, err, ErrInvalidInput)

	tx := h.tx(res.TransactionID)
	assert.Equal(t, models.StatusPendingVerification, tx.Status)
	assert.Nil(t, tx.ActualAmountClaimed)
	assert.Empty(t, tx.FraudFlags)
	assert.Zero(t, tx.RiskScore)

	// half a unit off is within tolerance
	_, err = h.confirmReceived(res.TransactionID, "driver-1", "20.50")
	require.NoError(t, err)

	tx = h.tx(res.TransactionID)
	assert.Equal(t, models.StatusDriverConfirmed, tx.Status)
	assert.NotContains(t, tx.FraudFlags, models.FlagAmountDiscrepancy)
	require.NotNil(t, tx.ActualAmountClaimed)
	assert.True(t, tx.ActualAmountClaimed.Equal(dec("20.50")))
}

func TestConfirmCashReceivedFlagsImplausibleLocation(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.svc.ConfirmCashReceived(context.Background(), ConfirmReceivedRequest{
		TransactionID: res.TransactionID,
		DriverID:      "driver-1",
		ActualAmount:  dec("20.30"),
		Location:      &LocationInput{Latitude: 123, Longitude: 10},
	})
	require.NoError(t, err)

	tx := h.tx(res.TransactionID)
	assert.Equal(t, []models.FraudFlag{models.FlagLocationAnomaly}, tx.FraudFlags)
	assert.Equal(t, 20, tx.RiskScore)
	assert.False(t, tx.GPSLocationConfirmed)
}

func TestWrongCodeLeavesStatusUnchanged(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.confirmPaid(res.TransactionID, "rider-1", wrongCode(res.RiderCode))
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, models.StatusPendingVerification, h.tx(res.TransactionID).Status)
	assert.Contains(t, h.sink.Reasons(), models.SuspicionCodeMismatch)

	// retryable with the right code
	out, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRiderConfirmed, out.Status)
}

func TestWrongPartyIsRejected(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.confirmReceived(res.TransactionID, "rider-1", "20.00")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.confirmPaid(res.TransactionID, "driver-1", res.RiderCode)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.confirmPaid(res.TransactionID, "stranger", res.RiderCode)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, models.StatusPendingVerification, h.tx(res.TransactionID).Status)
	assert.Len(t, h.sink.Reasons(), 3)
}

func TestDriverRetryIsRejected(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)

	_, err = h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.StatusDriverConfirmed, h.tx(res.TransactionID).Status)
}

func TestConfirmationAfterExpiryIsRejected(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	h.clock.Advance(2 * time.Hour)
	_, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.StatusPendingVerification, h.tx(res.TransactionID).Status)
}

func TestFailedAttemptsLockConfirmation(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	bad := wrongCode(res.RiderCode)

	for i := 0; i < 5; i++ {
		_, err := h.confirmPaid(res.TransactionID, "rider-1", bad)
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Contains(t, h.sink.Reasons(), models.SuspicionLockedOut)
	assert.Equal(t, models.StatusPendingVerification, h.tx(res.TransactionID).Status)

	h.clock.Advance(16 * time.Minute)
	out, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRiderConfirmed, out.Status)
}

func TestConcurrentConfirmationsCompleteOnce(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				completed++
			case errors.Is(err, ErrInvalidState):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 1, h.wallet("rider-1").CompletedCashTransactions)
	assert.Equal(t, 1, h.wallet("driver-1").CompletedCashTransactions)
	assert.True(t, h.wallet("rider-1").DailyCashUsed.Equal(dec("20.00")))
}

func TestConcurrentOppositeConfirmations(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, models.StatusCompleted, h.tx(res.TransactionID).Status)
	assert.Equal(t, 1, h.wallet("rider-1").CompletedCashTransactions)
}

// failingBookings makes completion fail at its last step.
type failingBookings struct {
	repository.BookingRepository
}

func (failingBookings) MarkPaymentCompleted(context.Context, string) error {
	return errors.New("booking service unavailable")
}

type failingStore struct {
	repository.Store
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		repos.Bookings = failingBookings{repos.Bookings}
		return fn(ctx, repos)
	})
}

func TestCompletionFailureRollsBackEverything(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)

	riderBefore := *h.wallet("rider-1")
	h.svc.store = failingStore{h.store}

	_, err = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.ErrorIs(t, err, ErrInternal)

	tx := h.tx(res.TransactionID)
	assert.Equal(t, models.StatusDriverConfirmed, tx.Status)
	assert.Nil(t, tx.RiderConfirmedAt)
	assert.Nil(t, tx.CompletedAt)
	assert.Equal(t, riderBefore, *h.wallet("rider-1"))
	_, err = h.activeHold(res.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, models.BookingPaymentPending, h.booked("b1").PaymentStatus)
}
