package service

import (
	"context"
	"testing"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportDispute(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	ctx := context.Background()

	out, err := h.svc.ReportDispute(ctx, ReportDisputeRequest{
		TransactionID: res.TransactionID,
		UserID:        "rider-1",
		Reason:        "Wrong Amount",
		Description:   "driver asked for <b>more</b>",
		Evidence:      []string{"receipt.jpg", "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, out.Status)
	assert.Equal(t, 80, out.Priority)

	tx := h.tx(res.TransactionID)
	assert.Equal(t, models.StatusDisputed, tx.Status)
	assert.Equal(t, "wrong_amount", tx.DisputeReason)

	d, err := h.store.Repositories().Disputes.GetByID(ctx, out.DisputeID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRider, d.ReporterRole)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
	assert.Equal(t, []string{"receipt.jpg"}, d.Evidence)
	assert.NotContains(t, d.Description, "<b>")

	// wallets are untouched and the hold waits for review
	assert.Equal(t, 0, h.wallet("rider-1").DisputedTransactions)
	_, err = h.activeHold(res.TransactionID)
	assert.NoError(t, err)

	require.Len(t, h.index.indexed, 1)
	assert.Equal(t, out.DisputeID, h.index.indexed[0].ID)

	h.svc.dispatcher.Wait()
	var disputed []models.Notification
	for _, n := range h.notifier.For("driver-1") {
		if n.Type == models.NotifyCashPaymentDisputed {
			disputed = append(disputed, n)
		}
	}
	require.Len(t, disputed, 1)
	assert.Equal(t, "rider", disputed[0].Data["reported_by"])

	_, err = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReportDisputeRejections(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	ctx := context.Background()

	_, err := h.svc.ReportDispute(ctx, ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "stranger", Reason: "fraud"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, h.sink.Reasons(), models.SuspicionWrongParty)

	_, err = h.svc.ReportDispute(ctx, ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "rider-1", Reason: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.svc.ReportDispute(ctx, ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "driver-1", Reason: "rider_issue"})
	require.NoError(t, err)

	_, err = h.svc.ReportDispute(ctx, ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "rider-1", Reason: "fraud"})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.svc.ReportDispute(ctx, ReportDisputeRequest{TransactionID: "missing", UserID: "rider-1", Reason: "fraud"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportDisputeAfterCompletionIsRejected(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)
	_, err = h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.NoError(t, err)

	_, err = h.svc.ReportDispute(context.Background(), ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "rider-1", Reason: "fraud"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExpireTransaction(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	ctx := context.Background()

	_, err := h.svc.ExpireTransaction(ctx, res.TransactionID, baseTime.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)

	out, err := h.svc.ExpireTransaction(ctx, res.TransactionID, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, out.Status)
	assert.True(t, out.HoldReleased)

	tx := h.tx(res.TransactionID)
	assert.Equal(t, models.StatusExpired, tx.Status)
	last := tx.Metadata.Entries[len(tx.Metadata.Entries)-1]
	assert.Equal(t, models.KindExpiry, last.Kind)

	_, err = h.activeHold(res.TransactionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// usage is only consumed on completion
	assert.True(t, h.wallet("rider-1").DailyCashUsed.IsZero())

	_, err = h.svc.ExpireTransaction(ctx, res.TransactionID, baseTime.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExpireTransactionLeavesDisputesAlone(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	_, err := h.svc.ReportDispute(context.Background(), ReportDisputeRequest{TransactionID: res.TransactionID, UserID: "rider-1", Reason: "no_payment"})
	require.NoError(t, err)

	_, err = h.svc.ExpireTransaction(context.Background(), res.TransactionID, baseTime.Add(5*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.StatusDisputed, h.tx(res.TransactionID).Status)
}

func TestReleaseHoldHappensOnce(t *testing.T) {
	h := newHarness(t)
	res := h.create("b1", "rider-1", "driver-1", "20.00")
	ctx := context.Background()

	require.NoError(t, h.svc.ReleaseHold(ctx, res.TransactionID))
	assert.ErrorIs(t, h.svc.ReleaseHold(ctx, res.TransactionID), ErrNotFound)

	// completion tolerates a hold released out of band
	_, err := h.confirmReceived(res.TransactionID, "driver-1", "20.00")
	require.NoError(t, err)
	out, err := h.confirmPaid(res.TransactionID, "rider-1", res.RiderCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, out.Status)
}

func TestExpireDueTransactions(t *testing.T) {
	h := newHarness(t)
	due1 := h.create("b1", "rider-1", "driver-1", "10.00")
	due2 := h.create("b2", "rider-2", "driver-2", "10.00")
	done := h.create("b3", "rider-3", "driver-3", "10.00")

	_, err := h.confirmReceived(done.TransactionID, "driver-3", "10.00")
	require.NoError(t, err)
	_, err = h.confirmPaid(done.TransactionID, "rider-3", done.RiderCode)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Minute)
	fresh := h.create("b4", "rider-4", "driver-4", "10.00")

	out, err := h.svc.ExpireDueTransactions(context.Background(), baseTime.Add(2*time.Hour+time.Minute), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{due1.TransactionID, due2.TransactionID}, out.Expired)
	assert.Empty(t, out.Failed)

	assert.Equal(t, models.StatusPendingVerification, h.tx(fresh.TransactionID).Status)
	assert.Equal(t, models.StatusCompleted, h.tx(done.TransactionID).Status)

	h.svc.dispatcher.Wait()
	var expired int
	for _, n := range h.notifier.For("rider-1") {
		if n.Type == models.NotifyCashPaymentExpired {
			expired++
		}
	}
	assert.Equal(t, 1, expired)
}
