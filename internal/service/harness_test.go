package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/encryption"
	"cash-settlement-service/internal/fraud"
	"cash-settlement-service/internal/hashing"
	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/notification"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotification struct {
	userID string
	n      models.Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, userID string, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID: userID, n: n})
	return f.err
}

func (f *fakeNotifier) For(userID string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, s := range f.sent {
		if s.userID == userID {
			out = append(out, s.n)
		}
	}
	return out
}

type fakeSink struct {
	mu     sync.Mutex
	events []models.SuspiciousActivity
}

func (f *fakeSink) RecordSuspiciousActivity(_ context.Context, e *models.SuspiciousActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeSink) Reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Reason
	}
	return out
}

type fakeDisputeIndex struct {
	mu      sync.Mutex
	indexed []models.CashDispute
}

func (f *fakeDisputeIndex) IndexDispute(_ context.Context, d *models.CashDispute, _ *models.CashTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, *d)
	return nil
}

type harness struct {
	t        *testing.T
	svc      *CashPaymentService
	store    *memory.Store
	clock    *testClock
	notifier *fakeNotifier
	sink     *fakeSink
	index    *fakeDisputeIndex
	events   *memory.EventLog
}

func testConfig() *config.Config {
	return &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
			PepperVersion:     1,
		},
		Settlement: config.SettlementConfig{
			Currency:            "USD",
			TransactionTTL:      2 * time.Hour,
			PlatformFeeRate:     "0.10",
			PlatformFeeCap:      "10.00",
			AmountTolerance:     "0.50",
			DefaultTrustScore:   50,
			DefaultDailyLimit:   "200.00",
			DefaultWeeklyLimit:  "1000.00",
			DefaultMonthlyLimit: "3000.00",
			WeekStartsOn:        time.Sunday,
			Timezone:            "UTC",
			MaxCodeAttempts:     5,
			CodeLockout:         15 * time.Minute,
			NotifyTimeout:       time.Second,
		},
	}
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()

	cfg := testConfig()
	h := &harness{
		t:        t,
		store:    memory.NewStore(),
		clock:    &testClock{now: baseTime},
		notifier: &fakeNotifier{},
		sink:     &fakeSink{},
		index:    &fakeDisputeIndex{},
		events:   memory.NewEventLog(),
	}

	logger := zap.NewNop()
	deps := Dependencies{
		Store:        h.store,
		Vault:        NewCodeVault(hashing.NewHasher(cfg), encryption.NewEncryptionManager(cfg, nil)),
		Events:       h.events,
		Attempts:     memory.NewAttemptTracker(cfg.Settlement.MaxCodeAttempts, cfg.Settlement.CodeLockout, h.clock.Now),
		DisputeIndex: h.index,
		Recorder:     fraud.NewRecorder(h.sink, logger),
		Dispatcher:   notification.NewDispatcher(h.notifier, time.Second, logger),
		Logger:       logger,
		Now:          h.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h.svc = NewCashPaymentService(deps, cfg.Settlement)
	t.Cleanup(h.svc.dispatcher.Wait)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) booking(id, rider, driver string) {
	h.store.PutBooking(models.Booking{
		ID:            id,
		RiderID:       rider,
		DriverID:      driver,
		PaymentMethod: "cash",
		PaymentStatus: models.BookingPaymentPending,
	})
}

func (h *harness) seedWallet(w models.UserWallet) {
	h.t.Helper()
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Wallets.EnsureForUpdate(ctx, &w); err != nil {
			return err
		}
		return repos.Wallets.Update(ctx, &w)
	})
	require.NoError(h.t, err)
}

func (h *harness) create(bookingID, rider, driver, amount string) *CreateCashPaymentResult {
	h.t.Helper()
	h.booking(bookingID, rider, driver)
	res, err := h.svc.CreateCashPayment(context.Background(), CreateCashPaymentRequest{
		BookingID: bookingID,
		RiderID:   rider,
		DriverID:  driver,
		Amount:    dec(amount),
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) tx(id string) *models.CashTransaction {
	h.t.Helper()
	tx, err := h.store.Repositories().Transactions.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return tx
}

func (h *harness) wallet(userID string) *models.UserWallet {
	h.t.Helper()
	w, err := h.store.Repositories().Wallets.Get(context.Background(), userID)
	require.NoError(h.t, err)
	return w
}

func (h *harness) booked(id string) *models.Booking {
	h.t.Helper()
	b, err := h.store.Repositories().Bookings.FindBooking(context.Background(), id)
	require.NoError(h.t, err)
	return b
}

func (h *harness) activeHold(txID string) (*models.TrustHold, error) {
	return h.store.Repositories().Holds.GetActiveByTransaction(context.Background(), txID)
}

func (h *harness) confirmReceived(txID, driver, amount string) (*ConfirmationResult, error) {
	return h.svc.ConfirmCashReceived(context.Background(), ConfirmReceivedRequest{
		TransactionID: txID,
		DriverID:      driver,
		ActualAmount:  dec(amount),
	})
}

func (h *harness) confirmPaid(txID, rider, code string) (*ConfirmationResult, error) {
	return h.svc.ConfirmCashPaid(context.Background(), ConfirmPaidRequest{
		TransactionID:    txID,
		RiderID:          rider,
		ConfirmationCode: code,
	})
}

// wrongCode returns a 6 digit code guaranteed to differ from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
