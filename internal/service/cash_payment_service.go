package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/fraud"
	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/notification"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/trust"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	defaultFeeRate = decimal.RequireFromString("0.10")
	defaultFeeCap  = decimal.RequireFromString("10.00")
)

const (
	defaultTTL      = 2 * time.Hour
	defaultCurrency = "USD"
	moneyPlaces     = 2

	NextStepAwaitRider  = "awaiting_rider_confirmation"
	NextStepAwaitDriver = "awaiting_driver_confirmation"
	NextStepCompleted   = "completed"
)

// Dependencies wires the ledger to its collaborators. Store and Vault are
// required; the rest fall back to no-op or default implementations.
type Dependencies struct {
	Store        repository.Store
	Vault        *CodeVault
	Events       repository.TransactionEventRepository
	Attempts     repository.ConfirmationAttemptRepository
	DisputeIndex repository.DisputeIndexRepository
	Assessor     *fraud.Assessor
	Recorder     *fraud.Recorder
	Dispatcher   *notification.Dispatcher
	Logger       *zap.Logger
	Now          func() time.Time
}

// CashPaymentService is the transaction ledger for cash settlements. Every
// public operation runs as one unit of work on the store; notifications,
// timeline events and the dispute index are written after commit and never
// fail the operation.
type CashPaymentService struct {
	store        repository.Store
	vault        *CodeVault
	events       repository.TransactionEventRepository
	attempts     repository.ConfirmationAttemptRepository
	disputeIndex repository.DisputeIndexRepository
	assessor     *fraud.Assessor
	recorder     *fraud.Recorder
	dispatcher   *notification.Dispatcher
	logger       *zap.Logger
	now          func() time.Time

	policy   trust.Policy
	currency string
	ttl      time.Duration
	feeRate  decimal.Decimal
	feeCap   decimal.Decimal
}

func NewCashPaymentService(deps Dependencies, cfg config.SettlementConfig) *CashPaymentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &CashPaymentService{
		store:        deps.Store,
		vault:        deps.Vault,
		events:       deps.Events,
		attempts:     deps.Attempts,
		disputeIndex: deps.DisputeIndex,
		assessor:     deps.Assessor,
		recorder:     deps.Recorder,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		now:          deps.Now,
		policy:       trust.PolicyFromConfig(cfg),
		currency:     strings.ToUpper(cfg.Currency),
		ttl:          cfg.TransactionTTL,
		feeRate:      parseDecimal(cfg.PlatformFeeRate, defaultFeeRate),
		feeCap:       parseDecimal(cfg.PlatformFeeCap, defaultFeeCap),
	}

	if s.assessor == nil {
		s.assessor = fraud.NewAssessor(parseDecimal(cfg.AmountTolerance, fraud.DefaultAmountTolerance), nil)
	}
	if s.recorder == nil {
		s.recorder = fraud.NewRecorder(nil, logger)
	}
	if s.dispatcher == nil {
		s.dispatcher = notification.NewDispatcher(nil, cfg.NotifyTimeout, logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	return s
}

func parseDecimal(s string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}

// PlatformFee is min(amount*rate, cap) rounded to cents.
func PlatformFee(amount, rate, feeCap decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(rate)
	if fee.GreaterThan(feeCap) {
		fee = feeCap
	}
	return fee.Round(moneyPlaces)
}

type CreateCashPaymentRequest struct {
	BookingID string
	RiderID   string
	DriverID  string
	Amount    decimal.Decimal
}

type CreateCashPaymentResult struct {
	TransactionID string          `json:"transaction_id"`
	RiderCode     string          `json:"rider_code"`
	Instructions  string          `json:"instructions"`
	TrustScore    float64         `json:"trust_score"`
	Amount        decimal.Decimal `json:"amount"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	Currency      string          `json:"currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func validateCreate(req CreateCashPaymentRequest) error {
	switch {
	case strings.TrimSpace(req.BookingID) == "":
		return fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	case strings.TrimSpace(req.RiderID) == "" || strings.TrimSpace(req.DriverID) == "":
		return fmt.Errorf("%w: rider and driver are required", ErrInvalidInput)
	case req.RiderID == req.DriverID:
		return fmt.Errorf("%w: rider and driver must differ", ErrInvalidInput)
	case !req.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case !req.Amount.Equal(req.Amount.Round(moneyPlaces)):
		return fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidInput, moneyPlaces)
	}
	return nil
}

// CreateCashPayment opens a cash settlement for a booking. Only the rider code
// is returned; the driver code is sealed and never leaves the store through
// this path. An ineligible rider gets an *IneligibleError and nothing but the
// wallet's lazy bookkeeping is persisted.
func (s *CashPaymentService) CreateCashPayment(ctx context.Context, req CreateCashPaymentRequest) (*CreateCashPaymentResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	txID := uuid.NewString()

	riderCode, riderSealed, err := s.issueCode(ctx, txID, models.RoleRider)
	if err != nil {
		return nil, s.fail("create cash payment", err, zap.String("booking_id", req.BookingID))
	}
	_, driverSealed, err := s.issueCode(ctx, txID, models.RoleDriver)
	if err != nil {
		return nil, s.fail("create cash payment", err, zap.String("booking_id", req.BookingID))
	}

	var (
		decision      trust.Decision
		tx            *models.CashTransaction
		partyMismatch bool
	)

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		booking, err := repos.Bookings.FindBooking(ctx, req.BookingID)
		if err != nil {
			return classify(err, "booking")
		}
		if booking.RiderID != req.RiderID || booking.DriverID != req.DriverID {
			partyMismatch = true
			return fmt.Errorf("%w: parties do not match booking", ErrUnauthorized)
		}
		if err := s.checkBookingOpen(ctx, repos, booking); err != nil {
			return err
		}

		wallet, err := s.lockWallet(ctx, repos, req.RiderID, now)
		if err != nil {
			return err
		}
		decision = trust.CheckEligibility(*wallet, req.Amount)
		if !decision.Eligible {
			return nil
		}

		tx = s.newTransaction(txID, req, riderSealed, driverSealed, wallet.TrustScore, decision.RequiredTrust, now)
		if err := repos.Transactions.Create(ctx, tx); err != nil {
			return classify(err, "cash transaction")
		}

		hold := &models.TrustHold{
			ID:            uuid.NewString(),
			UserID:        req.RiderID,
			TransactionID: txID,
			Amount:        req.Amount,
			Reason:        models.HoldReasonCashSettlement,
			Status:        models.HoldStatusActive,
			ExpiresAt:     tx.ExpiresAt,
			CreatedAt:     now,
		}
		if err := repos.Holds.Create(ctx, hold); err != nil {
			return classify(err, "trust hold")
		}

		if err := repos.Bookings.UpdatePaymentReference(ctx, req.BookingID, txID); err != nil {
			return classify(err, "booking")
		}
		return nil
	})

	if partyMismatch {
		s.recorder.Record(ctx, req.RiderID, "", models.ActionCreatePayment, models.SuspicionBookingParty, map[string]string{
			"booking_id": req.BookingID,
			"driver_id":  req.DriverID,
		})
	}
	if err != nil {
		return nil, s.fail("create cash payment", err, zap.String("booking_id", req.BookingID))
	}

	if !decision.Eligible {
		s.logger.Info("Cash payment declined",
			zap.String("booking_id", req.BookingID),
			zap.String("rider_id", req.RiderID),
			zap.String("reason", decision.Reason),
			zap.Float64("trust_score", decision.TrustScore),
			zap.Float64("required_trust", decision.RequiredTrust),
			zap.String("period", string(decision.Period)),
		)
		return nil, newIneligibleError(decision)
	}

	s.logger.Info("Cash payment created",
		zap.String("transaction_id", txID),
		zap.String("booking_id", req.BookingID),
		zap.String("amount", req.Amount.StringFixed(moneyPlaces)),
		zap.String("platform_fee", tx.PlatformFee.StringFixed(moneyPlaces)),
	)

	s.recordEvents(ctx, []models.TransactionEvent{
		newEvent(txID, "", models.StatusPendingVerification, req.RiderID, "created", now),
	})
	s.notifyCreated(tx, riderCode)

	return &CreateCashPaymentResult{
		TransactionID: txID,
		RiderCode:     riderCode,
		Instructions:  createInstructions(tx),
		TrustScore:    decision.TrustScore,
		Amount:        tx.Amount,
		PlatformFee:   tx.PlatformFee,
		Currency:      tx.Currency,
		ExpiresAt:     tx.ExpiresAt,
	}, nil
}

func (s *CashPaymentService) issueCode(ctx context.Context, txID string, role models.PartyRole) (string, models.SealedCode, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", models.SealedCode{}, err
	}
	sealed, err := s.vault.Seal(ctx, txID, role, code)
	if err != nil {
		return "", models.SealedCode{}, err
	}
	return code, sealed, nil
}

// checkBookingOpen rejects bookings that are already paid or that point at a
// cash transaction which is still in flight.
func (s *CashPaymentService) checkBookingOpen(ctx context.Context, repos repository.Repositories, booking *models.Booking) error {
	if booking.PaymentStatus == models.BookingPaymentCompleted {
		return fmt.Errorf("%w: booking is already paid", ErrInvalidState)
	}
	if booking.PaymentReference == "" {
		return nil
	}

	existing, err := repos.Transactions.GetByID(ctx, booking.PaymentReference)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return classify(err, "cash transaction")
	case !existing.Status.IsTerminal():
		return fmt.Errorf("%w: booking already has a pending cash payment", ErrInvalidState)
	}
	return nil
}

// lockWallet creates the wallet on first use, locks it and applies any
// pending rolling resets so limit checks see current-period usage.
func (s *CashPaymentService) lockWallet(ctx context.Context, repos repository.Repositories, userID string, now time.Time) (*models.UserWallet, error) {
	fresh := trust.NewWallet(userID, now, s.policy)
	stored, err := repos.Wallets.EnsureForUpdate(ctx, &fresh)
	if err != nil {
		return nil, classify(err, "wallet")
	}

	wallet, changed := trust.ResetRollingCounters(*stored, now, s.policy.Location)
	if changed {
		if err := repos.Wallets.Update(ctx, &wallet); err != nil {
			return nil, classify(err, "wallet")
		}
	}
	return &wallet, nil
}

func (s *CashPaymentService) newTransaction(txID string, req CreateCashPaymentRequest, riderCode, driverCode models.SealedCode, riderTrust, requiredTrust float64, now time.Time) *models.CashTransaction {
	tx := &models.CashTransaction{
		ID:             txID,
		BookingID:      req.BookingID,
		RiderID:        req.RiderID,
		DriverID:       req.DriverID,
		Amount:         req.Amount,
		ExpectedAmount: req.Amount,
		PlatformFee:    PlatformFee(req.Amount, s.feeRate, s.feeCap),
		Currency:       s.currency,
		Status:         models.StatusPendingVerification,
		RiderCode:      riderCode,
		DriverCode:     driverCode,
		FraudFlags:     []models.FraudFlag{},
		ExpiresAt:      now.Add(s.ttl),
		Metadata:       models.NewMetadata(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx.Metadata.Append(models.MetadataEntry{
		Kind: models.KindSettlement,
		Settlement: &models.SettlementEntry{
			PaymentMethod: "cash",
			Currency:      s.currency,
			FeeRate:       s.feeRate,
			FeeCap:        s.feeCap,
			RiderTrust:    riderTrust,
			RequiredTrust: requiredTrust,
		},
	})
	return tx
}

func createInstructions(tx *models.CashTransaction) string {
	return fmt.Sprintf("Pay the driver %s %s in cash, then confirm the payment with your code. The driver confirms receipt separately. This request expires at %s.",
		tx.Amount.StringFixed(moneyPlaces), tx.Currency, tx.ExpiresAt.UTC().Format(time.RFC3339))
}

// fail classifies err and logs the ones the caller cannot act on.
func (s *CashPaymentService) fail(op string, err error, fields ...zap.Field) error {
	err = classify(err, op)
	if errors.Is(err, ErrInternal) {
		s.logger.Error("Cash payment operation failed",
			append(fields, zap.String("operation", op), zap.Error(err))...)
	}
	return err
}

func newEvent(txID string, from, to models.TransactionStatus, actorID, note string, at time.Time) models.TransactionEvent {
	return models.TransactionEvent{
		TransactionID: txID,
		EventID:       uuid.NewString(),
		OccurredAt:    at,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actorID,
		Note:          note,
	}
}

// recordEvents appends committed status changes to the timeline.
func (s *CashPaymentService) recordEvents(ctx context.Context, events []models.TransactionEvent) {
	if s.events == nil {
		return
	}
	for i := range events {
		e := events[i]
		if err := s.events.Append(context.WithoutCancel(ctx), &e); err != nil {
			s.logger.Warn("Failed to record transaction event",
				zap.String("transaction_id", e.TransactionID),
				zap.String("to_status", string(e.ToStatus)),
				zap.Error(err),
			)
		}
	}
}
