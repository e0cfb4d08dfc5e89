package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/trust"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionView is a transaction as one of its parties sees it. Only the
// requester's own confirmation code is included.
type TransactionView struct {
	ID                  string                   `json:"id"`
	BookingID           string                   `json:"booking_id"`
	Role                models.PartyRole         `json:"role"`
	CounterpartyID      string                   `json:"counterparty_id"`
	Amount              decimal.Decimal          `json:"amount"`
	ExpectedAmount      decimal.Decimal          `json:"expected_amount"`
	ActualAmountClaimed *decimal.Decimal         `json:"actual_amount_claimed,omitempty"`
	PlatformFee         decimal.Decimal          `json:"platform_fee"`
	Currency            string                   `json:"currency"`
	Status              models.TransactionStatus `json:"status"`
	ConfirmationCode    string                   `json:"confirmation_code,omitempty"`
	RiderConfirmedAt    *time.Time               `json:"rider_confirmed_at,omitempty"`
	DriverConfirmedAt   *time.Time               `json:"driver_confirmed_at,omitempty"`
	ExpiresAt           time.Time                `json:"expires_at"`
	CompletedAt         *time.Time               `json:"completed_at,omitempty"`
	DisputeReason       string                   `json:"dispute_reason,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
}

type LimitView struct {
	Limit     decimal.Decimal `json:"limit"`
	Used      decimal.Decimal `json:"used"`
	Remaining decimal.Decimal `json:"remaining"`
}

type WalletInfo struct {
	UserID                    string                           `json:"user_id"`
	TrustScore                float64                          `json:"trust_score"`
	VerificationLevel         models.VerificationLevel         `json:"verification_level"`
	PhoneVerified             bool                             `json:"phone_verified"`
	IDVerified                bool                             `json:"id_verified"`
	AddressVerified           bool                             `json:"address_verified"`
	CompletedCashTransactions int                              `json:"completed_cash_transactions"`
	SuccessfulTransactions    int                              `json:"successful_transactions"`
	DisputedTransactions      int                              `json:"disputed_transactions"`
	TotalTransactionValue     decimal.Decimal                  `json:"total_transaction_value"`
	Limits                    map[models.LimitPeriod]LimitView `json:"limits"`
	IsSuspended               bool                             `json:"is_suspended"`
	SuspensionReason          string                           `json:"suspension_reason,omitempty"`
}

// authorizeView loads a transaction for one of its parties. Outsiders are
// reported and get ErrUnauthorized.
func (s *CashPaymentService) authorizeView(ctx context.Context, txID, requesterID string) (*models.CashTransaction, models.PartyRole, error) {
	if txID == "" || requesterID == "" {
		return nil, models.RoleNone, fmt.Errorf("%w: transaction and requester are required", ErrInvalidInput)
	}

	tx, err := s.store.Repositories().Transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, models.RoleNone, s.fail("load cash transaction", err, zap.String("transaction_id", txID))
	}

	role := tx.RoleOf(requesterID)
	if role == models.RoleNone {
		s.recorder.Record(ctx, requesterID, txID, models.ActionViewTransaction, models.SuspicionWrongParty, nil)
		return nil, models.RoleNone, fmt.Errorf("%w: not a party to this transaction", ErrUnauthorized)
	}
	return tx, role, nil
}

func (s *CashPaymentService) GetTransaction(ctx context.Context, txID, requesterID string) (*TransactionView, error) {
	tx, role, err := s.authorizeView(ctx, txID, requesterID)
	if err != nil {
		return nil, err
	}

	view := &TransactionView{
		ID:                  tx.ID,
		BookingID:           tx.BookingID,
		Role:                role,
		CounterpartyID:      tx.Counterparty(role),
		Amount:              tx.Amount,
		ExpectedAmount:      tx.ExpectedAmount,
		ActualAmountClaimed: tx.ActualAmountClaimed,
		PlatformFee:         tx.PlatformFee,
		Currency:            tx.Currency,
		Status:              tx.Status,
		RiderConfirmedAt:    tx.RiderConfirmedAt,
		DriverConfirmedAt:   tx.DriverConfirmedAt,
		ExpiresAt:           tx.ExpiresAt,
		CompletedAt:         tx.CompletedAt,
		DisputeReason:       tx.DisputeReason,
		CreatedAt:           tx.CreatedAt,
	}

	if !tx.Status.IsTerminal() {
		sealed := tx.RiderCode
		if role == models.RoleDriver {
			sealed = tx.DriverCode
		}
		code, err := s.vault.Reveal(ctx, tx.ID, role, sealed)
		if err != nil {
			s.logger.Error("Failed to reveal confirmation code",
				zap.String("transaction_id", tx.ID),
				zap.String("role", string(role)),
				zap.Error(err),
			)
		} else {
			view.ConfirmationCode = code
		}
	}
	return view, nil
}

// GetWalletInfo reports the wallet as the next eligibility check would see
// it. A user without a wallet gets the defaults; nothing is persisted.
func (s *CashPaymentService) GetWalletInfo(ctx context.Context, userID string) (*WalletInfo, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := s.now()
	stored, err := s.store.Repositories().Wallets.Get(ctx, userID)
	var w models.UserWallet
	switch {
	case errors.Is(err, repository.ErrNotFound):
		w = trust.NewWallet(userID, now, s.policy)
	case err != nil:
		return nil, s.fail("load wallet", err, zap.String("user_id", userID))
	default:
		w, _ = trust.ResetRollingCounters(*stored, now, s.policy.Location)
	}

	info := &WalletInfo{
		UserID:                    w.UserID,
		TrustScore:                w.TrustScore,
		VerificationLevel:         w.VerificationLevel,
		PhoneVerified:             w.PhoneVerified,
		IDVerified:                w.IDVerified,
		AddressVerified:           w.AddressVerified,
		CompletedCashTransactions: w.CompletedCashTransactions,
		SuccessfulTransactions:    w.SuccessfulTransactions,
		DisputedTransactions:      w.DisputedTransactions,
		TotalTransactionValue:     w.TotalTransactionValue,
		Limits:                    make(map[models.LimitPeriod]LimitView, 3),
		IsSuspended:               w.IsSuspended,
		SuspensionReason:          w.SuspensionReason,
	}
	for _, period := range []models.LimitPeriod{models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly} {
		used, limit := w.Usage(period)
		remaining := limit.Sub(used)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		info.Limits[period] = LimitView{Limit: limit, Used: used, Remaining: remaining}
	}
	return info, nil
}

func (s *CashPaymentService) GetTransactionTimeline(ctx context.Context, txID, requesterID string) ([]*models.TransactionEvent, error) {
	if _, _, err := s.authorizeView(ctx, txID, requesterID); err != nil {
		return nil, err
	}
	if s.events == nil {
		return []*models.TransactionEvent{}, nil
	}

	events, err := s.events.ListByTransaction(ctx, txID)
	if err != nil {
		return nil, s.fail("load transaction timeline", err, zap.String("transaction_id", txID))
	}
	if events == nil {
		events = []*models.TransactionEvent{}
	}
	return events, nil
}
