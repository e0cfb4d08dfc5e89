package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/trust"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LocationInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type ConfirmReceivedRequest struct {
	TransactionID string
	DriverID      string
	ActualAmount  decimal.Decimal
	Location      *LocationInput
}

type ConfirmPaidRequest struct {
	TransactionID    string
	RiderID          string
	ConfirmationCode string
}

type ConfirmationResult struct {
	TransactionID string                   `json:"transaction_id"`
	Status        models.TransactionStatus `json:"status"`
	NextStep      string                   `json:"next_step"`
}

// confirmation is what each party's path contributes inside the unit of work.
type confirmation struct {
	role    models.PartyRole
	actorID string
	allowed []models.TransactionStatus
	apply   func(tx *models.CashTransaction, now time.Time)
}

// ConfirmCashReceived records the driver's side. Amount and location are
// checked against expectations and annotate the transaction, they never
// block the confirmation.
func (s *CashPaymentService) ConfirmCashReceived(ctx context.Context, req ConfirmReceivedRequest) (*ConfirmationResult, error) {
	if req.TransactionID == "" || req.DriverID == "" {
		return nil, fmt.Errorf("%w: transaction and driver are required", ErrInvalidInput)
	}
	if req.ActualAmount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}
	if !req.ActualAmount.Equal(req.ActualAmount.Round(moneyPlaces)) {
		return nil, fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidInput, moneyPlaces)
	}

	if err := s.authorizeConfirmation(ctx, req.TransactionID, req.DriverID, models.RoleDriver, models.ActionConfirmReceived, nil); err != nil {
		return nil, err
	}

	return s.confirm(ctx, req.TransactionID, confirmation{
		role:    models.RoleDriver,
		actorID: req.DriverID,
		allowed: []models.TransactionStatus{models.StatusPendingVerification, models.StatusRiderConfirmed},
		apply: func(tx *models.CashTransaction, now time.Time) {
			var loc *models.TransactionLocation
			if req.Location != nil {
				loc = &models.TransactionLocation{
					Latitude:    req.Location.Latitude,
					Longitude:   req.Location.Longitude,
					Accuracy:    req.Location.Accuracy,
					ConfirmedAt: now,
				}
			}

			assessment := s.assessor.AssessDriverConfirmation(tx.ExpectedAmount, req.ActualAmount, loc)
			assessment.Apply(tx)

			actual := req.ActualAmount
			tx.ActualAmountClaimed = &actual
			tx.DriverConfirmedAt = &now
			if loc != nil {
				tx.Location = loc
				tx.GPSLocationConfirmed = !containsFlag(assessment.Flags, models.FlagLocationAnomaly)
			}

			discrepancy := assessment.Discrepancy
			tx.Metadata.Append(models.MetadataEntry{
				Kind: models.KindConfirmation,
				Confirmation: &models.ConfirmationEntry{
					Role:        models.RoleDriver,
					ActorID:     req.DriverID,
					At:          now,
					Amount:      &actual,
					Discrepancy: &discrepancy,
					RiskDelta:   assessment.RiskDelta,
				},
			})

			if assessment.RiskDelta > 0 {
				s.logger.Warn("Driver confirmation flagged",
					zap.String("transaction_id", tx.ID),
					zap.Strings("flags", flagStrings(assessment.Flags)),
					zap.Int("risk_score", tx.RiskScore),
					zap.String("discrepancy", discrepancy.StringFixed(moneyPlaces)),
				)
			}
		},
	})
}

// ConfirmCashPaid records the rider's side. A wrong party and a wrong code
// fail in the same way and leave the transaction untouched.
func (s *CashPaymentService) ConfirmCashPaid(ctx context.Context, req ConfirmPaidRequest) (*ConfirmationResult, error) {
	if req.TransactionID == "" || req.RiderID == "" {
		return nil, fmt.Errorf("%w: transaction and rider are required", ErrInvalidInput)
	}

	code := req.ConfirmationCode
	if err := s.authorizeConfirmation(ctx, req.TransactionID, req.RiderID, models.RoleRider, models.ActionConfirmPaid, &code); err != nil {
		return nil, err
	}

	return s.confirm(ctx, req.TransactionID, confirmation{
		role:    models.RoleRider,
		actorID: req.RiderID,
		allowed: []models.TransactionStatus{models.StatusPendingVerification, models.StatusDriverConfirmed},
		apply: func(tx *models.CashTransaction, now time.Time) {
			tx.RiderConfirmedAt = &now
			tx.Metadata.Append(models.MetadataEntry{
				Kind: models.KindConfirmation,
				Confirmation: &models.ConfirmationEntry{
					Role:    models.RoleRider,
					ActorID: req.RiderID,
					At:      now,
				},
			})
		},
	})
}

// authorizeConfirmation runs the checks that depend only on immutable fields
// (parties and codes) before any row is locked. Every rejection counts as a
// failed attempt and is reported as suspicious.
func (s *CashPaymentService) authorizeConfirmation(ctx context.Context, txID, userID string, role models.PartyRole, action models.SuspiciousAction, code *string) error {
	if s.attempts != nil {
		locked, err := s.attempts.IsLocked(ctx, txID, userID)
		if err != nil {
			s.logger.Warn("Confirmation throttle unavailable", zap.String("transaction_id", txID), zap.Error(err))
		} else if locked {
			s.recorder.Record(ctx, userID, txID, action, models.SuspicionLockedOut, nil)
			return fmt.Errorf("%w: try again later", ErrTooManyAttempts)
		}
	}

	tx, err := s.store.Repositories().Transactions.GetByID(ctx, txID)
	if err != nil {
		return s.fail("load cash transaction", classify(err, "cash transaction"), zap.String("transaction_id", txID))
	}

	if tx.RoleOf(userID) != role {
		s.rejectAttempt(ctx, txID, userID, action, models.SuspicionWrongParty, map[string]string{"expected_role": string(role)})
		return fmt.Errorf("%w: confirmation rejected", ErrUnauthorized)
	}

	if code == nil {
		return nil
	}

	sealed := tx.RiderCode
	if role == models.RoleDriver {
		sealed = tx.DriverCode
	}
	ok, err := s.vault.Verify(txID, role, *code, sealed)
	if err != nil {
		return s.fail("verify confirmation code", err, zap.String("transaction_id", txID))
	}
	if !ok {
		s.rejectAttempt(ctx, txID, userID, action, models.SuspicionCodeMismatch, nil)
		return fmt.Errorf("%w: confirmation rejected", ErrInvalidCode)
	}
	return nil
}

func (s *CashPaymentService) rejectAttempt(ctx context.Context, txID, userID string, action models.SuspiciousAction, reason string, metadata map[string]string) {
	if s.attempts != nil {
		count, err := s.attempts.RecordFailure(ctx, txID, userID)
		if err != nil {
			s.logger.Warn("Failed to record confirmation attempt", zap.String("transaction_id", txID), zap.Error(err))
		} else {
			if metadata == nil {
				metadata = map[string]string{}
			}
			metadata["attempts"] = strconv.Itoa(count)
		}
	}
	s.recorder.Record(ctx, userID, txID, action, reason, metadata)
}

// confirm applies one party's confirmation under the transaction's row lock.
// When the other party has already confirmed, completion runs in the same
// unit of work.
func (s *CashPaymentService) confirm(ctx context.Context, txID string, c confirmation) (*ConfirmationResult, error) {
	now := s.now()

	var (
		tx     *models.CashTransaction
		events []models.TransactionEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		tx, err = repos.Transactions.GetForUpdate(ctx, txID)
		if err != nil {
			return classify(err, "cash transaction")
		}
		events = nil

		if !statusIn(tx.Status, c.allowed) {
			return fmt.Errorf("%w: cannot confirm a transaction in status %s", ErrInvalidState, tx.Status)
		}
		if tx.IsExpired(now) {
			return fmt.Errorf("%w: transaction expired at %s", ErrInvalidState, tx.ExpiresAt.UTC().Format(time.RFC3339))
		}

		c.apply(tx, now)

		next := models.StatusDriverConfirmed
		if c.role == models.RoleRider {
			next = models.StatusRiderConfirmed
		}
		if tx.Status != models.StatusPendingVerification {
			next = models.StatusBothConfirmed
		}

		from := tx.Status
		if err := tx.Advance(next, now); err != nil {
			return classify(err, "cash transaction")
		}
		events = append(events, newEvent(tx.ID, from, next, c.actorID, string(c.role)+"_confirmed", now))

		if next == models.StatusBothConfirmed {
			completed, err := s.complete(ctx, repos, tx, now)
			if err != nil {
				return err
			}
			events = append(events, completed)
			return nil
		}

		return classify(repos.Transactions.Update(ctx, tx), "cash transaction")
	})
	if err != nil {
		return nil, s.fail("confirm cash payment", err,
			zap.String("transaction_id", txID),
			zap.String("role", string(c.role)))
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, txID, c.actorID); err != nil {
			s.logger.Warn("Failed to reset confirmation attempts", zap.String("transaction_id", txID), zap.Error(err))
		}
	}
	s.recordEvents(ctx, events)

	result := &ConfirmationResult{TransactionID: tx.ID, Status: tx.Status}
	switch tx.Status {
	case models.StatusCompleted:
		result.NextStep = NextStepCompleted
		s.logger.Info("Cash payment completed",
			zap.String("transaction_id", tx.ID),
			zap.String("amount", tx.Amount.StringFixed(moneyPlaces)),
			zap.Int("risk_score", tx.RiskScore),
		)
		s.notifyCompleted(tx)
	case models.StatusDriverConfirmed:
		result.NextStep = NextStepAwaitRider
		s.notifyConfirmationRequired(tx, tx.RiderID, models.RoleDriver)
	case models.StatusRiderConfirmed:
		result.NextStep = NextStepAwaitDriver
		s.notifyConfirmationRequired(tx, tx.DriverID, models.RoleRider)
	}
	return result, nil
}

// complete settles a BOTH_CONFIRMED transaction: status, both wallets, the
// hold and the booking change together or not at all.
func (s *CashPaymentService) complete(ctx context.Context, repos repository.Repositories, tx *models.CashTransaction, now time.Time) (models.TransactionEvent, error) {
	from := tx.Status
	if err := tx.Advance(models.StatusCompleted, now); err != nil {
		return models.TransactionEvent{}, classify(err, "cash transaction")
	}
	tx.CompletedAt = &now
	if err := repos.Transactions.Update(ctx, tx); err != nil {
		return models.TransactionEvent{}, classify(err, "cash transaction")
	}

	// Lock order is by user id so two completions sharing a user cannot deadlock.
	roles := map[string]models.PartyRole{tx.RiderID: models.RoleRider, tx.DriverID: models.RoleDriver}
	ids := []string{tx.RiderID, tx.DriverID}
	sort.Strings(ids)

	for _, userID := range ids {
		wallet, err := s.lockWallet(ctx, repos, userID, now)
		if err != nil {
			return models.TransactionEvent{}, err
		}
		next := trust.ApplyCompletion(*wallet, tx.Amount, roles[userID], now, s.policy.Location)
		if err := repos.Wallets.Update(ctx, &next); err != nil {
			return models.TransactionEvent{}, classify(err, "wallet")
		}
	}

	if _, err := repos.Holds.Release(ctx, tx.ID, models.ReleaseReasonCompleted, now); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return models.TransactionEvent{}, classify(err, "trust hold")
		}
		s.logger.Warn("No active hold at completion", zap.String("transaction_id", tx.ID))
	}

	if err := repos.Bookings.MarkPaymentCompleted(ctx, tx.BookingID); err != nil {
		return models.TransactionEvent{}, classify(err, "booking")
	}

	return newEvent(tx.ID, from, models.StatusCompleted, "", "settled", now), nil
}

func statusIn(s models.TransactionStatus, allowed []models.TransactionStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func containsFlag(flags []models.FraudFlag, flag models.FraudFlag) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func flagStrings(flags []models.FraudFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
