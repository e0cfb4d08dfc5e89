package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type TransactionStatus string

const (
	StatusPendingVerification TransactionStatus = "pending_verification"
	StatusDriverConfirmed     TransactionStatus = "driver_confirmed"
	StatusRiderConfirmed      TransactionStatus = "rider_confirmed"
	StatusBothConfirmed       TransactionStatus = "both_confirmed"
	StatusCompleted           TransactionStatus = "completed"
	StatusDisputed            TransactionStatus = "disputed"
	StatusExpired             TransactionStatus = "expired"
)

// transitions is the forward-only status graph. Statuses without an entry are terminal.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPendingVerification: {StatusDriverConfirmed, StatusRiderConfirmed, StatusDisputed, StatusExpired},
	StatusDriverConfirmed:     {StatusBothConfirmed, StatusDisputed, StatusExpired},
	StatusRiderConfirmed:      {StatusBothConfirmed, StatusDisputed, StatusExpired},
	StatusBothConfirmed:       {StatusCompleted, StatusDisputed},
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusDriverConfirmed, StatusRiderConfirmed,
		StatusBothConfirmed, StatusCompleted, StatusDisputed, StatusExpired:
		return true
	}
	return false
}

func (s TransactionStatus) IsTerminal() bool {
	_, ok := transitions[s]
	return s.Valid() && !ok
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PartyRole string

const (
	RoleRider  PartyRole = "rider"
	RoleDriver PartyRole = "driver"
	RoleNone   PartyRole = ""
)

type FraudFlag string

const (
	FlagAmountDiscrepancy FraudFlag = "amount_discrepancy"
	FlagLocationAnomaly   FraudFlag = "location_anomaly"
)

const MaxRiskScore = 100

// SealedCode is a confirmation code at rest: an argon2id hash for verification
// and an envelope-encrypted copy for the owning party's view.
type SealedCode struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
	Ciphertext    string `json:"ciphertext"`
	EncryptedDEK  string `json:"encrypted_dek"`
	KeyID         string `json:"key_id"`
}

type TransactionLocation struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Accuracy    float64   `json:"accuracy"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type CashTransaction struct {
	ID        string `db:"id"`
	BookingID string `db:"booking_id"`
	RiderID   string `db:"rider_id"`
	DriverID  string `db:"driver_id"`

	Amount              decimal.Decimal  `db:"amount"`
	ExpectedAmount      decimal.Decimal  `db:"expected_amount"`
	ActualAmountClaimed *decimal.Decimal `db:"actual_amount_claimed"`
	PlatformFee         decimal.Decimal  `db:"platform_fee"`
	Currency            string           `db:"currency"`

	Status            TransactionStatus `db:"status"`
	RiderCode         SealedCode        `db:"rider_code"`
	DriverCode        SealedCode        `db:"driver_code"`
	RiderConfirmedAt  *time.Time        `db:"rider_confirmed_at"`
	DriverConfirmedAt *time.Time        `db:"driver_confirmed_at"`

	GPSLocationConfirmed bool                 `db:"gps_location_confirmed"`
	Location             *TransactionLocation `db:"transaction_location"`
	RiskScore            int                  `db:"risk_score"`
	FraudFlags           []FraudFlag          `db:"fraud_flags"`

	ExpiresAt     time.Time  `db:"expires_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	DisputeReason string     `db:"dispute_reason"`
	Metadata      Metadata   `db:"metadata"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Advance moves the transaction along the status graph.
func (t *CashTransaction) Advance(next TransactionStatus, at time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = at
	return nil
}

func (t *CashTransaction) RoleOf(userID string) PartyRole {
	switch {
	case userID == "":
		return RoleNone
	case userID == t.RiderID:
		return RoleRider
	case userID == t.DriverID:
		return RoleDriver
	}
	return RoleNone
}

func (t *CashTransaction) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *CashTransaction) HasFraudFlag(flag FraudFlag) bool {
	for _, f := range t.FraudFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFraudFlag keeps FraudFlags a set.
func (t *CashTransaction) AddFraudFlag(flag FraudFlag) {
	if !t.HasFraudFlag(flag) {
		t.FraudFlags = append(t.FraudFlags, flag)
	}
}

func (t *CashTransaction) RaiseRisk(delta int) {
	t.RiskScore += delta
	if t.RiskScore > MaxRiskScore {
		t.RiskScore = MaxRiskScore
	}
	if t.RiskScore < 0 {
		t.RiskScore = 0
	}
}

// Counterparty returns the other party's id for the given role.
func (t *CashTransaction) Counterparty(role PartyRole) string {
	switch role {
	case RoleRider:
		return t.DriverID
	case RoleDriver:
		return t.RiderID
	}
	return ""
}
