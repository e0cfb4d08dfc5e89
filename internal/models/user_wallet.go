package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type VerificationLevel string

const (
	VerificationBasic    VerificationLevel = "basic"
	VerificationVerified VerificationLevel = "verified"
	VerificationPremium  VerificationLevel = "premium"
)

type LimitPeriod string

const (
	PeriodDaily   LimitPeriod = "daily"
	PeriodWeekly  LimitPeriod = "weekly"
	PeriodMonthly LimitPeriod = "monthly"
)

// UserWallet is shared by the rider and driver roles of one user. It is never
// deleted, only suspended.
type UserWallet struct {
	UserID            string            `db:"user_id"`
	TrustScore        float64           `db:"trust_score"`
	VerificationLevel VerificationLevel `db:"verification_level"`
	PhoneVerified     bool              `db:"phone_verified"`
	IDVerified        bool              `db:"id_verified"`
	AddressVerified   bool              `db:"address_verified"`

	CompletedCashTransactions int             `db:"completed_cash_transactions"`
	SuccessfulTransactions    int             `db:"successful_transactions"`
	DisputedTransactions      int             `db:"disputed_transactions"`
	TotalTransactionValue     decimal.Decimal `db:"total_transaction_value"`

	DailyCashLimit   decimal.Decimal `db:"daily_cash_limit"`
	DailyCashUsed    decimal.Decimal `db:"daily_cash_used"`
	WeeklyCashLimit  decimal.Decimal `db:"weekly_cash_limit"`
	WeeklyCashUsed   decimal.Decimal `db:"weekly_cash_used"`
	MonthlyCashLimit decimal.Decimal `db:"monthly_cash_limit"`
	MonthlyCashUsed  decimal.Decimal `db:"monthly_cash_used"`
	WeekStartsOn     time.Weekday    `db:"week_starts_on"`
	LastResetDate    time.Time       `db:"last_reset_date"`

	IsSuspended      bool   `db:"is_suspended"`
	SuspensionReason string `db:"suspension_reason"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Usage returns used and limit for a period.
func (w *UserWallet) Usage(period LimitPeriod) (used, limit decimal.Decimal) {
	switch period {
	case PeriodDaily:
		return w.DailyCashUsed, w.DailyCashLimit
	case PeriodWeekly:
		return w.WeeklyCashUsed, w.WeeklyCashLimit
	default:
		return w.MonthlyCashUsed, w.MonthlyCashLimit
	}
}
