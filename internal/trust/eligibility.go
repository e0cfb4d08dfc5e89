package trust

import (
	"fmt"

	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ReasonSuspended     = "suspended"
	ReasonTrustTooLow   = "trust_score_too_low"
	ReasonLimitExceeded = "limit_exceeded"
)

// Decision is the outcome of an eligibility check. The numbers are meant for
// the user and are always populated for the failing check.
type Decision struct {
	Eligible      bool
	Reason        string
	Message       string
	TrustScore    float64
	RequiredTrust float64
	Period        models.LimitPeriod
	Limit         decimal.Decimal
	Used          decimal.Decimal
	Amount        decimal.Decimal
}

// CheckEligibility expects counters already reset for the current period.
func CheckEligibility(w models.UserWallet, amount decimal.Decimal) Decision {
	required := RequiredTrustScore(amount)
	d := Decision{
		Eligible:      true,
		TrustScore:    w.TrustScore,
		RequiredTrust: required,
		Amount:        amount,
	}

	if w.IsSuspended {
		d.Eligible = false
		d.Reason = ReasonSuspended
		d.Message = w.SuspensionReason
		if d.Message == "" {
			d.Message = "wallet suspended"
		}
		return d
	}

	if w.TrustScore < required {
		d.Eligible = false
		d.Reason = ReasonTrustTooLow
		d.Message = fmt.Sprintf("trust score %.2f is below the required %.0f for this amount", w.TrustScore, required)
		return d
	}

	for _, period := range []models.LimitPeriod{models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly} {
		used, limit := w.Usage(period)
		if used.Add(amount).GreaterThan(limit) {
			d.Eligible = false
			d.Reason = ReasonLimitExceeded
			d.Period = period
			d.Limit = limit
			d.Used = used
			d.Message = fmt.Sprintf("%s cash limit %s exceeded: used %s, requested %s",
				period, limit.StringFixed(2), used.StringFixed(2), amount.StringFixed(2))
			return d
		}
	}

	return d
}
