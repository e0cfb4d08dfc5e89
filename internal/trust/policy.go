package trust

import (
	"time"

	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// Policy holds the wallet defaults and calendar rules used by the engine.
type Policy struct {
	DefaultTrustScore   float64
	DefaultDailyLimit   decimal.Decimal
	DefaultWeeklyLimit  decimal.Decimal
	DefaultMonthlyLimit decimal.Decimal
	WeekStartsOn        time.Weekday
	Location            *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultTrustScore:   50,
		DefaultDailyLimit:   decimal.NewFromInt(200),
		DefaultWeeklyLimit:  decimal.NewFromInt(1000),
		DefaultMonthlyLimit: decimal.NewFromInt(3000),
		WeekStartsOn:        time.Sunday,
		Location:            time.UTC,
	}
}

// PolicyFromConfig falls back to the default for any limit that does not parse.
func PolicyFromConfig(cfg config.SettlementConfig) Policy {
	p := DefaultPolicy()
	p.DefaultTrustScore = cfg.DefaultTrustScore
	p.DefaultDailyLimit = parseOr(cfg.DefaultDailyLimit, p.DefaultDailyLimit)
	p.DefaultWeeklyLimit = parseOr(cfg.DefaultWeeklyLimit, p.DefaultWeeklyLimit)
	p.DefaultMonthlyLimit = parseOr(cfg.DefaultMonthlyLimit, p.DefaultMonthlyLimit)
	p.WeekStartsOn = cfg.WeekStartsOn
	p.Location = cfg.Location()
	return p
}

func parseOr(s string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}

// NewWallet builds the wallet created lazily on a user's first cash attempt.
func NewWallet(userID string, now time.Time, p Policy) models.UserWallet {
	return models.UserWallet{
		UserID:                userID,
		TrustScore:            p.DefaultTrustScore,
		VerificationLevel:     models.VerificationBasic,
		TotalTransactionValue: decimal.Zero,
		DailyCashLimit:        p.DefaultDailyLimit,
		DailyCashUsed:         decimal.Zero,
		WeeklyCashLimit:       p.DefaultWeeklyLimit,
		WeeklyCashUsed:        decimal.Zero,
		MonthlyCashLimit:      p.DefaultMonthlyLimit,
		MonthlyCashUsed:       decimal.Zero,
		WeekStartsOn:          p.WeekStartsOn,
		LastResetDate:         now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
