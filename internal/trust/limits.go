package trust

import (
	"time"

	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// RequiredTrustScore is the minimum trust score for a cash amount.
func RequiredTrustScore(amount decimal.Decimal) float64 {
	switch {
	case amount.LessThanOrEqual(decimal.NewFromInt(10)):
		return 20
	case amount.LessThanOrEqual(decimal.NewFromInt(50)):
		return 40
	case amount.LessThanOrEqual(decimal.NewFromInt(100)):
		return 60
	case amount.LessThanOrEqual(decimal.NewFromInt(500)):
		return 80
	default:
		return 90
	}
}

// ResetRollingCounters zeroes every usage counter whose period boundary has
// been crossed since LastResetDate. The second return reports whether anything
// was reset, in which case LastResetDate is now.
func ResetRollingCounters(w models.UserWallet, now time.Time, loc *time.Location) (models.UserWallet, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	last := w.LastResetDate

	reset := false
	if last.IsZero() || startOfDay(local).After(last) {
		w.DailyCashUsed = decimal.Zero
		reset = true
	}
	if last.IsZero() || startOfWeek(local, w.WeekStartsOn).After(last) {
		w.WeeklyCashUsed = decimal.Zero
		reset = true
	}
	if last.IsZero() || startOfMonth(local).After(last) {
		w.MonthlyCashUsed = decimal.Zero
		reset = true
	}

	if reset {
		w.LastResetDate = now
		w.UpdatedAt = now
	}
	return w, reset
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time, weekStartsOn time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(weekStartsOn) + 7) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
