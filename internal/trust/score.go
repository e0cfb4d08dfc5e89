package trust

import (
	"math"
	"time"

	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// RecomputeTrustScore derives the score from history and verification only.
func RecomputeTrustScore(w models.UserWallet) float64 {
	total := float64(w.CompletedCashTransactions)

	var successRate, disputeRate float64
	if total > 0 {
		successRate = float64(w.SuccessfulTransactions) / total
		disputeRate = float64(w.DisputedTransactions) / total
	}

	score := 50 + math.Min(total*2, 30) + successRate*20 - disputeRate*40 + verificationBonus(w)
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

func verificationBonus(w models.UserWallet) float64 {
	var bonus float64
	if w.PhoneVerified {
		bonus += 5
	}
	if w.IDVerified {
		bonus += 10
	}
	if w.AddressVerified {
		bonus += 5
	}
	if w.VerificationLevel == models.VerificationPremium {
		bonus += 10
	}
	return bonus
}

// ApplyCompletion returns the wallet after a completed settlement in the given
// role. Only the rider side consumes spend limits.
func ApplyCompletion(w models.UserWallet, amount decimal.Decimal, role models.PartyRole, now time.Time, loc *time.Location) models.UserWallet {
	w, _ = ResetRollingCounters(w, now, loc)

	w.CompletedCashTransactions++
	w.SuccessfulTransactions++

	if role == models.RoleRider {
		w.TotalTransactionValue = w.TotalTransactionValue.Add(amount)
		w.DailyCashUsed = w.DailyCashUsed.Add(amount)
		w.WeeklyCashUsed = w.WeeklyCashUsed.Add(amount)
		w.MonthlyCashUsed = w.MonthlyCashUsed.Add(amount)
	}

	w.TrustScore = RecomputeTrustScore(w)
	w.UpdatedAt = now
	return w
}
