package fraud

import (
	"math"
	"strings"

	"cash-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

const (
	AmountDiscrepancyRisk = 30
	LocationAnomalyRisk   = 20
)

// DefaultAmountTolerance is the largest driver-reported difference that is not flagged.
var DefaultAmountTolerance = decimal.RequireFromString("0.50")

// LocationValidator decides whether a reported coordinate is believable.
// RangeValidator is the baseline; route-aware validators can replace it.
type LocationValidator interface {
	IsPlausible(lat, lng float64) bool
}

type RangeValidator struct{}

func (RangeValidator) IsPlausible(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type Assessment struct {
	Flags       []models.FraudFlag
	RiskDelta   int
	Discrepancy decimal.Decimal
}

// Assessor annotates driver confirmations.
type Assessor struct {
	tolerance decimal.Decimal
	locations LocationValidator
}

func NewAssessor(tolerance decimal.Decimal, locations LocationValidator) *Assessor {
	if locations == nil {
		locations = RangeValidator{}
	}
	if tolerance.IsNegative() {
		tolerance = DefaultAmountTolerance
	}
	return &Assessor{tolerance: tolerance, locations: locations}
}

// AssessDriverConfirmation compares the driver's reported amount and location
// against expectations. It does not touch the transaction.
func (a *Assessor) AssessDriverConfirmation(expected, actual decimal.Decimal, loc *models.TransactionLocation) Assessment {
	var out Assessment

	out.Discrepancy = actual.Sub(expected).Abs()
	if out.Discrepancy.GreaterThan(a.tolerance) {
		out.Flags = append(out.Flags, models.FlagAmountDiscrepancy)
		out.RiskDelta += AmountDiscrepancyRisk
	}

	if loc != nil && !a.locations.IsPlausible(loc.Latitude, loc.Longitude) {
		out.Flags = append(out.Flags, models.FlagLocationAnomaly)
		out.RiskDelta += LocationAnomalyRisk
	}

	return out
}

// Apply merges an assessment into the transaction's annotations.
func (as Assessment) Apply(tx *models.CashTransaction) {
	for _, f := range as.Flags {
		tx.AddFraudFlag(f)
	}
	tx.RaiseRisk(as.RiskDelta)
}

// DisputePriority scores a dispute in [0,100] from its reason and amount.
func DisputePriority(reason string, amount decimal.Decimal) int {
	r := strings.ToLower(reason)

	priority := 50
	switch {
	case strings.Contains(r, "fraud"), strings.Contains(r, "theft"):
		priority = 90
	case strings.Contains(r, "wrong_amount"), strings.Contains(r, "no_payment"):
		priority = 80
	case strings.Contains(r, "driver_issue"), strings.Contains(r, "rider_issue"):
		priority = 70
	}

	switch {
	case amount.GreaterThan(decimal.NewFromInt(500)):
		priority += 20
	case amount.GreaterThan(decimal.NewFromInt(100)):
		priority += 10
	}

	if priority > 100 {
		priority = 100
	}
	return priority
}
