package service

import (
	"errors"
	"fmt"

	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/repository"
	"cash-settlement-service/internal/trust"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidCode     = errors.New("invalid confirmation code")
	ErrIneligible      = errors.New("not eligible for cash payment")
	ErrInternal        = errors.New("internal error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTooManyAttempts = errors.New("too many confirmation attempts")
)

// IneligibleError carries the numbers behind a failed eligibility check so
// the caller can show them to the user.
type IneligibleError struct {
	Reason        string
	Message       string
	TrustScore    float64
	RequiredTrust float64
	Period        models.LimitPeriod
	Limit         decimal.Decimal
	Used          decimal.Decimal
	Amount        decimal.Decimal
}

func newIneligibleError(d trust.Decision) *IneligibleError {
	return &IneligibleError{
		Reason:        d.Reason,
		Message:       d.Message,
		TrustScore:    d.TrustScore,
		RequiredTrust: d.RequiredTrust,
		Period:        d.Period,
		Limit:         d.Limit,
		Used:          d.Used,
		Amount:        d.Amount,
	}
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIneligible, e.Message)
}

func (e *IneligibleError) Unwrap() error {
	return ErrIneligible
}

// isClassified reports whether err already carries one of the service errors.
func isClassified(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrUnauthorized, ErrInvalidState, ErrInvalidCode,
		ErrIneligible, ErrInternal, ErrInvalidInput, ErrTooManyAttempts,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify maps store errors onto the service taxonomy. Anything unexpected
// becomes ErrInternal with the cause kept for logging.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case isClassified(err):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, models.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrInternal, what, err)
	}
}
