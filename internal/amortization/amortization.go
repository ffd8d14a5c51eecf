// Package amortization computes the fixed repayment schedule of a loan at
// origination.
package amortization

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/susubank/susubank/internal/money"
)

// divisionPlaces bounds intermediate precision for non-terminating quotients.
const divisionPlaces = 24

var (
	// ErrInvalidPrincipal is returned for a principal that is not strictly positive.
	ErrInvalidPrincipal = errors.New("principal must be greater than 0")
	// ErrInvalidRate is returned for an annual rate outside [0, 100].
	ErrInvalidRate = errors.New("interest rate must be between 0 and 100")
	// ErrInvalidTerm is returned for a term shorter than one month.
	ErrInvalidTerm = errors.New("term must be at least 1 month")

	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// Schedule is the outcome of a computation. Both values are rounded to the
// currency's minor unit.
type Schedule struct {
	TotalAmount    money.Amount
	MonthlyPayment money.Amount
}

// Compute returns the total repayable amount and the fixed monthly payment for
// an amortizing loan. The total is derived from the unrounded payment so that
// rounding happens once per output.
func Compute(principal money.Amount, annualRatePercent decimal.Decimal, termMonths int) (Schedule, error) {
	if !principal.IsPositive() {
		return Schedule{}, ErrInvalidPrincipal
	}
	if annualRatePercent.IsNegative() || annualRatePercent.GreaterThan(hundred) {
		return Schedule{}, ErrInvalidRate
	}
	if termMonths < 1 {
		return Schedule{}, ErrInvalidTerm
	}

	p := principal.Decimal()
	n := decimal.NewFromInt(int64(termMonths))
	r := annualRatePercent.DivRound(hundred, divisionPlaces).DivRound(monthsInYear, divisionPlaces)

	var payment decimal.Decimal
	if r.IsZero() {
		payment = p.DivRound(n, divisionPlaces)
	} else {
		growth := decimal.NewFromInt(1).Add(r).Pow(n)
		payment = p.Mul(r).Mul(growth).DivRound(growth.Sub(decimal.NewFromInt(1)), divisionPlaces)
	}

	return Schedule{
		TotalAmount:    money.FromDecimal(payment.Mul(n)),
		MonthlyPayment: money.FromDecimal(payment),
	}, nil
}
