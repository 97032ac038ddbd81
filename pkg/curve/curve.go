// package curve implements the bonding curve that prices the stock.
//
// The only state the curve needs is s, the fraction of the theoretical share
// pool bought so far. s lives in [0, 1) and the price diverges as s
// approaches 1, so the pool can never be bought out.

package curve

import (
	"errors"
	"fmt"
	"math"
)

// ErrDomain is wrapped by every error returned from this package.
var ErrDomain = errors.New("curve domain violated")

func checkShares(s float64) error {
	if math.IsNaN(s) || s < 0 || s >= 1 {
		return fmt.Errorf("%w: shares bought %v outside [0, 1)", ErrDomain, s)
	}
	return nil
}

func checkAmount(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s %v must be finite and non-negative", ErrDomain, name, v)
	}
	return nil
}

// Price returns the instantaneous price of a share when s of the pool has
// been bought: 1/(1-s)^2 - 1.
func Price(s float64) (float64, error) {
	if err := checkShares(s); err != nil {
		return 0, err
	}
	return 1/((1-s)*(1-s)) - 1, nil
}

// sharesAt inverts Price: it returns the s at which the price equals p.
func sharesAt(p float64) float64 {
	return 1 - math.Sqrt(1/(p+1))
}

// BuyWorth returns how many shares `budget` buys at state s. Spending moves
// the price up by exactly budget.
func BuyWorth(s, budget float64) (float64, error) {
	p, err := Price(s)
	if err != nil {
		return 0, err
	}
	if err := checkAmount("budget", budget); err != nil {
		return 0, err
	}
	return sharesAt(p+budget) - s, nil
}

// SellWorth returns how many shares must be given up at state s to receive
// `budget` back. The budget cannot exceed the current price.
func SellWorth(s, budget float64) (float64, error) {
	p, err := Price(s)
	if err != nil {
		return 0, err
	}
	if err := checkAmount("budget", budget); err != nil {
		return 0, err
	}
	if budget > p {
		return 0, fmt.Errorf("%w: sell budget %v exceeds price %v", ErrDomain, budget, p)
	}
	return s - sharesAt(p-budget), nil
}

// Proceeds returns the currency paid out for liquidating `shares` at state
// s. It is the inverse of SellWorth.
func Proceeds(s, shares float64) (float64, error) {
	p, err := Price(s)
	if err != nil {
		return 0, err
	}
	if err := checkAmount("shares", shares); err != nil {
		return 0, err
	}
	if shares > s {
		return 0, fmt.Errorf("%w: cannot sell %v shares when only %v are bought", ErrDomain, shares, s)
	}
	after, err := Price(s - shares)
	if err != nil {
		return 0, err
	}
	return p - after, nil
}
