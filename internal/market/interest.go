package market

import (
	"time"

	"github.com/shopspring/decimal"
)

const msPerYear = 365 * 24 * 60 * 60 * 1000

// AccruedInterest computes simple (non-compounding) interest on a principal
// held since the given time, at the supplied APY percentage. It deliberately
// uses the current rate rather than the rate at deposit time, which makes it
// an approximation, not a precise accrual ledger.
func AccruedInterest(principal decimal.Decimal, apyPct float64, since, now time.Time) decimal.Decimal {
	elapsed := now.Sub(since).Milliseconds()
	if elapsed <= 0 {
		return decimal.Zero
	}

	years := float64(elapsed) / float64(msPerYear)
	return principal.Mul(decimal.NewFromFloat(apyPct / 100 * years))
}
