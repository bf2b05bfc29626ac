package market

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoMarkets indicates the feed returned an empty market list.
var ErrNoMarkets = errors.New("market: no markets available")

// Market is a lending market snapshot with amounts normalised to
// human-readable units.
type Market struct {
	Asset           string          `json:"asset"`
	TokenAddress    string          `json:"token_address"`
	Decimals        int             `json:"decimals"`
	MarketSize      decimal.Decimal `json:"market_size"`
	TotalBorrowed   decimal.Decimal `json:"total_borrowed"`
	DepositAPY      float64         `json:"deposit_apy"`
	ExtraDepositAPY float64         `json:"extra_deposit_apy"`
	TotalDepositAPY float64         `json:"total_deposit_apy"`
	BorrowAPY       float64         `json:"borrow_apy"`
	Price           decimal.Decimal `json:"price"`
}

// SelectBest returns the market with the highest combined deposit APY. Ties
// resolve to the first-seen market.
func SelectBest(markets []Market) (Market, error) {
	if len(markets) == 0 {
		return Market{}, ErrNoMarkets
	}

	best := markets[0]
	for _, m := range markets[1:] {
		if m.TotalDepositAPY > best.TotalDepositAPY {
			best = m
		}
	}
	return best, nil
}
