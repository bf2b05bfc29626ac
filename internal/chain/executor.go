package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"driftbuy/internal/market"
)

// ErrInsufficientBalance distinguishes a funding shortfall from other
// execution failures. It is always wrapped in an *ExecError.
var ErrInsufficientBalance = errors.New("chain: insufficient balance")

// ExecError wraps any failure to submit or confirm an on-chain operation:
// network errors, signing errors, and rejected transactions alike.
type ExecError struct {
	Op  string
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("chain: %s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func execErr(op string, err error) error {
	return &ExecError{Op: op, Err: err}
}

// ConvertResult reports a completed conversion.
type ConvertResult struct {
	TxHash   string
	Received decimal.Decimal
}

// DepositResult reports a completed lending deposit.
type DepositResult struct {
	TxHash      string
	PositionRef string
}

// Executor is the capability set for moving funds on chain. Operations block
// until submitted (and, for the live adapter, mined) or until ctx expires;
// none of them retry internally; retry policy lives in the pipeline.
type Executor interface {
	// Convert swaps the stable asset into the target asset for destination.
	Convert(ctx context.Context, amount decimal.Decimal, destination string) (ConvertResult, error)
	// Deposit places the target asset into the given lending market.
	Deposit(ctx context.Context, amount decimal.Decimal, m market.Market) (DepositResult, error)
	// Withdraw pulls funds back out of a lending position.
	Withdraw(ctx context.Context, amount decimal.Decimal, positionRef string, m market.Market) (string, error)
	// Balance reports the holdings of asset at address.
	Balance(ctx context.Context, address, asset string) (decimal.Decimal, error)
}
