package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// BestMarket prints the current top-ranked yield market.
func (a *App) BestMarket(ctx context.Context) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	best, err := svc.BestMarket(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "best market: %s\n", best.Market.Asset)
	fmt.Fprintf(os.Stdout, "  deposit apy:       %.4f%%\n", best.Market.DepositAPY)
	fmt.Fprintf(os.Stdout, "  extra deposit apy: %.4f%%\n", best.Market.ExtraDepositAPY)
	fmt.Fprintf(os.Stdout, "  total apy:         %.4f%%\n", best.Market.TotalDepositAPY)
	fmt.Fprintf(os.Stdout, "  fetched at:        %s\n", best.FetchedAt.UTC().Format("2006-01-02 15:04:05"))
	return nil
}

// Lend deposits funds into the best market outside of any plan schedule.
func (a *App) Lend(ctx context.Context, rawAmount string) error {
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	res, err := svc.Lend(ctx, amount)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "deposited %s (tx %s, position %s)\n", amount, res.TxHash, res.PositionRef)
	return nil
}

// Withdraw pulls funds back out of a position.
func (a *App) Withdraw(ctx context.Context, rawAmount, positionRef string) error {
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	txHash, err := svc.Withdraw(ctx, amount, positionRef)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "withdrew %s (tx %s)\n", amount, txHash)
	return nil
}

// Balance prints an on-chain balance.
func (a *App) Balance(ctx context.Context, address, asset string) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	bal, err := svc.Balance(ctx, address, asset)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s balance: %s\n", asset, bal.String())
	return nil
}

// Interest prints simple interest accrued on a principal at the current best
// market's rate.
func (a *App) Interest(ctx context.Context, opts InterestOptions) error {
	principal, err := decimal.NewFromString(opts.Principal)
	if err != nil {
		return fmt.Errorf("parse principal: %w", err)
	}

	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	report, err := svc.Interest(ctx, principal, opts.Since)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "principal: %s\n", report.Principal.String())
	fmt.Fprintf(os.Stdout, "apy:       %.4f%%\n", report.APY)
	fmt.Fprintf(os.Stdout, "interest:  %s\n", report.Interest.StringFixed(6))
	fmt.Fprintf(os.Stdout, "total:     %s\n", report.Total.StringFixed(6))
	return nil
}
