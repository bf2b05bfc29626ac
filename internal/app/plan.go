package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"driftbuy/internal/service"
)

// PlanOptions hold the fields for registering a recurring plan.
type PlanOptions struct {
	UserID      string
	AssetID     string
	Destination string
	Amount      string
	Risk        string
	Every       int
	Unit        string
	AutoDeposit bool
}

// CreatePlan registers a recurring plan and prints its identifier.
func (a *App) CreatePlan(ctx context.Context, opts PlanOptions) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	amount, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}

	assetID := opts.AssetID
	if assetID == "" {
		assetID = a.Config.Prices.AssetID
	}

	plan, err := svc.CreatePlan(ctx, service.NewPlan{
		UserID:      opts.UserID,
		AssetID:     assetID,
		Destination: opts.Destination,
		Amount:      amount,
		Risk:        opts.Risk,
		Every:       opts.Every,
		Unit:        opts.Unit,
		AutoDeposit: opts.AutoDeposit,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "plan %s created\n", plan.ID)
	return nil
}

// StopPlan halts future executions of a plan.
func (a *App) StopPlan(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parse plan id: %w", err)
	}

	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	if err := svc.StopPlan(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "plan %s stopped\n", id)
	return nil
}

// ListPlans prints a user's plans.
func (a *App) ListPlans(ctx context.Context, userID string) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	plans, err := svc.UserPlans(ctx, userID)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintln(os.Stdout, "no plans found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tAmount\tRisk\tFrequency\tAuto-Deposit\tStatus\tLast Run")

	for _, plan := range plans {
		lastRun := "never"
		if plan.LastRun != nil {
			lastRun = plan.LastRun.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\tevery %d %s\t%t\t%s\t%s\n",
			plan.ID,
			plan.Amount.String(),
			plan.Risk,
			plan.Every,
			plan.Unit,
			plan.AutoDeposit,
			plan.Status,
			lastRun,
		)
	}

	writer.Flush()
	return nil
}

// TotalInvestment prints the stable amount a user has invested so far.
func (a *App) TotalInvestment(ctx context.Context, userID string) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	total, err := svc.TotalInvestment(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "total invested: %s\n", total.String())
	return nil
}
