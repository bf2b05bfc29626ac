package cli

import (
	"github.com/spf13/cobra"

	"driftbuy/internal/app"
)

var (
	planUserID      string
	planAssetID     string
	planDestination string
	planAmount      string
	planRisk        string
	planEvery       int
	planUnit        string
	planAutoDeposit bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage recurring investment plans",
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a recurring plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CreatePlan(cmd.Context(), app.PlanOptions{
			UserID:      planUserID,
			AssetID:     planAssetID,
			Destination: planDestination,
			Amount:      planAmount,
			Risk:        planRisk,
			Every:       planEvery,
			Unit:        planUnit,
			AutoDeposit: planAutoDeposit,
		})
	},
}

var planStopCmd = &cobra.Command{
	Use:   "stop <plan-id>",
	Short: "Stop a plan's future executions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StopPlan(cmd.Context(), args[0])
	},
}

var planListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's plans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPlans(cmd.Context(), args[0])
	},
}

var planTotalCmd = &cobra.Command{
	Use:   "total <user-id>",
	Short: "Print a user's total invested amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TotalInvestment(cmd.Context(), args[0])
	},
}

func init() {
	planCreateCmd.Flags().StringVar(&planUserID, "user", "", "Owning user identifier")
	planCreateCmd.Flags().StringVar(&planAssetID, "asset", "", "Price feed asset id (defaults to config)")
	planCreateCmd.Flags().StringVar(&planDestination, "destination", "", "Destination wallet address")
	planCreateCmd.Flags().StringVar(&planAmount, "amount", "", "Base stable amount per run")
	planCreateCmd.Flags().StringVar(&planRisk, "risk", "no_risk", "Risk tier (no_risk, low_risk, medium_risk, high_risk)")
	planCreateCmd.Flags().IntVar(&planEvery, "every", 1, "Interval count")
	planCreateCmd.Flags().StringVar(&planUnit, "unit", "day", "Interval unit (minute, hour, day, week)")
	planCreateCmd.Flags().BoolVar(&planAutoDeposit, "auto-deposit", true, "Deposit converted funds into the best market")
	_ = planCreateCmd.MarkFlagRequired("user")
	_ = planCreateCmd.MarkFlagRequired("destination")
	_ = planCreateCmd.MarkFlagRequired("amount")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planStopCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planTotalCmd)
}
