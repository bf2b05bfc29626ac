package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"driftbuy/internal/app"
)

var (
	withdrawPosition string
	balanceAddress   string
	balanceAsset     string
	interestSince    string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect and operate on the yield pool",
}

var poolBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the current top-ranked market",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().BestMarket(cmd.Context())
	},
}

var poolLendCmd = &cobra.Command{
	Use:   "lend <amount>",
	Short: "Deposit funds into the best market",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Lend(cmd.Context(), args[0])
	},
}

var poolWithdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Withdraw funds from a position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Withdraw(cmd.Context(), args[0], withdrawPosition)
	},
}

var poolBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show an on-chain balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Balance(cmd.Context(), balanceAddress, balanceAsset)
	},
}

var poolInterestCmd = &cobra.Command{
	Use:   "interest <principal>",
	Short: "Show interest accrued on a principal since a timestamp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := time.Parse(time.RFC3339, interestSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		return getApp().Interest(cmd.Context(), app.InterestOptions{
			Principal: args[0],
			Since:     since,
		})
	},
}

func init() {
	poolWithdrawCmd.Flags().StringVar(&withdrawPosition, "position", "", "Position reference to withdraw from")
	poolBalanceCmd.Flags().StringVar(&balanceAddress, "address", "", "Address to query (defaults to the signing account)")
	poolBalanceCmd.Flags().StringVar(&balanceAsset, "asset", "stable", "Asset to query (stable or target)")
	poolInterestCmd.Flags().StringVar(&interestSince, "since", "", "Deposit timestamp (RFC3339)")
	_ = poolInterestCmd.MarkFlagRequired("since")

	poolCmd.AddCommand(poolBestCmd)
	poolCmd.AddCommand(poolLendCmd)
	poolCmd.AddCommand(poolWithdrawCmd)
	poolCmd.AddCommand(poolBalanceCmd)
	poolCmd.AddCommand(poolInterestCmd)
}
