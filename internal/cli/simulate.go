package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var simulatePending float64

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run a pending-transaction count through the alert monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePending <= 0 {
			return errors.New("--pending must be greater than 0")
		}

		return getApp().SimulateAlert(cmd.Context(), decimal.NewFromFloat(simulatePending))
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePending, "pending", 0, "Pending transaction count to inspect")
}
