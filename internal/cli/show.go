package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainstats/internal/app"
)

var (
	showSource string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent stored samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Source: showSource,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSource, "source", "blockchain", "Sample source (blockchain or price)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
