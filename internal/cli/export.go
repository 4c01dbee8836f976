package cli

import (
	"github.com/spf13/cobra"

	"chainstats/internal/app"
)

var (
	exportMetric      string
	exportHours       int
	exportGranularity string
	exportPNGPath     string
	exportCSVPath     string
	exportMaxPoints   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an aggregated series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Metric:      exportMetric,
			HoursBack:   exportHours,
			Granularity: exportGranularity,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			MaxPoints:   exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMetric, "metric", "price", "Metric to export (blockchain or price)")
	exportCmd.Flags().IntVar(&exportHours, "hours", 24, "Lookback window in hours")
	exportCmd.Flags().StringVar(&exportGranularity, "granularity", "hour", "Bucket granularity (hour or minute)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
