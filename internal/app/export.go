package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"chainstats/internal/series"
	"chainstats/internal/storage"
)

// Export renders an aggregated series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.HoursBack <= 0 {
		return errors.New("--hours must be greater than zero")
	}

	source, path, err := metricSource(opts.Metric)
	if err != nil {
		return err
	}
	gran, err := series.ParseGranularity(opts.Granularity)
	if err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	since := time.Now().UTC().Add(-time.Duration(opts.HoursBack) * time.Hour)
	samples, err := store.ListSamplesSince(ctx, source, since)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	points := series.ReduceLine(series.Bucketize(series.Extract(samples, path), gran))
	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, opts.Metric, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, opts.Metric, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func metricSource(metric string) (storage.Source, string, error) {
	switch metric {
	case "blockchain":
		return storage.SourceBlockchain, "unconfirmed_count", nil
	case "price":
		return storage.SourcePrice, "price_usd", nil
	default:
		return "", "", fmt.Errorf("unknown metric %q (expected blockchain or price)", metric)
	}
}

func downsamplePoints(points []series.LinePoint, max int) []series.LinePoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]series.LinePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path, metric string, points []series.LinePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"bucket_ts", metric}); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.X.Format(time.RFC3339),
			p.Y.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path, metric string, points []series.LinePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.X
		y[i] = p.Y.InexactFloat64()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: metric,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    metric,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
