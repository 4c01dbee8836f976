package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"chainstats/internal/metrics"
)

// SimulateAlert runs a pending-transaction count through the threshold
// monitor, delivering a real alert if it breaches.
func (a *App) SimulateAlert(ctx context.Context, pending decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	monitor := a.newMonitor(metrics.NewNop())
	if err := monitor.Inspect(ctx, pending); err != nil {
		return err
	}

	if monitor.LastAlertAt().IsZero() {
		a.Logger.Info().
			Str("pending", pending.String()).
			Float64("threshold", a.Config.Alerting.PendingTxThreshold).
			Msg("value below threshold; no alert sent")
		return nil
	}

	a.Logger.Info().Str("pending", pending.String()).Msg("alert delivered")
	return nil
}
