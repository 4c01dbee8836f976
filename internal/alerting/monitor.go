package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chainstats/internal/metrics"
)

// ShouldAlert decides whether a fresh reading warrants a notification:
// the value must meet the threshold and the cooldown since the last sent
// alert must have elapsed (a zero lastAlertAt means none was ever sent).
func ShouldAlert(value, threshold decimal.Decimal, lastAlertAt time.Time, cooldown time.Duration, now time.Time) bool {
	if value.LessThan(threshold) {
		return false
	}
	if lastAlertAt.IsZero() {
		return true
	}
	return now.Sub(lastAlertAt) >= cooldown
}

// MonitorOptions configure a threshold monitor.
type MonitorOptions struct {
	MetricLabel string
	Threshold   decimal.Decimal
	Cooldown    time.Duration
	Recipients  []string
}

// Monitor inspects freshly stored values and emits debounced alerts.
type Monitor struct {
	opts     MonitorOptions
	notifier Notifier
	logger   zerolog.Logger
	mets     *metrics.Metrics

	mu          sync.Mutex
	lastAlertAt time.Time

	now func() time.Time
}

// NewMonitor constructs a Monitor.
func NewMonitor(opts MonitorOptions, notifier Notifier, mets *metrics.Metrics, logger zerolog.Logger) *Monitor {
	return &Monitor{
		opts:     opts,
		notifier: notifier,
		logger:   logger.With().Str("component", "threshold_monitor").Logger(),
		mets:     mets,
		now:      time.Now,
	}
}

// LastAlertAt returns when the last alert was confirmed sent.
func (m *Monitor) LastAlertAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAlertAt
}

// Inspect evaluates one fresh value. The last-alert timestamp moves only
// after the notifier confirms delivery, so a failed send never suppresses
// the next legitimate attempt.
func (m *Monitor) Inspect(ctx context.Context, value decimal.Decimal) error {
	if m.notifier == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !ShouldAlert(value, m.opts.Threshold, m.lastAlertAt, m.opts.Cooldown, now) {
		return nil
	}

	subject := fmt.Sprintf("%s threshold breached: %s", m.opts.MetricLabel, value.String())
	body := fmt.Sprintf(
		"<p><strong>%s</strong> is at <strong>%s</strong>, at or above the configured threshold of %s.</p>",
		m.opts.MetricLabel, value.String(), m.opts.Threshold.String(),
	)

	if err := m.notifier.Send(ctx, subject, body, m.opts.Recipients); err != nil {
		m.mets.AlertSendErrors.Inc()
		m.logger.Error().Err(err).Str("metric", m.opts.MetricLabel).Msg("alert delivery failed")
		return err
	}

	m.lastAlertAt = now
	m.mets.AlertsSent.Inc()
	m.logger.Info().
		Str("metric", m.opts.MetricLabel).
		Str("value", value.String()).
		Str("threshold", m.opts.Threshold.String()).
		Msg("alert sent")
	return nil
}
