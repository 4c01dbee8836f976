package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chainstats/internal/alerting"
	"chainstats/internal/api"
	"chainstats/internal/cache"
	"chainstats/internal/collector"
	"chainstats/internal/config"
	"chainstats/internal/fetch"
	"chainstats/internal/metrics"
	"chainstats/internal/poller"
	"chainstats/internal/series"
	"chainstats/internal/stats"
	"chainstats/internal/storage"
	"chainstats/internal/version"
)

// Poll job keys.
const (
	jobBlockchain = "blockchain"
	jobPrice      = "price"
	jobExchanges  = "exchanges"
	jobTopVolume  = "top-volume"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newHTTPClient() *fetch.Client {
	timeout := 10 * time.Second
	for _, t := range []time.Duration{
		a.Config.Sources.Blockchain.RequestTimeout,
		a.Config.Sources.Price.RequestTimeout,
		a.Config.Sources.Exchanges.RequestTimeout,
		a.Config.Sources.Volume.RequestTimeout,
	} {
		if t > timeout {
			timeout = t
		}
	}
	return fetch.NewClient(timeout, "chainstats/"+version.Version, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting.Mailgun
	return alerting.NewMailgunNotifier(cfg.APIKey, cfg.Domain, cfg.From, cfg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) newMonitor(mets *metrics.Metrics) *alerting.Monitor {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	return alerting.NewMonitor(alerting.MonitorOptions{
		MetricLabel: "Pending Txs",
		Threshold:   decimal.NewFromFloat(a.Config.Alerting.PendingTxThreshold),
		Cooldown:    a.Config.Alerting.Cooldown,
		Recipients:  a.Config.Alerting.Recipients,
	}, a.newNotifier(), mets, a.Logger)
}

func (a *App) granularities() []series.Granularity {
	out := make([]series.Granularity, 0, len(a.Config.Statistics.Granularities))
	for _, raw := range a.Config.Statistics.Granularities {
		// Values are validated at config load time.
		g, err := series.ParseGranularity(raw)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (a *App) newCollector(store storage.SampleStore, c *cache.Cache, monitor *alerting.Monitor, mets *metrics.Metrics) *collector.Collector {
	var rpc collector.NetworkStateFetcher
	if a.Config.Sources.Blockchain.RPCURL != "" {
		rpc = fetch.NewRPC(fetch.RPCOptions{
			RPCURL:  a.Config.Sources.Blockchain.RPCURL,
			Timeout: a.Config.Sources.Blockchain.RequestTimeout,
		}, a.Logger)
	}

	return collector.New(collector.Options{
		BlockchainURL:   a.Config.Sources.Blockchain.URL,
		BlockchainToken: a.Config.Sources.Blockchain.Token,
		PriceURL:        a.Config.Sources.Price.URL,
		ExchangeURLs:    a.Config.Sources.Exchanges.URLs,
		VolumeURL:       a.Config.Sources.Volume.URL,
	}, a.newHTTPClient(), rpc, store, c, monitor, mets, a.Logger)
}

// Run executes the long-running collection and read-API service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	defer closeStore()

	mets := metrics.New(prometheus.DefaultRegisterer)
	c := cache.New()
	monitor := a.newMonitor(mets)
	col := a.newCollector(store, c, monitor, mets)

	gen := stats.New(stats.Options{
		HoursBack:         a.Config.Statistics.HoursBack,
		Granularities:     a.granularities(),
		Interval:          a.Config.Statistics.RegenerationInterval,
		StaggerBase:       a.Config.Statistics.StaggerBase,
		PendingNoiseFloor: decimal.NewFromInt(a.Config.Statistics.PendingNoiseFloor),
	}, store, c, mets, a.Logger)

	pol := poller.New(a.Logger, mets)
	pol.Schedule(ctx, &poller.Job{
		Key:            jobBlockchain,
		RequestsPerDay: a.Config.Sources.Blockchain.RequestsPerDay,
		Action:         col.CollectBlockchain,
	})
	pol.Schedule(ctx, &poller.Job{
		Key:            jobPrice,
		RequestsPerDay: a.Config.Sources.Price.RequestsPerDay,
		Action:         col.CollectPrice,
	})
	if len(a.Config.Sources.Exchanges.URLs) > 0 {
		pol.Schedule(ctx, &poller.Job{
			Key:            jobExchanges,
			RequestsPerDay: a.Config.Sources.Exchanges.RequestsPerDay,
			Action:         col.CacheExchanges,
		})
	}
	if a.Config.Sources.Volume.URL != "" {
		pol.Schedule(ctx, &poller.Job{
			Key:            jobTopVolume,
			RequestsPerDay: a.Config.Sources.Volume.RequestsPerDay,
			Action:         col.CacheTopVolume,
		})
	}

	gen.Start(ctx)

	srv := api.NewServer(a.Config.Server.ListenAddr, col, gen, c, a.Logger)
	srv.Start()

	a.Logger.Info().Msg("service started")
	<-ctx.Done()

	a.Logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("api shutdown error")
	}

	pol.Stop()
	gen.Stop()

	a.Logger.Info().Msg("service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Source string
	Limit  int
}

// ExportOptions hold parameters for exporting an aggregated series.
type ExportOptions struct {
	Metric      string
	HoursBack   int
	Granularity string
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}
