// Package collector implements the per-source poll actions: fetch a raw
// payload, validate its required fields, append it as a sample, and run any
// reactive side-effects. It also serves the latest-sample reads.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"chainstats/internal/alerting"
	"chainstats/internal/cache"
	"chainstats/internal/fetch"
	"chainstats/internal/metrics"
	"chainstats/internal/storage"
)

// Fixed cache keys for the pass-through snapshots.
const (
	CacheKeyExchanges = "exchanges"
	CacheKeyTopVolume = "top-volume"
)

// Required payload fields per source. Payloads missing any of these are
// skipped, not persisted.
var (
	blockchainRequiredFields = []string{"unconfirmed_count", "height"}
	priceRequiredFields      = []string{"price_usd"}
)

// JSONGetter reads raw JSON from a URL.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

// NetworkStateFetcher samples blockchain state over RPC.
type NetworkStateFetcher interface {
	FetchNetworkState(ctx context.Context) (json.RawMessage, error)
}

// Options configure the external source endpoints.
type Options struct {
	BlockchainURL   string
	BlockchainToken string
	PriceURL        string
	ExchangeURLs    []string
	VolumeURL       string
}

// Collector owns the poll actions for all sources.
type Collector struct {
	opts    Options
	client  JSONGetter
	rpc     NetworkStateFetcher
	store   storage.SampleStore
	cache   *cache.Cache
	monitor *alerting.Monitor
	mets    *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs a Collector. rpc and monitor may be nil.
func New(opts Options, client JSONGetter, rpc NetworkStateFetcher, store storage.SampleStore, c *cache.Cache, monitor *alerting.Monitor, mets *metrics.Metrics, logger zerolog.Logger) *Collector {
	return &Collector{
		opts:    opts,
		client:  client,
		rpc:     rpc,
		store:   store,
		cache:   c,
		monitor: monitor,
		mets:    mets,
		logger:  logger.With().Str("component", "collector").Logger(),
	}
}

// CollectBlockchain runs one blockchain tick: fetch network state, validate,
// persist, then hand the fresh pending count to the threshold monitor.
func (c *Collector) CollectBlockchain(ctx context.Context) error {
	payload, err := c.fetchNetworkState(ctx)
	if err != nil {
		return err
	}

	if err := fetch.RequireFields(payload, blockchainRequiredFields...); err != nil {
		c.logger.Debug().Err(err).Msg("blockchain payload incomplete, skipping persistence")
		return nil
	}

	sample, err := c.store.SaveSample(ctx, storage.SourceBlockchain, payload)
	if err != nil {
		return fmt.Errorf("save blockchain sample: %w", err)
	}
	c.mets.SamplesStored.WithLabelValues(string(storage.SourceBlockchain)).Inc()
	c.logger.Debug().Time("created_at", sample.CreatedAt).Msg("blockchain sample stored")

	if c.monitor != nil {
		pending, err := decimal.NewFromString(gjson.GetBytes(payload, "unconfirmed_count").String())
		if err == nil {
			// Delivery failures are already logged by the monitor and
			// must not fail the tick.
			_ = c.monitor.Inspect(ctx, pending)
		}
	}

	return nil
}

func (c *Collector) fetchNetworkState(ctx context.Context) (json.RawMessage, error) {
	if c.rpc != nil {
		return c.rpc.FetchNetworkState(ctx)
	}
	url := c.opts.BlockchainURL
	if c.opts.BlockchainToken != "" {
		url = fmt.Sprintf("%s?token=%s", url, c.opts.BlockchainToken)
	}
	return c.client.GetJSON(ctx, url)
}

// CollectPrice runs one price tick. The upstream ticker may respond with a
// single-element array; the first element is the sample.
func (c *Collector) CollectPrice(ctx context.Context) error {
	payload, err := c.client.GetJSON(ctx, c.opts.PriceURL)
	if err != nil {
		return err
	}

	parsed := gjson.ParseBytes(payload)
	if parsed.IsArray() {
		items := parsed.Array()
		if len(items) == 0 {
			c.logger.Debug().Msg("price payload empty, skipping persistence")
			return nil
		}
		payload = []byte(items[0].Raw)
	}

	if err := fetch.RequireFields(payload, priceRequiredFields...); err != nil {
		c.logger.Debug().Err(err).Msg("price payload incomplete, skipping persistence")
		return nil
	}

	if _, err := c.store.SaveSample(ctx, storage.SourcePrice, payload); err != nil {
		return fmt.Errorf("save price sample: %w", err)
	}
	c.mets.SamplesStored.WithLabelValues(string(storage.SourcePrice)).Inc()
	return nil
}

// CacheExchanges refreshes the pass-through exchange-listing snapshot.
func (c *Collector) CacheExchanges(ctx context.Context) error {
	listings := make([]json.RawMessage, 0, len(c.opts.ExchangeURLs))
	for _, url := range c.opts.ExchangeURLs {
		payload, err := c.client.GetJSON(ctx, url)
		if err != nil {
			return err
		}
		listings = append(listings, payload)
	}

	c.cache.DeleteAndAdd(CacheKeyExchanges, cache.Entry{
		CreatedAt: time.Now().UTC(),
		Data:      listings,
	})
	return nil
}

// CacheTopVolume refreshes the pass-through top-volume snapshot.
func (c *Collector) CacheTopVolume(ctx context.Context) error {
	payload, err := c.client.GetJSON(ctx, c.opts.VolumeURL)
	if err != nil {
		return err
	}

	c.cache.DeleteAndAdd(CacheKeyTopVolume, cache.Entry{
		CreatedAt: time.Now().UTC(),
		Data:      json.RawMessage(payload),
	})
	return nil
}

// BlockchainInfo is the latest network-state sample with its delta versus
// the previous sample.
type BlockchainInfo struct {
	At             time.Time       `json:"at"`
	Payload        json.RawMessage `json:"payload"`
	PendingTxDelta *int64          `json:"pendingTxDelta,omitempty"`
}

// PriceInfo is the latest price sample with its USD delta versus the
// previous sample.
type PriceInfo struct {
	At       time.Time        `json:"at"`
	Payload  json.RawMessage  `json:"payload"`
	USDDelta *decimal.Decimal `json:"usdDelta,omitempty"`
}

// CurrentBlockchainInfo returns the most recent blockchain sample.
func (c *Collector) CurrentBlockchainInfo(ctx context.Context) (BlockchainInfo, error) {
	samples, err := c.store.ListRecentSamples(ctx, storage.SourceBlockchain, 2)
	if err != nil {
		return BlockchainInfo{}, err
	}
	if len(samples) == 0 {
		return BlockchainInfo{}, storage.ErrNoSamples
	}

	info := BlockchainInfo{At: samples[0].CreatedAt, Payload: samples[0].Payload}
	if len(samples) == 2 {
		cur := gjson.GetBytes(samples[0].Payload, "unconfirmed_count")
		prev := gjson.GetBytes(samples[1].Payload, "unconfirmed_count")
		if cur.Exists() && prev.Exists() {
			delta := cur.Int() - prev.Int()
			info.PendingTxDelta = &delta
		}
	}
	return info, nil
}

// CurrentPriceInfo returns the most recent price sample.
func (c *Collector) CurrentPriceInfo(ctx context.Context) (PriceInfo, error) {
	samples, err := c.store.ListRecentSamples(ctx, storage.SourcePrice, 2)
	if err != nil {
		return PriceInfo{}, err
	}
	if len(samples) == 0 {
		return PriceInfo{}, storage.ErrNoSamples
	}

	info := PriceInfo{At: samples[0].CreatedAt, Payload: samples[0].Payload}
	if len(samples) == 2 {
		cur, curErr := decimal.NewFromString(gjson.GetBytes(samples[0].Payload, "price_usd").String())
		prev, prevErr := decimal.NewFromString(gjson.GetBytes(samples[1].Payload, "price_usd").String())
		if curErr == nil && prevErr == nil {
			delta := cur.Sub(prev)
			info.USDDelta = &delta
		}
	}
	return info, nil
}

// IsNoSamples reports whether an error means the source has no data yet.
func IsNoSamples(err error) bool {
	return errors.Is(err, storage.ErrNoSamples)
}
