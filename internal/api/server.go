// Package api exposes the dashboard read surface: current sample info,
// cached historical series, pass-through snapshots, and the regeneration
// schedule.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chainstats/internal/cache"
	"chainstats/internal/collector"
	"chainstats/internal/series"
	"chainstats/internal/stats"
)

// Server is the HTTP read API.
type Server struct {
	collector *collector.Collector
	generator *stats.Generator
	cache     *cache.Cache
	logger    zerolog.Logger
	srv       *http.Server
	startedAt time.Time
}

// NewServer wires the read API against the core components.
func NewServer(addr string, col *collector.Collector, gen *stats.Generator, c *cache.Cache, logger zerolog.Logger) *Server {
	s := &Server{
		collector: col,
		generator: gen,
		cache:     c,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now().UTC(),
	}
	s.srv = &http.Server{Addr: addr, Handler: s.Router()}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/blockchain/current", s.handleCurrentBlockchain)
	api.GET("/price/current", s.handleCurrentPrice)
	api.GET("/blockchain/history/:hoursBack/:basis", s.handleHistory(stats.MetricBlockchain))
	api.GET("/price/history/:hoursBack/:basis", s.handleHistory(stats.MetricPrice))
	api.GET("/price/candles/:hoursBack/:basis", s.handleCandles)
	api.GET("/exchanges", s.handleSnapshot(collector.CacheKeyExchanges))
	api.GET("/volume", s.handleSnapshot(collector.CacheKeyTopVolume))
	api.GET("/stats/schedule", s.handleSchedule)

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Start launches the listener in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("read api listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("read api server error")
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func respondPending(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "pending"})
}

func (s *Server) handleCurrentBlockchain(c *gin.Context) {
	info, err := s.collector.CurrentBlockchainInfo(c.Request.Context())
	if err != nil {
		if collector.IsNoSamples(err) {
			respondPending(c)
			return
		}
		s.logger.Error().Err(err).Msg("current blockchain read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleCurrentPrice(c *gin.Context) {
	info, err := s.collector.CurrentPriceInfo(c.Request.Context())
	if err != nil {
		if collector.IsNoSamples(err) {
			respondPending(c)
			return
		}
		s.logger.Error().Err(err).Msg("current price read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) seriesParams(c *gin.Context) (int, series.Granularity, bool) {
	hoursBack, err := strconv.Atoi(c.Param("hoursBack"))
	if err != nil || hoursBack <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hoursBack param"})
		return 0, "", false
	}
	gran, err := series.ParseGranularity(c.Param("basis"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid basis param"})
		return 0, "", false
	}
	if !s.generator.Allows(hoursBack, gran) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window/granularity not configured"})
		return 0, "", false
	}
	return hoursBack, gran, true
}

func (s *Server) handleHistory(metric stats.Metric) gin.HandlerFunc {
	return func(c *gin.Context) {
		hoursBack, gran, ok := s.seriesParams(c)
		if !ok {
			return
		}
		entry, err := s.generator.Cached(metric, hoursBack, gran)
		if err != nil {
			respondPending(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"generatedAt": entry.CreatedAt, "data": entry.Data})
	}
}

func (s *Server) handleCandles(c *gin.Context) {
	hoursBack, gran, ok := s.seriesParams(c)
	if !ok {
		return
	}
	entry, err := s.generator.CachedCandles(hoursBack, gran)
	if err != nil {
		respondPending(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generatedAt": entry.CreatedAt, "data": entry.Data})
}

func (s *Server) handleSnapshot(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, ok := s.cache.Find(key)
		if !ok {
			respondPending(c)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fetchedAt": entry.CreatedAt, "data": entry.Data})
	}
}

func (s *Server) handleSchedule(c *gin.Context) {
	next := s.generator.NextRun()
	if next.IsZero() {
		respondPending(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lastRunAt": s.generator.LastRun(),
		"nextRunAt": next,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "green",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"lastCheck": time.Now().UTC(),
	})
}
