package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"chainstats/internal/cache"
	"chainstats/internal/collector"
	"chainstats/internal/metrics"
	"chainstats/internal/series"
	"chainstats/internal/stats"
	"chainstats/internal/storage"
)

type memStore struct {
	samples map[storage.Source][]storage.Sample
}

func newMemStore() *memStore {
	return &memStore{samples: make(map[storage.Source][]storage.Sample)}
}

func (m *memStore) SaveSample(ctx context.Context, source storage.Source, payload json.RawMessage) (storage.Sample, error) {
	sample := storage.Sample{Source: source, CreatedAt: time.Now().UTC(), Payload: payload}
	m.samples[source] = append(m.samples[source], sample)
	return sample, nil
}

func (m *memStore) ListSamplesSince(ctx context.Context, source storage.Source, since time.Time) ([]storage.Sample, error) {
	out := make([]storage.Sample, 0)
	for _, s := range m.samples[source] {
		if s.CreatedAt.After(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListRecentSamples(ctx context.Context, source storage.Source, limit int) ([]storage.Sample, error) {
	all := m.samples[source]
	out := make([]storage.Sample, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memStore) CountSamples(ctx context.Context, source storage.Source) (int64, error) {
	return int64(len(m.samples[source])), nil
}

func newTestServer(store storage.SampleStore, c *cache.Cache, gen *stats.Generator) *Server {
	col := collector.New(collector.Options{}, nil, nil, store, c, nil, metrics.NewNop(), zerolog.Nop())
	return NewServer(":0", col, gen, c, zerolog.Nop())
}

func newTestGenerator(store storage.SampleStore, c *cache.Cache) *stats.Generator {
	return stats.New(stats.Options{
		HoursBack:         []int{1},
		Granularities:     []series.Granularity{series.GranularityHour},
		Interval:          30 * time.Minute,
		PendingNoiseFloor: decimal.NewFromInt(100),
	}, store, c, metrics.NewNop(), zerolog.Nop())
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestCurrentBlockchainPendingWithoutSamples(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	srv := newTestServer(store, c, newTestGenerator(store, c))

	rec := doRequest(t, srv, "/api/blockchain/current")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "status").String() != "pending" {
		t.Fatalf("expected pending body, got %s", rec.Body.String())
	}
}

func TestCurrentBlockchainReturnsLatestSample(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	ctx := context.Background()
	if _, err := store.SaveSample(ctx, storage.SourceBlockchain, []byte(`{"height":1,"unconfirmed_count":100}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveSample(ctx, storage.SourceBlockchain, []byte(`{"height":2,"unconfirmed_count":175}`)); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(store, c, newTestGenerator(store, c))

	rec := doRequest(t, srv, "/api/blockchain/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if gjson.Get(body, "payload.height").Int() != 2 {
		t.Fatalf("expected the latest sample, got %s", body)
	}
	if gjson.Get(body, "pendingTxDelta").Int() != 75 {
		t.Fatalf("expected delta 75, got %s", body)
	}
}

func TestHistoryPendingBeforeFirstCycle(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	srv := newTestServer(store, c, newTestGenerator(store, c))

	rec := doRequest(t, srv, "/api/price/history/1/hour")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before a cycle, got %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "status").String() != "pending" {
		t.Fatalf("expected pending body, got %s", rec.Body.String())
	}
}

func TestHistoryServesGeneratedSeries(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	ctx := context.Background()
	if _, err := store.SaveSample(ctx, storage.SourcePrice, []byte(`{"price_usd":"101.5"}`)); err != nil {
		t.Fatal(err)
	}
	gen := newTestGenerator(store, c)
	gen.RunCycle(ctx)
	srv := newTestServer(store, c, gen)

	rec := doRequest(t, srv, "/api/price/history/1/hour")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !gjson.Get(body, "data").IsArray() {
		t.Fatalf("expected a data array, got %s", body)
	}
	if gjson.Get(body, "generatedAt").String() == "" {
		t.Fatalf("expected a generatedAt stamp, got %s", body)
	}

	rec = doRequest(t, srv, "/api/price/candles/1/hour")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for candles, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryRejectsUnconfiguredWindow(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	srv := newTestServer(store, c, newTestGenerator(store, c))

	for _, path := range []string{
		"/api/blockchain/history/7/hour",
		"/api/blockchain/history/abc/hour",
		"/api/blockchain/history/1/fortnight",
	} {
		rec := doRequest(t, srv, path)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	srv := newTestServer(store, c, newTestGenerator(store, c))

	rec := doRequest(t, srv, "/api/exchanges")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for empty snapshot, got %d", rec.Code)
	}

	c.Add(collector.CacheKeyExchanges, cache.Entry{
		CreatedAt: time.Now().UTC(),
		Data:      []json.RawMessage{[]byte(`{"exchange":"one"}`)},
	})
	rec = doRequest(t, srv, "/api/exchanges")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after caching, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"exchange":"one"`) {
		t.Fatalf("snapshot payload missing: %s", rec.Body.String())
	}
}

func TestSchedulePendingThenPopulated(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	gen := newTestGenerator(store, c)
	srv := newTestServer(store, c, gen)

	rec := doRequest(t, srv, "/api/stats/schedule")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the first cycle, got %d", rec.Code)
	}

	gen.RunCycle(context.Background())
	rec = doRequest(t, srv, "/api/stats/schedule")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after a cycle, got %d", rec.Code)
	}
	body := rec.Body.String()
	if gjson.Get(body, "nextRunAt").String() == "" || gjson.Get(body, "lastRunAt").String() == "" {
		t.Fatalf("expected both run stamps, got %s", body)
	}
}

func TestHealthz(t *testing.T) {
	c := cache.New()
	store := newMemStore()
	srv := newTestServer(store, c, newTestGenerator(store, c))

	rec := doRequest(t, srv, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "status").String() != "green" {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}
