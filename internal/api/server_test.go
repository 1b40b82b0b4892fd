package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
	"github.com/user/bgg-indexer/internal/storage"
)

type pingStore struct {
	err error
}

func (p pingStore) Ping(context.Context) error {
	return p.err
}

func (p pingStore) EnsureIndex(context.Context, string) error {
	return nil
}

func (p pingStore) DeleteIndex(context.Context, string) error {
	return nil
}

func (p pingStore) Bulk(context.Context, []domain.Action) error {
	return nil
}

func (p pingStore) PageExcluding(context.Context, string, []int, int, int) ([]storage.IndexedDoc, error) {
	return nil, nil
}

func (p pingStore) Count(context.Context, string) (int, error) {
	return 0, nil
}

func (p pingStore) Search(context.Context, string, string, int, int) (*storage.SearchResult, error) {
	return &storage.SearchResult{}, nil
}

func (p pingStore) Refresh(context.Context, string) error {
	return nil
}

func (p pingStore) Close() error {
	return nil
}

func newTestServer(t *testing.T, store storage.DocumentStore) (*Server, *monitoring.Metrics) {
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	return NewServer(":0", metrics, registry, store, zaptest.NewLogger(t)), metrics
}

func TestHealthWithoutStore(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pipeline":"running"}`, rec.Body.String())
}

func TestHealthReportsStoreState(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s, _ := newTestServer(t, pingStore{})

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"pipeline":"running","store":"healthy"}`, rec.Body.String())
	})

	t.Run("unhealthy", func(t *testing.T) {
		s, _ := newTestServer(t, pingStore{err: errors.New("down")})

		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"pipeline":"running","store":"unhealthy"}`, rec.Body.String())
	})
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	s, metrics := newTestServer(t, nil)
	metrics.IncPageFetched("hit")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bgg_pages_fetched_total{cache="hit"} 1`)
}

func TestRequestsAreInstrumented(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`bgg_http_request_duration_seconds_count{method="GET",path="/healthz",status="200"} 1`)
}
