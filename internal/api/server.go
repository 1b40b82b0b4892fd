// Package api serves the operational endpoints exposed while a pipeline
// run is in flight: Prometheus metrics and a health probe.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/monitoring"
	"github.com/user/bgg-indexer/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	router     http.Handler
	httpServer *http.Server
	store      storage.DocumentStore
	metrics    *monitoring.Metrics
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

// NewServer builds the server. store may be nil in a storeless dry run;
// the health probe then only reports process liveness.
func NewServer(addr string, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, store storage.DocumentStore, logger *zap.Logger) *Server {
	s := &Server{
		store:    store,
		metrics:  metrics,
		gatherer: gatherer,
		logger:   logger,
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown, like http.Server does.
func (s *Server) Start() error {
	s.logger.Info("metrics server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
