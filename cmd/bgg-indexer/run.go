package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/bgg-indexer/internal/api"
	"github.com/user/bgg-indexer/internal/cache"
	"github.com/user/bgg-indexer/internal/config"
	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/ingest"
	"github.com/user/bgg-indexer/internal/monitoring"
	"github.com/user/bgg-indexer/internal/scraper"
	"github.com/user/bgg-indexer/internal/storage"
	"github.com/user/bgg-indexer/pkg/logging"
)

// runFlagKeys maps run flags onto their config keys so explicit flags win
// over environment values.
var runFlagKeys = map[string]string{
	"connection":          "CONNECTION",
	"connection-from-env": "CONNECTION_FROM_ENV",
	"dry-run":             "DRY_RUN",
	"max-rank":            "MAX_RANK",
	"drop-index":          "DROP_INDEX",
	"cache":               "CACHE_PATH",
	"scrape-workers":      "SCRAPE_WORKERS",
	"ingest-workers":      "INGEST_WORKERS",
	"metrics-addr":        "METRICS_ADDR",
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape BGG and ingest the results into the document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for flag, key := range runFlagKeys {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("connection", "", "store connection string (Elasticsearch URL or postgres:// DSN)")
	cmd.Flags().Bool("connection-from-env", false, "read the connection string from env var "+config.EndpointEnvVar)
	cmd.Flags().Bool("dry-run", false, "skip ingesting into the store (scraping only)")
	cmd.Flags().Int("max-rank", 0, "the max rank (on BGG) of the board games to scrape")
	cmd.Flags().Bool("drop-index", false, "drop the indexes before indexing new data")
	cmd.Flags().String("cache", ".bggcache.json", "BGG request cache file path")
	cmd.Flags().Int("scrape-workers", 10, "concurrent workers for scraping BGG")
	cmd.Flags().Int("ingest-workers", 2, "concurrent workers for updating the store")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Connection settings are validated before anything touches the
	// network or the cache file.
	connection, err := cfg.ResolveConnection()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewMetrics(registry)

	var store storage.DocumentStore
	if connection != "" {
		store, err = openStore(ctx, connection, logger, metrics)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		server := api.NewServer(cfg.MetricsAddr, metrics, registry, store, logger)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	fetcher := cache.NewHTTPFetcher(time.Duration(cfg.FetchTimeout)*time.Second, cfg.UserAgent)
	pages := cache.Open(cfg.CachePath, fetcher, logger, metrics)
	defer func() {
		if err := pages.Close(); err != nil {
			logger.Error("cache flush failed", zap.Error(err))
		}
	}()

	s := scraper.New(pages, scraper.Config{
		BrowseURL: cfg.BrowseURL,
		ThingURL:  cfg.ThingURL,
		Workers:   cfg.ScrapeWorkers,
		MaxRank:   cfg.MaxRank,
	}, logger, metrics)

	logger.Info("scraping BGG metadata",
		zap.Int("workers", cfg.ScrapeWorkers),
		zap.Int("max_rank", cfg.MaxRank),
		zap.String("cache", cfg.CachePath))
	games, err := s.Run(ctx)
	if err != nil {
		return err
	}

	tags, err := scraper.ExtractTags(games)
	if err != nil {
		return err
	}
	metrics.AddTagsExtracted(len(tags))
	logger.Info("extracted tags", zap.Int("tags", len(tags)))

	mutate := store != nil && !cfg.DryRun
	if mutate {
		if cfg.DropIndex {
			logger.Info("dropping old indexes")
			for _, index := range []string{domain.GameIndex, domain.TagIndex} {
				if err := store.DeleteIndex(ctx, index); err != nil {
					return err
				}
			}
		}
		for _, index := range []string{domain.GameIndex, domain.TagIndex} {
			if err := store.EnsureIndex(ctx, index); err != nil {
				return err
			}
		}
	}

	var sink ingest.Sink = ingest.NewLogSink(logger)
	if !cfg.DryRun {
		sink = ingest.NewStoreSink(store)
	}
	reconciler := ingest.NewReconciler(store, logger)
	applier := ingest.NewApplier(sink, cfg.IngestWorkers, logger, metrics)

	logger.Info("ingesting documents",
		zap.Bool("dry_run", cfg.DryRun),
		zap.Int("workers", cfg.IngestWorkers))
	actions := make(chan domain.Action, 512)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(actions)
		if err := reconciler.Reconcile(gctx, domain.GameIndex, gameDocuments(games), actions); err != nil {
			return err
		}
		return reconciler.Reconcile(gctx, domain.TagIndex, tagDocuments(tags), actions)
	})
	g.Go(func() error {
		return applier.Apply(gctx, actions)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if mutate {
		for _, index := range []string{domain.GameIndex, domain.TagIndex} {
			if err := store.Refresh(ctx, index); err != nil {
				return err
			}
			count, err := store.Count(ctx, index)
			if err != nil {
				return err
			}
			logger.Info("index ready", zap.String("index", index), zap.Int("documents", count))
		}
	}

	logger.Info("run complete", zap.Int("games", len(games)), zap.Int("tags", len(tags)))
	return nil
}

func gameDocuments(games []domain.Game) []domain.Document {
	docs := make([]domain.Document, len(games))
	for i, game := range games {
		docs[i] = game
	}
	return docs
}

func tagDocuments(tags []domain.Tag) []domain.Document {
	docs := make([]domain.Document, len(tags))
	for i, tag := range tags {
		docs[i] = tag
	}
	return docs
}
