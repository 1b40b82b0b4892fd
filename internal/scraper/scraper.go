// Package scraper crawls the BGG ranked browse listing, enriches the
// discovered games through the XML API, and derives the tag set.
package scraper

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
)

const (
	// DefaultBrowseURL is the paginated ranked listing; the verb takes the
	// page number.
	DefaultBrowseURL = "https://boardgamegeek.com/browse/boardgame/page/%d"
	// DefaultThingURL is the batched detail API; the verb takes a
	// comma-separated id list.
	DefaultThingURL = "https://boardgamegeek.com/xmlapi2/thing?stats=1&id=%s"

	// detailBatchSize respects the thing API's per-request id ceiling.
	detailBatchSize = 1000
)

// ErrUpstreamContract marks a response that violates the expected document
// shape. These abort the run: they mean the source changed, not that a
// retry would help.
var ErrUpstreamContract = errors.New("unexpected upstream document shape")

// PageFetcher retrieves a raw document by URL. The request cache satisfies
// this in production.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config tunes a Scraper.
type Config struct {
	BrowseURL string // fmt template with one %d (page number)
	ThingURL  string // fmt template with one %s (comma-separated ids)
	Workers   int    // concurrent page or batch fetches
	MaxRank   int    // discovery cutoff; 0 scrapes the full listing
}

func (c *Config) defaults() {
	if c.BrowseURL == "" {
		c.BrowseURL = DefaultBrowseURL
	}
	if c.ThingURL == "" {
		c.ThingURL = DefaultThingURL
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
}

// Scraper runs the two-phase crawl against a fetcher.
type Scraper struct {
	fetcher PageFetcher
	config  Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New builds a Scraper. The fetcher is typically a *cache.Cache so that
// repeated runs reuse already-downloaded pages.
func New(fetcher PageFetcher, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Scraper {
	cfg.defaults()
	return &Scraper{
		fetcher: fetcher,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Run executes discovery followed by enrichment.
func (s *Scraper) Run(ctx context.Context) ([]domain.Game, error) {
	refs, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("discovery complete", zap.Int("games", len(refs)))

	games, err := s.Enrich(ctx, refs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("enrichment complete", zap.Int("games", len(games)))
	return games, nil
}
