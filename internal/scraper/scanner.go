package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/bgg-indexer/internal/domain"
)

// pageScan is one browse page's contribution: the refs it yielded and
// whether the listing continues past it.
type pageScan struct {
	refs []domain.GameRef
	more bool
}

// Discover walks the browse listing page by page and returns the ranked
// games keyed by id. Pages are fetched in rounds of Workers concurrent
// requests; the walk stops once any page in a round reports the end of the
// listing (no rows, a row without a rank marker, or a rank past MaxRank).
// Rows already parsed from later pages of that round are kept.
func (s *Scraper) Discover(ctx context.Context) (map[int]domain.GameRef, error) {
	refs := make(map[int]domain.GameRef)
	page := 1
	for {
		scans := make([]pageScan, s.config.Workers)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < s.config.Workers; i++ {
			slot, number := i, page+i
			g.Go(func() error {
				scan, err := s.scanPage(gctx, number)
				if err != nil {
					return err
				}
				scans[slot] = scan
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		done := false
		for _, scan := range scans {
			for _, ref := range scan.refs {
				refs[ref.ID] = ref
			}
			if !scan.more {
				done = true
			}
		}
		s.logger.Debug("scanned browse round",
			zap.Int("first_page", page),
			zap.Int("pages", s.config.Workers),
			zap.Int("games", len(refs)))
		if done {
			return refs, nil
		}
		page += s.config.Workers
	}
}

func (s *Scraper) scanPage(ctx context.Context, page int) (pageScan, error) {
	url := fmt.Sprintf(s.config.BrowseURL, page)
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return pageScan{}, err
	}
	return parseBrowsePage(body, s.config.MaxRank)
}

// parseBrowsePage extracts the game rows from one listing page. A row past
// the rank cutoff, or one whose rank cell carries no marker, ends the
// listing; the offending row is excluded.
func parseBrowsePage(body string, maxRank int) (pageScan, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return pageScan{}, fmt.Errorf("scraper: parse browse page: %w", err)
	}
	rows := doc.Find("tr#row_")
	if rows.Length() == 0 {
		return pageScan{}, nil
	}

	var (
		scan    pageScan
		scanErr error
		ended   bool
	)
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		href, ok := row.Find("td.collection_thumbnail a").First().Attr("href")
		if !ok {
			scanErr = fmt.Errorf("%w: browse row %d has no game link", ErrUpstreamContract, i)
			return false
		}
		id, slug, err := parseGameHref(href)
		if err != nil {
			scanErr = err
			return false
		}

		rankAttr, ok := row.Find("td.collection_rank a").First().Attr("name")
		if !ok {
			ended = true
			return false
		}
		rank, err := strconv.Atoi(strings.TrimSpace(rankAttr))
		if err != nil {
			scanErr = fmt.Errorf("%w: browse row %d rank %q is not a number", ErrUpstreamContract, i, rankAttr)
			return false
		}
		if maxRank > 0 && rank > maxRank {
			ended = true
			return false
		}

		scan.refs = append(scan.refs, domain.GameRef{
			ID:               id,
			Slug:             slug,
			BriefDescription: strings.TrimSpace(row.Find("td.collection_objectname p").First().Text()),
		})
		return true
	})
	if scanErr != nil {
		return pageScan{}, scanErr
	}
	scan.more = !ended
	return scan, nil
}

// parseGameHref splits "/boardgame/{id}/{slug}" into its parts.
func parseGameHref(href string) (int, string, error) {
	parts := strings.Split(href, "/")
	if len(parts) < 4 {
		return 0, "", fmt.Errorf("%w: malformed game link %q", ErrUpstreamContract, href)
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, "", fmt.Errorf("%w: game link %q has no numeric id", ErrUpstreamContract, href)
	}
	return id, parts[3], nil
}
