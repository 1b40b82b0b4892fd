package scraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/user/bgg-indexer/internal/domain"
)

// thingItems mirrors the XML API's response envelope. Pointer fields
// distinguish an absent element from an empty one.
type thingItems struct {
	XMLName xml.Name    `xml:"items"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	Type          string      `xml:"type,attr"`
	ID            string      `xml:"id,attr"`
	Thumbnail     string      `xml:"thumbnail"`
	Description   string      `xml:"description"`
	Names         []thingName `xml:"name"`
	YearPublished *valueAttr  `xml:"yearpublished"`
	MinPlayers    *valueAttr  `xml:"minplayers"`
	MaxPlayers    *valueAttr  `xml:"maxplayers"`
	PlayingTime   *valueAttr  `xml:"playingtime"`
	MinPlaytime   *valueAttr  `xml:"minplaytime"`
	MaxPlaytime   *valueAttr  `xml:"maxplaytime"`
	MinAge        *valueAttr  `xml:"minage"`
	Links         []thingLink `xml:"link"`
	Statistics    *thingStats `xml:"statistics"`
}

type thingName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type thingLink struct {
	Type  string `xml:"type,attr"`
	ID    int    `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type thingStats struct {
	Ratings thingRatings `xml:"ratings"`
}

type thingRatings struct {
	UsersRated    *valueAttr `xml:"usersrated"`
	Average       *valueAttr `xml:"average"`
	AverageWeight *valueAttr `xml:"averageweight"`
	Ranks         thingRanks `xml:"ranks"`
}

type thingRanks struct {
	Ranks []thingRank `xml:"rank"`
}

type thingRank struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type valueAttr struct {
	Value string `xml:"value,attr"`
}

func (v *valueAttr) intValue(field string) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrUpstreamContract, field)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrUpstreamContract, field, v.Value)
	}
	return n, nil
}

func (v *valueAttr) floatValue(field string) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrUpstreamContract, field)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrUpstreamContract, field, v.Value)
	}
	return f, nil
}

// Enrich resolves the discovered refs into full Game records through the
// batched detail API. Ids are fetched in sorted batches of detailBatchSize
// so cache keys stay stable between runs. Items ranked "Not Ranked" are
// dropped; any other shape violation aborts.
func (s *Scraper) Enrich(ctx context.Context, refs map[int]domain.GameRef) ([]domain.Game, error) {
	ids := make([]int, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var batches [][]int
	for len(ids) > 0 {
		n := detailBatchSize
		if len(ids) < n {
			n = len(ids)
		}
		batches = append(batches, ids[:n])
		ids = ids[n:]
	}

	perBatch := make([][]domain.Game, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, batch := range batches {
		g.Go(func() error {
			games, unranked, err := s.enrichBatch(gctx, batch, refs)
			if err != nil {
				return err
			}
			perBatch[i] = games
			s.metrics.AddGamesUnranked(unranked)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var games []domain.Game
	for _, batch := range perBatch {
		games = append(games, batch...)
	}
	s.metrics.AddGamesScraped(len(games))
	return games, nil
}

func (s *Scraper) enrichBatch(ctx context.Context, ids []int, refs map[int]domain.GameRef) ([]domain.Game, int, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	url := fmt.Sprintf(s.config.ThingURL, strings.Join(parts, ","))
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	return parseDetailResponse(body, refs)
}

// parseDetailResponse maps one detail API response onto Game records. The
// second return is the count of unranked items that were dropped.
func parseDetailResponse(body string, refs map[int]domain.GameRef) ([]domain.Game, int, error) {
	var envelope thingItems
	if err := xml.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, 0, fmt.Errorf("scraper: parse detail response: %w", err)
	}

	var (
		games    []domain.Game
		unranked int
	)
	for _, item := range envelope.Items {
		if item.Type != "boardgame" {
			continue
		}
		game, ok, err := mapItem(item, refs)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			unranked++
			continue
		}
		games = append(games, game)
	}
	return games, unranked, nil
}

// mapItem converts one XML item. ok=false means the item is unranked and
// should be dropped without error.
func mapItem(item thingItem, refs map[int]domain.GameRef) (domain.Game, bool, error) {
	id, err := strconv.Atoi(item.ID)
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("%w: item id %q is not an integer", ErrUpstreamContract, item.ID)
	}
	ref, ok := refs[id]
	if !ok {
		return domain.Game{}, false, fmt.Errorf("%w: item %d was not requested", ErrUpstreamContract, id)
	}

	rankAttr, ok := boardgameRank(item)
	if !ok {
		return domain.Game{}, false, fmt.Errorf("%w: item %d has no boardgame rank", ErrUpstreamContract, id)
	}
	if rankAttr == "Not Ranked" {
		return domain.Game{}, false, nil
	}
	rank, err := strconv.Atoi(rankAttr)
	if err != nil {
		return domain.Game{}, false, fmt.Errorf("%w: item %d rank %q is not an integer", ErrUpstreamContract, id, rankAttr)
	}

	name, ok := primaryName(item)
	if !ok {
		return domain.Game{}, false, fmt.Errorf("%w: item %d has no primary name", ErrUpstreamContract, id)
	}

	ratings := item.Statistics.Ratings

	game := domain.Game{
		ID:               id,
		Slug:             ref.Slug,
		Name:             name,
		Rank:             rank,
		Thumbnail:        strings.TrimSpace(item.Thumbnail),
		Description:      item.Description,
		BriefDescription: ref.BriefDescription,
	}
	fields := []struct {
		dst  *int
		src  *valueAttr
		name string
	}{
		{&game.YearPublished, item.YearPublished, "yearpublished"},
		{&game.MinPlayers, item.MinPlayers, "minplayers"},
		{&game.MaxPlayers, item.MaxPlayers, "maxplayers"},
		{&game.ExpectedPlaytime, item.PlayingTime, "playingtime"},
		{&game.MinPlaytime, item.MinPlaytime, "minplaytime"},
		{&game.MaxPlaytime, item.MaxPlaytime, "maxplaytime"},
		{&game.MinAge, item.MinAge, "minage"},
		{&game.NumRatings, ratings.UsersRated, "usersrated"},
	}
	for _, f := range fields {
		n, err := f.src.intValue(fmt.Sprintf("item %d %s", id, f.name))
		if err != nil {
			return domain.Game{}, false, err
		}
		*f.dst = n
	}

	avg, err := ratings.Average.floatValue(fmt.Sprintf("item %d average", id))
	if err != nil {
		return domain.Game{}, false, err
	}
	game.Rating = avg

	weight, err := ratings.AverageWeight.floatValue(fmt.Sprintf("item %d averageweight", id))
	if err != nil {
		return domain.Game{}, false, err
	}
	if weight != 0 {
		game.Weight = &weight
	}

	for _, link := range item.Links {
		entity := domain.EntityLink{ID: link.ID, Name: link.Value}
		switch link.Type {
		case "boardgamecategory":
			game.Categories = append(game.Categories, entity)
		case "boardgamemechanic":
			game.Mechanics = append(game.Mechanics, entity)
		case "boardgamefamily":
			game.Families = append(game.Families, entity)
		case "boardgameexpansion":
			game.Expansions = append(game.Expansions, entity)
		}
	}
	return game, true, nil
}

func boardgameRank(item thingItem) (string, bool) {
	if item.Statistics == nil {
		return "", false
	}
	for _, rank := range item.Statistics.Ratings.Ranks.Ranks {
		if rank.Name == "boardgame" {
			return rank.Value, true
		}
	}
	return "", false
}

func primaryName(item thingItem) (string, bool) {
	for _, name := range item.Names {
		if name.Type == "primary" {
			return name.Value, true
		}
	}
	return "", false
}
