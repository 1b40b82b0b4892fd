package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bgg-indexer/internal/domain"
)

func detailXML(items ...string) string {
	return `<?xml version="1.0" encoding="utf-8"?><items termsofuse="https://example.invalid/xmlapi/termsofuse">` +
		strings.Join(items, "\n") + `</items>`
}

const gloomhavenItem = `<item type="boardgame" id="174430">
	<thumbnail>https://example.invalid/thumb/gloomhaven.jpg</thumbnail>
	<name type="primary" sortindex="1" value="Gloomhaven"/>
	<name type="alternate" sortindex="1" value="Homonimo"/>
	<description>Vanquish monsters with strategic cardplay.</description>
	<yearpublished value="2017"/>
	<minplayers value="1"/>
	<maxplayers value="4"/>
	<playingtime value="120"/>
	<minplaytime value="60"/>
	<maxplaytime value="120"/>
	<minage value="14"/>
	<link type="boardgamecategory" id="1022" value="Adventure"/>
	<link type="boardgamecategory" id="1020" value="Exploration"/>
	<link type="boardgamemechanic" id="2001" value="Action Queue"/>
	<link type="boardgamefamily" id="45610" value="Components: Miniatures"/>
	<link type="boardgameexpansion" id="231934" value="Gloomhaven: Forgotten Circles"/>
	<link type="boardgamedesigner" id="69802" value="Isaac Childres"/>
	<statistics page="1">
		<ratings>
			<usersrated value="60000"/>
			<average value="8.6"/>
			<ranks>
				<rank type="subtype" id="1" name="boardgame" friendlyname="Board Game Rank" value="1" bayesaverage="8.5"/>
				<rank type="family" id="5496" name="thematic" friendlyname="Thematic Rank" value="1" bayesaverage="8.5"/>
			</ranks>
			<averageweight value="3.89"/>
		</ratings>
	</statistics>
</item>`

func simpleItem(id, rank string) string {
	return fmt.Sprintf(`<item type="boardgame" id="%s">
	<name type="primary" sortindex="1" value="Game %s"/>
	<yearpublished value="2000"/>
	<minplayers value="2"/>
	<maxplayers value="4"/>
	<playingtime value="30"/>
	<minplaytime value="20"/>
	<maxplaytime value="30"/>
	<minage value="8"/>
	<statistics page="1">
		<ratings>
			<usersrated value="10"/>
			<average value="6.5"/>
			<ranks>
				<rank type="subtype" id="1" name="boardgame" friendlyname="Board Game Rank" value="%s" bayesaverage="5.5"/>
			</ranks>
			<averageweight value="0"/>
		</ratings>
	</statistics>
</item>`, id, id, rank)
}

func refsFor(ids ...int) map[int]domain.GameRef {
	refs := make(map[int]domain.GameRef, len(ids))
	for _, id := range ids {
		refs[id] = domain.GameRef{ID: id, Slug: fmt.Sprintf("game-%d", id)}
	}
	return refs
}

func TestParseDetailResponseFullItem(t *testing.T) {
	refs := map[int]domain.GameRef{
		174430: {ID: 174430, Slug: "gloomhaven", BriefDescription: "Vanquish monsters."},
	}
	games, unranked, err := parseDetailResponse(detailXML(gloomhavenItem), refs)
	require.NoError(t, err)
	assert.Zero(t, unranked)
	require.Len(t, games, 1)

	game := games[0]
	assert.Equal(t, 174430, game.ID)
	assert.Equal(t, "gloomhaven", game.Slug)
	assert.Equal(t, "Gloomhaven", game.Name)
	assert.Equal(t, 1, game.Rank)
	assert.Equal(t, "https://example.invalid/thumb/gloomhaven.jpg", game.Thumbnail)
	assert.Equal(t, "Vanquish monsters with strategic cardplay.", game.Description)
	assert.Equal(t, "Vanquish monsters.", game.BriefDescription)
	assert.Equal(t, 2017, game.YearPublished)
	assert.Equal(t, 1, game.MinPlayers)
	assert.Equal(t, 4, game.MaxPlayers)
	assert.Equal(t, 120, game.ExpectedPlaytime)
	assert.Equal(t, 60, game.MinPlaytime)
	assert.Equal(t, 120, game.MaxPlaytime)
	assert.Equal(t, 14, game.MinAge)
	assert.Equal(t, 60000, game.NumRatings)
	assert.InDelta(t, 8.6, game.Rating, 1e-9)
	require.NotNil(t, game.Weight)
	assert.InDelta(t, 3.89, *game.Weight, 1e-9)
	assert.Equal(t, []domain.EntityLink{{ID: 1022, Name: "Adventure"}, {ID: 1020, Name: "Exploration"}}, game.Categories)
	assert.Equal(t, []domain.EntityLink{{ID: 2001, Name: "Action Queue"}}, game.Mechanics)
	assert.Equal(t, []domain.EntityLink{{ID: 45610, Name: "Components: Miniatures"}}, game.Families)
	assert.Equal(t, []domain.EntityLink{{ID: 231934, Name: "Gloomhaven: Forgotten Circles"}}, game.Expansions)
}

func TestParseDetailResponseDropsUnranked(t *testing.T) {
	body := detailXML(simpleItem("1", "3"), simpleItem("2", "Not Ranked"))
	games, unranked, err := parseDetailResponse(body, refsFor(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, unranked)
	require.Len(t, games, 1)
	assert.Equal(t, 1, games[0].ID)
}

func TestParseDetailResponseZeroWeightMeansUnknown(t *testing.T) {
	games, _, err := parseDetailResponse(detailXML(simpleItem("1", "5")), refsFor(1))
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Nil(t, games[0].Weight)
}

func TestParseDetailResponseSkipsNonBoardgameItems(t *testing.T) {
	expansion := `<item type="boardgameexpansion" id="7"><name type="primary" value="Some Expansion"/></item>`
	games, unranked, err := parseDetailResponse(detailXML(expansion, simpleItem("1", "2")), refsFor(1))
	require.NoError(t, err)
	assert.Zero(t, unranked)
	require.Len(t, games, 1)
	assert.Equal(t, 1, games[0].ID)
}

func TestParseDetailResponseContractFaults(t *testing.T) {
	tests := []struct {
		name string
		item string
		refs map[int]domain.GameRef
	}{
		{
			name: "item not requested",
			item: simpleItem("42", "1"),
			refs: refsFor(1),
		},
		{
			name: "missing primary name",
			item: strings.Replace(simpleItem("1", "1"), `type="primary"`, `type="alternate"`, 1),
			refs: refsFor(1),
		},
		{
			name: "missing boardgame rank",
			item: strings.Replace(simpleItem("1", "1"), `name="boardgame"`, `name="thematic"`, 1),
			refs: refsFor(1),
		},
		{
			name: "missing yearpublished",
			item: strings.Replace(simpleItem("1", "1"), `<yearpublished value="2000"/>`, "", 1),
			refs: refsFor(1),
		},
		{
			name: "rank not a number",
			item: simpleItem("1", "soon"),
			refs: refsFor(1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseDetailResponse(detailXML(tt.item), tt.refs)
			assert.ErrorIs(t, err, ErrUpstreamContract)
		})
	}
}

func TestEnrichBatchesSortedIDs(t *testing.T) {
	refs := make(map[int]domain.GameRef, detailBatchSize+1)
	for id := 1; id <= detailBatchSize+1; id++ {
		refs[id] = domain.GameRef{ID: id, Slug: strconv.Itoa(id)}
	}
	fetcher := &stubPages{pages: map[string]string{}}
	fetcher.pages[thingURLFor(1, detailBatchSize)] = detailXML()
	fetcher.pages[thingURLFor(detailBatchSize+1, detailBatchSize+1)] = detailXML(simpleItem(strconv.Itoa(detailBatchSize+1), "1"))

	s := newTestScraper(t, fetcher, Config{ThingURL: "thing?id=%s", Workers: 4})
	games, err := s.Enrich(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, detailBatchSize+1, games[0].ID)
	assert.Len(t, fetcher.requested(), 2)
}

// thingURLFor renders the URL Enrich must produce for the inclusive id
// range [lo, hi].
func thingURLFor(lo, hi int) string {
	ids := make([]string, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		ids = append(ids, strconv.Itoa(id))
	}
	return "thing?id=" + strings.Join(ids, ",")
}

func TestEnrichEmptyRefs(t *testing.T) {
	fetcher := &stubPages{pages: map[string]string{}}
	s := newTestScraper(t, fetcher, Config{ThingURL: "thing?id=%s", Workers: 2})

	games, err := s.Enrich(context.Background(), map[int]domain.GameRef{})
	require.NoError(t, err)
	assert.Empty(t, games)
	assert.Empty(t, fetcher.requested())
}
