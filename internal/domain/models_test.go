package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A stored document must reproduce the Game exactly, scalars and relation
// order included.
func TestGameDocumentRoundTrip(t *testing.T) {
	weight := 3.89
	game := Game{
		ID:               174430,
		Slug:             "gloomhaven",
		Name:             "Gloomhaven",
		Thumbnail:        "https://example.invalid/t.jpg",
		Description:      "Vanquish monsters with strategic cardplay.",
		BriefDescription: "Vanquish monsters.",
		ExpectedPlaytime: 120,
		MinPlayers:       1,
		MaxPlayers:       4,
		MinPlaytime:      60,
		MaxPlaytime:      120,
		MinAge:           14,
		Rank:             1,
		Rating:           8.6,
		NumRatings:       60000,
		Weight:           &weight,
		YearPublished:    2017,
		Categories:       []EntityLink{{ID: 1022, Name: "Adventure"}, {ID: 1020, Name: "Exploration"}},
		Mechanics:        []EntityLink{{ID: 2001, Name: "Action Queue"}},
		Families:         []EntityLink{{ID: 45610, Name: "Components: Miniatures"}},
		Expansions:       []EntityLink{{ID: 231934, Name: "Gloomhaven: Forgotten Circles"}},
	}

	data, err := json.Marshal(game)
	require.NoError(t, err)

	var restored Game
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, game, restored)
}

func TestGameOmitsUnknownWeight(t *testing.T) {
	data, err := json.Marshal(Game{ID: 1, Name: "No Weight"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "weight")
}

func TestDocumentIdentities(t *testing.T) {
	game := Game{ID: 13, Name: "Catan"}
	assert.Equal(t, 13, game.DocID())
	assert.Equal(t, "Catan", game.DocName())

	tag := Tag{ID: 2001, Name: "Action Queue", Type: TagMechanic}
	assert.Equal(t, 2001, tag.DocID())
	assert.Equal(t, "Action Queue", tag.DocName())
}
