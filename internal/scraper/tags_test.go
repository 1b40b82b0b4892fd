package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/bgg-indexer/internal/domain"
)

func TestExtractTags(t *testing.T) {
	games := []domain.Game{
		{
			ID:         1,
			Mechanics:  []domain.EntityLink{{ID: 2001, Name: "Action Queue"}},
			Categories: []domain.EntityLink{{ID: 1022, Name: "Adventure"}},
		},
		{
			ID:         2,
			Mechanics:  []domain.EntityLink{{ID: 2001, Name: "Action Queue"}, {ID: 2040, Name: "Hand Management"}},
			Categories: []domain.EntityLink{{ID: 1022, Name: "Adventure"}},
		},
	}
	tags, err := ExtractTags(games)
	require.NoError(t, err)
	assert.Equal(t, []domain.Tag{
		{ID: 2001, Name: "Action Queue", Type: domain.TagMechanic},
		{ID: 1022, Name: "Adventure", Type: domain.TagCategory},
		{ID: 2040, Name: "Hand Management", Type: domain.TagMechanic},
	}, tags)
}

func TestExtractTagsNoGames(t *testing.T) {
	tags, err := ExtractTags(nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestExtractTagsConflictingNames(t *testing.T) {
	games := []domain.Game{
		{ID: 1, Mechanics: []domain.EntityLink{{ID: 2001, Name: "Action Queue"}}},
		{ID: 2, Categories: []domain.EntityLink{{ID: 2001, Name: "Adventure"}}},
	}
	_, err := ExtractTags(games)
	require.ErrorIs(t, err, ErrTagConflict)
	assert.Contains(t, err.Error(), "2001")
}
