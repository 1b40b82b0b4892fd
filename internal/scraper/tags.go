package scraper

import (
	"errors"
	"fmt"

	"github.com/user/bgg-indexer/internal/domain"
)

// ErrTagConflict reports a tag id carrying two different names across the
// scraped corpus.
var ErrTagConflict = errors.New("conflicting tag names")

// ExtractTags collects the distinct mechanics and categories referenced by
// the games, first occurrence wins the ordering. An id reappearing under a
// different name is a data fault and aborts.
func ExtractTags(games []domain.Game) ([]domain.Tag, error) {
	seen := make(map[int]string)
	var tags []domain.Tag
	for _, game := range games {
		links := make([]domain.Tag, 0, len(game.Mechanics)+len(game.Categories))
		for _, link := range game.Mechanics {
			links = append(links, domain.Tag{ID: link.ID, Name: link.Name, Type: domain.TagMechanic})
		}
		for _, link := range game.Categories {
			links = append(links, domain.Tag{ID: link.ID, Name: link.Name, Type: domain.TagCategory})
		}
		for _, tag := range links {
			if name, ok := seen[tag.ID]; ok {
				if name != tag.Name {
					return nil, fmt.Errorf("%w: id %d seen as %q and %q", ErrTagConflict, tag.ID, name, tag.Name)
				}
				continue
			}
			seen[tag.ID] = tag.Name
			tags = append(tags, tag)
		}
	}
	return tags, nil
}
