// Package storage provides the document stores the pipeline writes to: an
// Elasticsearch index and a Postgres fallback with the same surface.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/user/bgg-indexer/internal/domain"
)

// ErrUnavailable reports a configured store that cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// IndexedDoc is the projection of a stored document the reconciler needs:
// its store id and its name, for progress output.
type IndexedDoc struct {
	ID   string
	Name string
}

// SearchHit is one query result with its raw stored document.
type SearchHit struct {
	ID     string
	Source json.RawMessage
}

// SearchResult carries one page of hits and the total match count.
type SearchResult struct {
	Total int
	Hits  []SearchHit
}

// DocumentStore is the write/read surface the pipeline needs from a store.
type DocumentStore interface {
	// Ping verifies the store is reachable before any work starts.
	Ping(ctx context.Context) error
	// EnsureIndex creates the index, tolerating one that already exists.
	EnsureIndex(ctx context.Context, index string) error
	// DeleteIndex removes the index, tolerating one that never existed.
	DeleteIndex(ctx context.Context, index string) error
	// Bulk applies a batch of upsert and delete actions.
	Bulk(ctx context.Context, actions []domain.Action) error
	// PageExcluding returns one window of stored documents whose ids are
	// not in exclude, starting at offset from.
	PageExcluding(ctx context.Context, index string, exclude []int, from, size int) ([]IndexedDoc, error)
	// Count reports how many documents the index holds.
	Count(ctx context.Context, index string) (int, error)
	// Search runs a name query and returns one page of hits.
	Search(ctx context.Context, index, query string, from, size int) (*SearchResult, error)
	// Refresh makes prior writes visible to searches.
	Refresh(ctx context.Context, index string) error
	// Close releases the store's resources.
	Close() error
}
