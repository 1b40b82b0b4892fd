// Package ingest turns scraped documents into index mutations and applies
// them against a store with bounded concurrency.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/storage"
)

// Sink receives batches of reconciled actions. Swapping the sink is how a
// dry run skips store mutation without skipping the pipeline.
type Sink interface {
	Apply(ctx context.Context, actions []domain.Action) error
}

// StoreSink applies action batches through the document store's bulk call.
type StoreSink struct {
	store storage.DocumentStore
}

func NewStoreSink(store storage.DocumentStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Apply(ctx context.Context, actions []domain.Action) error {
	return s.store.Bulk(ctx, actions)
}

// LogSink records what a real run would have done. Used for dry runs.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Apply(ctx context.Context, actions []domain.Action) error {
	for _, action := range actions {
		switch action.Op {
		case domain.OpUpsert:
			s.logger.Info("dry run: would index",
				zap.String("index", action.Index),
				zap.String("id", action.ID),
				zap.String("name", action.Name))
		case domain.OpDelete:
			s.logger.Info("dry run: would delete",
				zap.String("index", action.Index),
				zap.String("id", action.ID),
				zap.String("name", action.Name))
		}
	}
	return nil
}
