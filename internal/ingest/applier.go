package ingest

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
)

// flushAt bounds the per-worker action buffer, mirroring the store's bulk
// chunk size.
const flushAt = 500

// Applier drains an action stream through a sink with a fixed number of
// workers, each batching actions into bulk calls.
type Applier struct {
	sink    Sink
	workers int
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func NewApplier(sink Sink, workers int, logger *zap.Logger, metrics *monitoring.Metrics) *Applier {
	if workers <= 0 {
		workers = 1
	}
	return &Applier{sink: sink, workers: workers, logger: logger, metrics: metrics}
}

// Apply consumes actions until the channel closes, each action handled by
// exactly one worker. Buffers flush at flushAt actions and at stream end.
// The first sink error cancels the remaining workers.
func (a *Applier) Apply(ctx context.Context, actions <-chan domain.Action) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < a.workers; i++ {
		g.Go(func() error {
			return a.drain(ctx, actions)
		})
	}
	return g.Wait()
}

func (a *Applier) drain(ctx context.Context, actions <-chan domain.Action) error {
	buf := make([]domain.Action, 0, flushAt)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := a.sink.Apply(ctx, buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}

	for {
		select {
		case action, ok := <-actions:
			if !ok {
				return flush()
			}
			a.observe(action)
			buf = append(buf, action)
			if len(buf) >= flushAt {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Applier) observe(action domain.Action) {
	a.metrics.IncAction(string(action.Op), action.Index)
	switch action.Op {
	case domain.OpUpsert:
		a.logger.Debug("indexing",
			zap.String("index", action.Index),
			zap.String("name", action.Name))
	case domain.OpDelete:
		a.logger.Debug("deleting",
			zap.String("index", action.Index),
			zap.String("id", action.ID),
			zap.String("name", action.Name))
	}
}
