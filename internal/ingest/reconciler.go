package ingest

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/storage"
)

// pageWindow matches the store's maximum search window.
const pageWindow = 10000

// Reconciler computes the mutations that bring one index in line with a
// freshly scraped document set.
type Reconciler struct {
	store  storage.DocumentStore
	logger *zap.Logger
}

// NewReconciler builds a reconciler. A nil store means there is nothing to
// delete against and only upserts are produced (dry runs).
func NewReconciler(store storage.DocumentStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Reconcile streams actions for index onto out: one unconditional upsert
// per document, then one delete per stored document whose id is absent
// from docs. Deletes are found by paging the store with the fresh ids
// excluded until a short page. The caller owns closing out.
func (r *Reconciler) Reconcile(ctx context.Context, index string, docs []domain.Document, out chan<- domain.Action) error {
	fresh := make([]int, 0, len(docs))
	for _, doc := range docs {
		fresh = append(fresh, doc.DocID())
		action := domain.Action{
			Op:    domain.OpUpsert,
			Index: index,
			ID:    strconv.Itoa(doc.DocID()),
			Name:  doc.DocName(),
			Doc:   doc,
		}
		select {
		case out <- action:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.logger.Info("queued upserts", zap.String("index", index), zap.Int("documents", len(docs)))

	if r.store == nil {
		return nil
	}

	deletes := 0
	from := 0
	for {
		page, err := r.store.PageExcluding(ctx, index, fresh, from, pageWindow)
		if err != nil {
			return err
		}
		for _, doc := range page {
			action := domain.Action{
				Op:    domain.OpDelete,
				Index: index,
				ID:    doc.ID,
				Name:  doc.Name,
			}
			select {
			case out <- action:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		deletes += len(page)
		from += len(page)
		if len(page) < pageWindow {
			break
		}
	}
	r.logger.Info("queued deletes", zap.String("index", index), zap.Int("documents", deletes))
	return nil
}
