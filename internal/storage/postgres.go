package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
)

// documentsSchema holds every logical index in one table, the index name
// being part of the key.
const documentsSchema = `CREATE TABLE IF NOT EXISTS documents (
	index_name text NOT NULL,
	doc_id     text NOT NULL,
	name       text NOT NULL DEFAULT '',
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (index_name, doc_id)
)`

// Postgres implements DocumentStore on a plain Postgres database, for
// running the pipeline without an Elasticsearch cluster.
type Postgres struct {
	pool    *pgxpool.Pool
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger, metrics *monitoring.Metrics) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres pool: %w", err)
	}
	return &Postgres{pool: pool, logger: logger, metrics: metrics}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// EnsureIndex creates the documents table when missing. Logical indexes
// need no per-index DDL.
func (p *Postgres) EnsureIndex(ctx context.Context, index string) error {
	if _, err := p.pool.Exec(ctx, documentsSchema); err != nil {
		return fmt.Errorf("storage: ensure index %s: %w", index, err)
	}
	return nil
}

// DeleteIndex drops every document of the logical index.
func (p *Postgres) DeleteIndex(ctx context.Context, index string) error {
	if err := p.EnsureIndex(ctx, index); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE index_name = $1`, index); err != nil {
		return fmt.Errorf("storage: delete index %s: %w", index, err)
	}
	return nil
}

// Bulk applies the actions in one transaction through a pgx batch.
func (p *Postgres) Bulk(ctx context.Context, actions []domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, action := range actions {
		switch action.Op {
		case domain.OpUpsert:
			doc, err := json.Marshal(action.Doc)
			if err != nil {
				return fmt.Errorf("storage: encode doc %s: %w", action.ID, err)
			}
			batch.Queue(
				`INSERT INTO documents (index_name, doc_id, name, doc)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (index_name, doc_id) DO UPDATE SET
				   name = EXCLUDED.name, doc = EXCLUDED.doc, updated_at = now()`,
				action.Index, action.ID, action.Name, doc,
			)
		case domain.OpDelete:
			batch.Queue(
				`DELETE FROM documents WHERE index_name = $1 AND doc_id = $2`,
				action.Index, action.ID,
			)
		default:
			return fmt.Errorf("storage: unknown bulk op %q", action.Op)
		}
	}

	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin bulk: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: bulk: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit bulk: %w", err)
	}
	p.metrics.ObserveBulk(time.Since(start))
	p.logger.Debug("applied bulk", zap.Int("actions", len(actions)))
	return nil
}

func (p *Postgres) PageExcluding(ctx context.Context, index string, exclude []int, from, size int) ([]IndexedDoc, error) {
	ids := make([]string, len(exclude))
	for i, id := range exclude {
		ids[i] = strconv.Itoa(id)
	}
	rows, err := p.pool.Query(ctx,
		`SELECT doc_id, name FROM documents
		 WHERE index_name = $1 AND NOT (doc_id = ANY($2))
		 ORDER BY doc_id
		 OFFSET $3 LIMIT $4`,
		index, ids, from, size,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: page %s: %w", index, err)
	}
	defer rows.Close()

	var docs []IndexedDoc
	for rows.Next() {
		var doc IndexedDoc
		if err := rows.Scan(&doc.ID, &doc.Name); err != nil {
			return nil, fmt.Errorf("storage: scan page row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: page %s: %w", index, err)
	}
	return docs, nil
}

func (p *Postgres) Count(ctx context.Context, index string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE index_name = $1`, index,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", index, err)
	}
	return count, nil
}

// Search matches names with websearch_to_tsquery, ranked by relevance.
func (p *Postgres) Search(ctx context.Context, index, query string, from, size int) (*SearchResult, error) {
	result := &SearchResult{}
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents
		 WHERE index_name = $1
		   AND to_tsvector('english', name) @@ websearch_to_tsquery('english', $2)`,
		index, query,
	).Scan(&result.Total)
	if err != nil {
		return nil, fmt.Errorf("storage: search count %s: %w", index, err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT doc_id, doc FROM documents
		 WHERE index_name = $1
		   AND to_tsvector('english', name) @@ websearch_to_tsquery('english', $2)
		 ORDER BY ts_rank(to_tsvector('english', name), websearch_to_tsquery('english', $2)) DESC, doc_id
		 OFFSET $3 LIMIT $4`,
		index, query, from, size,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search %s: %w", index, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("storage: scan search row: %w", err)
		}
		result.Hits = append(result.Hits, SearchHit{ID: id, Source: json.RawMessage(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: search %s: %w", index, err)
	}
	return result, nil
}

// Refresh is a no-op: Postgres reads see committed writes immediately.
func (p *Postgres) Refresh(ctx context.Context, index string) error {
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
