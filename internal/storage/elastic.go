package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/user/bgg-indexer/internal/domain"
	"github.com/user/bgg-indexer/internal/monitoring"
)

// Elastic talks to an Elasticsearch cluster through the official client.
type Elastic struct {
	client  *elasticsearch.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewElastic builds a store for the cluster at url. No request is made
// until Ping.
func NewElastic(url string, logger *zap.Logger, metrics *monitoring.Metrics) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: elasticsearch client: %w", err)
	}
	return &Elastic{client: client, logger: logger, metrics: metrics}, nil
}

func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: ping returned %s", ErrUnavailable, res.Status())
	}
	return nil
}

// EnsureIndex creates the index. A 400 means it already exists and is not
// an error.
func (e *Elastic) EnsureIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Create(index, e.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("storage: create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return apiError("create index "+index, res)
	}
	return nil
}

// DeleteIndex drops the index, tolerating one that never existed.
func (e *Elastic) DeleteIndex(ctx context.Context, index string) error {
	res, err := e.client.Indices.Delete([]string{index}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("storage: delete index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound && res.StatusCode != http.StatusBadRequest {
		return apiError("delete index "+index, res)
	}
	return nil
}

type bulkResponse struct {
	Errors bool                      `json:"errors"`
	Items  []map[string]bulkItemInfo `json:"items"`
}

type bulkItemInfo struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// Bulk sends the actions as one _bulk request and fails on the first
// per-item error the cluster reports.
func (e *Elastic) Bulk(ctx context.Context, actions []domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, action := range actions {
		switch action.Op {
		case domain.OpUpsert:
			meta := map[string]any{"index": map[string]any{"_index": action.Index, "_id": action.ID}}
			if err := enc.Encode(meta); err != nil {
				return fmt.Errorf("storage: encode bulk meta: %w", err)
			}
			if err := enc.Encode(action.Doc); err != nil {
				return fmt.Errorf("storage: encode bulk doc %s: %w", action.ID, err)
			}
		case domain.OpDelete:
			meta := map[string]any{"delete": map[string]any{"_index": action.Index, "_id": action.ID}}
			if err := enc.Encode(meta); err != nil {
				return fmt.Errorf("storage: encode bulk meta: %w", err)
			}
		default:
			return fmt.Errorf("storage: unknown bulk op %q", action.Op)
		}
	}

	start := time.Now()
	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("storage: bulk: %w", err)
	}
	defer res.Body.Close()
	e.metrics.ObserveBulk(time.Since(start))
	if res.IsError() {
		return apiError("bulk", res)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("storage: decode bulk response: %w", err)
	}
	if !parsed.Errors {
		e.logger.Debug("applied bulk", zap.Int("actions", len(actions)))
		return nil
	}
	for _, item := range parsed.Items {
		for op, info := range item {
			if len(info.Error) > 0 {
				return fmt.Errorf("storage: bulk %s %s: status %d: %s", op, info.ID, info.Status, info.Error)
			}
		}
	}
	return fmt.Errorf("storage: bulk reported errors without item detail")
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// PageExcluding returns one window of documents whose ids are not in
// exclude, only the name field loaded.
func (e *Elastic) PageExcluding(ctx context.Context, index string, exclude []int, from, size int) ([]IndexedDoc, error) {
	if exclude == nil {
		exclude = []int{}
	}
	body := map[string]any{
		"_source": []string{"name"},
		"from":    from,
		"size":    size,
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": []any{
					map[string]any{"ids": map[string]any{"values": exclude}},
				},
			},
		},
	}
	parsed, err := e.search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	docs := make([]IndexedDoc, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var source struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(hit.Source, &source); err != nil {
			return nil, fmt.Errorf("storage: decode hit %s: %w", hit.ID, err)
		}
		docs = append(docs, IndexedDoc{ID: hit.ID, Name: source.Name})
	}
	return docs, nil
}

func (e *Elastic) Count(ctx context.Context, index string) (int, error) {
	res, err := e.client.Count(e.client.Count.WithContext(ctx), e.client.Count.WithIndex(index))
	if err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, apiError("count "+index, res)
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("storage: decode count response: %w", err)
	}
	return parsed.Count, nil
}

// Search runs a query_string query against the name field.
func (e *Elastic) Search(ctx context.Context, index, query string, from, size int) (*SearchResult, error) {
	body := map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"query_string": map[string]any{
				"query":         query,
				"default_field": "name",
			},
		},
	}
	parsed, err := e.search(ctx, index, body)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Total: parsed.Hits.Total.Value}
	for _, hit := range parsed.Hits.Hits {
		result.Hits = append(result.Hits, SearchHit{ID: hit.ID, Source: hit.Source})
	}
	return result, nil
}

func (e *Elastic) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("storage: encode search body: %w", err)
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(payload)),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apiError("search "+index, res)
	}
	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("storage: decode search response: %w", err)
	}
	return &parsed, nil
}

func (e *Elastic) Refresh(ctx context.Context, index string) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithContext(ctx),
		e.client.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return fmt.Errorf("storage: refresh %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apiError("refresh "+index, res)
	}
	return nil
}

// Close is a no-op: the client holds no connections beyond its transport
// pool, which the process teardown reclaims.
func (e *Elastic) Close() error {
	return nil
}

func apiError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	return fmt.Errorf("storage: %s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
}
