package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/scan"
)

// RawTrackTotalHits is the exact-count ceiling requested by Raw and Query.
const RawTrackTotalHits = scan.TrackTotalHits

// Search runs body against index verbatim and decodes the response.
func (c *Client) Search(ctx context.Context, index string, body any) (*api.SearchResponse, error) {
	return c.search(ctx, "search", index, body, nil)
}

func (c *Client) search(ctx context.Context, op, index string, body any, sort []string) (*api.SearchResponse, error) {
	if err := requireIndex(op, index); err != nil {
		return nil, err
	}
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: %s: %w", op, err)
	}
	data, err := c.perform(ctx, op, opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  reader,
		Sort:  sort,
	})
	if err != nil {
		return nil, err
	}
	resp, err := api.DecodeSearchResponse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("oswrap: %s: %w", op, err)
	}
	return resp, nil
}

// Raw runs a query-string search with paging options and returns the full
// response. Size defaults to 1.
func (c *Client) Raw(ctx context.Context, index, query string, opts api.QueryOptions) (*api.SearchResponse, error) {
	size := opts.Size
	if size <= 0 {
		size = 1
	}
	from := max(opts.From, 0)
	body := map[string]any{
		"query":            api.QueryString(query),
		"size":             size,
		"from":             from,
		"track_total_hits": RawTrackTotalHits,
	}
	return c.search(ctx, "raw", index, body, opts.Sort)
}

// Query runs Raw and returns the _source of every hit in order.
func (c *Client) Query(ctx context.Context, index, query string, opts api.QueryOptions) ([]json.RawMessage, error) {
	resp, err := c.Raw(ctx, index, query, opts)
	if err != nil {
		return nil, err
	}
	return lo.Map(resp.Hits.Hits, func(hit api.Hit, _ int) json.RawMessage {
		return hit.Source
	}), nil
}

// SearchPage runs one cursor-paged request. It satisfies scan.Searcher.
func (c *Client) SearchPage(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error) {
	return c.search(ctx, "search_page", req.Index, req.Body(), nil)
}

// Scan retrieves every document in index matching query. See scan.Scanner.Scan.
func (c *Client) Scan(ctx context.Context, index, query string) (scan.Result, error) {
	return c.scanner.Scan(ctx, index, query)
}

// ScanPages returns a lazy page iterator over a scan of index.
func (c *Client) ScanPages(index, query string, opts ...scan.IterOption) *scan.Iterator {
	return c.scanner.Iterate(index, query, opts...)
}

// Count returns the number of documents in index matching query.
func (c *Client) Count(ctx context.Context, index, query string) (int64, error) {
	if err := requireIndex("count", index); err != nil {
		return 0, err
	}
	reader, err := encodeBody(map[string]any{"query": api.QueryString(query)})
	if err != nil {
		return 0, fmt.Errorf("oswrap: count: %w", err)
	}
	data, err := c.perform(ctx, "count", opensearchapi.CountRequest{
		Index: []string{index},
		Body:  reader,
	})
	if err != nil {
		return 0, err
	}
	count := gjson.GetBytes(data, "count")
	if !count.Exists() {
		return 0, fmt.Errorf("oswrap: count: response carries no count")
	}
	return count.Int(), nil
}

// Aggregate sums fields over the documents matching query. sums maps each
// aggregation name to the field it sums.
func (c *Client) Aggregate(ctx context.Context, index, query string, sums map[string]string) (api.Aggregations, error) {
	if len(sums) == 0 {
		return nil, fmt.Errorf("oswrap: aggregate: at least one aggregation is required")
	}
	body := map[string]any{
		"size":  0,
		"query": api.QueryString(query),
		"aggs":  api.SumAggregations(sums),
	}
	resp, err := c.search(ctx, "aggregate", index, body, nil)
	if err != nil {
		return nil, err
	}
	if resp.Aggregations == nil {
		return api.Aggregations{}, nil
	}
	return resp.Aggregations, nil
}
