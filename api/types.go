package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// SearchResponse models the body of POST /{index}/_search.
type SearchResponse struct {
	// Took is the server-side execution time in milliseconds.
	Took int64 `json:"took"`
	// TimedOut reports whether any shard timed out.
	TimedOut bool `json:"timed_out"`
	// Hits wraps the matched documents and the total count.
	Hits Hits `json:"hits"`
	// Aggregations holds named aggregation results when requested.
	Aggregations Aggregations `json:"aggregations,omitempty"`
	// ScrollID is only present on scroll requests; kept for pass-through callers.
	ScrollID string `json:"_scroll_id,omitempty"`
}

// Hits carries the matched documents of one search page.
type Hits struct {
	// Total is nil when the engine did not report a total (track_total_hits=false
	// or an engine that omits it).
	Total *TotalHits `json:"total,omitempty"`
	// MaxScore is null for sorted queries.
	MaxScore *float64 `json:"max_score"`
	// Hits is the ordered page of documents.
	Hits []Hit `json:"hits"`
}

// TotalHits is the reported number of matches.
type TotalHits struct {
	// Value is the count.
	Value int64 `json:"value"`
	// Relation is "eq" for exact counts or "gte" when the count is a lower bound.
	Relation string `json:"relation,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-number form.
func (t *TotalHits) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("api: decode total hits: %w", err)
		}
		v, err := n.Int64()
		if err != nil {
			return fmt.Errorf("api: decode total hits: %w", err)
		}
		t.Value = v
		t.Relation = RelationEqual
		return nil
	}
	type plain TotalHits
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TotalHits(p)
	return nil
}

const (
	// RelationEqual marks an exact total.
	RelationEqual = "eq"
	// RelationGreaterOrEqual marks a lower-bound total.
	RelationGreaterOrEqual = "gte"
)

// Hit is a single matched document.
type Hit struct {
	// Index is the concrete index holding the document.
	Index string `json:"_index"`
	// ID is the document identifier.
	ID string `json:"_id"`
	// Score is null for sorted queries.
	Score *float64 `json:"_score"`
	// Source is the stored document body, kept verbatim.
	Source json.RawMessage `json:"_source,omitempty"`
	// Sort holds the sort-key tuple of this hit; it becomes the next
	// search_after cursor when the hit is last on its page.
	Sort []any `json:"sort,omitempty"`
}

// DecodeSearchResponse decodes a search body. Numbers inside sort tuples are
// kept as json.Number so cursors round-trip without float rounding.
func DecodeSearchResponse(r io.Reader) (*SearchResponse, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var resp SearchResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("api: decode search response: %w", err)
	}
	return &resp, nil
}

// QueryOptions shapes a single query-string search.
type QueryOptions struct {
	// Size is the page size; zero means 1.
	Size int
	// From is the offset into the result window.
	From int
	// Sort is an optional "field:order" list in URL parameter form.
	Sort []string
}

// WriteResult is returned by single-document writes and deletes.
type WriteResult struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	Version     int64  `json:"_version"`
	Result      string `json:"result"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
}

// IndexInfo is one row of GET /_cat/indices?format=json. The cat API reports
// every column as a string.
type IndexInfo struct {
	Health       string `json:"health"`
	Status       string `json:"status"`
	Index        string `json:"index"`
	UUID         string `json:"uuid"`
	Primaries    string `json:"pri"`
	Replicas     string `json:"rep"`
	DocsCount    string `json:"docs.count"`
	DocsDeleted  string `json:"docs.deleted"`
	StoreSize    string `json:"store.size"`
	PriStoreSize string `json:"pri.store.size"`
}

// AcknowledgedResponse is returned by index management calls.
type AcknowledgedResponse struct {
	Acknowledged       bool   `json:"acknowledged"`
	ShardsAcknowledged bool   `json:"shards_acknowledged,omitempty"`
	Index              string `json:"index,omitempty"`
}
