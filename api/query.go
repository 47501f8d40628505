package api

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// SortOrder is an OpenSearch sort direction.
type SortOrder string

const (
	// SortAsc sorts ascending.
	SortAsc SortOrder = "asc"
	// SortDesc sorts descending.
	SortDesc SortOrder = "desc"
)

// SortField is one entry of a sort specification.
type SortField struct {
	Field string
	Order SortOrder
}

// PageRequest is one cursor-paged query against a collection.
type PageRequest struct {
	// Index is the target collection (index, alias or pattern).
	Index string
	// Query is a query-string expression; passed through unvalidated.
	Query string
	// Size is the page size.
	Size int
	// Sort is the sort specification; a unique field must come last for
	// search_after paging to be gap free.
	Sort []SortField
	// SearchAfter is the cursor from the previous page. Nil on the first page.
	SearchAfter []any
	// TrackTotalHits raises the exact-count ceiling. Zero leaves the engine default.
	TrackTotalHits int
}

// Body renders the JSON search body for r.
func (r PageRequest) Body() map[string]any {
	body := map[string]any{
		"query": QueryString(r.Query),
		"size":  r.Size,
	}
	if len(r.Sort) > 0 {
		sorts := make([]map[string]string, 0, len(r.Sort))
		for _, s := range r.Sort {
			order := s.Order
			if order == "" {
				order = SortAsc
			}
			sorts = append(sorts, map[string]string{s.Field: string(order)})
		}
		body["sort"] = sorts
	}
	if r.TrackTotalHits > 0 {
		body["track_total_hits"] = r.TrackTotalHits
	}
	if len(r.SearchAfter) > 0 {
		body["search_after"] = r.SearchAfter
	}
	return body
}

// QueryString wraps expr in a query_string query clause.
func QueryString(expr string) map[string]any {
	return map[string]any{
		"query_string": map[string]any{
			"query": expr,
		},
	}
}

// SumAggregations builds one sum aggregation per name→field pair.
func SumAggregations(sums map[string]string) map[string]any {
	aggs := make(map[string]any, len(sums))
	for name, field := range sums {
		aggs[name] = map[string]any{
			"sum": map[string]any{"field": field},
		}
	}
	return aggs
}

// Aggregations holds named aggregation results verbatim.
type Aggregations map[string]json.RawMessage

// Sum returns the value of a single-value metric aggregation (sum, avg, min,
// max, value_count). ok is false when the aggregation is missing or null.
func (a Aggregations) Sum(name string) (float64, bool) {
	raw, ok := a[name]
	if !ok {
		return 0, false
	}
	v := gjson.GetBytes(raw, "value")
	if !v.Exists() || v.Type == gjson.Null {
		return 0, false
	}
	return v.Float(), true
}

// Names returns aggregation names in no particular order.
func (a Aggregations) Names() []string {
	out := make([]string, 0, len(a))
	for name := range a {
		out = append(out, name)
	}
	return out
}

// ParseSort splits a comma separated "field:order" list. Empty input yields nil.
func ParseSort(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
