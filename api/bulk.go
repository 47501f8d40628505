package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BulkAction is a bulk operation type.
type BulkAction string

const (
	BulkIndex  BulkAction = "index"
	BulkCreate BulkAction = "create"
	BulkUpdate BulkAction = "update"
	BulkDelete BulkAction = "delete"
)

// BulkItem is one operation of a bulk request.
type BulkItem struct {
	// Action defaults to BulkIndex.
	Action BulkAction
	// Index may be empty when the request targets a default index.
	Index string
	// ID is required for update and delete.
	ID string
	// Document is the body for index/create, or the partial doc for update.
	// Ignored for delete.
	Document any
}

// EncodeBulk renders items as newline-delimited JSON.
func EncodeBulk(items []BulkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, item := range items {
		action := item.Action
		if action == "" {
			action = BulkIndex
		}
		meta := map[string]string{}
		if item.Index != "" {
			meta["_index"] = item.Index
		}
		if item.ID != "" {
			meta["_id"] = item.ID
		}
		switch action {
		case BulkIndex, BulkCreate:
		case BulkUpdate, BulkDelete:
			if item.ID == "" {
				return nil, fmt.Errorf("api: bulk item %d: %s requires an id", i, action)
			}
		default:
			return nil, fmt.Errorf("api: bulk item %d: unknown action %q", i, action)
		}
		if err := enc.Encode(map[string]any{string(action): meta}); err != nil {
			return nil, fmt.Errorf("api: bulk item %d: %w", i, err)
		}
		switch action {
		case BulkDelete:
			continue
		case BulkUpdate:
			if err := enc.Encode(map[string]any{"doc": item.Document}); err != nil {
				return nil, fmt.Errorf("api: bulk item %d: %w", i, err)
			}
		default:
			if err := encodeDocument(enc, &buf, item.Document); err != nil {
				return nil, fmt.Errorf("api: bulk item %d: %w", i, err)
			}
		}
	}
	return buf.Bytes(), nil
}

// encodeDocument writes pre-encoded documents verbatim (compacted onto one
// line) and marshals everything else.
func encodeDocument(enc *json.Encoder, buf *bytes.Buffer, doc any) error {
	var raw []byte
	switch v := doc.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return enc.Encode(doc)
	}
	if err := json.Compact(buf, raw); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return nil
}

// BulkResult is the decoded response of POST /_bulk.
type BulkResult struct {
	Took   int64                       `json:"took"`
	Errors bool                        `json:"errors"`
	Items  []map[string]BulkItemResult `json:"items"`
}

// BulkItemResult is the per-item outcome.
type BulkItemResult struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Result string          `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Failed returns the items whose status is not 2xx, in request order.
func (r *BulkResult) Failed() []BulkItemResult {
	if r == nil {
		return nil
	}
	var out []BulkItemResult
	for _, item := range r.Items {
		for _, res := range item {
			if res.Status < 200 || res.Status > 299 {
				out = append(out, res)
			}
		}
	}
	return out
}
