package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"pkt.systems/oswrap/api"
)

// Bulk submits items in a single _bulk request. Per-item failures are
// reported in the result, not as an error; see api.BulkResult.Failed.
func (c *Client) Bulk(ctx context.Context, items []api.BulkItem) (*api.BulkResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("oswrap: bulk: no items")
	}
	payload, err := api.EncodeBulk(items)
	if err != nil {
		return nil, fmt.Errorf("oswrap: bulk: %w", err)
	}
	return c.BulkRaw(ctx, payload)
}

// BulkRaw submits a pre-encoded NDJSON payload.
func (c *Client) BulkRaw(ctx context.Context, payload []byte) (*api.BulkResult, error) {
	data, err := c.perform(ctx, "bulk", opensearchapi.BulkRequest{
		Body: bytes.NewReader(payload),
	})
	if err != nil {
		return nil, err
	}
	var res api.BulkResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("oswrap: bulk: decode response: %w", err)
	}
	if res.Errors {
		c.logger.Warn("client.bulk.partial_failure", "items", len(res.Items), "failed", len(res.Failed()))
	}
	return &res, nil
}
