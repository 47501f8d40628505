package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/samber/lo"

	"pkt.systems/oswrap/api"
)

// CreateIndex creates index. body may carry settings, mappings and aliases;
// nil creates the index with cluster defaults.
func (c *Client) CreateIndex(ctx context.Context, index string, body any) (*api.AcknowledgedResponse, error) {
	if err := requireIndex("create_index", index); err != nil {
		return nil, err
	}
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: create_index: %w", err)
	}
	data, err := c.perform(ctx, "create_index", opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  reader,
	})
	if err != nil {
		return nil, err
	}
	return decodeAcknowledged("create_index", data)
}

// DeleteIndex deletes index.
func (c *Client) DeleteIndex(ctx context.Context, index string) (*api.AcknowledgedResponse, error) {
	if err := requireIndex("delete_index", index); err != nil {
		return nil, err
	}
	data, err := c.perform(ctx, "delete_index", opensearchapi.IndicesDeleteRequest{
		Index: []string{index},
	})
	if err != nil {
		return nil, err
	}
	return decodeAcknowledged("delete_index", data)
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	if err := requireIndex("index_exists", index); err != nil {
		return false, err
	}
	_, err := c.perform(ctx, "index_exists", opensearchapi.IndicesExistsRequest{
		Index: []string{index},
	})
	if api.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Indices lists every index known to the cluster, hidden indices excluded.
func (c *Client) Indices(ctx context.Context) ([]api.IndexInfo, error) {
	data, err := c.perform(ctx, "indices", opensearchapi.CatIndicesRequest{
		Format: "json",
	})
	if err != nil {
		return nil, err
	}
	var rows []api.IndexInfo
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("oswrap: indices: decode response: %w", err)
	}
	return lo.Filter(rows, func(row api.IndexInfo, _ int) bool {
		return row.Index != "" && row.Index[0] != '.'
	}), nil
}

// GetIndexSettings returns the settings of the given indices (all when none).
func (c *Client) GetIndexSettings(ctx context.Context, indices ...string) (json.RawMessage, error) {
	data, err := c.perform(ctx, "get_index_settings", opensearchapi.IndicesGetSettingsRequest{
		Index: compactIndices(indices),
	})
	return json.RawMessage(data), err
}

// PutIndexSettings updates dynamic settings of the given indices.
func (c *Client) PutIndexSettings(ctx context.Context, body any, indices ...string) (json.RawMessage, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: put_index_settings: %w", err)
	}
	data, err := c.perform(ctx, "put_index_settings", opensearchapi.IndicesPutSettingsRequest{
		Index: compactIndices(indices),
		Body:  reader,
	})
	return json.RawMessage(data), err
}

// GetIndexMapping returns the mappings of the given indices (all when none).
func (c *Client) GetIndexMapping(ctx context.Context, indices ...string) (json.RawMessage, error) {
	data, err := c.perform(ctx, "get_index_mapping", opensearchapi.IndicesGetMappingRequest{
		Index: compactIndices(indices),
	})
	return json.RawMessage(data), err
}

// PutIndexMapping adds fields to the mappings of the given indices.
func (c *Client) PutIndexMapping(ctx context.Context, body any, indices ...string) (json.RawMessage, error) {
	if len(compactIndices(indices)) == 0 {
		return nil, fmt.Errorf("oswrap: put_index_mapping: index is required")
	}
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: put_index_mapping: %w", err)
	}
	data, err := c.perform(ctx, "put_index_mapping", opensearchapi.IndicesPutMappingRequest{
		Index: compactIndices(indices),
		Body:  reader,
	})
	return json.RawMessage(data), err
}

// GetIndexAliases returns the aliases of the given indices (all when none).
func (c *Client) GetIndexAliases(ctx context.Context, indices ...string) (json.RawMessage, error) {
	data, err := c.perform(ctx, "get_index_aliases", opensearchapi.IndicesGetAliasRequest{
		Index: compactIndices(indices),
	})
	return json.RawMessage(data), err
}

// UpdateIndexAliases applies an atomic list of alias actions.
func (c *Client) UpdateIndexAliases(ctx context.Context, body any) (json.RawMessage, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: update_index_aliases: %w", err)
	}
	data, err := c.perform(ctx, "update_index_aliases", opensearchapi.IndicesUpdateAliasesRequest{
		Body: reader,
	})
	return json.RawMessage(data), err
}

// Reindex copies documents between indices as described by body.
func (c *Client) Reindex(ctx context.Context, body any) (json.RawMessage, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: reindex: %w", err)
	}
	if reader == nil {
		return nil, fmt.Errorf("oswrap: reindex: body is required")
	}
	data, err := c.perform(ctx, "reindex", opensearchapi.ReindexRequest{
		Body: reader,
	})
	return json.RawMessage(data), err
}

func decodeAcknowledged(op string, data []byte) (*api.AcknowledgedResponse, error) {
	var res api.AcknowledgedResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("oswrap: %s: decode response: %w", op, err)
	}
	return &res, nil
}

func compactIndices(indices []string) []string {
	trimmed := lo.Map(indices, func(index string, _ int) string {
		return strings.TrimSpace(index)
	})
	return lo.Filter(trimmed, func(index string, _ int) bool {
		return index != ""
	})
}
