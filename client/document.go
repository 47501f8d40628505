package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"pkt.systems/oswrap/api"
)

// CreateDocument stores doc in index. With an empty id the cluster assigns
// one; otherwise the call fails with 409 when id already exists.
func (c *Client) CreateDocument(ctx context.Context, index string, doc any, id string) (*api.WriteResult, error) {
	if err := requireIndex("create_document", index); err != nil {
		return nil, err
	}
	reader, err := encodeBody(doc)
	if err != nil {
		return nil, fmt.Errorf("oswrap: create_document: %w", err)
	}
	if reader == nil {
		return nil, fmt.Errorf("oswrap: create_document: document is required")
	}
	var req opensearchapi.Request
	if id = strings.TrimSpace(id); id == "" {
		req = opensearchapi.IndexRequest{Index: index, Body: reader, OpType: "create"}
	} else {
		req = opensearchapi.CreateRequest{Index: index, DocumentID: id, Body: reader}
	}
	data, err := c.perform(ctx, "create_document", req)
	if err != nil {
		return nil, err
	}
	return decodeWriteResult("create_document", data)
}

// DeleteDocument removes the document id from index.
func (c *Client) DeleteDocument(ctx context.Context, index, id string) (*api.WriteResult, error) {
	if err := requireIndex("delete_document", index); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("oswrap: delete_document: id is required")
	}
	data, err := c.perform(ctx, "delete_document", opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
	})
	if err != nil {
		return nil, err
	}
	return decodeWriteResult("delete_document", data)
}

func decodeWriteResult(op string, data []byte) (*api.WriteResult, error) {
	var res api.WriteResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("oswrap: %s: decode response: %w", op, err)
	}
	return &res, nil
}
