// Package client wraps the OpenSearch Go client with SigV4 request signing,
// a fixed per-request timeout and the deep-scan paginator from package scan.
//
//	cli, err := client.New(oswrap.Config{
//	    Endpoints: []string{"https://search-orders.eu-north-1.es.amazonaws.com"},
//	    Region:    "eu-north-1",
//	})
//	if err != nil { ... }
//	n, err := cli.Count(ctx, "orders", "status:active")
//
// Every call returns *api.Error (wrapped) for non-2xx responses, so callers
// can branch on status with api.IsStatus or api.IsNotFound. Requests are
// never retried.
package client
