// Package oswrap is a signed OpenSearch client wrapper. It forwards search,
// count, aggregation, index management and bulk calls to the official
// OpenSearch Go client, signs requests with AWS SigV4 credentials, and adds a
// deep-scan paginator that walks arbitrarily large result sets with
// search_after cursors.
//
// # Configuration
//
// Everything is configured through Config. The library never reads process
// environment; the oswrap CLI maps flags, OSWRAP_* variables and
// $HOME/.oswrap/config.yaml onto the same struct.
//
//	cfg := oswrap.Config{
//	    Endpoints:      []string{"https://search-logs.eu-north-1.es.amazonaws.com"},
//	    Region:         "eu-north-1",
//	    CredentialMode: oswrap.CredentialProfile,
//	    Profile:        "analytics-sso",
//	}
//	cli, err := client.New(cfg)
//	if err != nil { log.Fatal(err) }
//
// Credential modes are ambient (SDK default chain), profile (named shared
// config profile, SSO included), static (explicit keys) and none (unsigned).
//
// # Deep scans
//
// Client.Scan retrieves every document matching a query-string expression,
// 10000 documents per request, sorted by _id and resumed with search_after:
//
//	res, err := cli.Scan(ctx, "orders", "status:active")
//	if err != nil { log.Fatal(err) }
//	if res.Partial() {
//	    log.Printf("scan stopped early: %s (%d of %d)", res.Reason, len(res.Hits), res.Total)
//	}
//
// For result sets too large to hold in memory use Client.ScanPages, which
// yields one page at a time and can be resumed from a saved cursor with
// scan.StartAfter.
package oswrap
