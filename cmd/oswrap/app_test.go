package main

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"
)

func executeRootCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OSWRAP_CONFIG_DIR", t.TempDir())
	t.Setenv("OSWRAP_CONFIG", "")
	cmd := newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// fakeCluster is a minimal OpenSearch stand-in. Documents are held per index
// and sorted by id, which is what the scan sorts on.
type fakeCluster struct {
	mu       sync.Mutex
	docs     map[string][]string
	requests []string
	opaque   []string
	bodies   map[string][]byte
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{docs: map[string][]string{}, bodies: map[string][]byte{}}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCluster) seed(index string, n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%06d", i+1)
	}
	fc.docs[index] = ids
}

func (fc *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.requests = append(fc.requests, r.URL.Path)
	fc.opaque = append(fc.opaque, r.Header.Get("X-Opaque-Id"))
	fc.bodies[r.URL.Path] = body
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "_search":
		fc.search(w, parts[0], body)
	case len(parts) == 2 && parts[1] == "_count":
		fmt.Fprintf(w, `{"count":%d}`, len(fc.docs[parts[0]]))
	case len(parts) == 3 && parts[1] == "_create":
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			http.Error(w, `{"error":"method"}`, http.StatusMethodNotAllowed)
			return
		}
		fc.docs[parts[0]] = append(fc.docs[parts[0]], parts[2])
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"_index":%q,"_id":%q,"_version":1,"result":"created","_seq_no":0,"_primary_term":1}`, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodDelete:
		fmt.Fprintf(w, `{"_index":%q,"_id":%q,"_version":2,"result":"deleted","_seq_no":1,"_primary_term":1}`, parts[0], parts[2])
	case len(parts) == 1 && parts[0] == "_bulk":
		lines := strings.Split(strings.TrimSpace(string(body)), "\n")
		fmt.Fprintf(w, `{"took":3,"errors":true,"items":[{"index":{"_index":"orders","_id":"a","status":201,"result":"created"}},{"index":{"_index":"orders","_id":"b","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}],"lines":%d}`, len(lines))
	case len(parts) == 2 && parts[0] == "_cat" && parts[1] == "indices":
		names := make([]string, 0, len(fc.docs))
		for name := range fc.docs {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([]map[string]string, 0, len(names)+1)
		for _, name := range names {
			rows = append(rows, map[string]string{
				"health": "green", "status": "open", "index": name,
				"docs.count": fmt.Sprint(len(fc.docs[name])), "store.size": "1kb",
			})
		}
		rows = append(rows, map[string]string{"health": "green", "status": "open", "index": ".kibana_1", "docs.count": "1"})
		_ = json.NewEncoder(w).Encode(rows)
	case len(parts) == 1 && r.Method == http.MethodHead:
		if _, ok := fc.docs[parts[0]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		fc.docs[parts[0]] = nil
		fmt.Fprintf(w, `{"acknowledged":true,"shards_acknowledged":true,"index":%q}`, parts[0])
	case len(parts) == 1 && parts[0] == "_reindex":
		fmt.Fprint(w, `{"took":5,"total":2,"created":2,"failures":[]}`)
	case len(parts) == 2 && parts[1] == "_mapping" && r.Method == http.MethodPut:
		fmt.Fprint(w, `{"acknowledged":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"type":"index_not_found_exception","reason":"no such index [%s]"},"status":404}`, parts[0])
	}
}

func (fc *fakeCluster) search(w http.ResponseWriter, index string, body []byte) {
	ids, ok := fc.docs[index]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"type":"index_not_found_exception","reason":"no such index [%s]"},"status":404}`, index)
		return
	}
	var req struct {
		Size        int   `json:"size"`
		SearchAfter []any `json:"search_after"`
	}
	_ = json.Unmarshal(body, &req)
	if req.Size <= 0 {
		req.Size = 10
	}
	start := 0
	if len(req.SearchAfter) == 1 {
		after, _ := req.SearchAfter[0].(string)
		start = sort.SearchStrings(ids, after)
		if start < len(ids) && ids[start] == after {
			start++
		}
	}
	end := min(start+req.Size, len(ids))
	hits := make([]map[string]any, 0, end-start)
	for _, id := range ids[start:end] {
		hits = append(hits, map[string]any{
			"_index":  index,
			"_id":     id,
			"_score":  nil,
			"_source": map[string]any{"id": id, "status": "active", "total": 2},
			"sort":    []any{id},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"took":      1,
		"timed_out": false,
		"hits": map[string]any{
			"total":     map[string]any{"value": len(ids), "relation": "eq"},
			"max_score": nil,
			"hits":      hits,
		},
		"aggregations": map[string]any{
			"revenue": map[string]any{"value": 2 * len(ids)},
		},
	})
}

func (fc *fakeCluster) requestCount(prefix string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, r := range fc.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (fc *fakeCluster) body(key string) []byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.bodies[key]
}

func unsigned(srv *httptest.Server, args ...string) []string {
	return append([]string{"--endpoint", srv.URL, "--credentials", "none", "--log-level", "none"}, args...)
}

func TestScanCommandStreamsEveryHit(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 25000)

	stdout, stderr, err := executeRootCommand(t, "", unsigned(srv, "scan", "orders", "status:active")...)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 25000 {
		t.Fatalf("expected 25000 NDJSON lines, got %d", len(lines))
	}
	var last struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("decode last line: %v", err)
	}
	if last.ID != "doc-025000" {
		t.Fatalf("unexpected last id %q", last.ID)
	}
	if got := fc.requestCount("/orders/_search"); got != 3 {
		t.Fatalf("expected 3 search requests, got %d", got)
	}
	for _, want := range []string{"25,000 of 25,000", "3 pages", "(complete)", `["doc-025000"]`} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("summary missing %q: %q", want, stderr)
		}
	}
}

func TestScanCommandSourceOnlyAndResume(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 5)

	stdout, stderr, err := executeRootCommand(t, "", unsigned(srv,
		"scan", "orders", "--source-only", "--start-after", `["doc-000003"]`, "--fetched", "3")...)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 resumed hits, got %d: %q", len(lines), stdout)
	}
	if !strings.HasPrefix(lines[0], `{"id":"doc-000004"`) {
		t.Fatalf("expected bare source of doc-000004, got %q", lines[0])
	}
	if !strings.Contains(stderr, "5 of 5") {
		t.Fatalf("expected resumed count in summary, got %q", stderr)
	}
}

func TestScanCommandEmptyIndex(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("empty", 0)

	stdout, stderr, err := executeRootCommand(t, "", unsigned(srv, "scan", "empty", "--require-complete")...)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if stdout != "" {
		t.Fatalf("expected no hits, got %q", stdout)
	}
	if !strings.Contains(stderr, "0 of 0 documents in 1 pages (complete)") {
		t.Fatalf("unexpected summary %q", stderr)
	}
}

func TestScanCommandMissingIndexFails(t *testing.T) {
	_, srv := newFakeCluster(t)

	_, stderr, err := executeRootCommand(t, "", unsigned(srv, "scan", "missing")...)
	if err == nil {
		t.Fatal("expected scan of a missing index to fail")
	}
	if !strings.Contains(err.Error(), "index_not_found_exception") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "(error)") {
		t.Fatalf("expected error summary, got %q", stderr)
	}
}

func TestScanCommandRejectsBadCursor(t *testing.T) {
	_, srv := newFakeCluster(t)
	_, _, err := executeRootCommand(t, "", unsigned(srv, "scan", "orders", "--start-after", "not-json")...)
	if err == nil || !strings.Contains(err.Error(), "--start-after") {
		t.Fatalf("expected --start-after error, got %v", err)
	}
}

func TestQueryCountAggregate(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 4)

	stdout, _, err := executeRootCommand(t, "", unsigned(srv, "query", "orders", "status:active", "--size", "2")...)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var sources []map[string]any
	if err := json.Unmarshal([]byte(stdout), &sources); err != nil {
		t.Fatalf("decode query output: %v (%q)", err, stdout)
	}
	if len(sources) != 2 || sources[0]["id"] != "doc-000001" {
		t.Fatalf("unexpected sources %+v", sources)
	}

	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "count", "orders")...)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "4" {
		t.Fatalf("unexpected count output %q", stdout)
	}

	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "aggregate", "orders", "--sum", "revenue=total", "--sum", "missing=nope")...)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	var sums map[string]any
	if err := json.Unmarshal([]byte(stdout), &sums); err != nil {
		t.Fatalf("decode aggregate output: %v", err)
	}
	if sums["revenue"] != float64(8) {
		t.Fatalf("unexpected revenue %v", sums["revenue"])
	}
	if v, ok := sums["missing"]; !ok || v != nil {
		t.Fatalf("expected null for missing aggregation, got %v (present=%v)", v, ok)
	}
	body := fc.body("/orders/_search")
	if !bytes.Contains(body, []byte(`"sum":{"field":"total"}`)) {
		t.Fatalf("aggregation body missing sum: %s", body)
	}
}

func TestAggregateRequiresSum(t *testing.T) {
	_, srv := newFakeCluster(t)
	_, _, err := executeRootCommand(t, "", unsigned(srv, "aggregate", "orders", "--sum", "revenue")...)
	if err == nil || !strings.Contains(err.Error(), "name=field") {
		t.Fatalf("expected name=field error, got %v", err)
	}
}

func TestSearchCommandReadsBodyFromStdin(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 3)

	stdout, _, err := executeRootCommand(t, `{"size":1}`, unsigned(srv, "search", "orders")...)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(stdout, `"doc-000001"`) {
		t.Fatalf("unexpected search output %q", stdout)
	}
	if got := string(fc.body("/orders/_search")); got != `{"size":1}` {
		t.Fatalf("search body not forwarded verbatim: %q", got)
	}

	_, _, err = executeRootCommand(t, `{broken`, unsigned(srv, "search", "orders")...)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestDocCreateBuildsFields(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 0)

	stdout, _, err := executeRootCommand(t, "", unsigned(srv,
		"doc", "create", "orders", "--id", "o-1",
		"--field", "status=active", "--field", "total=42", "--field", "customer.name=Ada")...)
	if err != nil {
		t.Fatalf("doc create failed: %v", err)
	}
	if !strings.Contains(stdout, `"result": "created"`) {
		t.Fatalf("unexpected output %q", stdout)
	}
	var doc map[string]any
	if err := json.Unmarshal(fc.body("/orders/_create/o-1"), &doc); err != nil {
		t.Fatalf("decode forwarded document: %v", err)
	}
	if doc["status"] != "active" || doc["total"] != float64(42) {
		t.Fatalf("unexpected document %+v", doc)
	}
	customer, _ := doc["customer"].(map[string]any)
	if customer["name"] != "Ada" {
		t.Fatalf("expected nested customer.name, got %+v", doc)
	}
}

func TestDocCreateRequiresDocument(t *testing.T) {
	_, srv := newFakeCluster(t)
	_, _, err := executeRootCommand(t, "", unsigned(srv, "doc", "create", "orders")...)
	if err == nil || !strings.Contains(err.Error(), "document is required") {
		t.Fatalf("expected missing document error, got %v", err)
	}
}

func TestDocDelete(t *testing.T) {
	_, srv := newFakeCluster(t)
	stdout, _, err := executeRootCommand(t, "", unsigned(srv, "doc", "delete", "orders", "o-1")...)
	if err != nil {
		t.Fatalf("doc delete failed: %v", err)
	}
	if !strings.Contains(stdout, `"result": "deleted"`) {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestIndexCommands(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 1234)

	stdout, _, err := executeRootCommand(t, "", unsigned(srv, "index", "exists", "orders")...)
	if err != nil || strings.TrimSpace(stdout) != "true" {
		t.Fatalf("exists orders: %q, %v", stdout, err)
	}
	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "index", "exists", "nope")...)
	if err != nil || strings.TrimSpace(stdout) != "false" {
		t.Fatalf("exists nope: %q, %v", stdout, err)
	}

	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "index", "create", "archive")...)
	if err != nil {
		t.Fatalf("index create failed: %v", err)
	}
	if !strings.Contains(stdout, `"acknowledged": true`) {
		t.Fatalf("unexpected create output %q", stdout)
	}

	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "index", "list")...)
	if err != nil {
		t.Fatalf("index list failed: %v", err)
	}
	if !strings.Contains(stdout, "orders\tgreen\t1,234 docs") {
		t.Fatalf("unexpected list output %q", stdout)
	}
	if strings.Contains(stdout, ".kibana") {
		t.Fatalf("hidden index listed: %q", stdout)
	}

	stdout, _, err = executeRootCommand(t, "", unsigned(srv, "index", "list", "--names")...)
	if err != nil {
		t.Fatalf("index list --names failed: %v", err)
	}
	if stdout != "archive\norders\n" {
		t.Fatalf("unexpected names %q", stdout)
	}

	_, _, err = executeRootCommand(t, `{"properties":{"total":{"type":"long"}}}`, unsigned(srv, "index", "put-mapping", "orders")...)
	if err != nil {
		t.Fatalf("put-mapping failed: %v", err)
	}
	_, _, err = executeRootCommand(t, "", unsigned(srv, "index", "put-mapping")...)
	if err == nil {
		t.Fatal("expected put-mapping without an index to fail")
	}
}

func TestReindexBuildsBody(t *testing.T) {
	fc, srv := newFakeCluster(t)

	_, _, err := executeRootCommand(t, "", unsigned(srv, "reindex", "--source", "orders", "--dest", "orders-active", "--query", "status:active")...)
	if err != nil {
		t.Fatalf("reindex failed: %v", err)
	}
	var body struct {
		Source struct {
			Index string         `json:"index"`
			Query map[string]any `json:"query"`
		} `json:"source"`
		Dest struct {
			Index string `json:"index"`
		} `json:"dest"`
	}
	if err := json.Unmarshal(fc.body("/_reindex"), &body); err != nil {
		t.Fatalf("decode reindex body: %v", err)
	}
	if body.Source.Index != "orders" || body.Dest.Index != "orders-active" || body.Source.Query["query_string"] == nil {
		t.Fatalf("unexpected reindex body %+v", body)
	}

	_, _, err = executeRootCommand(t, "", unsigned(srv, "reindex", "--source", "orders")...)
	if err == nil {
		t.Fatal("expected reindex without --dest to fail")
	}
}

func TestBulkCommandReportsFailures(t *testing.T) {
	_, srv := newFakeCluster(t)
	payload := "{\"index\":{\"_index\":\"orders\",\"_id\":\"a\"}}\n{\"n\":1}\n\n{\"index\":{\"_index\":\"orders\",\"_id\":\"b\"}}\n{\"n\":\"x\"}"

	stdout, stderr, err := executeRootCommand(t, payload, unsigned(srv, "bulk")...)
	if err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	if !strings.Contains(stderr, "2 items, 1 failed") {
		t.Fatalf("unexpected bulk summary %q", stderr)
	}
	if !strings.Contains(stdout, "mapper_parsing_exception") {
		t.Fatalf("expected item error in output, got %q", stdout)
	}

	_, _, err = executeRootCommand(t, payload, unsigned(srv, "bulk", "--fail-on-error")...)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 items failed") {
		t.Fatalf("expected --fail-on-error to fail, got %v", err)
	}
}

func TestNormalizeBulkPayload(t *testing.T) {
	out, err := normalizeBulkPayload([]byte("  {\"delete\":{\"_id\":\"1\"}}  \n\n"))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(out) != "{\"delete\":{\"_id\":\"1\"}}\n" {
		t.Fatalf("unexpected payload %q", out)
	}
	if _, err := normalizeBulkPayload([]byte("{\"index\":{}}\nnot json\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
	if _, err := normalizeBulkPayload([]byte("\n\n")); err == nil {
		t.Fatal("expected empty payload error")
	}
}

func TestCorrelationIDFlagIsForwarded(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 1)

	_, _, err := executeRootCommand(t, "", unsigned(srv, "count", "orders", "--correlation-id", "job-42")...)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.opaque) == 0 || fc.opaque[len(fc.opaque)-1] != "job-42" {
		t.Fatalf("expected X-Opaque-Id job-42, got %v", fc.opaque)
	}
}

func TestEnvironmentConfiguresEndpoint(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 2)
	t.Setenv("OSWRAP_ENDPOINT", srv.URL)
	t.Setenv("OSWRAP_CREDENTIALS", "none")

	stdout, _, err := executeRootCommand(t, "", "count", "orders", "--log-level", "none")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "2" {
		t.Fatalf("unexpected count %q", stdout)
	}
}

func TestConfigFileConfiguresEndpoint(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.seed("orders", 7)
	dir := t.TempDir()
	path := filepath.Join(dir, "oswrap.yaml")
	data, err := defaultConfigYAML(func(d *configDefaults) {
		d.Endpoint = []string{srv.URL}
		d.Credentials = "none"
		d.LogLevel = "none"
	})
	if err != nil {
		t.Fatalf("render config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdout, _, err := executeRootCommand(t, "", "--config", path, "count", "orders")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "7" {
		t.Fatalf("unexpected count %q", stdout)
	}
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, _, err := executeRootCommand(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "count", "orders")
	if err == nil || !strings.Contains(err.Error(), "nope.yaml") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestSignedModeRequiresRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	_, _, err := executeRootCommand(t, "", "--endpoint", "http://127.0.0.1:1", "--credentials", "static",
		"--access-key-id", "AKID", "--secret-access-key", "SECRET", "count", "orders")
	if err == nil || !strings.Contains(err.Error(), "region is required") {
		t.Fatalf("expected region error, got %v", err)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, srv := newFakeCluster(t)
	_, _, err := executeRootCommand(t, "", "--endpoint", srv.URL, "--credentials", "none", "--log-level", "loud", "count", "orders")
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := expandPath("~/x/config.yaml")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if want := filepath.Join(home, "x", "config.yaml"); got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestCACertFlagTrustsCluster(t *testing.T) {
	fc := &fakeCluster{docs: map[string][]string{}, bodies: map[string][]byte{}}
	fc.seed("orders", 3)
	srv := httptest.NewTLSServer(fc)
	t.Cleanup(srv.Close)

	if _, _, err := executeRootCommand(t, "", unsigned(srv, "count", "orders")...); err == nil {
		t.Fatal("expected certificate error without --ca-cert")
	}

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caPath, caPEM, 0o600); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	stdout, _, err := executeRootCommand(t, "", unsigned(srv, "--ca-cert", caPath, "count", "orders")...)
	if err != nil {
		t.Fatalf("count over TLS: %v", err)
	}
	if strings.TrimSpace(stdout) != "3" {
		t.Fatalf("unexpected count %q", stdout)
	}
}
