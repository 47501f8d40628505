package scan_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"golang.org/x/time/rate"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/scan"
)

// fakeIndex serves search_after pages over a fixed set of document ids.
type fakeIndex struct {
	ids      []string
	requests []api.PageRequest
	// mutate adjusts the response for request n (1-based) before it is returned.
	mutate func(n int, resp *api.SearchResponse)
	// failAt makes request n fail.
	failAt int
}

func newFakeIndex(n int) *fakeIndex {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%06d", i+1)
	}
	return &fakeIndex{ids: ids}
}

func (f *fakeIndex) SearchPage(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error) {
	f.requests = append(f.requests, req)
	n := len(f.requests)
	if f.failAt == n {
		return nil, errors.New("connection reset by peer")
	}
	start := 0
	if len(req.SearchAfter) > 0 {
		after, _ := req.SearchAfter[0].(string)
		start = sort.SearchStrings(f.ids, after)
		if start < len(f.ids) && f.ids[start] == after {
			start++
		}
	}
	end := min(start+req.Size, len(f.ids))
	total := int64(len(f.ids))
	relation := api.RelationEqual
	if req.TrackTotalHits > 0 && total > int64(req.TrackTotalHits) {
		total = int64(req.TrackTotalHits)
		relation = api.RelationGreaterOrEqual
	}
	resp := &api.SearchResponse{
		Hits: api.Hits{Total: &api.TotalHits{Value: total, Relation: relation}},
	}
	for _, id := range f.ids[start:end] {
		resp.Hits.Hits = append(resp.Hits.Hits, api.Hit{
			Index: req.Index,
			ID:    id,
			Sort:  []any{id},
		})
	}
	if f.mutate != nil {
		f.mutate(n, resp)
	}
	return resp, nil
}

func cursorOf(t *testing.T, req api.PageRequest) string {
	t.Helper()
	if len(req.SearchAfter) != 1 {
		t.Fatalf("expected single-value cursor, got %v", req.SearchAfter)
	}
	s, ok := req.SearchAfter[0].(string)
	if !ok {
		t.Fatalf("expected string cursor, got %T", req.SearchAfter[0])
	}
	return s
}

func assertSequential(t *testing.T, hits []api.Hit, from, to int) {
	t.Helper()
	if len(hits) != to-from+1 {
		t.Fatalf("expected %d hits, got %d", to-from+1, len(hits))
	}
	for i, hit := range hits {
		want := fmt.Sprintf("doc-%06d", from+i)
		if hit.ID != want {
			t.Fatalf("hit %d: got %s want %s", i, hit.ID, want)
		}
	}
}

func TestScanSinglePage(t *testing.T) {
	idx := newFakeIndex(42)
	res, err := scan.New(idx).Scan(context.Background(), "orders", "status:active")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(idx.requests))
	}
	req := idx.requests[0]
	if req.Index != "orders" || req.Query != "status:active" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Size != scan.PageSize || req.TrackTotalHits != scan.TrackTotalHits {
		t.Fatalf("unexpected paging parameters %+v", req)
	}
	if len(req.Sort) != 1 || req.Sort[0].Field != scan.SortField || req.Sort[0].Order != api.SortAsc {
		t.Fatalf("unexpected sort %+v", req.Sort)
	}
	if req.SearchAfter != nil {
		t.Fatalf("first request must not carry a cursor, got %v", req.SearchAfter)
	}
	assertSequential(t, res.Hits, 1, 42)
	if !res.Complete() || res.Reason != scan.ReasonComplete {
		t.Fatalf("expected complete result, got %s", res.Reason)
	}
	if res.Total != 42 || res.Pages != 1 {
		t.Fatalf("unexpected totals %+v", res)
	}
}

func TestScanTwentyFiveThousandDocuments(t *testing.T) {
	idx := newFakeIndex(25000)
	res, err := scan.New(idx).Scan(context.Background(), "orders", "status:active")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(idx.requests))
	}
	if idx.requests[0].SearchAfter != nil {
		t.Fatalf("first request carried cursor %v", idx.requests[0].SearchAfter)
	}
	if got := cursorOf(t, idx.requests[1]); got != "doc-010000" {
		t.Fatalf("second cursor: got %s", got)
	}
	if got := cursorOf(t, idx.requests[2]); got != "doc-020000" {
		t.Fatalf("third cursor: got %s", got)
	}
	assertSequential(t, res.Hits, 1, 25000)
	if !res.Complete() || res.Pages != 3 || res.Total != 25000 {
		t.Fatalf("unexpected result: reason=%s pages=%d total=%d", res.Reason, res.Pages, res.Total)
	}
	if len(res.Cursor) != 1 || res.Cursor[0] != "doc-025000" {
		t.Fatalf("unexpected final cursor %v", res.Cursor)
	}
}

func TestScanExactMultipleOfPageSize(t *testing.T) {
	idx := newFakeIndex(2 * scan.PageSize)
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(idx.requests))
	}
	if len(res.Hits) != 2*scan.PageSize || !res.Complete() {
		t.Fatalf("unexpected result: %d hits reason=%s", len(res.Hits), res.Reason)
	}
}

func TestScanEmptyCollection(t *testing.T) {
	idx := newFakeIndex(0)
	res, err := scan.New(idx).Scan(context.Background(), "orders", "status:missing")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(idx.requests))
	}
	if len(res.Hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(res.Hits))
	}
	if !res.Complete() || res.Total != 0 {
		t.Fatalf("expected complete empty result, got reason=%s total=%d", res.Reason, res.Total)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	idx := newFakeIndex(12345)
	scanner := scan.New(idx)
	first, err := scanner.Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := scanner.Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(first.Hits) != len(second.Hits) {
		t.Fatalf("hit counts differ: %d vs %d", len(first.Hits), len(second.Hits))
	}
	for i := range first.Hits {
		if first.Hits[i].ID != second.Hits[i].ID {
			t.Fatalf("hit %d differs: %s vs %s", i, first.Hits[i].ID, second.Hits[i].ID)
		}
	}
	if len(idx.requests) != 4 {
		t.Fatalf("expected 2 requests per scan, got %d total", len(idx.requests))
	}
}

func TestScanMissingTotalDiscardsPage(t *testing.T) {
	idx := newFakeIndex(25000)
	idx.mutate = func(n int, resp *api.SearchResponse) {
		if n == 2 {
			resp.Hits.Total = nil
		}
	}
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(idx.requests))
	}
	assertSequential(t, res.Hits, 1, scan.PageSize)
	if !res.Partial() || res.Reason != scan.ReasonMissingTotal {
		t.Fatalf("expected partial missing_total, got %s", res.Reason)
	}
	if res.Total != 25000 {
		t.Fatalf("expected last reported total 25000, got %d", res.Total)
	}
}

func TestScanMissingTotalOnFirstPage(t *testing.T) {
	idx := newFakeIndex(10)
	idx.mutate = func(n int, resp *api.SearchResponse) {
		resp.Hits.Total = nil
	}
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Hits) != 0 || res.Total != -1 || res.Reason != scan.ReasonMissingTotal {
		t.Fatalf("unexpected result: hits=%d total=%d reason=%s", len(res.Hits), res.Total, res.Reason)
	}
}

func TestScanEmptyPageBeforeTotal(t *testing.T) {
	idx := newFakeIndex(25000)
	idx.mutate = func(n int, resp *api.SearchResponse) {
		if n == 2 {
			resp.Hits.Hits = nil
		}
	}
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(idx.requests))
	}
	assertSequential(t, res.Hits, 1, scan.PageSize)
	if res.Reason != scan.ReasonEmptyPage || !res.Partial() {
		t.Fatalf("expected partial empty_page, got %s", res.Reason)
	}
}

func TestScanMissingCursor(t *testing.T) {
	idx := newFakeIndex(25000)
	idx.mutate = func(n int, resp *api.SearchResponse) {
		if n == 1 {
			resp.Hits.Hits[len(resp.Hits.Hits)-1].Sort = nil
		}
	}
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(idx.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(idx.requests))
	}
	if len(res.Hits) != scan.PageSize {
		t.Fatalf("expected the page to be kept, got %d hits", len(res.Hits))
	}
	if res.Reason != scan.ReasonMissingCursor {
		t.Fatalf("expected missing_cursor, got %s", res.Reason)
	}
}

func TestScanMissingCursorAfterTotalIsComplete(t *testing.T) {
	idx := newFakeIndex(5)
	idx.mutate = func(n int, resp *api.SearchResponse) {
		for i := range resp.Hits.Hits {
			resp.Hits.Hits[i].Sort = nil
		}
	}
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !res.Complete() {
		t.Fatalf("expected complete, got %s", res.Reason)
	}
}

func TestScanTransportErrorKeepsAccumulatedHits(t *testing.T) {
	idx := newFakeIndex(25000)
	idx.failAt = 2
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(idx.requests) != 2 {
		t.Fatalf("expected no retry, got %d requests", len(idx.requests))
	}
	if len(res.Hits) != scan.PageSize {
		t.Fatalf("expected accumulated hits, got %d", len(res.Hits))
	}
	if res.Reason != scan.ReasonError {
		t.Fatalf("expected error reason, got %s", res.Reason)
	}
}

func TestScanRequiresCollection(t *testing.T) {
	idx := newFakeIndex(1)
	_, err := scan.New(idx).Scan(context.Background(), "", "*")
	if !errors.Is(err, scan.ErrCollectionRequired) {
		t.Fatalf("expected ErrCollectionRequired, got %v", err)
	}
	if len(idx.requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(idx.requests))
	}
}

func TestScanCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	idx := newFakeIndex(25000)
	scanner := scan.New(idx, scan.WithPageObserver(func(stats scan.PageStats) {
		if stats.Page == 1 {
			cancel()
		}
	}))
	res, err := scanner.Scan(ctx, "orders", "*")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(idx.requests) != 1 || len(res.Hits) != scan.PageSize {
		t.Fatalf("unexpected progress: requests=%d hits=%d", len(idx.requests), len(res.Hits))
	}
}

func TestIteratorLazyAndResumable(t *testing.T) {
	idx := newFakeIndex(25000)
	scanner := scan.New(idx)
	it := scanner.Iterate("orders", "*")
	if len(idx.requests) != 0 {
		t.Fatal("iterate must not issue requests before Next")
	}
	if !it.Next(context.Background()) {
		t.Fatalf("expected first page, err=%v", it.Err())
	}
	if len(it.Page()) != scan.PageSize || it.Fetched() != scan.PageSize || it.Total() != 25000 {
		t.Fatalf("unexpected iterator state fetched=%d total=%d", it.Fetched(), it.Total())
	}
	if it.Done() {
		t.Fatal("iterator stopped early")
	}
	cursor := it.Cursor()

	resumed := scanner.Iterate("orders", "*", scan.StartAfter(cursor), scan.Fetched(it.Fetched()))
	var pages int
	var rest []api.Hit
	for resumed.Next(context.Background()) {
		pages++
		rest = append(rest, resumed.Page()...)
	}
	if err := resumed.Err(); err != nil {
		t.Fatalf("resumed scan: %v", err)
	}
	if pages != 2 {
		t.Fatalf("expected 2 more pages, got %d", pages)
	}
	assertSequential(t, rest, 10001, 25000)
	if resumed.Reason() != scan.ReasonComplete || resumed.Fetched() != 25000 {
		t.Fatalf("unexpected resumed state reason=%s fetched=%d", resumed.Reason(), resumed.Fetched())
	}
	if resumed.Next(context.Background()) {
		t.Fatal("Next after completion must return false")
	}
}

func TestIteratorHitsSequence(t *testing.T) {
	idx := newFakeIndex(15)
	var ids []string
	for hit, err := range scan.New(idx).Iterate("orders", "*").Hits(context.Background()) {
		if err != nil {
			t.Fatalf("hits: %v", err)
		}
		ids = append(ids, hit.ID)
	}
	if len(ids) != 15 || ids[0] != "doc-000001" || ids[14] != "doc-000015" {
		t.Fatalf("unexpected ids %v", ids)
	}

	failing := newFakeIndex(15)
	failing.failAt = 1
	var gotErr error
	for _, err := range scan.New(failing).Iterate("orders", "*").Hits(context.Background()) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("expected error from sequence")
	}
}

func TestScanTotalCappedByTrackTotalHits(t *testing.T) {
	idx := newFakeIndex(scan.TrackTotalHits + 5)
	res, err := scan.New(idx).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Hits) != scan.TrackTotalHits {
		t.Fatalf("expected scan to stop at the reported cap, got %d hits", len(res.Hits))
	}
	if res.Relation != api.RelationGreaterOrEqual {
		t.Fatalf("expected gte relation, got %q", res.Relation)
	}
}

func TestScanRateLimiterPacesRequests(t *testing.T) {
	idx := newFakeIndex(25000)
	limiter := rate.NewLimiter(rate.Inf, 1)
	res, err := scan.New(idx, scan.WithRateLimiter(limiter)).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !res.Complete() {
		t.Fatalf("expected complete, got %s", res.Reason)
	}

	blocked := rate.NewLimiter(rate.Limit(0.001), 1)
	blocked.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scan.New(newFakeIndex(1), scan.WithRateLimiter(blocked)).Scan(ctx, "orders", "*")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestScanObserverReportsPages(t *testing.T) {
	var stats []scan.PageStats
	idx := newFakeIndex(25000)
	_, err := scan.New(idx, scan.WithPageObserver(func(s scan.PageStats) {
		stats = append(stats, s)
	})).Scan(context.Background(), "orders", "*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(stats))
	}
	last := stats[2]
	if last.Page != 3 || last.Hits != 5000 || last.Fetched != 25000 || last.Total != 25000 {
		t.Fatalf("unexpected final stats %+v", last)
	}
	if stats[0].ScanID == "" || stats[0].ScanID != last.ScanID {
		t.Fatalf("expected stable scan id, got %q and %q", stats[0].ScanID, last.ScanID)
	}
}
