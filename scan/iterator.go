package scan

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"pkt.systems/oswrap/api"
)

// Iterator yields a scan one page at a time. It is not safe for concurrent use.
type Iterator struct {
	scanner    *Scanner
	collection string
	query      string
	id         string
	logger     pslog.Logger

	cursor   []any
	page     []api.Hit
	fetched  int
	total    int64
	relation string
	pages    int
	reason   StopReason
	done     bool
	started  bool
	err      error
}

// IterOption customises an Iterator.
type IterOption func(*Iterator)

// StartAfter resumes a scan after cursor, the sort tuple of the last hit
// already consumed (see Iterator.Cursor and Result.Cursor).
func StartAfter(cursor []any) IterOption {
	return func(it *Iterator) {
		if len(cursor) == 0 {
			it.cursor = nil
			return
		}
		it.cursor = append([]any(nil), cursor...)
	}
}

// Fetched seeds the accumulated hit count when resuming, so the stop
// condition still compares against the collection's total.
func Fetched(n int) IterOption {
	return func(it *Iterator) {
		if n > 0 {
			it.fetched = n
		}
	}
}

// Next requests the next page. It returns false once the scan has stopped or
// failed; check Err and Reason afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	it.page = nil
	if it.done {
		return false
	}
	if !it.started {
		it.begin()
	}
	if it.collection == "" {
		it.fail(ctx, ErrCollectionRequired)
		return false
	}
	if err := ctx.Err(); err != nil {
		it.fail(ctx, fmt.Errorf("scan: %s: %w", it.collection, err))
		return false
	}
	s := it.scanner
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			it.fail(ctx, fmt.Errorf("scan: %s: rate limit: %w", it.collection, err))
			return false
		}
	}

	req := api.PageRequest{
		Index:          it.collection,
		Query:          it.query,
		Size:           PageSize,
		Sort:           []api.SortField{{Field: SortField, Order: api.SortAsc}},
		SearchAfter:    it.cursor,
		TrackTotalHits: TrackTotalHits,
	}
	begin := time.Now()
	resp, err := s.searcher.SearchPage(ctx, req)
	it.pages++
	elapsed := since(begin)
	if err != nil {
		it.fail(ctx, fmt.Errorf("scan: %s: page %d: %w", it.collection, it.pages, err))
		return false
	}
	if resp == nil || resp.Hits.Total == nil {
		it.stop(ctx, ReasonMissingTotal)
		return false
	}
	it.total = resp.Hits.Total.Value
	it.relation = resp.Hits.Total.Relation

	hits := resp.Hits.Hits
	if len(hits) == 0 {
		it.stop(ctx, ReasonEmptyPage)
		return false
	}
	it.fetched += len(hits)
	it.page = hits
	s.metrics.recordPage(ctx, len(hits))

	last := hits[len(hits)-1].Sort
	if len(last) > 0 {
		it.cursor = last
	}
	it.logger.Debug("scan.page",
		"page", it.pages,
		"hits", len(hits),
		"fetched", it.fetched,
		"total", it.total,
		"elapsed", elapsed,
	)
	s.observe(PageStats{
		ScanID:     it.id,
		Collection: it.collection,
		Page:       it.pages,
		Hits:       len(hits),
		Fetched:    it.fetched,
		Total:      it.total,
		Cursor:     last,
		Elapsed:    elapsed,
	})
	switch {
	case len(last) == 0:
		it.stop(ctx, ReasonMissingCursor)
	case int64(it.fetched) >= it.total:
		it.stop(ctx, ReasonComplete)
	}
	return true
}

// Page returns the hits of the page fetched by the last successful Next.
func (it *Iterator) Page() []api.Hit { return it.page }

// Err returns the error that stopped the iterator, if any.
func (it *Iterator) Err() error { return it.err }

// Cursor returns the sort tuple of the last accepted hit.
func (it *Iterator) Cursor() []any { return it.cursor }

// Total returns the last reported total, or -1 before any total was seen.
func (it *Iterator) Total() int64 { return it.total }

// Fetched returns the number of hits accumulated, including any seeded count.
func (it *Iterator) Fetched() int { return it.fetched }

// Pages returns the number of requests issued.
func (it *Iterator) Pages() int { return it.pages }

// Reason returns why the iterator stopped. It is empty while the scan is running.
func (it *Iterator) Reason() StopReason { return it.reason }

// Done reports whether the iterator has stopped.
func (it *Iterator) Done() bool { return it.done }

// Hits ranges over individual hits. A failure is yielded once as the final
// element with a zero Hit.
func (it *Iterator) Hits(ctx context.Context) iter.Seq2[api.Hit, error] {
	return func(yield func(api.Hit, error) bool) {
		for it.Next(ctx) {
			for _, hit := range it.Page() {
				if !yield(hit, nil) {
					return
				}
			}
		}
		if err := it.Err(); err != nil {
			yield(api.Hit{}, err)
		}
	}
}

func (it *Iterator) begin() {
	it.started = true
	it.id = xid.New().String()
	it.logger = it.scanner.logger.With("scan_id", it.id, "index", it.collection)
	it.logger.Info("scan.begin",
		"query", it.query,
		"page_size", PageSize,
		"resumed", len(it.cursor) > 0,
	)
}

// stop ends the scan. A stop after the total has been reached is complete
// regardless of what triggered it.
func (it *Iterator) stop(ctx context.Context, reason StopReason) {
	if it.total >= 0 && int64(it.fetched) >= it.total {
		reason = ReasonComplete
	}
	it.finish(ctx, reason)
	level := it.logger.Info
	if reason != ReasonComplete {
		level = it.logger.Warn
	}
	level("scan.stop",
		"reason", reason,
		"pages", it.pages,
		"fetched", it.fetched,
		"total", it.total,
	)
}

func (it *Iterator) fail(ctx context.Context, err error) {
	it.err = err
	it.finish(ctx, ReasonError)
	it.logger.Error("scan.error",
		"pages", it.pages,
		"fetched", it.fetched,
		"error", err,
	)
}

func (it *Iterator) finish(ctx context.Context, reason StopReason) {
	it.done = true
	it.reason = reason
	it.scanner.metrics.recordStop(ctx, reason)
}
