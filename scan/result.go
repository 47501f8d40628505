package scan

import (
	"time"

	"pkt.systems/oswrap/api"
)

// StopReason records why a scan stopped issuing requests.
type StopReason string

const (
	// ReasonComplete means the accumulated hit count reached the reported total.
	ReasonComplete StopReason = "complete"
	// ReasonMissingTotal means a response carried no total. That page's hits
	// are not part of the result.
	ReasonMissingTotal StopReason = "missing_total"
	// ReasonMissingCursor means the last hit of a page had no sort values, so
	// there was nothing to resume from.
	ReasonMissingCursor StopReason = "missing_cursor"
	// ReasonEmptyPage means a page returned zero hits before the total was reached.
	ReasonEmptyPage StopReason = "empty_page"
	// ReasonError means a request failed or the context was cancelled.
	ReasonError StopReason = "error"
)

// Result is the outcome of an eager scan.
type Result struct {
	// Hits holds every accumulated document in server order.
	Hits []api.Hit
	// Total is the last total reported by the cluster, or -1 when no response
	// reported one.
	Total int64
	// Relation is the relation of the last reported total. "gte" means Total is
	// a lower bound capped by TrackTotalHits.
	Relation string
	// Pages counts the requests issued, including the one that stopped the scan.
	Pages int
	// Reason classifies the stop.
	Reason StopReason
	// Cursor is the sort tuple of the last accepted hit. Pass it to StartAfter
	// to resume.
	Cursor []any
}

// Complete reports whether every document up to the reported total was fetched.
func (r Result) Complete() bool {
	return r.Reason == ReasonComplete
}

// Partial reports whether the scan stopped early.
func (r Result) Partial() bool {
	return !r.Complete()
}

// PageStats describes one accepted page. It is passed to page observers.
type PageStats struct {
	// ScanID identifies the scan in logs.
	ScanID string
	// Collection is the scanned index, alias or pattern.
	Collection string
	// Page is the 1-based request number.
	Page int
	// Hits is the number of hits on this page.
	Hits int
	// Fetched is the running total of accumulated hits.
	Fetched int
	// Total is the total reported with this page.
	Total int64
	// Cursor is the sort tuple of the page's last hit; nil when it had none.
	Cursor []any
	// Elapsed is the round-trip duration of this page request.
	Elapsed time.Duration
}
