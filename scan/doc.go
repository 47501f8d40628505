// Package scan retrieves every document matching a query-string expression by
// walking the result set with search_after cursors.
//
// Each request asks for PageSize documents sorted by SortField ascending with
// an exact-count ceiling of TrackTotalHits. The cursor for the next request
// is the sort tuple of the last hit on the previous page. The scan stops when
// the accumulated count reaches the reported total, when a response carries
// no total (that page is discarded), when a page is empty, or when the last
// hit of a page has no sort values. Result.Reason tells these apart.
//
// Totals are capped at TrackTotalHits, so a collection larger than the cap
// is scanned up to the cap and reported with Relation "gte".
package scan
