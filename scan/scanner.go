package scan

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/internal/correlation"
	"pkt.systems/oswrap/internal/loggingutil"
)

const (
	// PageSize is the number of documents requested per page.
	PageSize = 10000
	// TrackTotalHits is the exact-count ceiling requested with every page.
	TrackTotalHits = 50000
	// SortField is the unique field every scan sorts on, ascending.
	SortField = "_id"
)

// ErrCollectionRequired is returned when a scan names no collection.
var ErrCollectionRequired = errors.New("scan: collection is required")

// Searcher executes one paged query.
type Searcher interface {
	SearchPage(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error)

// SearchPage implements Searcher.
func (f SearcherFunc) SearchPage(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error) {
	return f(ctx, req)
}

// Scanner walks result sets page by page with search_after cursors. A Scanner
// holds no per-scan state and is safe for concurrent use.
type Scanner struct {
	searcher Searcher
	logger   pslog.Logger
	limiter  *rate.Limiter
	observer func(PageStats)
	tracer   trace.Tracer
	metrics  *scanMetrics
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger for scan events. Nil disables logging.
func WithLogger(logger pslog.Logger) Option {
	return func(s *Scanner) {
		s.logger = loggingutil.WithSubsystem(logger, "search.scan")
	}
}

// WithRateLimiter paces page requests. Nil disables pacing.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(s *Scanner) {
		s.limiter = limiter
	}
}

// WithPageObserver registers fn to be called after every accepted page.
func WithPageObserver(fn func(PageStats)) Option {
	return func(s *Scanner) {
		s.observer = fn
	}
}

// New returns a Scanner issuing requests through searcher.
func New(searcher Searcher, opts ...Option) *Scanner {
	s := &Scanner{
		searcher: searcher,
		logger:   loggingutil.NoopLogger(),
		tracer:   otel.Tracer("pkt.systems/oswrap/scan"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.metrics = newScanMetrics(s.logger)
	return s
}

// Scan retrieves every document in collection matching query. It always
// returns the hits accumulated so far; err is non-nil only when a request
// failed or ctx was cancelled.
func (s *Scanner) Scan(ctx context.Context, collection, query string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "oswrap.scan", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("oswrap.scan.collection", collection),
		attribute.Int("oswrap.scan.page_size", PageSize),
	)
	if corr := correlation.ID(ctx); corr != "" {
		span.SetAttributes(attribute.String("oswrap.correlation_id", corr))
	}

	it := s.Iterate(collection, query)
	var hits []api.Hit
	for it.Next(ctx) {
		hits = append(hits, it.Page()...)
	}
	res := Result{
		Hits:     hits,
		Total:    it.Total(),
		Relation: it.relation,
		Pages:    it.Pages(),
		Reason:   it.Reason(),
		Cursor:   it.Cursor(),
	}
	span.SetAttributes(
		attribute.Int("oswrap.scan.pages", res.Pages),
		attribute.Int("oswrap.scan.hits", len(res.Hits)),
		attribute.Int64("oswrap.scan.total", res.Total),
		attribute.String("oswrap.scan.reason", string(res.Reason)),
	)
	if err := it.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan_error")
		return res, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// Iterate returns a lazy iterator over the pages of a scan. No request is
// issued until the first call to Next.
func (s *Scanner) Iterate(collection, query string, opts ...IterOption) *Iterator {
	it := &Iterator{
		scanner:    s,
		collection: collection,
		query:      query,
		total:      -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(it)
		}
	}
	return it
}

func (s *Scanner) observe(stats PageStats) {
	if s.observer != nil {
		s.observer(stats)
	}
}

func since(begin time.Time) time.Duration {
	return time.Since(begin).Round(time.Microsecond)
}
