// Package searchlog decorates page searchers with tracing and debug logging.
package searchlog

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/internal/correlation"
	"pkt.systems/oswrap/internal/loggingutil"
	"pkt.systems/oswrap/scan"
)

type searcher struct {
	inner  scan.Searcher
	logger pslog.Logger
	tracer trace.Tracer
	sys    string
}

// Wrap decorates inner with a span and trace/debug logging per page.
func Wrap(inner scan.Searcher, logger pslog.Logger, sys string) scan.Searcher {
	return &searcher{
		inner:  inner,
		logger: loggingutil.EnsureLogger(logger),
		tracer: otel.Tracer("pkt.systems/oswrap/search"),
		sys:    sys,
	}
}

func (s *searcher) SearchPage(ctx context.Context, req api.PageRequest) (*api.SearchResponse, error) {
	begin := time.Now()
	ctx, span := s.tracer.Start(ctx, "oswrap.search.page", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("oswrap.search.index", req.Index),
		attribute.Int("oswrap.search.size", req.Size),
		attribute.Bool("oswrap.search.has_cursor", len(req.SearchAfter) > 0),
		attribute.String("oswrap.sys", s.sys),
	)

	logger := s.logger
	if ctxLogger := pslog.LoggerFromContext(ctx); ctxLogger != nil {
		logger = ctxLogger
	}
	if corr := correlation.ID(ctx); corr != "" {
		logger = logger.With("cid", corr)
		span.SetAttributes(attribute.String("oswrap.correlation_id", corr))
	}
	logger = loggingutil.WithSubsystem(logger, s.sys)
	logger.Trace("search.page.begin", "index", req.Index, "search_after", req.SearchAfter)

	resp, err := s.inner.SearchPage(ctx, req)
	elapsed := time.Since(begin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search_error")
		logger.Debug("search.page.error", "index", req.Index, "error", err, "elapsed", elapsed)
		return resp, err
	}
	hits := 0
	total := int64(-1)
	if resp != nil {
		hits = len(resp.Hits.Hits)
		if resp.Hits.Total != nil {
			total = resp.Hits.Total.Value
		}
	}
	span.SetAttributes(
		attribute.Int("oswrap.search.hits", hits),
		attribute.Int64("oswrap.search.total", total),
	)
	span.SetStatus(codes.Ok, "")
	logger.Debug("search.page.success",
		"index", req.Index,
		"hits", hits,
		"total", total,
		"elapsed", elapsed,
	)
	return resp, nil
}
