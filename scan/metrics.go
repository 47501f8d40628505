package scan

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"
)

type scanMetrics struct {
	pages     metric.Int64Counter
	hits      metric.Int64Counter
	completed metric.Int64Counter
}

func newScanMetrics(logger pslog.Logger) *scanMetrics {
	meter := otel.Meter("pkt.systems/oswrap/scan")
	m := &scanMetrics{}
	var err error

	m.pages, err = meter.Int64Counter(
		"oswrap.scan.pages",
		metric.WithDescription("Scan pages accepted"),
	)
	logMetricInitError(logger, "oswrap.scan.pages", err)

	m.hits, err = meter.Int64Counter(
		"oswrap.scan.hits",
		metric.WithDescription("Documents accumulated by scans"),
	)
	logMetricInitError(logger, "oswrap.scan.hits", err)

	m.completed, err = meter.Int64Counter(
		"oswrap.scan.completed",
		metric.WithDescription("Scans stopped, by stop reason"),
	)
	logMetricInitError(logger, "oswrap.scan.completed", err)

	return m
}

func (m *scanMetrics) recordPage(ctx context.Context, hits int) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	if m.pages != nil {
		m.pages.Add(ctx, 1)
	}
	if m.hits != nil {
		m.hits.Add(ctx, int64(hits))
	}
}

func (m *scanMetrics) recordStop(ctx context.Context, reason StopReason) {
	if m == nil || m.completed == nil {
		return
	}
	ctx = metricContext(ctx)
	m.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("oswrap.scan.reason", string(reason)),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
